package websocket

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateRoom(t *testing.T) {
	tests := []struct {
		room  string
		valid bool
	}{
		{"post:abc123", true},
		{"post:a_b-C", true},
		{PostRoom("6f1c2d3e-aaaa-bbbb-cccc-000000000000"), true},
		{"post:" + strings.Repeat("a", 64), true},
		{"post:" + strings.Repeat("a", 65), false},
		{"post:", false},
		{"post:has space", false},
		{"post:a/b", false},
		{"conversation:abc", false},
		{"abc", false},
		{"", false},
	}

	for _, tt := range tests {
		err := ValidateRoom(tt.room)
		if tt.valid {
			assert.NoError(t, err, tt.room)
		} else {
			assert.True(t, errors.Is(err, ErrInvalidRoom), tt.room)
		}
	}
}

func TestRoomsJoinAndMembers(t *testing.T) {
	r := NewRooms()

	require.NoError(t, r.Join("c2", "post:p1"))
	require.NoError(t, r.Join("c1", "post:p1"))
	require.NoError(t, r.Join("c1", "post:p1"))
	require.NoError(t, r.Join("c1", "post:p2"))

	assert.Equal(t, []string{"c1", "c2"}, r.Members("post:p1"))
	assert.Equal(t, []string{"c1"}, r.Members("post:p2"))
	assert.Equal(t, []string{"post:p1", "post:p2"}, r.Rooms("c1"))
	assert.Equal(t, 2, r.Count())
}

func TestRoomsJoinRejectsMalformedName(t *testing.T) {
	r := NewRooms()

	err := r.Join("c1", "admin")
	assert.True(t, errors.Is(err, ErrInvalidRoom))
	assert.Empty(t, r.Rooms("c1"))
	assert.Equal(t, 0, r.Count())
}

func TestRoomsLeavePrunesEmptySets(t *testing.T) {
	r := NewRooms()
	require.NoError(t, r.Join("c1", "post:p1"))

	assert.True(t, r.Leave("c1", "post:p1"))
	assert.False(t, r.Leave("c1", "post:p1"))

	assert.Empty(t, r.Members("post:p1"))
	assert.Empty(t, r.Rooms("c1"))
	assert.Equal(t, 0, r.Count())
	assert.Empty(t, r.byConn)
	assert.Empty(t, r.byRoom)
}

func TestRoomsLeaveAll(t *testing.T) {
	r := NewRooms()
	require.NoError(t, r.Join("c1", "post:p2"))
	require.NoError(t, r.Join("c1", "post:p1"))
	require.NoError(t, r.Join("c2", "post:p1"))

	left := r.LeaveAll("c1")
	assert.Equal(t, []string{"post:p1", "post:p2"}, left)

	assert.Empty(t, r.Rooms("c1"))
	assert.Equal(t, []string{"c2"}, r.Members("post:p1"))
	assert.Empty(t, r.Members("post:p2"))
	assert.Equal(t, 1, r.Count())

	assert.Empty(t, r.LeaveAll("unknown"))
}

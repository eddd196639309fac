package database

import (
	"context"
	"testing"

	"github.com/Bhogyaan/threads/backend/internal/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenSQLiteHealth(t *testing.T) {
	db, err := OpenSQLite(":memory:")
	require.NoError(t, err)

	assert.NoError(t, Health(context.Background(), db))
	assert.NoError(t, Close(db))
	assert.Error(t, Health(context.Background(), db))
}

func TestNilDatabase(t *testing.T) {
	assert.Error(t, Health(context.Background(), nil))
	assert.Error(t, Migrate(nil))
	assert.NoError(t, Close(nil))
}

func TestTracingPluginRunsQueries(t *testing.T) {
	db, err := OpenSQLite(":memory:")
	require.NoError(t, err)
	defer Close(db)

	require.NoError(t, db.Use(telemetry.GORMTracingPlugin()))
	require.NoError(t, db.Exec("CREATE TABLE items (id TEXT PRIMARY KEY, name TEXT)").Error)

	type item struct {
		ID   string
		Name string
	}
	require.NoError(t, db.Table("items").Create(&item{ID: "1", Name: "a"}).Error)

	var got item
	require.NoError(t, db.WithContext(context.Background()).Table("items").First(&got, "id = ?", "1").Error)
	assert.Equal(t, "a", got.Name)
}

func TestMigrateSQLiteIsIdempotent(t *testing.T) {
	db, err := OpenSQLite(":memory:")
	require.NoError(t, err)
	defer Close(db)

	require.NoError(t, MigrateSQLite(db))
	require.NoError(t, MigrateSQLite(db))

	for _, table := range []string{"users", "posts", "comments", "conversations", "conversation_participants", "messages"} {
		assert.True(t, db.Migrator().HasTable(table), table)
	}
	assert.Error(t, MigrateSQLite(nil))
}

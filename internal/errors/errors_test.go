package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAPIErrorMessage(t *testing.T) {
	assert.Equal(t, "BAD_REQUEST: room is required", BadRequest("room is required").Error())
	assert.Equal(t, "VALIDATION_ERROR: malformed room (field: room)", ValidationError("room", "malformed room").Error())
}

func TestStatusCodes(t *testing.T) {
	assert.Equal(t, http.StatusUnauthorized, Unauthorized("nope").Status)
	assert.Equal(t, http.StatusTooManyRequests, RateLimited("").Status)
	assert.Equal(t, "rate limit exceeded", RateLimited("").Message)
	assert.Equal(t, http.StatusUnprocessableEntity, ErrValidation.StatusCode())
	assert.Equal(t, http.StatusInternalServerError, ErrorCode("SOMETHING_ELSE").StatusCode())
}

func TestAs(t *testing.T) {
	wrapped := fmt.Errorf("join failed: %w", ValidationError("room", "bad room"))
	assert.Equal(t, ErrValidation, As(wrapped).Code)

	plain := As(fmt.Errorf("connection refused"))
	assert.Equal(t, ErrInternalError, plain.Code)
	assert.Equal(t, "internal error", plain.Message)
}

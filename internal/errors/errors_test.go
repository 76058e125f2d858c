package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConstructorsCarryStatus(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, InvalidArgument("x").StatusCode)
	assert.Equal(t, http.StatusNotFound, NotFound("x").StatusCode)
	assert.Equal(t, http.StatusConflict, InvalidTransition("x").StatusCode)
	assert.Equal(t, http.StatusInternalServerError, Internal("x").StatusCode)
}

func TestWithIDAndCause(t *testing.T) {
	cause := stderrors.New("boom")
	err := NotFound("job missing", WithID("store.export_job.get.not_found"), WithCause(cause))

	assert.Equal(t, "store.export_job.get.not_found", err.ID)
	assert.ErrorIs(t, err, cause)
}

func TestPredicatesThroughWrapping(t *testing.T) {
	wrapped := fmt.Errorf("claim: %w", InvalidTransition("job x is completed"))

	assert.True(t, IsInvalidTransition(wrapped))
	assert.False(t, IsNotFound(wrapped))
	assert.False(t, IsInvalidArgument(wrapped))
}

func TestStatusCode(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, StatusCode(NotFound("x")))
	assert.Equal(t, http.StatusConflict, StatusCode(fmt.Errorf("wrap: %w", InvalidTransition("x"))))
	assert.Equal(t, http.StatusInternalServerError, StatusCode(stderrors.New("plain")))
}

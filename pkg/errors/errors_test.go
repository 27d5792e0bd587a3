package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCloneKeepsIdentityForIs(t *testing.T) {
	err := Clone(ErrAlreadyInState, "already forwarded")
	require.True(t, errors.Is(err, ErrAlreadyInState))
	assert.False(t, errors.Is(err, ErrValidation))
	assert.Equal(t, "already forwarded", err.Message)
	assert.Equal(t, "record already in requested state", ErrAlreadyInState.Message)
}

func TestPersistenceCarriesContext(t *testing.T) {
	cause := fmt.Errorf("connection reset")
	err := Persistence(cause, "approve", "sch-1")
	assert.Equal(t, ErrPersistence.Code, err.Code)
	assert.Equal(t, http.StatusInternalServerError, err.Status)
	assert.Contains(t, err.Error(), "approve failed for record sch-1")
	assert.ErrorIs(t, err, cause)
}

func TestFromErrorWrapsUnknown(t *testing.T) {
	err := FromError(fmt.Errorf("boom"))
	assert.Equal(t, ErrInternal.Code, err.Code)
	assert.Nil(t, FromError(nil))
	assert.True(t, IsCode(fmt.Errorf("wrapped: %w", ErrNotFound), ErrNotFound.Code))
}

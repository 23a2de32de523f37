package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCloneMatchesSentinel(t *testing.T) {
	err := Clone(ErrInvalidTransition, "leave already approved")
	assert.True(t, stdErrors.Is(err, ErrInvalidTransition))
	assert.False(t, stdErrors.Is(err, ErrConflict))
	assert.Equal(t, "leave already approved", err.Message)
	assert.Equal(t, http.StatusConflict, err.Status)
}

func TestFromErrorWrapsUnknown(t *testing.T) {
	appErr := FromError(fmt.Errorf("boom"))
	assert.Equal(t, ErrInternal.Code, appErr.Code)
	assert.Equal(t, http.StatusInternalServerError, appErr.Status)
	assert.Nil(t, FromError(nil))
}

func TestWrapAsKeepsCause(t *testing.T) {
	cause := fmt.Errorf("redis down")
	err := WrapAs(cause, ErrDependencyFailure, "")
	assert.True(t, stdErrors.Is(err, cause))
	assert.True(t, HasCode(fmt.Errorf("outer: %w", err), ErrDependencyFailure.Code))
	assert.Equal(t, ErrDependencyFailure.Message+": redis down", err.Error())
}

package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodeOf(t *testing.T) {
	assert.Equal(t, CodeInvalidArgument, CodeOf(InvalidArg("bad input")))
	assert.Equal(t, CodePermissionDenied, CodeOf(Forbidden("nope")))
	assert.Equal(t, CodeNotFound, CodeOf(NotFound("missing")))
	assert.Equal(t, CodeUnknown, CodeOf(errors.New("plain")))
	assert.Equal(t, CodeUnknown, CodeOf(nil))
}

func TestCodeSurvivesWrapping(t *testing.T) {
	err := fmt.Errorf("handler: %w", Forbidden("not a participant"))
	assert.Equal(t, CodePermissionDenied, CodeOf(err))
	assert.True(t, Is(err, CodePermissionDenied))
	assert.False(t, Is(err, CodeNotFound))
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(CodeInternal, "failed to store message", cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "failed to store message")
	assert.Contains(t, err.Error(), "connection refused")
}

package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError(t *testing.T) {
	t.Run("message without cause", func(t *testing.T) {
		err := New(CodeInvalidSend, "empty body")
		assert.Equal(t, "empty body", err.Error())
		assert.Equal(t, CodeInvalidSend, CodeOf(err))
	})

	t.Run("wrap keeps cause", func(t *testing.T) {
		cause := fmt.Errorf("status 502")
		err := ErrHistory(cause)
		assert.Equal(t, "history fetch failed: status 502", err.Error())
		assert.True(t, stderrors.Is(err, cause))
		assert.True(t, stderrors.Is(err, ErrHistoryFetchFailed))
		assert.False(t, stderrors.Is(err, ErrDirectoryLookup))
	})

	t.Run("code through fmt wrapping", func(t *testing.T) {
		err := fmt.Errorf("publish: %w", ErrTransportUnavailable)
		assert.Equal(t, CodeTransportUnavailable, CodeOf(err))
		assert.True(t, stderrors.Is(err, ErrTransportUnavailable))
	})

	t.Run("non app errors", func(t *testing.T) {
		assert.Equal(t, CodeUnknown, CodeOf(stderrors.New("boom")))
		assert.Equal(t, Code(""), CodeOf(nil))
	})
}

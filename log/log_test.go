package log

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetLevel(t *testing.T) {
	defer func() { _ = SetLevel(LevelInfo) }()

	for _, level := range []string{LevelDebug, LevelInfo, LevelWarn, LevelError} {
		require.NoError(t, SetLevel(level))
		assert.Equal(t, level, Level())
	}
}

func TestSetLevelRejectsUnknown(t *testing.T) {
	defer func() { _ = SetLevel(LevelInfo) }()

	require.NoError(t, SetLevel(LevelWarn))
	for _, level := range []string{"verbos", "", "INFO", "warning"} {
		assert.Error(t, SetLevel(level), "level %q", level)
		assert.Equal(t, LevelWarn, Level(), "level %q must not change the current level", level)
	}
}

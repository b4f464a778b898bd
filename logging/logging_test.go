package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, parseLevel("DEBUG"))
	assert.Equal(t, zapcore.WarnLevel, parseLevel("warn"))
	assert.Equal(t, zapcore.ErrorLevel, parseLevel("error"))
	assert.Equal(t, zapcore.InfoLevel, parseLevel("verbose"))
}

// TestNewSugaredLogger_File checks that messages at or above the level
// reach the rotating log file.
func TestNewSugaredLogger_File(t *testing.T) {
	lc := DefaultLogConfig()
	lc.LogInConsole = false
	lc.Level = "warn"

	// The rotation cleanup runs in the background, so the directory is
	// removed without failing the test.
	dir, err := os.MkdirTemp("", "hmmlog")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	lc.Path = filepath.Join(dir, "hmm.log")

	logger, err := NewSugaredLogger("test", lc)
	require.NoError(t, err)
	logger.Info("not kept")
	logger.Warnw("run diverged", "run", "run-001-00000000000000ff")
	require.NoError(t, logger.Sync())

	files, err := filepath.Glob(lc.Path + ".??????????")
	require.NoError(t, err)
	require.Len(t, files, 1)

	b, err := os.ReadFile(files[0])
	require.NoError(t, err)
	assert.Contains(t, string(b), "[WARN]")
	assert.Contains(t, string(b), "run diverged")
	assert.Contains(t, string(b), "run-001-00000000000000ff")
	assert.NotContains(t, string(b), "not kept")
}

func TestNewSugaredLogger_Nowhere(t *testing.T) {
	lc := DefaultLogConfig()
	lc.LogInConsole = false

	logger, err := NewSugaredLogger("test", lc)
	require.NoError(t, err)
	logger.Info("discarded")
}

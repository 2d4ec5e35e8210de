package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWritesComponentToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "popup.log")
	logger, err := New(Config{Level: "info", File: path, MaxSizeMB: 1})
	require.NoError(t, err)

	For(logger, ComponentAMI).Info("connected to AMI")
	For(logger, ComponentAMI).Debug("suppressed at info level")
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "connected to AMI", entry["msg"])
	assert.Equal(t, "ami", entry["component"])
	assert.Equal(t, "info", entry["level"])
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New(Config{Level: "chatty"})
	assert.Error(t, err)
}

func TestForNilLogger(t *testing.T) {
	assert.NotPanics(t, func() {
		For(nil, ComponentHTTP).Info("discarded")
	})
}

package pipeline

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConfigDefaults(t *testing.T) {
	t.Setenv("PP_CAMERA", "2")

	cfg, err := ParseConfig([]byte(`
camera:
  id: ${PP_CAMERA}
pipes:
  - id: preview
    node: libacryl
    lazy_fallback: libcsc
  - node: jpeg
    queue_size: 8
`))
	require.NoError(t, err)

	assert.Equal(t, 2, cfg.Camera.ID)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, "SFL_MGR", cfg.SFL.Name)
	assert.Equal(t, 8080, cfg.API.Port)

	require.Len(t, cfg.Pipes, 2)
	assert.Equal(t, "preview", cfg.Pipes[0].ID)
	assert.Equal(t, "libcsc", cfg.Pipes[0].LazyFallback)
	assert.Equal(t, 4, cfg.Pipes[0].QueueSize)
	assert.Equal(t, "pipe1", cfg.Pipes[1].ID)
	assert.Equal(t, 8, cfg.Pipes[1].QueueSize)
}

func TestParseConfigErrors(t *testing.T) {
	_, err := ParseConfig([]byte("pipes: [{id: a, node: jpeg}, {id: a, node: gdc}]"))
	assert.ErrorContains(t, err, `duplicate pipe id "a"`)

	_, err = ParseConfig([]byte("pipes: [{id: a}]"))
	assert.ErrorContains(t, err, "pipe a has no node")

	_, err = ParseConfig([]byte("camera: [1"))
	assert.ErrorContains(t, err, "parse config")
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ppd.yaml")
	require.NoError(t, os.WriteFile(path, []byte("api:\n  port: 9090\nsfl:\n  enable: [hdr, night]\n"), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.API.Port)
	assert.Equal(t, []string{"hdr", "night"}, cfg.SFL.Enable)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "read config")
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(LogConfig{Level: "debug", Format: "json"}, &buf)
	require.NoError(t, err)
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, logger.Formatter)

	logger.WithField("pipe", "p").Debug("hello")
	assert.Contains(t, buf.String(), `"pipe":"p"`)

	logger, err = NewLogger(LogConfig{Level: "warn", Format: "text"}, &buf)
	require.NoError(t, err)
	assert.IsType(t, &logrus.TextFormatter{}, logger.Formatter)

	_, err = NewLogger(LogConfig{Level: "loud"}, &buf)
	assert.Error(t, err)
	_, err = NewLogger(LogConfig{Level: "info", Format: "xml"}, &buf)
	assert.Error(t, err)
}

package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"cryptobroker/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// go test -v --run TestBuildJSON
func TestBuildJSON(t *testing.T) {
	var buf bytes.Buffer
	log, err := build(config.LogConfig{Level: "info", Format: "json", Environment: "prod"}, &buf)
	require.NoError(t, err)

	log.Debug("hidden")
	log.Info("buy committed", zap.String("user", "alice"))
	require.NoError(t, log.Sync())

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"msg":"buy committed"`)
	assert.Contains(t, out, `"user":"alice"`)
	assert.Contains(t, out, `"service":"cryptobroker"`)
}

// go test -v --run TestBuildWithFile
func TestBuildWithFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "broker.log")
	var buf bytes.Buffer
	log, err := build(config.LogConfig{Level: "debug", Format: "console", Environment: "dev", OutputFile: path, MaxSizeMB: 1}, &buf)
	require.NoError(t, err)

	log.Warn("buy rejected")
	_ = log.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"M":"buy rejected"`)
	assert.Contains(t, buf.String(), "buy rejected")
}

// go test -v --run TestFileSharesEncoderConfig
func TestFileSharesEncoderConfig(t *testing.T) {
	tests := []struct {
		name     string
		opts     config.LogConfig
		wantFile []string
		wantOut  []string
	}{
		{
			name:     "json",
			opts:     config.LogConfig{Level: "info", Format: "json", Environment: "prod"},
			wantFile: []string{`"level":"warn"`, `"msg":"sell rejected"`},
			wantOut:  []string{`"level":"warn"`, `"msg":"sell rejected"`},
		},
		{
			name:     "console",
			opts:     config.LogConfig{Level: "info", Format: "console", Environment: "dev"},
			wantFile: []string{`"L":"WARN"`, `"M":"sell rejected"`},
			wantOut:  []string{"WARN", "sell rejected"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.opts.OutputFile = filepath.Join(t.TempDir(), "broker.log")
			tt.opts.MaxSizeMB = 1
			var buf bytes.Buffer
			log, err := build(tt.opts, &buf)
			require.NoError(t, err)

			log.Warn("sell rejected")
			_ = log.Sync()

			data, err := os.ReadFile(tt.opts.OutputFile)
			require.NoError(t, err)
			for _, want := range tt.wantFile {
				assert.Contains(t, string(data), want)
			}
			for _, want := range tt.wantOut {
				assert.Contains(t, buf.String(), want)
			}
		})
	}
}

// go test -v --run TestInvalidLevel
func TestInvalidLevel(t *testing.T) {
	_, err := New(config.LogConfig{Level: "loud"})
	assert.Error(t, err)
}

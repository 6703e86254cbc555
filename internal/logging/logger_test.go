package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger_LevelMapping(t *testing.T) {
	tests := []struct {
		level      LogLevel
		debugShown bool
		infoShown  bool
	}{
		{LogLevelQuiet, false, false},
		{LogLevelNormal, false, true},
		{LogLevelVerbose, true, true},
		{LogLevelDebug, true, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.level), func(t *testing.T) {
			var buf bytes.Buffer
			logger, err := NewLogger(Config{Level: tt.level, Output: &buf})
			require.NoError(t, err)

			logger.Debug("debug message")
			logger.Info("info message")
			logger.Error("error message")

			out := buf.String()
			assert.Equal(t, tt.debugShown, strings.Contains(out, "debug message"))
			assert.Equal(t, tt.infoShown, strings.Contains(out, "info message"))
			assert.Contains(t, out, "error message", "errors are always shown")
			assert.Equal(t, tt.level, logger.GetLevel())
		})
	}
}

func TestNewLogger_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(Config{Level: LogLevelNormal, Output: &buf, Format: "json"})
	require.NoError(t, err)

	logger.WithField("target", "billing").Info("Artifact uploaded")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "Artifact uploaded", entry["msg"])
	assert.Equal(t, "billing", entry["target"])
}

func TestLogger_DomainMethods(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(Config{Level: LogLevelDebug, Output: &buf, Format: "json"})
	require.NoError(t, err)

	logger.LogRunStart("run-1", true, 7)
	logger.LogPipeline("billing", "billing.sql.zst", 50000, 3*time.Second, nil)
	logger.LogPipeline("billing", "billing.sql.zst", 0, time.Second, errors.New("dump failed"))
	logger.LogUpload("billing", "s3://offsite/billing.sql.zst", time.Second, nil)
	logger.LogNotifyAttempt("https://hc/x", 2, errors.New("status 502"))
	logger.LogNotifyGiveUp("https://hc/x", 3, errors.New("status 502"))

	out := buf.String()
	assert.Contains(t, out, "run_start")
	assert.Contains(t, out, "Artifact created")
	assert.Contains(t, out, "Pipeline failed")
	assert.Contains(t, out, "Artifact uploaded")
	assert.Contains(t, out, "Healthcheck delivery failed")
	assert.Contains(t, out, "Healthcheck delivery abandoned")
}

func TestNewDefaultLogger(t *testing.T) {
	logger := NewDefaultLogger()
	require.NotNil(t, logger)
	assert.Equal(t, LogLevelNormal, logger.GetLevel())
}

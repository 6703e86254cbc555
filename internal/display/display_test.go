package display

import (
	"bytes"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func plainService(t *testing.T) (*Service, *bytes.Buffer) {
	t.Helper()
	prev := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = prev })

	var buf bytes.Buffer
	return NewServiceWithWriter(&buf), &buf
}

func TestService_StatusLines(t *testing.T) {
	s, buf := plainService(t)

	s.Success("backup of %s done", "billing")
	s.Warning("clock skew detected")
	s.Error("upload failed")
	s.Info("3 targets due")
	s.Plain("plain %d", 42)

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, "backup of billing done", lines[0])
	assert.Equal(t, "plain 42", lines[4])
}

func TestService_Outcome(t *testing.T) {
	s, _ := plainService(t)

	assert.Equal(t, "-", s.Outcome(""))
	assert.Equal(t, "Success", s.Outcome("Success"))
	assert.Equal(t, "Failure", s.Outcome("Failure"))
}

func TestService_PrintTableAlignment(t *testing.T) {
	s, buf := plainService(t)

	s.PrintTable(
		[]string{"ID", "NAME", "RESULT"},
		[][]string{
			{"1", "billing", "Success"},
			{"2", "analytics-warehouse", "Failure"},
		},
	)

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[1], "--")

	// Every column must start at the same offset on every line.
	assert.Equal(t, strings.Index(lines[0], "RESULT"), strings.Index(lines[2], "Success"))
	assert.Equal(t, strings.Index(lines[0], "RESULT"), strings.Index(lines[3], "Failure"))
	assert.Equal(t, strings.Index(lines[0], "NAME"), strings.Index(lines[2], "billing"))
	assert.Equal(t, strings.Index(lines[0], "NAME"), strings.Index(lines[3], "analytics-warehouse"))
}

func TestVisibleLen_IgnoresColorCodes(t *testing.T) {
	assert.Equal(t, 7, visibleLen("Success"))
	assert.Equal(t, 7, visibleLen("\x1b[32mSuccess\x1b[0m"))
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{1024, "1.0 KB"},
		{50000, "48.8 KB"},
		{5 * 1024 * 1024, "5.0 MB"},
		{3 * 1024 * 1024 * 1024, "3.0 GB"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatBytes(tt.in))
	}
}

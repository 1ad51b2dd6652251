package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func capture(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() {
		SetOutput(os.Stderr)
		SetLevel(INFO)
	})
	return &buf
}

func TestInfo_RedactsEmailFields(t *testing.T) {
	buf := capture(t)

	Info("lead captured", "email", "jane.doe@acme.com", "note", "cc bob@acme.com please")

	var entry map[string]string
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "lead captured", entry["msg"])
	assert.Equal(t, "ja***@acme.com", entry["email"])
	assert.Equal(t, "cc bo***@acme.com please", entry["note"])
}

func TestLevelFilter(t *testing.T) {
	buf := capture(t)
	SetLevel(WARN)

	Info("dropped")
	Warn("kept")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], `"msg":"kept"`)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, DEBUG, ParseLevel("debug"))
	assert.Equal(t, WARN, ParseLevel("WARNING"))
	assert.Equal(t, ERROR, ParseLevel("error"))
	assert.Equal(t, INFO, ParseLevel(""))
}

func TestRedactEmail(t *testing.T) {
	assert.Equal(t, "jo***@example.com", RedactEmail("john.doe@example.com"))
	assert.Equal(t, "***@example.com", RedactEmail("ab@example.com"))
	assert.Equal(t, "***@***", RedactEmail("not-an-email"))
}

func TestRedactPhone(t *testing.T) {
	assert.Equal(t, "***4567", RedactPhone("+1 (555) 123-4567"))
	assert.Equal(t, "***", RedactPhone("123"))

	buf := capture(t)
	Info("lead captured", "phone", "+15551234567")
	assert.Contains(t, buf.String(), `"phone":"***4567"`)
}

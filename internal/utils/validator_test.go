package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateID(t *testing.T) {
	assert.True(t, ValidateID("0f8c2a2e-1b7a-4d7e-9f00-abcdef123456"))
	assert.True(t, ValidateID("user_1"))
	assert.False(t, ValidateID(""))
	assert.False(t, ValidateID("has space"))
	assert.False(t, ValidateID(strings.Repeat("a", 65)))

	assert.True(t, ValidateIDs(nil))
	assert.False(t, ValidateIDs([]string{"ok", "no/slash"}))
}

func TestValidateName(t *testing.T) {
	assert.True(t, ValidateName("Sprint 12"))
	assert.False(t, ValidateName("   "))
	assert.True(t, ValidateName(strings.Repeat("界", MaxNameLength)))
	assert.False(t, ValidateName(strings.Repeat("a", MaxNameLength+1)))
}

func TestValidateContent(t *testing.T) {
	assert.True(t, ValidateContent("hello"))
	assert.False(t, ValidateContent("\n\t"))
	assert.False(t, ValidateContent(strings.Repeat("x", MaxContentLength+1)))
}

func TestSanitizeFilename(t *testing.T) {
	tests := map[string]string{
		"report.pdf":          "report.pdf",
		"../../etc/passwd":    "passwd",
		`C:\Users\me\pic.png`: "pic.png",
		"bad\x00name.txt":     "badname.txt",
		"":                    "file",
		"/":                   "file",
	}
	for in, want := range tests {
		assert.Equal(t, want, SanitizeFilename(in), in)
	}
}

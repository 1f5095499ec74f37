package ui

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsTTY_WithBuffer_ReturnsFalse(t *testing.T) {
	assert.False(t, IsTTY(&bytes.Buffer{}))
}

func TestIsTTY_WithNil_ReturnsFalse(t *testing.T) {
	assert.False(t, IsTTY(nil))
}

func TestPlainOutput_NonTTY(t *testing.T) {
	// Given: a buffer
	// Then: output is plain
	assert.True(t, PlainOutput(&bytes.Buffer{}))
}

func TestDetectNoColor(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	assert.True(t, DetectNoColor())
}

func TestDetectCI(t *testing.T) {
	t.Setenv("CI", "true")
	assert.True(t, DetectCI())
}

func TestGetStyles_WithNoColor(t *testing.T) {
	styles := GetStyles(true)

	assert.Equal(t, "test", styles.Success.Render("test"))
	assert.Equal(t, "test", styles.Header.Render("test"))
}

func TestGetStyles_WithColor(t *testing.T) {
	styles := GetStyles(false)

	// ANSI codes depend on the terminal; the text is always present
	assert.Contains(t, styles.Header.Render("test"), "test")
}

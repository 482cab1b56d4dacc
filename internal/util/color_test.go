package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDarkenColor(t *testing.T) {
	assert.Equal(t, "#7F7F7F", DarkenColor("#FFFFFF", 50))
	assert.Equal(t, "#000000", DarkenColor("#123456", 100))
	assert.Equal(t, "#E5340B", DarkenColor("#FF3A0D", 10))

	// Unparseable values pass through untouched.
	assert.Equal(t, "purple", DarkenColor("purple", 10))
	assert.Equal(t, "#FFF", DarkenColor("#FFF", 10))
}

func TestGenerateBrandCSS(t *testing.T) {
	css := GenerateBrandCSS("#FF0000", "#00FF00")
	assert.Contains(t, css, "--brand-light:#FF0000")
	assert.Contains(t, css, "--brand-dark:#00FF00")
	assert.Contains(t, css, "--brand:#FF0000")
	assert.Contains(t, css, "--brand-hover:#E50000")
	assert.Contains(t, css, "@media(prefers-color-scheme:dark)")
}

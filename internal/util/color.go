package util

import (
	"fmt"
	"strconv"
	"strings"
)

// rgb is a color parsed from a #RRGGBB string.
type rgb struct {
	r, g, b uint8
}

func parseRGB(s string) (rgb, bool) {
	s = strings.TrimPrefix(s, "#")
	if len(s) != 6 {
		return rgb{}, false
	}
	v, err := strconv.ParseUint(s, 16, 24)
	if err != nil {
		return rgb{}, false
	}
	return rgb{
		r: uint8(v >> 16), //nolint:gosec // 24-bit value, each byte fits
		g: uint8(v >> 8),  //nolint:gosec
		b: uint8(v),       //nolint:gosec
	}, true
}

// scale multiplies each channel by factor, clamped to [0,1].
func (c rgb) scale(factor float64) rgb {
	factor = min(max(factor, 0), 1)
	return rgb{
		r: uint8(float64(c.r) * factor),
		g: uint8(float64(c.g) * factor),
		b: uint8(float64(c.b) * factor),
	}
}

func (c rgb) String() string {
	return fmt.Sprintf("#%02X%02X%02X", c.r, c.g, c.b)
}

// DarkenColor darkens a #RRGGBB color by a percentage. Unparseable input is
// returned unchanged.
func DarkenColor(hex string, percent int) string {
	c, ok := parseRGB(hex)
	if !ok {
		return hex
	}
	return c.scale(1 - float64(percent)/100).String()
}

// GenerateBrandCSS renders the brand color custom properties for the web
// templates, including the dark-scheme overrides.
func GenerateBrandCSS(colorLight, colorDark string) string {
	return fmt.Sprintf(
		":root{--brand-light:%s;--brand-dark:%s;--brand:%s;--brand-hover:%s}"+
			"@media(prefers-color-scheme:dark){:root{--brand:%s;--brand-hover:%s}}",
		colorLight, colorDark, colorLight, DarkenColor(colorLight, 10),
		colorDark, DarkenColor(colorDark, 10),
	)
}

package highlight

import (
	"fmt"
	"strings"
)

// Color is one of the fixed highlight colors.
type Color string

const (
	Yellow Color = "yellow"
	Green  Color = "green"
	Blue   Color = "blue"
	Pink   Color = "pink"
)

// DefaultColor is used when a stored row carries an unknown color.
const DefaultColor = Yellow

var palette = map[Color]string{
	Yellow: "rgba(253, 224, 71, 0.55)",
	Green:  "rgba(134, 239, 172, 0.55)",
	Blue:   "rgba(147, 197, 253, 0.55)",
	Pink:   "rgba(249, 168, 212, 0.55)",
}

// Colors lists the available colors in toolbar order.
func Colors() []Color {
	return []Color{Yellow, Green, Blue, Pink}
}

// Valid reports whether c is a known color.
func (c Color) Valid() bool {
	_, ok := palette[c]
	return ok
}

// RGBA returns the CSS background for c, falling back to the default color.
func (c Color) RGBA() string {
	if v, ok := palette[c]; ok {
		return v
	}
	return palette[DefaultColor]
}

// ParseColor accepts a color name in any case.
func ParseColor(s string) (Color, error) {
	c := Color(strings.ToLower(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", fmt.Errorf("%w: unknown color %q", ErrInvalid, s)
	}
	return c, nil
}

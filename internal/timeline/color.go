package timeline

import (
	"fmt"
	"image/color"
	"strconv"
)

// ParseHexColor parses #rgb, #rrggbb, or #rrggbbaa. Colors without an alpha
// component are opaque.
func ParseHexColor(value string) (color.NRGBA, error) {
	if len(value) == 0 || value[0] != '#' {
		return color.NRGBA{}, fmt.Errorf("color %q must start with #", value)
	}
	hex := value[1:]
	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}
	if len(hex) == 6 {
		hex += "ff"
	}
	if len(hex) != 8 {
		return color.NRGBA{}, fmt.Errorf("color %q must have 3, 6, or 8 hex digits", value)
	}
	n, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("color %q: %w", value, err)
	}
	return color.NRGBA{R: uint8(n >> 24), G: uint8(n >> 16), B: uint8(n >> 8), A: uint8(n)}, nil
}

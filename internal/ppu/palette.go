package ppu

import (
	"fmt"
	"image"
	"image/color"
	"strings"
)

// Palette maps the four DMG shades (0 lightest to 3 darkest) to RGB.
type Palette struct {
	Name   string
	Colors [4]color.RGBA
}

func rgb(r, g, b byte) color.RGBA { return color.RGBA{R: r, G: g, B: b, A: 0xFF} }

var (
	// PaletteGreen is the classic pea-soup DMG panel.
	PaletteGreen = Palette{
		Name: "green",
		Colors: [4]color.RGBA{
			rgb(0x9B, 0xBC, 0x0F), rgb(0x8B, 0xAC, 0x0F),
			rgb(0x30, 0x62, 0x30), rgb(0x0F, 0x38, 0x0F),
		},
	}
	// PaletteGray is a plain grayscale ramp.
	PaletteGray = Palette{
		Name: "gray",
		Colors: [4]color.RGBA{
			rgb(0xFF, 0xFF, 0xFF), rgb(0xAA, 0xAA, 0xAA),
			rgb(0x55, 0x55, 0x55), rgb(0x00, 0x00, 0x00),
		},
	}
	// PalettePocket approximates the Game Boy Pocket's flatter panel.
	PalettePocket = Palette{
		Name: "pocket",
		Colors: [4]color.RGBA{
			rgb(0xE0, 0xDB, 0xCD), rgb(0xA8, 0x9F, 0x94),
			rgb(0x70, 0x6B, 0x66), rgb(0x2B, 0x2B, 0x26),
		},
	}
)

// ParsePalette resolves a palette by name, or builds a custom one from four
// comma-separated rrggbb values.
func ParsePalette(spec string) (Palette, error) {
	switch strings.ToLower(spec) {
	case "", "green":
		return PaletteGreen, nil
	case "gray", "grey":
		return PaletteGray, nil
	case "pocket":
		return PalettePocket, nil
	}
	parts := strings.Split(spec, ",")
	if len(parts) != 4 {
		return Palette{}, fmt.Errorf("ppu: palette %q is neither a known name nor four rrggbb values", spec)
	}
	p := Palette{Name: "custom"}
	for i, part := range parts {
		var r, g, b byte
		if _, err := fmt.Sscanf(strings.TrimSpace(part), "%02x%02x%02x", &r, &g, &b); err != nil {
			return Palette{}, fmt.Errorf("ppu: bad palette entry %q: %w", part, err)
		}
		p.Colors[i] = rgb(r, g, b)
	}
	return p, nil
}

// Shade returns the color for a shade index; out-of-range indices clamp to
// the darkest shade.
func (p Palette) Shade(idx byte) color.RGBA {
	if idx > 3 {
		idx = 3
	}
	return p.Colors[idx]
}

// Image renders a shade buffer into a new RGBA image.
func (p Palette) Image(frame *[FrameHeight * FrameWidth]byte) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, FrameWidth, FrameHeight))
	for y := 0; y < FrameHeight; y++ {
		for x := 0; x < FrameWidth; x++ {
			img.SetRGBA(x, y, p.Shade(frame[y*FrameWidth+x]))
		}
	}
	return img
}

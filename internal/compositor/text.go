package compositor

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"os"
	"strings"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"

	"cutroom/internal/timeline"
)

const (
	defaultFontSize  = 48
	defaultTextColor = "#ffffff"
	textPadding      = 8
)

// textRenderer draws text elements. opentype faces are not safe for
// concurrent use, so every draw holds mu.
type textRenderer struct {
	mu    sync.Mutex
	font  *opentype.Font
	faces map[float64]font.Face
}

func newTextRenderer(fontPath string) (*textRenderer, error) {
	r := &textRenderer{faces: make(map[float64]font.Face)}
	if strings.TrimSpace(fontPath) == "" {
		return r, nil
	}
	data, err := os.ReadFile(fontPath)
	if err != nil {
		return r, fmt.Errorf("read font file: %w", err)
	}
	f, err := opentype.Parse(data)
	if err != nil {
		return r, fmt.Errorf("parse font: %w", err)
	}
	r.font = f
	return r, nil
}

func (r *textRenderer) face(size float64) (font.Face, error) {
	if r.font == nil {
		return basicfont.Face7x13, nil
	}
	if size <= 0 {
		size = defaultFontSize
	}
	if face, ok := r.faces[size]; ok {
		return face, nil
	}
	face, err := opentype.NewFace(r.font, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("create font face: %w", err)
	}
	r.faces[size] = face
	return face, nil
}

func (r *textRenderer) draw(dst *image.RGBA, el timeline.Element) error {
	style := el.Text
	if style == nil || style.Content == "" {
		return errors.New("text element has no content")
	}
	fg, err := parseColor(style.Color, defaultTextColor)
	if err != nil {
		return fmt.Errorf("text color: %w", err)
	}
	var bg color.Color
	if strings.TrimSpace(style.Background) != "" {
		if bg, err = parseColor(style.Background, ""); err != nil {
			return fmt.Errorf("text background: %w", err)
		}
	}
	opacity := clamp01(el.Transform.Opacity)
	if opacity == 0 {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	face, err := r.face(style.FontSize)
	if err != nil {
		return err
	}

	lines := strings.Split(style.Content, "\n")
	metrics := face.Metrics()
	lineHeight := metrics.Height.Ceil()
	widths := make([]int, len(lines))
	textW := 0
	for i, line := range lines {
		widths[i] = font.MeasureString(face, line).Ceil()
		textW = max(textW, widths[i])
	}
	boxW := float64(textW + 2*textPadding)
	boxH := float64(lineHeight*len(lines) + 2*textPadding)
	if el.Transform.Width > 0 {
		boxW = el.Transform.Width
	}
	if el.Transform.Height > 0 {
		boxH = el.Transform.Height
	}
	box := centred(dst.Bounds(), el.Transform, boxW, boxH)
	if bg != nil {
		fill(dst, box, bg, opacity)
	}

	src := image.NewUniform(withOpacity(fg, opacity))
	drawer := &font.Drawer{Dst: dst, Src: src, Face: face}
	y := box.Min.Y + textPadding + metrics.Ascent.Ceil()
	for i, line := range lines {
		x := box.Min.X + textPadding
		switch strings.ToLower(style.Align) {
		case "center", "centre":
			x = box.Min.X + (box.Dx()-widths[i])/2
		case "right":
			x = box.Max.X - textPadding - widths[i]
		}
		drawer.Dot = fixed.P(x, y)
		drawer.DrawString(line)
		y += lineHeight
	}
	return nil
}

func (r *textRenderer) close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var errs []error
	for size, face := range r.faces {
		if err := face.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(r.faces, size)
	}
	return errors.Join(errs...)
}

func parseColor(value, fallback string) (color.NRGBA, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		value = fallback
	}
	if value != "" && !strings.HasPrefix(value, "#") {
		value = "#" + value
	}
	return timeline.ParseHexColor(strings.ToLower(value))
}

func withOpacity(c color.NRGBA, opacity float64) color.NRGBA {
	c.A = uint8(float64(c.A)*opacity + 0.5)
	return c
}

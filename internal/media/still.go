package media

import (
	"bufio"
	"context"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chai2010/webp"
)

var stillDecoders = map[string]func(io.Reader) (image.Image, error){
	".png":  png.Decode,
	".jpg":  jpeg.Decode,
	".jpeg": jpeg.Decode,
	".gif":  gif.Decode,
	".webp": webp.Decode,
}

// IsStill reports whether path has an in-process image extension.
func IsStill(path string) bool {
	_, ok := stillDecoders[strings.ToLower(filepath.Ext(path))]
	return ok
}

// DecodeStill decodes a still image from disk.
func DecodeStill(path string) (image.Image, error) {
	decode, ok := stillDecoders[strings.ToLower(filepath.Ext(path))]
	if !ok {
		return nil, unsupported(path, "decode image", fmt.Errorf("extension %q", filepath.Ext(path)))
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, corrupt(path, "open image", err)
	}
	defer f.Close()
	img, err := decode(bufio.NewReader(f))
	if err != nil {
		return nil, corrupt(path, "decode image", err)
	}
	return img, nil
}

// stillHandle returns the same image for every timestamp.
type stillHandle struct {
	img image.Image
}

func (h *stillHandle) Frame(ctx context.Context, _ float64) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return h.img, nil
}

func (h *stillHandle) Close() error {
	h.img = nil
	return nil
}

// NewStillHandle wraps an already decoded image.
func NewStillHandle(img image.Image) Handle {
	return &stillHandle{img: img}
}

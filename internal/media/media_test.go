package media_test

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/chai2010/webp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cutroom/internal/media"
	"cutroom/internal/mixer"
	"cutroom/internal/services"
	"cutroom/internal/timeline"
)

func solid(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func writePNG(t *testing.T, dir, name string, img image.Image) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
	return path
}

func imageElement(id, source string) timeline.Element {
	el := timeline.NewElement(id, timeline.KindImage, 0, 5)
	el.Source = source
	return el
}

func TestLibraryDecodesAndCachesStills(t *testing.T) {
	dir := t.TempDir()
	path := writePNG(t, dir, "red.png", solid(4, 3, color.RGBA{R: 255, A: 255}))

	lib := media.NewLibrary("ffmpeg")
	ctx := context.Background()
	first, err := lib.Open(ctx, imageElement("a", path))
	require.NoError(t, err)
	second, err := lib.Open(ctx, imageElement("b", path))
	require.NoError(t, err)

	imgA, err := first.Frame(ctx, 0)
	require.NoError(t, err)
	imgB, err := second.Frame(ctx, 3.5)
	require.NoError(t, err)

	assert.Equal(t, image.Rect(0, 0, 4, 3), imgA.Bounds())
	assert.Same(t, imgA, imgB, "stills are decoded once per source")
	r, _, _, a := imgA.At(1, 1).RGBA()
	assert.Equal(t, uint32(0xffff), r)
	assert.Equal(t, uint32(0xffff), a)
	require.NoError(t, first.Close())
	require.NoError(t, second.Close())
}

func TestLibraryDecodesWebP(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "blue.webp")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, webp.Encode(f, solid(8, 8, color.RGBA{B: 255, A: 255}), &webp.Options{Lossless: true}))
	require.NoError(t, f.Close())

	h, err := media.NewLibrary("").Open(context.Background(), imageElement("w", path))
	require.NoError(t, err)
	img, err := h.Frame(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 8, img.Bounds().Dx())
	_, _, b, _ := img.At(4, 4).RGBA()
	assert.Equal(t, uint32(0xffff), b)
}

func TestCorruptStillIsDistinguishable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "broken.png")
	require.NoError(t, os.WriteFile(path, []byte("not a png"), 0o600))

	_, err := media.NewLibrary("").Open(context.Background(), imageElement("x", path))
	require.Error(t, err)
	assert.ErrorIs(t, err, media.ErrCorrupt)
	assert.ErrorIs(t, err, services.ErrMediaLoad)
	assert.NotErrorIs(t, err, media.ErrUnsupported)

	var merr *media.Error
	require.True(t, errors.As(err, &merr))
	assert.Equal(t, path, merr.Source)
}

func TestOpenRejectsUnsupportedSources(t *testing.T) {
	lib := media.NewLibrary("cutroom-test-no-such-ffmpeg")
	ctx := context.Background()

	text := timeline.NewElement("t", timeline.KindText, 0, 1)
	text.Text = &timeline.TextStyle{Content: "hello"}
	_, err := lib.Open(ctx, text)
	assert.ErrorIs(t, err, media.ErrUnsupported)

	_, err = lib.Open(ctx, imageElement("i", filepath.Join(t.TempDir(), "still.tiff")))
	assert.ErrorIs(t, err, media.ErrUnsupported)

	video := timeline.NewElement("v", timeline.KindVideo, 0, 1)
	video.Source = filepath.Join(t.TempDir(), "clip.mp4")
	_, err = lib.Open(ctx, video)
	assert.ErrorIs(t, err, media.ErrUnsupported, "missing ffmpeg makes video unsupported")
	assert.ErrorIs(t, err, services.ErrMediaLoad)

	empty := timeline.NewElement("e", timeline.KindImage, 0, 1)
	_, err = lib.Open(ctx, empty)
	assert.ErrorIs(t, err, media.ErrCorrupt)
}

func TestOpenHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := media.NewLibrary("").Open(ctx, imageElement("a", "a.png"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAudioDecoderReadsWAV(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tone.wav")
	src := mixer.NewBuffer(8000, 1, 800)
	for i := range src.Channels[0] {
		src.Channels[0][i] = 0.25
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, mixer.EncodeWAV(f, src))
	require.NoError(t, f.Close())

	buf, err := media.AudioDecoder{}.Decode(context.Background(), path, 48000)
	require.NoError(t, err)
	assert.Equal(t, 8000, buf.SampleRate, "resampling is left to the mixer")
	assert.Equal(t, 800, buf.Len())
	assert.InDelta(t, 0.25, buf.Channels[0][400], 1e-3)
}

func TestAudioDecoderStillsHaveNoAudio(t *testing.T) {
	_, err := media.AudioDecoder{}.Decode(context.Background(), "poster.png", 48000)
	assert.ErrorIs(t, err, mixer.ErrNoAudio)
}

func TestAudioDecoderMissingSourceIsCorrupt(t *testing.T) {
	_, err := media.AudioDecoder{}.Decode(context.Background(), filepath.Join(t.TempDir(), "gone.mp4"), 48000)
	assert.ErrorIs(t, err, media.ErrCorrupt)
	assert.ErrorIs(t, err, services.ErrMediaLoad)
}

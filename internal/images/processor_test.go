package images

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestPNG(t *testing.T, dir string, w, h int) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 64, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	path := filepath.Join(dir, "poster.png")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

func TestNegotiateFormat(t *testing.T) {
	format, err := NegotiateFormat("image/avif,image/webp,image/*", "")
	require.NoError(t, err)
	assert.Equal(t, FormatWebP, format, "avif skipped without an encoder")

	format, err = NegotiateFormat("image/webp,*/*", "")
	require.NoError(t, err)
	assert.Equal(t, FormatWebP, format)

	format, err = NegotiateFormat("image/jpeg", "")
	require.NoError(t, err)
	assert.Equal(t, FormatJPEG, format)

	// Explicit format overrides Accept.
	format, err = NegotiateFormat("image/webp", "png")
	require.NoError(t, err)
	assert.Equal(t, FormatPNG, format)

	_, err = NegotiateFormat("", "tiff")
	require.Error(t, err)
}

func TestTranscodeFitsAndCaches(t *testing.T) {
	dir := t.TempDir()
	source := writeTestPNG(t, dir, 400, 600)
	p := NewProcessor(filepath.Join(dir, "cache"), nil)

	path, err := p.Transcode(context.Background(), Request{
		Source: source, Width: 200, Height: 200, Format: FormatJPEG,
	})
	require.NoError(t, err)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	cfg, kind, err := image.DecodeConfig(f)
	require.NoError(t, err)
	assert.Equal(t, "jpeg", kind)
	// 400x600 fit into 200x200 preserves the 2:3 aspect.
	assert.Equal(t, 133, cfg.Width)
	assert.Equal(t, 200, cfg.Height)

	info1, err := os.Stat(path)
	require.NoError(t, err)

	// Second request is a cache hit, not a re-encode.
	again, err := p.Transcode(context.Background(), Request{
		Source: source, Width: 200, Height: 200, Format: FormatJPEG,
	})
	require.NoError(t, err)
	assert.Equal(t, path, again)
	info2, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, info1.ModTime(), info2.ModTime())
}

func TestTranscodeSingleAxisScalesProportionally(t *testing.T) {
	dir := t.TempDir()
	source := writeTestPNG(t, dir, 400, 600)
	p := NewProcessor(filepath.Join(dir, "cache"), nil)

	path, err := p.Transcode(context.Background(), Request{
		Source: source, Width: 100, Format: FormatPNG,
	})
	require.NoError(t, err)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	cfg, _, err := image.DecodeConfig(f)
	require.NoError(t, err)
	assert.Equal(t, 100, cfg.Width)
	assert.Equal(t, 150, cfg.Height)
}

func TestTranscodeWebPOutput(t *testing.T) {
	dir := t.TempDir()
	source := writeTestPNG(t, dir, 64, 64)
	p := NewProcessor(filepath.Join(dir, "cache"), nil)

	path, err := p.Transcode(context.Background(), Request{
		Source: source, Width: 32, Height: 32, Format: FormatWebP, Quality: 70,
	})
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	// RIFF....WEBP container magic.
	require.Greater(t, len(data), 12)
	assert.Equal(t, "RIFF", string(data[:4]))
	assert.Equal(t, "WEBP", string(data[8:12]))
}

func TestTranscodeMissingSource(t *testing.T) {
	p := NewProcessor(t.TempDir(), nil)
	_, err := p.Transcode(context.Background(), Request{Source: "/nowhere/poster.jpg", Width: 100})
	require.Error(t, err)

	_, err = p.Transcode(context.Background(), Request{Width: 100})
	require.Error(t, err)
}

func TestTranscodeConcurrentRequestsShareOneKey(t *testing.T) {
	dir := t.TempDir()
	source := writeTestPNG(t, dir, 300, 300)
	p := NewProcessor(filepath.Join(dir, "cache"), nil)

	req := Request{Source: source, Width: 120, Height: 120, Format: FormatJPEG}
	var wg sync.WaitGroup
	paths := make([]string, 8)
	for i := 0; i < len(paths); i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			path, err := p.Transcode(context.Background(), req)
			assert.NoError(t, err)
			paths[i] = path
		}(i)
	}
	wg.Wait()
	for _, path := range paths[1:] {
		assert.Equal(t, paths[0], path)
	}
}

package util

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/chai2010/webp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solid(width, height int, c color.Color) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

// writeImages creates frames of different formats in a temp directory.
func writeImages(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	write := func(name string, encode func(*bytes.Buffer) error) {
		var buf bytes.Buffer
		require.NoError(t, encode(&buf))
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), buf.Bytes(), 0o600))
	}

	red := solid(8, 6, color.RGBA{R: 255, A: 255})
	green := solid(8, 6, color.RGBA{G: 255, A: 255})
	blue := solid(8, 6, color.RGBA{B: 255, A: 255})

	write("frame-10.png", func(b *bytes.Buffer) error { return png.Encode(b, red) })
	write("frame-2.webp", func(b *bytes.Buffer) error { return webp.Encode(b, green, &webp.Options{Lossless: true}) })
	write("snapshot.png", func(b *bytes.Buffer) error { return png.Encode(b, blue) })
	write("frame-1.jpg", func(b *bytes.Buffer) error { return jpeg.Encode(b, blue, &jpeg.Options{Quality: 95}) })
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("not an image"), 0o600))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.png"), 0o700))

	return dir
}

func TestLoadDirectoryImages(t *testing.T) {
	dir := writeImages(t)

	files, err := LoadDirectoryImageFiles(dir)
	require.NoError(t, err)
	require.Len(t, files, 4)

	var names []string
	for _, f := range files {
		names = append(names, filepath.Base(f.Path))
		assert.NotEmpty(t, f.Data)
	}
	assert.Equal(t, []string{"frame-1.jpg", "frame-2.webp", "frame-10.png", "snapshot.png"}, names)
	assert.Equal(t, []int{1, 2, 10, -1}, []int{files[0].Frame, files[1].Frame, files[2].Frame, files[3].Frame})
}

func TestLoadDirectoryImages_Missing(t *testing.T) {
	_, err := LoadDirectoryImageFiles(filepath.Join(t.TempDir(), "absent"))
	assert.Error(t, err)
}

func TestDecodeImageFile(t *testing.T) {
	dir := writeImages(t)
	files, err := LoadDirectoryImageFiles(dir)
	require.NoError(t, err)

	for _, f := range files {
		frame, err := DecodeImageFile(f)
		require.NoError(t, err, f.Path)
		assert.Equal(t, 8, frame.Width)
		assert.Equal(t, 6, frame.Height)
		assert.NoError(t, frame.Validate())
	}

	// frame-2.webp is lossless green.
	frame, err := DecodeImageFile(files[1])
	require.NoError(t, err)
	assert.Equal(t, []uint8{0, 255, 0}, frame.Pix[:3])

	_, err = DecodeImageFile(ImageFile{Path: "x.gif", Data: []byte("GIF89a")})
	assert.Error(t, err)

	_, err = DecodeImageFile(ImageFile{Path: "x.png", Data: []byte("garbage")})
	assert.Error(t, err)
}

func TestDirectorySource(t *testing.T) {
	dir := writeImages(t)

	source, err := NewDirectorySource(dir, false)
	require.NoError(t, err)
	assert.Equal(t, 4, source.Len())

	for i := 0; i < 4; i++ {
		_, err := source.Frame(context.Background())
		require.NoError(t, err)
	}
	_, err = source.Frame(context.Background())
	assert.ErrorIs(t, err, io.EOF)
}

func TestDirectorySource_Repeat(t *testing.T) {
	source, err := NewDirectorySource(writeImages(t), true)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		_, err := source.Frame(context.Background())
		require.NoError(t, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = source.Frame(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewDirectorySource_Empty(t *testing.T) {
	_, err := NewDirectorySource(t.TempDir(), false)
	assert.Error(t, err)
}

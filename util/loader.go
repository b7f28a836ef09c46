package util

import (
	"bytes"
	"context"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/chai2010/webp"
	"github.com/nvr-ai/go-handtrack/images"
	"github.com/pkg/errors"
)

// ImageFile represents an image file.
type ImageFile struct {
	// Path is the path to the image file.
	Path string
	// Data is the raw bytes of the image file.
	Data []byte
	// Frame is the frame number parsed from a "frame-N" name, or -1.
	Frame int
}

// LoadDirectoryImageFiles reads all image files from a directory.
//
// Files named "frame-N.ext" are ordered by N; any other image files follow in
// name order.
//
// Arguments:
// - dir: Directory path containing image files.
//
// Returns:
// - []ImageFile: Slice of ImageFile, each containing the raw bytes of an image file.
// - error: Error if loading fails.
func LoadDirectoryImageFiles(dir string) ([]ImageFile, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var imageFiles []ImageFile
	for _, file := range files {
		if file.IsDir() {
			continue
		}

		if _, err := images.FormatFromPath(file.Name()); err != nil {
			continue
		}

		imgPath := filepath.Join(dir, file.Name())
		data, readErr := os.ReadFile(imgPath)
		if readErr != nil {
			return nil, readErr
		}
		frame, convErr := strconv.Atoi(strings.TrimPrefix(strings.TrimSuffix(file.Name(), filepath.Ext(file.Name())), "frame-"))
		if convErr != nil || frame < 0 {
			frame = -1
		}
		imageFiles = append(imageFiles, ImageFile{
			Path:  imgPath,
			Data:  data,
			Frame: frame,
		})
	}

	sort.SliceStable(imageFiles, func(i, j int) bool {
		a, b := imageFiles[i], imageFiles[j]
		if (a.Frame < 0) != (b.Frame < 0) {
			return a.Frame >= 0
		}
		if a.Frame != b.Frame {
			return a.Frame < b.Frame
		}
		return a.Path < b.Path
	})

	return imageFiles, nil
}

// DecodeImageFile decodes a jpeg, png or webp file into a frame.
//
// Arguments:
// - file: The image file.
//
// Returns:
// - images.Frame: The decoded RGB frame.
// - error: Error if the format is unknown or the data is corrupt.
func DecodeImageFile(file ImageFile) (images.Frame, error) {
	var (
		img image.Image
		err error
	)

	format, err := images.FormatFromPath(file.Path)
	if err != nil {
		return images.Frame{}, err
	}

	reader := bytes.NewReader(file.Data)
	switch format {
	case images.FormatJPEG:
		img, err = jpeg.Decode(reader)
	case images.FormatPNG:
		img, err = png.Decode(reader)
	case images.FormatWebP:
		img, err = webp.Decode(reader)
	}
	if err != nil {
		return images.Frame{}, errors.Wrapf(err, "decode %s", file.Path)
	}

	return images.FrameFromImage(img), nil
}

// DirectorySource replays the images of a directory as a frame source.
type DirectorySource struct {
	mu     sync.Mutex
	files  []ImageFile
	next   int
	repeat bool
}

// NewDirectorySource loads every image in dir.
//
// Arguments:
// - dir: Directory path containing image files.
// - repeat: Start over after the last image instead of returning io.EOF.
//
// Returns:
// - *DirectorySource: The source.
// - error: Error if the directory cannot be read or has no images.
func NewDirectorySource(dir string, repeat bool) (*DirectorySource, error) {
	files, err := LoadDirectoryImageFiles(dir)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, errors.Errorf("no images in %s", dir)
	}
	return &DirectorySource{files: files, repeat: repeat}, nil
}

// Len returns the number of images.
func (s *DirectorySource) Len() int {
	return len(s.files)
}

// Frame returns the next image, or io.EOF after the last one.
func (s *DirectorySource) Frame(ctx context.Context) (images.Frame, error) {
	if err := ctx.Err(); err != nil {
		return images.Frame{}, err
	}

	s.mu.Lock()
	if s.next >= len(s.files) {
		if !s.repeat {
			s.mu.Unlock()
			return images.Frame{}, io.EOF
		}
		s.next = 0
	}
	file := s.files[s.next]
	s.next++
	s.mu.Unlock()

	return DecodeImageFile(file)
}

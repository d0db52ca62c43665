// Package capture turns a file chosen by the user into an in-memory image.
package capture

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// ErrNotImage is returned when the selected file is not an image. This is
// a convenience filter only; the upload endpoint validates again.
var ErrNotImage = errors.New("selected file is not an image")

// Image is a fully read image held in memory.
type Image struct {
	Name        string
	ContentType string
	Data        []byte
}

// DataURL encodes the image for display.
func (img *Image) DataURL() string {
	return "data:" + img.ContentType + ";base64," + base64.StdEncoding.EncodeToString(img.Data)
}

// Read consumes r fully and detects the content type from the bytes.
func Read(r io.Reader, name string) (*Image, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	contentType := mimetype.Detect(data).String()
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = contentType[:i]
	}
	if !strings.HasPrefix(contentType, "image/") {
		return nil, fmt.Errorf("%s (%s): %w", name, contentType, ErrNotImage)
	}
	return &Image{Name: name, ContentType: contentType, Data: data}, nil
}

// Acquire reads the file at path and hands it to onCapture exactly once.
// An empty path means nothing was selected: no callback and no error.
func Acquire(path string, onCapture func(*Image)) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	img, err := Read(f, filepath.Base(path))
	if err != nil {
		return err
	}
	onCapture(img)
	return nil
}

package ioutils

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
)

// MinImageSize is the smallest file accepted as a downloaded image.
const MinImageSize = 1024

// headerSize is the number of leading bytes inspected for a format signature.
const headerSize = 12

var (
	jpegMagic = []byte{0xFF, 0xD8, 0xFF}
	pngMagic  = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}
	gifMagic  = []byte("GIF8")
	riffMagic = []byte("RIFF")
	webpMagic = []byte("WEBP")
)

// VerificationError reports a downloaded file whose content is unacceptable.
//
// Retrying cannot fix a VerificationError: the server delivered the bytes it
// meant to deliver, they are just not an image.
type VerificationError struct {
	Path   string
	Reason string
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("verification failed: %s: %s", e.Reason, e.Path)
}

// DetectFormat returns the image format named by the leading bytes of a file,
// or an empty string when no known signature matches.
//
// Recognized signatures:
//   - JPEG: FF D8 FF
//   - PNG:  89 50 4E 47 0D 0A 1A 0A
//   - GIF:  "GIF8"
//   - WebP: "RIFF" at offset 0 and "WEBP" at offset 8
func DetectFormat(header []byte) string {
	switch {
	case bytes.HasPrefix(header, jpegMagic):
		return "jpeg"
	case bytes.HasPrefix(header, pngMagic):
		return "png"
	case bytes.HasPrefix(header, gifMagic):
		return "gif"
	case len(header) >= headerSize && bytes.HasPrefix(header, riffMagic) && bytes.Equal(header[8:12], webpMagic):
		return "webp"
	}
	return ""
}

// Verify checks that path holds a plausible image.
//
// The file must exist, be at least MinImageSize bytes long and start with a
// known image signature. On every failure path the file is deleted, so
// callers must not assume it still exists after an error.
//
// Content problems are returned as *VerificationError. Errors reading the
// file are returned unchanged so they can be classified as I/O failures.
func Verify(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &VerificationError{Path: path, Reason: "file does not exist"}
		}
		_ = RemoveIfExists(path)
		return err
	}

	if info.Size() < MinImageSize {
		_ = RemoveIfExists(path)
		return &VerificationError{
			Path:   path,
			Reason: fmt.Sprintf("file too small (%d bytes, min %d bytes)", info.Size(), MinImageSize),
		}
	}

	header, err := readHeader(path)
	if err != nil {
		_ = RemoveIfExists(path)
		return err
	}

	if DetectFormat(header) == "" {
		_ = RemoveIfExists(path)
		return &VerificationError{Path: path, Reason: "file is not a valid image"}
	}

	return nil
}

func readHeader(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	header := make([]byte, headerSize)
	if _, err := io.ReadFull(f, header); err != nil {
		return nil, err
	}
	return header, nil
}

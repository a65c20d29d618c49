package ioutils

import (
	"fmt"
	"image"
	_ "image/gif"  // GIF decoder registration
	_ "image/jpeg" // JPEG decoder registration
	_ "image/png"  // PNG decoder registration
	"os"

	_ "golang.org/x/image/webp" // WebP decoder registration
)

// ImageInfo describes a downloaded image without decoding its pixels.
type ImageInfo struct {
	Format string
	Width  int
	Height int
	Size   int64
}

// String implements fmt.Stringer.
func (i ImageInfo) String() string {
	if i.Width == 0 && i.Height == 0 {
		return fmt.Sprintf("%d bytes", i.Size)
	}
	return fmt.Sprintf("%d bytes, %s %dx%d", i.Size, i.Format, i.Width, i.Height)
}

// ImageService provides read-only image inspection for downloaded files.
//
// ImageService is used to:
//   - Report the dimensions of a verified image
//   - Tell which decoder recognizes a file
//
// Example usage:
//
//	svc := NewImageService()
//	info, err := svc.Probe("/downloads/0001.jpg")
//	// info.Format = "jpeg", info.Width = 1280, info.Height = 1810
type ImageService struct{}

// NewImageService creates a new ImageService.
func NewImageService() *ImageService {
	return &ImageService{}
}

// Probe reads the image header at path and returns its format and size.
//
// Only the header is decoded. JPEG, PNG, GIF and WebP are supported.
// A file that passed Verify may still fail to probe when the signature is
// right but the header behind it is damaged; the size is filled in anyway.
func (s *ImageService) Probe(path string) (ImageInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return ImageInfo{}, err
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return ImageInfo{}, err
	}
	info := ImageInfo{Size: stat.Size()}

	cfg, format, err := image.DecodeConfig(f)
	if err != nil {
		return info, err
	}

	info.Format = format
	info.Width = cfg.Width
	info.Height = cfg.Height
	return info, nil
}

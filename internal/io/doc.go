// Package ioutils provides file system and image inspection utilities.
//
// This package contains functions for:
//   - Verifying downloaded images (minimum size and format signature)
//   - Probing image format and dimensions
//   - Directory creation and file removal
//
// # Verification
//
// Verify rejects anything that is not a plausible image and deletes it:
//
//	if err := ioutils.Verify("/downloads/0001.jpg"); err != nil {
//	    var verr *ioutils.VerificationError
//	    if errors.As(err, &verr) {
//	        // the file is gone, the content itself was wrong
//	    }
//	}
//
// # Image Probing
//
// The ImageService reads only the image header:
//
//	svc := ioutils.NewImageService()
//	info, _ := svc.Probe("/downloads/0001.webp")
//	fmt.Printf("%s %dx%d\n", info.Format, info.Width, info.Height)
package ioutils

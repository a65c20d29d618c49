package download

import (
	"context"
	"fmt"

	"github.com/handiism/gallery-fetch/internal/http"
	ioutils "github.com/handiism/gallery-fetch/internal/io"
	"github.com/handiism/gallery-fetch/internal/model"
)

// Fetcher downloads a single image and verifies it.
//
// Fetcher never retries; every failure is returned as a *DownloadError and
// the caller decides what to do with it.
type Fetcher struct {
	client *http.Client
	images *ioutils.ImageService
	cookie string

	onProgress func(ProgressEvent)

	// onStream receives bytes as they arrive, onBytes the size of each
	// verified file.
	onStream func(int64)
	onBytes  func(int64)
}

// NewFetcher creates a Fetcher sending rawCookie (merged with the defaults)
// on every request.
func NewFetcher(client *http.Client, rawCookie string, onProgress func(ProgressEvent)) *Fetcher {
	return &Fetcher{
		client:     client,
		images:     ioutils.NewImageService(),
		cookie:     rawCookie,
		onProgress: onProgress,
	}
}

// Download performs one attempt at task, saving it inside dir, and reports
// whether an existing file made the download unnecessary.
//
// An existing regular file at the destination is left alone and counts as
// success without any network traffic. Otherwise the body is streamed to
// disk and checked with ioutils.Verify. On failure no file is left behind
// and the error is a *DownloadError.
func (f *Fetcher) Download(ctx context.Context, task model.Task, dir string) (skipped bool, err error) {
	if err := task.Validate(); err != nil {
		return false, newIoError(err)
	}
	path := task.Path(dir)

	exists, err := ioutils.IsRegularFile(path)
	if err != nil {
		return false, newIoError(err)
	}
	if exists {
		f.progress(ProgressEvent{Message: fmt.Sprintf("Skipping existing: %s", task.Filename), Level: LevelVerbose, Task: task.Filename})
		return true, nil
	}

	if _, err := http.HostOf(task.URL); err != nil {
		return false, Classify(err)
	}

	f.progress(ProgressEvent{Message: fmt.Sprintf("Downloading: %s", path), Level: LevelVerbose, Task: task.Filename})

	if err := f.client.DownloadFile(ctx, task.URL, path, f.cookie, f.streamCallback()); err != nil {
		_ = ioutils.RemoveIfExists(path)
		return false, Classify(err)
	}

	if err := ioutils.Verify(path); err != nil {
		de := Classify(err)
		if de.Domain == RequestFailure {
			de = newIoError(err)
		}
		return false, de
	}

	info, err := f.images.Probe(path)
	if err != nil {
		f.progress(ProgressEvent{Message: fmt.Sprintf("Could not read image header of %s: %v", path, err), Level: LevelWarning, Task: task.Filename})
	}
	if f.onBytes != nil {
		f.onBytes(info.Size)
	}

	f.progress(ProgressEvent{Message: fmt.Sprintf("Verified: %s (%s)", path, info), Level: LevelVerbose, Task: task.Filename})
	return false, nil
}

// streamCallback turns the cumulative progress of one response into
// increments for onStream.
func (f *Fetcher) streamCallback() func(written, total int64) {
	if f.onStream == nil {
		return nil
	}
	var reported int64
	return func(written, _ int64) {
		if delta := written - reported; delta > 0 {
			f.onStream(delta)
		}
		reported = written
	}
}

func (f *Fetcher) progress(event ProgressEvent) {
	if f.onProgress != nil {
		f.onProgress(event)
	}
}

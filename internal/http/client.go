package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"
)

// UserAgent is the desktop browser identity sent with every request.
const UserAgent = "Mozilla/5.0 (X11; Linux x86_64; rv:65.0) Gecko/20100101 Firefox/65.0"

// DefaultTimeout bounds a whole request, body streaming included.
const DefaultTimeout = 60 * time.Second

// ErrInvalidURL is returned when a target URL has no usable host.
var ErrInvalidURL = errors.New("invalid target URL")

// StatusError is returned when the server answers with a non-2xx status.
//
// The body of such a response is never written to disk.
type StatusError struct {
	Code   int
	Status string
	URL    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s (%s)", e.Code, e.Status, e.URL)
}

// FileError is returned when the response could not be persisted.
//
// Op is one of "create", "copy" or "close". Any partial file has already
// been removed when a FileError is returned.
type FileError struct {
	Op   string
	Path string
	Err  error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *FileError) Unwrap() error {
	return e.Err
}

// Client wraps HTTP operations with gallery-specific configuration.
//
// Client provides:
//   - Configured User-Agent, Host and Cookie headers
//   - File download with progress tracking
//   - Typed errors so callers can tell transport, status and disk failures apart
//
// Example usage:
//
//	client := NewClient(nil)
//
//	err := client.DownloadFile(ctx, imageURL, "/path/to/0001.jpg", "", func(written, total int64) {
//	    percent := float64(written) / float64(total) * 100
//	    fmt.Printf("%.1f%%\n", percent)
//	})
type Client struct {
	httpClient *http.Client
	userAgent  string
}

// NewClient creates a new Client on top of httpClient.
//
// A nil httpClient is replaced with a direct client using DefaultTimeout.
// Use a Resolver to obtain a proxy-aware client.
func NewClient(httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = newDirectClient(DefaultTimeout)
	}
	return &Client{
		httpClient: httpClient,
		userAgent:  UserAgent,
	}
}

// ProgressWriter wraps a writer to track download progress.
//
// Example:
//
//	pw := &ProgressWriter{
//	    Writer: file,
//	    Total:  contentLength,
//	    OnUpdate: func(written, total int64) {
//	        fmt.Printf("%d / %d bytes\n", written, total)
//	    },
//	}
//	io.Copy(pw, response.Body)
type ProgressWriter struct {
	// Writer is the underlying writer to write data to.
	Writer io.Writer

	// Total is the expected total bytes (from Content-Length header).
	Total int64

	// Written is the current number of bytes written.
	Written int64

	// OnUpdate is called after each Write with current progress.
	OnUpdate func(written, total int64)
}

// Write implements io.Writer, tracking progress and calling OnUpdate.
func (pw *ProgressWriter) Write(p []byte) (int, error) {
	n, err := pw.Writer.Write(p)
	pw.Written += int64(n)
	if pw.OnUpdate != nil {
		pw.OnUpdate(pw.Written, pw.Total)
	}
	return n, err
}

// HostOf returns the host (with port, if any) of rawURL.
//
// An unparseable URL or one without a host yields ErrInvalidURL.
func HostOf(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return "", fmt.Errorf("%w: %q", ErrInvalidURL, rawURL)
	}
	return u.Host, nil
}

// DownloadFile downloads rawURL to destPath with optional progress callback.
//
// The request carries the merged cookie (see MergeCookies), the target host
// and the desktop User-Agent. A non-2xx answer is returned as *StatusError
// without touching destPath. The body is streamed straight to disk; if
// creating, writing or closing the file fails, the partial file is removed
// and a *FileError is returned.
//
// Parameters:
//   - ctx: Context for cancellation
//   - rawURL: URL to download from
//   - destPath: Local file path to save to
//   - rawCookie: Caller-supplied Cookie header value, may be empty
//   - onProgress: Optional callback called with (bytesWritten, totalBytes)
func (c *Client) DownloadFile(ctx context.Context, rawURL, destPath, rawCookie string, onProgress func(written, total int64)) error {
	host, err := HostOf(rawURL)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	req.Host = host
	req.Header.Set("Cookie", MergeCookies(rawCookie))
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Code: resp.StatusCode, Status: resp.Status, URL: rawURL}
	}

	file, err := os.Create(destPath)
	if err != nil {
		return &FileError{Op: "create", Path: destPath, Err: err}
	}

	var writer io.Writer = file
	if onProgress != nil {
		writer = &ProgressWriter{
			Writer:   file,
			Total:    resp.ContentLength,
			OnUpdate: onProgress,
		}
	}

	if _, err := io.Copy(writer, resp.Body); err != nil {
		file.Close()
		os.Remove(destPath)
		return &FileError{Op: "copy", Path: destPath, Err: err}
	}

	if err := file.Close(); err != nil {
		os.Remove(destPath)
		return &FileError{Op: "close", Path: destPath, Err: err}
	}

	return nil
}

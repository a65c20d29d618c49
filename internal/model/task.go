package model

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"regexp"
	"strings"
)

// Task is a single image to download.
//
// A Task is created once by the page-resolution step and never modified
// afterwards. Its identity is the (URL, Filename) pair; two tasks with the
// same pair are the same task.
//
// Example:
//
//	task := NewTask("https://host/images/0001.jpg", "0001.jpg")
//	// task.Path("/tmp/gallery") = "/tmp/gallery/0001.jpg"
type Task struct {
	// URL is the absolute HTTP(S) source of the image.
	URL string `json:"url" yaml:"url"`

	// Filename is the name the image is saved under inside the
	// destination directory.
	Filename string `json:"filename" yaml:"filename"`
}

// ErrEmptyFilename is returned by Validate for a task without a usable
// file name.
var ErrEmptyFilename = errors.New("empty file name")

// NewTask creates a Task. The filename is sanitized so it is valid as a
// single path element on every platform. When nothing is left of it, the
// last segment of the URL path is used instead; if that is empty too the
// task keeps an empty Filename and fails Validate.
func NewTask(rawURL, filename string) Task {
	rawURL = strings.TrimSpace(rawURL)

	name := sanitizeFileName(filename)
	if name == "" {
		name = sanitizeFileName(FilenameFromURL(rawURL))
	}

	return Task{
		URL:      rawURL,
		Filename: name,
	}
}

// FilenameFromURL returns the last segment of the URL path, or an empty
// string when the URL has none.
//
// Example:
//
//	FilenameFromURL("https://host/images/0001.jpg?t=1") // Returns "0001.jpg"
//	FilenameFromURL("https://host/")                    // Returns ""
func FilenameFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Path == "" {
		return ""
	}

	name := path.Base(u.Path)
	if name == "." || name == "/" {
		return ""
	}
	return name
}

// Validate reports whether the task can be saved: its Filename must name a
// file inside the destination directory.
func (t Task) Validate() error {
	if t.Filename == "" {
		return ErrEmptyFilename
	}
	return nil
}

// Path returns the destination path of the task inside dir.
//
// The result is limited to the Windows MAX_PATH of 260 characters by
// shortening the base name and keeping the extension.
func (t Task) Path(dir string) string {
	filePath := filepath.Join(dir, t.Filename)

	if len(filePath) >= 260 {
		ext := filepath.Ext(t.Filename)
		base := strings.TrimSuffix(t.Filename, ext)
		maxLen := 259 - len(filepath.Join(dir, ext)) - 1
		if maxLen > 0 && maxLen < len(base) {
			filePath = filepath.Join(dir, base[:maxLen]+ext)
		}
	}

	return filePath
}

// String implements fmt.Stringer.
func (t Task) String() string {
	return fmt.Sprintf("%s <- %s", t.Filename, t.URL)
}

// Outcome is the result of one pass of the worker pool.
//
// Every task of the pass ends up in exactly one of the two slices.
type Outcome struct {
	Succeeded []Task
	Failed    []Task
}

// Done reports whether the pass left no failed tasks.
func (o Outcome) Done() bool {
	return len(o.Failed) == 0
}

// Total returns the number of tasks the pass processed.
func (o Outcome) Total() int {
	return len(o.Succeeded) + len(o.Failed)
}

var (
	invalidChars  = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f]`)
	trailingDots  = regexp.MustCompile(`\.+$`)
	repeatedSpace = regexp.MustCompile(`\s+`)
)

// sanitizeFileName removes or replaces characters that are invalid in file names.
//
// The following transformations are applied:
//   - Invalid characters (<>:"/\|?* and control chars) are replaced with underscore
//   - Trailing dots are removed (Windows limitation)
//   - Multiple whitespace is collapsed to single space
//   - Leading and trailing whitespace is removed
//
// Example:
//
//	sanitizeFileName("page: 1/2.jpg") // Returns "page_ 1_2.jpg"
func sanitizeFileName(name string) string {
	name = invalidChars.ReplaceAllString(name, "_")
	name = trailingDots.ReplaceAllString(name, "")
	name = repeatedSpace.ReplaceAllString(name, " ")
	return strings.TrimSpace(name)
}

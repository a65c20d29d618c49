// Package manifest reads the list of images to download.
//
// The list is produced by whatever resolved the gallery page. It is a JSON
// or YAML document naming a destination directory and the (url, filename)
// pairs to fetch:
//
//	directory: tmp3809093
//	tasks:
//	  - url: https://host/images/0001.jpg
//	    filename: 0001.jpg
//
// A bare list of tasks is accepted as well.
package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/handiism/gallery-fetch/internal/model"
	"gopkg.in/yaml.v3"
)

// ErrEmptyURL is returned for a task without a URL.
var ErrEmptyURL = errors.New("task has no url")

// Manifest is a resolved gallery.
type Manifest struct {
	Directory string       `json:"directory" yaml:"directory"`
	Tasks     []model.Task `json:"tasks" yaml:"tasks"`
}

// Load reads a manifest from path. Files ending in .yaml or .yml are parsed
// as YAML, everything else as JSON.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return Parse(data, yaml.Unmarshal)
	default:
		return Parse(data, json.Unmarshal)
	}
}

// Parse decodes a manifest with unmarshal and normalizes its tasks.
func Parse(data []byte, unmarshal func([]byte, any) error) (*Manifest, error) {
	m := &Manifest{}
	if err := unmarshal(data, m); err != nil {
		var tasks []model.Task
		if listErr := unmarshal(data, &tasks); listErr != nil {
			return nil, fmt.Errorf("parse manifest: %w", err)
		}
		m.Tasks = tasks
	}

	for i, task := range m.Tasks {
		if strings.TrimSpace(task.URL) == "" {
			return nil, fmt.Errorf("task %d: %w", i, ErrEmptyURL)
		}
		task = model.NewTask(task.URL, task.Filename)
		if task.Validate() != nil {
			task.Filename = fmt.Sprintf("file_%d", i)
		}
		m.Tasks[i] = task
	}

	return m, nil
}

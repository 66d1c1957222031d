package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Default file names, relative to the working directory.
const (
	DefaultConfigFile = "ChiaPlotter_Config.json"
	DefaultStatusFile = "ChiaPlotter_Status.json"
)

// ConfigFile is the desired state document.
//
// Version is increased on every write and serves as an audit counter only.
// NextID holds the last identifier handed out; identifiers are never reused,
// even after the job was removed.
type ConfigFile struct {
	Version int         `json:"version" yaml:"version"`
	NextID  int         `json:"nextId" yaml:"nextId"`
	Jobs    map[int]Job `json:"jobs" yaml:"jobs"`
}

// NewConfigFile returns an empty config document.
func NewConfigFile() *ConfigFile {
	return &ConfigFile{Jobs: make(map[int]Job)}
}

// Add stores the job under the next free identifier and returns it.
func (c *ConfigFile) Add(job Job) int {
	if c.Jobs == nil {
		c.Jobs = make(map[int]Job)
	}
	c.NextID++
	c.Jobs[c.NextID] = job
	return c.NextID
}

// Remove drops the job from the desired state. Its observed state stays in
// the status file.
func (c *ConfigFile) Remove(id int) error {
	if _, ok := c.Jobs[id]; !ok {
		return fmt.Errorf("job %d: %w", id, ErrJobNotFound)
	}
	delete(c.Jobs, id)
	return nil
}

// ParseConfig decodes a config document. A valid document without jobs gets
// an empty job map, missing job fields get their defaults.
func ParseConfig(b []byte) (*ConfigFile, error) {
	if len(bytes.TrimSpace(b)) == 0 {
		return nil, errors.New("config document is empty")
	}
	var cfg ConfigFile
	if err := json.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.Jobs == nil {
		cfg.Jobs = make(map[int]Job)
	}
	for id, job := range cfg.Jobs {
		cfg.Jobs[id] = job.WithDefaults()
	}
	return &cfg, nil
}

// LoadConfig reads an existing config file. It returns ErrConfigNotFound when
// there is no file at path.
func LoadConfig(path string) (*ConfigFile, error) {
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", path, ErrConfigNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return ParseConfig(b)
}

// ReadConfig works like LoadConfig, but returns an empty document when the
// file does not exist yet.
func ReadConfig(path string) (*ConfigFile, error) {
	cfg, err := LoadConfig(path)
	if errors.Is(err, ErrConfigNotFound) {
		return NewConfigFile(), nil
	}
	return cfg, err
}

// WriteConfig increases the document version and replaces the file content.
func WriteConfig(path string, cfg *ConfigFile) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	cfg.Version++
	return writeJSON(path, cfg)
}

// StatusFile is the observed state document, a point-in-time copy of all
// job statuses.
type StatusFile struct {
	Version int               `json:"version" yaml:"version"`
	Jobs    map[int]JobStatus `json:"jobs" yaml:"jobs"`
}

// NewStatusFile returns an empty status document.
func NewStatusFile() *StatusFile {
	return &StatusFile{Jobs: make(map[int]JobStatus)}
}

// ParseStatus decodes a status document.
func ParseStatus(b []byte) (*StatusFile, error) {
	if len(bytes.TrimSpace(b)) == 0 {
		return nil, errors.New("status document is empty")
	}
	var status StatusFile
	if err := json.Unmarshal(b, &status); err != nil {
		return nil, fmt.Errorf("parse status: %w", err)
	}
	if status.Jobs == nil {
		status.Jobs = make(map[int]JobStatus)
	}
	return &status, nil
}

// ReadStatus reads the status file. Missing file is an empty document,
// a malformed one is an error.
func ReadStatus(path string) (*StatusFile, error) {
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return NewStatusFile(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read status: %w", err)
	}
	return ParseStatus(b)
}

// WriteStatus increases the document version and replaces the file content.
func WriteStatus(path string, status *StatusFile) error {
	if status == nil {
		return errors.New("status is nil")
	}
	status.Version++
	return writeJSON(path, status)
}

// writeJSON replaces path atomically: the document goes to a temp file in
// the same directory, which is then renamed over the target.
func writeJSON(path string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}
	b = append(b, '\n')

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename %s: %w", filepath.Base(path), err)
	}
	return nil
}

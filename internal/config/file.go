package config

import (
	"fmt"
	"os"
	"sync"

	"github.com/zeebo/xxh3"
	"gopkg.in/yaml.v3"
)

// File persists a Config back to disk after control-plane mutations. A
// digest of the marshaled document is kept so unchanged saves skip the
// write entirely.
type File struct {
	path string

	mu         sync.Mutex
	lastDigest uint64
}

// NewFile tracks the config file at path.
func NewFile(path string) *File {
	return &File{path: path}
}

// Path returns the tracked file path.
func (f *File) Path() string {
	return f.path
}

// Save writes cfg to disk unless its serialized form is identical to the
// last save.
func (f *File) Save(cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	digest := xxh3.Hash(data)
	if digest == f.lastDigest {
		return nil
	}
	if err := os.WriteFile(f.path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	f.lastDigest = digest
	return nil
}

package data

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

var (
	dirMu sync.RWMutex
	dir   = filepath.Join(os.ExpandEnv("$HOME/.sweep"), "data")
)

// SetDir changes the directory files are stored in.
func SetDir(d string) {
	dirMu.Lock()
	dir = d
	dirMu.Unlock()
}

// Dir returns the directory files are stored in.
func Dir() string {
	dirMu.RLock()
	defer dirMu.RUnlock()
	return dir
}

// Path returns the on-disk location of key.
func Path(key string) string {
	return filepath.Join(Dir(), filepath.FromSlash(key))
}

// Save to disk
func Save(key string, val []byte) error {
	file := Path(key)
	if err := os.MkdirAll(filepath.Dir(file), 0700); err != nil {
		return fmt.Errorf("data mkdir: %w", err)
	}
	// write then rename so a crash never leaves a half-written file behind
	tmp := file + ".tmp"
	if err := os.WriteFile(tmp, val, 0644); err != nil {
		return fmt.Errorf("data write %s: %w", key, err)
	}
	return os.Rename(tmp, file)
}

// Load file from disk
func Load(key string) ([]byte, error) {
	return os.ReadFile(Path(key))
}

// Delete removes key from disk. Missing keys are not an error.
func Delete(key string) error {
	if err := os.Remove(Path(key)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func SaveJSON(key string, val interface{}) error {
	b, err := json.MarshalIndent(val, "", "  ")
	if err != nil {
		return err
	}
	return Save(key, b)
}

func LoadJSON(key string, val interface{}) error {
	b, err := Load(key)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, val)
}

// Package adapter assembles CLI argument lists from a tool's declared
// options and a caller's argument mapping, then dispatches the resulting
// command through the shell pool or a direct spawn.
package adapter

import (
	"fmt"
	"os"
	"sync"
)

// TempFileManager creates temp files for multi-line argument values and
// keeps them open for the lifetime of the manager, closing and deleting
// every tracked file on Close. No file is removed before Close, so a temp
// file's path remains valid to hand to a spawned command right up until
// Close runs.
type TempFileManager struct {
	mu    sync.Mutex
	files []*os.File
}

// NewTempFileManager returns an empty manager.
func NewTempFileManager() *TempFileManager {
	return &TempFileManager{}
}

// CreateTempFileWithContent writes content to a fresh temp file and
// returns its path. The file is tracked and not removed until Close.
func (m *TempFileManager) CreateTempFileWithContent(content string) (string, error) {
	f, err := os.CreateTemp("", "ahma-arg-*")
	if err != nil {
		return "", fmt.Errorf("adapter: create temp file: %w", err)
	}
	if _, err := f.WriteString(content); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("adapter: write temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("adapter: flush temp file: %w", err)
	}

	m.mu.Lock()
	m.files = append(m.files, f)
	m.mu.Unlock()

	return f.Name(), nil
}

// Close removes every temp file this manager has created.
func (m *TempFileManager) Close() error {
	m.mu.Lock()
	files := m.files
	m.files = nil
	m.mu.Unlock()

	var firstErr error
	for _, f := range files {
		path := f.Name()
		f.Close()
		if err := os.Remove(path); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

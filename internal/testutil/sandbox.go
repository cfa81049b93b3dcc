// Package testutil holds small helpers shared by mam package tests —
// currently an isolated filesystem sandbox (used by cmd/config to exercise
// viper config loading against throwaway YAML trees) and a byte-reversal
// helper used to integration-test the sandbox's file round-trip.
package testutil

import (
	"io/fs"
	"os"
	"path/filepath"
)

// Sandbox is an isolated temporary directory a test can read and write
// files under without touching the module's own config/snapshot files.
type Sandbox struct {
	Root string
}

// NewSandbox creates a new Sandbox rooted at a fresh temporary directory.
func NewSandbox() (*Sandbox, error) {
	dir, err := os.MkdirTemp("", "mam_sandbox")
	if err != nil {
		return nil, err
	}
	return &Sandbox{Root: dir}, nil
}

// Path returns the absolute path for a file within the sandbox.
func (s *Sandbox) Path(name string) string {
	return filepath.Join(s.Root, name)
}

// WriteFile writes data to the named file inside the sandbox using the
// provided permissions. Parent directories are not created; the caller
// makes them first (e.g. with os.Mkdir).
func (s *Sandbox) WriteFile(name string, data []byte, perm fs.FileMode) error {
	return os.WriteFile(s.Path(name), data, perm)
}

// ReadFile reads and returns data from the named file inside the sandbox.
func (s *Sandbox) ReadFile(name string) ([]byte, error) {
	return os.ReadFile(s.Path(name))
}

// Cleanup removes the sandbox directory and everything under it.
func (s *Sandbox) Cleanup() error {
	return os.RemoveAll(s.Root)
}

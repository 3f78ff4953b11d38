package testutil

import (
	"os"
	"path/filepath"
)

// Workspace is a throwaway session working directory.
type Workspace struct {
	Root string
}

// NewWorkspace creates an empty working directory under the system
// temp dir.
func NewWorkspace() (*Workspace, error) {
	root, err := os.MkdirTemp("", "warden-e2e-*")
	if err != nil {
		return nil, err
	}
	return &Workspace{Root: root}, nil
}

// WriteFile creates a file inside the workspace, making parent
// directories as needed, and returns its absolute path.
func (w *Workspace) WriteFile(name, content string) (string, error) {
	path := filepath.Join(w.Root, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return "", err
	}
	return path, nil
}

// Cleanup removes the workspace and everything in it.
func (w *Workspace) Cleanup() {
	os.RemoveAll(w.Root)
}

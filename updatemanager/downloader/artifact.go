package downloader

import (
	"fmt"
	"os"
	"path/filepath"
)

// Artifact is a file produced while processing one update. It lives in a directory
// owned by the update process.
type Artifact struct {
	Path string
	Dir  string
}

// Derive returns an artifact for another file in the same directory
func (a *Artifact) Derive(name string) *Artifact {
	return &Artifact{Path: filepath.Join(a.Dir, name), Dir: a.Dir}
}

// Cleanup removes the artifact directory with everything in it
func (a *Artifact) Cleanup() error {
	if a == nil || a.Dir == "" {
		return nil
	}
	if err := os.RemoveAll(a.Dir); err != nil {
		return fmt.Errorf("remove artifact dir %s: %w", a.Dir, err)
	}
	return nil
}

package engine

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// ManagedDirs are the directories the application keeps next to its data.
var ManagedDirs = []string{"models", "drivers", "plugins", "logs"}

// EnsureDirs creates root and the managed directories under it, reporting
// each one it had to create to w.
func EnsureDirs(root string, w io.Writer) error {
	for _, name := range ManagedDirs {
		dir := filepath.Join(root, name)
		if _, err := os.Stat(dir); err == nil {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
		fmt.Fprintf(w, "created %s\n", dir)
	}
	return nil
}

// CheckReady reports whether req could be launched locally, writing a line
// per check to w. It returns the first failure.
func CheckReady(req Request, managedDir string, w io.Writer) error {
	exe, err := Preflight(req, managedDir)
	if err != nil {
		fmt.Fprintf(w, "engine: %s\n", Describe(err))
		return err
	}
	fmt.Fprintf(w, "driver %s: ready\n", exe)
	fmt.Fprintf(w, "model %s: ready\n", req.ModelPath)
	return nil
}

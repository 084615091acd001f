package engine

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// Preflight checks that the request's driver and model exist and that the
// driver can be executed. A driver living under managedDir that lacks the
// executable bit is fixed in place. It returns the path to execute.
func Preflight(req Request, managedDir string) (string, error) {
	exe := resolveExecutable(req.ExecutablePath)

	info, err := os.Stat(exe)
	if err != nil || info.IsDir() {
		return "", newError(ErrConfiguration, ReasonMissingBinary, exe, nil)
	}

	if req.ModelPath == "" {
		return "", newError(ErrConfiguration, ReasonMissingModel, "no model path configured", nil)
	}
	if _, err := os.Stat(req.ModelPath); err != nil {
		return "", newError(ErrConfiguration, ReasonMissingModel, req.ModelPath, nil)
	}

	if err := ensureExecutable(exe, info, managedDir); err != nil {
		return "", err
	}
	return exe, nil
}

func resolveExecutable(path string) string {
	if runtime.GOOS == "windows" && filepath.Ext(path) == "" {
		return path + ".exe"
	}
	return path
}

func ensureExecutable(path string, info os.FileInfo, managedDir string) error {
	if runtime.GOOS == "windows" {
		return nil
	}
	perm := info.Mode().Perm()
	if perm&0o111 != 0 {
		return nil
	}
	if !withinDir(path, managedDir) {
		return newError(ErrConfiguration, ReasonPermissionDenied, path, nil)
	}
	if err := os.Chmod(path, perm|0o111); err != nil {
		return newError(ErrConfiguration, ReasonPermissionDenied, path, err)
	}
	return nil
}

// withinDir reports whether path is strictly inside dir.
func withinDir(path, dir string) bool {
	if dir == "" {
		return false
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(absDir, absPath)
	if err != nil {
		return false
	}
	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

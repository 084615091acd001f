package engine

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func writeFile(t *testing.T, path string, mode os.FileMode) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("x"), mode); err != nil {
		t.Fatal(err)
	}
}

func TestPreflight(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("executable bit checks are POSIX only")
	}

	root := t.TempDir()
	managed := filepath.Join(root, "drivers")
	model := filepath.Join(root, "models", "m.gguf")
	writeFile(t, model, 0o644)

	ready := filepath.Join(managed, "llama-cli")
	writeFile(t, ready, 0o755)
	foreign := filepath.Join(root, "elsewhere", "llama-cli")
	writeFile(t, foreign, 0o644)

	tests := []struct {
		name       string
		exe, model string
		wantReason string
	}{
		{"ready", ready, model, ""},
		{"missing binary", filepath.Join(managed, "nope"), model, ReasonMissingBinary},
		{"binary is a directory", managed, model, ReasonMissingBinary},
		{"missing model", ready, filepath.Join(root, "models", "nope.gguf"), ReasonMissingModel},
		{"empty model path", ready, "", ReasonMissingModel},
		{"not executable outside managed dir", foreign, model, ReasonPermissionDenied},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Preflight(Request{ExecutablePath: tt.exe, ModelPath: tt.model}, managed)
			if tt.wantReason == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, ErrConfiguration) {
				t.Fatalf("err = %v, want ErrConfiguration", err)
			}
			if got := Reason(err); got != tt.wantReason {
				t.Errorf("reason = %q, want %q", got, tt.wantReason)
			}
		})
	}
}

func TestPreflight_RepairsManagedDriver(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("executable bit checks are POSIX only")
	}

	root := t.TempDir()
	managed := filepath.Join(root, "drivers")
	exe := filepath.Join(managed, "llama-cli")
	writeFile(t, exe, 0o644)
	model := filepath.Join(root, "m.gguf")
	writeFile(t, model, 0o644)

	got, err := Preflight(Request{ExecutablePath: exe, ModelPath: model}, managed)
	if err != nil {
		t.Fatalf("Preflight: %v", err)
	}
	if got != exe {
		t.Errorf("path = %q, want %q", got, exe)
	}

	info, err := os.Stat(exe)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0o755 {
		t.Errorf("mode = %o, want 755", perm)
	}
}

func TestWithinDir(t *testing.T) {
	tests := []struct {
		path, dir string
		want      bool
	}{
		{"drivers/llama-cli", "drivers", true},
		{"drivers/bin/llama-cli", "drivers", true},
		{"drivers", "drivers", false},
		{"other/llama-cli", "drivers", false},
		{"drivers/../other/llama-cli", "drivers", false},
		{"drivers-old/llama-cli", "drivers", false},
		{"drivers/llama-cli", "", false},
	}
	for _, tt := range tests {
		if got := withinDir(tt.path, tt.dir); got != tt.want {
			t.Errorf("withinDir(%q, %q) = %v, want %v", tt.path, tt.dir, got, tt.want)
		}
	}
}

func TestArgs(t *testing.T) {
	req := Request{
		ModelPath:   "models/m.gguf",
		Prompt:      "User: hi\nAssistant:",
		MaxTokens:   1024,
		GPULayers:   33,
		ContextSize: 4096,
		Threads:     8,
		Temperature: 0.7,
	}
	want := []string{
		"-m", "models/m.gguf",
		"-p", "User: hi\nAssistant:",
		"-n", "1024",
		"-ngl", "33",
		"-c", "4096",
		"-t", "8",
		"--temp", "0.7",
	}

	for range 2 {
		got := req.Args()
		if len(got) != len(want) {
			t.Fatalf("Args() = %q, want %q", got, want)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("Args()[%d] = %q, want %q", i, got[i], want[i])
			}
		}
	}
}

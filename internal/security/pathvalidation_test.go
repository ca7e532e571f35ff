package security

import (
	"os"
	"path/filepath"
	"testing"
)

func TestValidatePathWithinDirectory(t *testing.T) {
	tmpDir := t.TempDir()

	safeDir := filepath.Join(tmpDir, "safe")
	outsideDir := filepath.Join(tmpDir, "outside")
	for _, d := range []string{safeDir, outsideDir} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", d, err)
		}
	}
	if err := os.WriteFile(filepath.Join(outsideDir, "secret.txt"), []byte("secret"), 0o644); err != nil {
		t.Fatalf("write outside file: %v", err)
	}

	// A symlink inside the safe directory pointing out of it.
	symlinkPath := filepath.Join(safeDir, "escape")
	if err := os.Symlink(outsideDir, symlinkPath); err != nil {
		t.Fatalf("create symlink: %v", err)
	}

	tests := []struct {
		name      string
		filePath  string
		safeDir   string
		wantError bool
	}{
		{"path within directory", filepath.Join(tmpDir, "file.txt"), tmpDir, false},
		{"nested path not yet created", filepath.Join(tmpDir, "owner", "log", "chunk_00000.part"), tmpDir, false},
		{"dotdot traversal", filepath.Join(tmpDir, "..", "file.txt"), tmpDir, true},
		{"relative traversal", "../../../etc/passwd", tmpDir, true},
		{"absolute path outside", "/etc/passwd", tmpDir, true},
		{"file behind escaping symlink", filepath.Join(symlinkPath, "secret.txt"), safeDir, true},
		{"escaping symlink itself", symlinkPath, safeDir, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePathWithinDirectory(tt.filePath, tt.safeDir)
			if (err != nil) != tt.wantError {
				t.Errorf("ValidatePathWithinDirectory(%q, %q) error = %v, wantError %v", tt.filePath, tt.safeDir, err, tt.wantError)
			}
		})
	}
}

func TestValidatePathWithinAllowedDirs(t *testing.T) {
	tmpDir1 := t.TempDir()
	tmpDir2 := t.TempDir()

	if err := ValidatePathWithinAllowedDirs(filepath.Join(tmpDir2, "out.parquet"), []string{tmpDir1, tmpDir2}); err != nil {
		t.Errorf("path in second allowed dir rejected: %v", err)
	}
	if err := ValidatePathWithinAllowedDirs("/etc/passwd", []string{tmpDir1, tmpDir2}); err == nil {
		t.Error("path outside all allowed dirs accepted")
	}
	if err := ValidatePathWithinAllowedDirs(filepath.Join(tmpDir1, "out.parquet"), nil); err == nil {
		t.Error("empty allowed dirs accepted")
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"ride_2026-08-21.csv", "ride_2026-08-21.csv"},
		{"morning ride (gravel).fit", "morning_ride_gravel_.fit"},
		{"../../etc/passwd", "etc_passwd"},
		{"", "unknown"},
		{"///", "unknown"},
	}
	for _, tt := range tests {
		if got := SanitizeFilename(tt.in); got != tt.want {
			t.Errorf("SanitizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

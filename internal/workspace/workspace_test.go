package workspace

import (
	"os"
	"path/filepath"
	"testing"
)

func TestResolve_Boundaries(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "a.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(root, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		rel     string
		wantErr error
	}{
		{"plain file", "a.txt", nil},
		{"subdir file (new)", "sub/new.txt", nil},
		{"dot", ".", nil},
		{"parent escape", "../etc/passwd", ErrPathEscape},
		{"deep escape", "sub/../../outside", ErrPathEscape},
		{"absolute outside", "/etc/passwd", ErrPathEscape},
		{"env file", ".env", ErrSensitivePath},
		{"env variant", ".env.production", ErrSensitivePath},
		{"env sample ok", ".env.example", nil},
		{"protected segment", ".codesk/secrets.db", ErrSensitivePath},
		{"legacy data dir", "sub/.jetlinks-ai/db", ErrSensitivePath},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Resolve(root, tt.rel)
			if tt.wantErr == nil && err != nil {
				t.Fatalf("Resolve(%q) = %v, want nil", tt.rel, err)
			}
			if tt.wantErr != nil && err != tt.wantErr {
				t.Fatalf("Resolve(%q) = %v, want %v", tt.rel, err, tt.wantErr)
			}
		})
	}
}

func TestResolve_SymlinkEscape(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	target := filepath.Join(outside, "secret.txt")
	if err := os.WriteFile(target, []byte("s"), 0o644); err != nil {
		t.Fatal(err)
	}
	link := filepath.Join(root, "link.txt")
	if err := os.Symlink(target, link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	if _, err := Resolve(root, "link.txt"); err != ErrPathEscape {
		t.Fatalf("Resolve(symlink out) = %v, want ErrPathEscape", err)
	}
}

func TestResolve_DanglingSymlinkEscape(t *testing.T) {
	root := t.TempDir()
	link := filepath.Join(root, "dangling")
	if err := os.Symlink("/nonexistent/outside/path", link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}
	if _, err := Resolve(root, "dangling"); err == nil {
		t.Fatal("Resolve(dangling symlink out) = nil, want error")
	}
}

func TestRelativeTo_RoundTrip(t *testing.T) {
	root := t.TempDir()
	sub := filepath.Join(root, "x", "y")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	abs, err := Resolve(root, "x/y")
	if err != nil {
		t.Fatal(err)
	}
	rel, err := RelativeTo(root, abs)
	if err != nil {
		t.Fatal(err)
	}
	back, err := Resolve(root, rel)
	if err != nil {
		t.Fatal(err)
	}
	if back != abs {
		t.Fatalf("round trip = %q, want %q", back, abs)
	}
}

func TestCheckAllowlisted(t *testing.T) {
	rootA := t.TempDir()
	rootB := t.TempDir()
	inside := filepath.Join(rootA, "proj")
	if err := os.MkdirAll(inside, 0o755); err != nil {
		t.Fatal(err)
	}

	if _, err := CheckAllowlisted(inside, []string{rootA}); err != nil {
		t.Fatalf("inside allowlist: %v", err)
	}
	if _, err := CheckAllowlisted(inside, []string{rootB}); err != ErrOutsideAllowlist {
		t.Fatalf("outside allowlist = %v, want ErrOutsideAllowlist", err)
	}
	if _, err := CheckAllowlisted(inside, nil); err != ErrOutsideAllowlist {
		t.Fatalf("empty allowlist = %v, want ErrOutsideAllowlist", err)
	}
}

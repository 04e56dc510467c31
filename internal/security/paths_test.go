package security

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestValidateWriteReadOnlyPaths(t *testing.T) {
	v := NewPathValidator("/workspace")

	tests := []struct {
		path   string
		refSet string // Expected substring of the denial reason.
	}{
		{"/etc/passwd", "/etc"},
		{"/etc/nginx/nginx.conf", "/etc"},
		{"/usr/bin/python3", "/usr"},
		{"/boot/grub/grub.cfg", "/boot"},
		{"/proc/self/environ", "/proc"},
		{"/dev/sda", "/dev"},
	}
	for _, tt := range tests {
		ok, reason := v.ValidateWrite(tt.path)
		if ok {
			t.Errorf("ValidateWrite(%q) = true, want denial", tt.path)
			continue
		}
		if !strings.Contains(reason, tt.refSet) {
			t.Errorf("ValidateWrite(%q) reason = %q, want reference to %q", tt.path, reason, tt.refSet)
		}
	}
}

func TestValidateReadOnlyPathsAreReadable(t *testing.T) {
	v := NewPathValidator("/workspace")

	// Read-only system paths deny write but allow read, unless sensitive.
	for _, path := range []string{"/etc/hosts", "/usr/share/doc/x", "/proc/cpuinfo"} {
		if ok, reason := v.ValidateRead(path); !ok {
			t.Errorf("ValidateRead(%q) = false (%s), want true", path, reason)
		}
	}

	// Sensitive paths deny read as well.
	for _, path := range []string{"/etc/passwd", "/etc/shadow", "/root/notes.txt"} {
		if ok, _ := v.ValidateRead(path); ok {
			t.Errorf("ValidateRead(%q) = true, want denial", path)
		}
	}
}

func TestValidateWriteWorkspaceAllowed(t *testing.T) {
	v := NewPathValidator("/workspace")

	for _, path := range []string{"/workspace/out.txt", "relative/file.go", "./notes.md"} {
		if ok, reason := v.ValidateWrite(path); !ok {
			t.Errorf("ValidateWrite(%q) = false (%s), want true", path, reason)
		}
	}
}

func TestNormalize(t *testing.T) {
	v := NewPathValidator("/workspace")

	tests := []struct {
		in   string
		want string
	}{
		{"foo/bar.txt", "/workspace/foo/bar.txt"},
		{"./foo/../bar.txt", "/workspace/bar.txt"},
		{"/a/b/../c", "/a/c"},
		{"~/notes.txt", filepath.Join(v.home, "notes.txt")},
	}
	for _, tt := range tests {
		if got := v.Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDotDotEscapeIsNormalizedBeforeMatching(t *testing.T) {
	v := NewPathValidator("/workspace")

	// Traversal out of the workspace into a read-only set member.
	if ok, _ := v.ValidateWrite("../../etc/crontab"); ok {
		t.Error("path traversal into /etc should be denied for write")
	}
}

func TestSensitiveHomePaths(t *testing.T) {
	v := NewPathValidator("/workspace")

	sshKey := filepath.Join(v.home, ".ssh", "id_ed25519")
	if ok, _ := v.ValidateRead(sshKey); ok {
		t.Errorf("ValidateRead(%q) = true, want denial", sshKey)
	}
	if ok, _ := v.ValidateWrite(sshKey); ok {
		t.Errorf("ValidateWrite(%q) = true, want denial", sshKey)
	}
}

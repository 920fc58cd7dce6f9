package sanitize

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
)

func TestValidatePath(t *testing.T) {
	root := t.TempDir()

	tests := []struct {
		name        string
		path        string
		allowedRoot string
		wantErr     error
	}{
		{name: "empty path", path: "", wantErr: ErrEmptyPath},
		{name: "relative path", path: "data/stores"},
		{name: "absolute path", path: "/tmp/ragstore"},
		{name: "traversal", path: "../etc/passwd", wantErr: ErrPathTraversal},
		{name: "hidden traversal", path: "data/../../etc", wantErr: ErrPathTraversal},
		{name: "inside root", path: filepath.Join(root, "short_term.sqlite3"), allowedRoot: root},
		{name: "root itself", path: root, allowedRoot: root},
		{name: "outside root", path: "/etc/ragstore/config.yaml", allowedRoot: root, wantErr: ErrPathTraversal},
		{name: "sibling prefix", path: root + "-evil/config.yaml", allowedRoot: root, wantErr: ErrPathTraversal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValidatePath(tt.path, tt.allowedRoot)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("ValidatePath(%q, %q) error = %v, want %v", tt.path, tt.allowedRoot, err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ValidatePath(%q, %q) unexpected error: %v", tt.path, tt.allowedRoot, err)
			}
			if !filepath.IsAbs(got) {
				t.Errorf("ValidatePath(%q) = %q, want absolute path", tt.path, got)
			}
		})
	}
}

func TestValidateDocumentID(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		wantErr bool
	}{
		{name: "uuid", id: "3f2b8c1e-6a8d-4a57-9d5b-0f6a2f9f7c11"},
		{name: "free text", id: "doc a/1:b"},
		{name: "unicode", id: "résumé-7"},
		{name: "empty", id: "", wantErr: true},
		{name: "blank", id: "   ", wantErr: true},
		{name: "newline", id: "a\nb", wantErr: true},
		{name: "nul", id: "a\x00b", wantErr: true},
		{name: "invalid utf8", id: "a\xffb", wantErr: true},
		{name: "too long", id: strings.Repeat("x", MaxDocumentIDLength+1), wantErr: true},
		{name: "max length", id: strings.Repeat("x", MaxDocumentIDLength)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateDocumentID(tt.id)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidDocumentID) {
					t.Errorf("ValidateDocumentID(%q) error = %v, want ErrInvalidDocumentID", tt.id, err)
				}
				return
			}
			if err != nil {
				t.Errorf("ValidateDocumentID(%q) unexpected error: %v", tt.id, err)
			}
		})
	}
}

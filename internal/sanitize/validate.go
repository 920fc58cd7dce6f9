package sanitize

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	// ErrPathTraversal indicates a path escapes where it is allowed to live.
	ErrPathTraversal = errors.New("path contains directory traversal")

	// ErrEmptyPath indicates an empty path was provided.
	ErrEmptyPath = errors.New("path cannot be empty")

	// ErrInvalidDocumentID indicates a caller-supplied document ID is unusable.
	ErrInvalidDocumentID = errors.New("invalid document ID")
)

// MaxDocumentIDLength bounds caller-supplied document IDs in bytes.
const MaxDocumentIDLength = 512

// ValidatePath returns the cleaned absolute form of path.
//
// The path must not contain "..". When allowedRoot is set the path must also
// resolve inside it; a sibling sharing the root's prefix does not count.
func ValidatePath(path, allowedRoot string) (string, error) {
	if path == "" {
		return "", ErrEmptyPath
	}
	if strings.Contains(path, "..") {
		return "", fmt.Errorf("%w: contains '..'", ErrPathTraversal)
	}

	absPath, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return "", fmt.Errorf("failed to resolve path: %w", err)
	}

	if allowedRoot == "" {
		return absPath, nil
	}

	absRoot, err := filepath.Abs(allowedRoot)
	if err != nil {
		return "", fmt.Errorf("failed to resolve allowed root: %w", err)
	}
	rel, err := filepath.Rel(absRoot, absPath)
	if err != nil {
		return "", fmt.Errorf("%w: path outside allowed root", ErrPathTraversal)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: path escapes %s", ErrPathTraversal, absRoot)
	}
	return absPath, nil
}

// ValidateDocumentID checks an ID supplied by a caller rather than derived
// from content. IDs are opaque to every backend, so only blank, oversized,
// non-UTF-8 and control-character IDs are rejected.
func ValidateDocumentID(id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: empty", ErrInvalidDocumentID)
	}
	if len(id) > MaxDocumentIDLength {
		return fmt.Errorf("%w: %d bytes exceeds %d", ErrInvalidDocumentID, len(id), MaxDocumentIDLength)
	}
	if !utf8.ValidString(id) {
		return fmt.Errorf("%w: not valid UTF-8", ErrInvalidDocumentID)
	}
	if strings.IndexFunc(id, unicode.IsControl) >= 0 {
		return fmt.Errorf("%w: contains control characters", ErrInvalidDocumentID)
	}
	return nil
}

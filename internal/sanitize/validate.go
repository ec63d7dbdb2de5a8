package sanitize

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Validation errors for caller-supplied document references.
var (
	// ErrPathTraversal indicates a path contains directory traversal sequences.
	ErrPathTraversal = errors.New("path contains directory traversal")

	// ErrEmptyPath indicates an empty path was provided.
	ErrEmptyPath = errors.New("path cannot be empty")

	// ErrInvalidDocumentName indicates a display name that cannot appear in a citation.
	ErrInvalidDocumentName = errors.New("invalid document name")
)

// MaxDocumentNameLength bounds display names, which are echoed in every citation.
const MaxDocumentNameLength = 128

// ValidatePath checks a path for traversal and returns its cleaned absolute form.
//
// If allowedRoot is empty, only traversal checks are performed.
// If allowedRoot is provided, the path must resolve within that directory;
// relative paths are resolved against it.
func ValidatePath(path, allowedRoot string) (string, error) {
	if path == "" {
		return "", ErrEmptyPath
	}

	if strings.Contains(path, "..") {
		return "", fmt.Errorf("%w: contains '..'", ErrPathTraversal)
	}

	cleanPath := filepath.Clean(path)
	if allowedRoot != "" && !filepath.IsAbs(cleanPath) {
		cleanPath = filepath.Join(allowedRoot, cleanPath)
	}

	absPath, err := filepath.Abs(cleanPath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve path: %w", err)
	}

	if allowedRoot != "" {
		absRoot, err := filepath.Abs(allowedRoot)
		if err != nil {
			return "", fmt.Errorf("failed to resolve allowed root: %w", err)
		}
		rel, err := filepath.Rel(absRoot, absPath)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return "", fmt.Errorf("%w: path escapes allowed root", ErrPathTraversal)
		}
	}

	return absPath, nil
}

// DocumentName checks a citation display name such as "Apple 10-K".
func DocumentName(name string) error {
	trimmed := strings.TrimSpace(name)
	switch {
	case trimmed == "":
		return fmt.Errorf("%w: name cannot be empty", ErrInvalidDocumentName)
	case !utf8.ValidString(name):
		return fmt.Errorf("%w: name is not valid UTF-8", ErrInvalidDocumentName)
	case utf8.RuneCountInString(name) > MaxDocumentNameLength:
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidDocumentName, MaxDocumentNameLength)
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return fmt.Errorf("%w: name contains control characters", ErrInvalidDocumentName)
		}
	}
	return nil
}

// Document validates a document named by a remote caller. The returned path
// is the absolute location the document will be read from.
func Document(name, path, allowedRoot string) (string, error) {
	if err := DocumentName(name); err != nil {
		return "", err
	}
	abs, err := ValidatePath(path, allowedRoot)
	if err != nil {
		return "", fmt.Errorf("document %q: %w", name, err)
	}
	return abs, nil
}

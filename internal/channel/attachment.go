package channel

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var (
	// ErrAttachmentsDisabled is returned when no attachment directory is configured.
	ErrAttachmentsDisabled = errors.New("attachments are disabled")
	// ErrAttachmentOutsideDir is returned for files that resolve outside the
	// attachment directory, including through symlinks.
	ErrAttachmentOutsideDir = errors.New("attachment outside attachment directory")
)

// ResolveAttachment returns the real path of name inside dir. Relative names
// are joined to dir; absolute names must already point into it. The result is
// always a regular file below dir.
func ResolveAttachment(dir, name string) (string, error) {
	if dir == "" {
		return "", ErrAttachmentsDisabled
	}
	root, err := filepath.EvalSymlinks(dir)
	if err != nil {
		return "", fmt.Errorf("attachment directory %s: %w", dir, err)
	}
	root, err = filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("attachment directory %s: %w", dir, err)
	}

	path := name
	if !filepath.IsAbs(path) {
		path = filepath.Join(root, path)
	}
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		return "", fmt.Errorf("attachment %q: %w", name, err)
	}
	rel, err := filepath.Rel(root, resolved)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrAttachmentOutsideDir, name)
	}

	info, err := os.Stat(resolved)
	if err != nil {
		return "", fmt.Errorf("attachment %q: %w", name, err)
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("attachment %q is not a regular file", name)
	}
	return resolved, nil
}

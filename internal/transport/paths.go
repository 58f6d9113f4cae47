package transport

import (
	"fmt"
	"path"
	"strings"
)

// ValidatePath rejects empty remote paths and paths that climb out of their
// starting directory.
func ValidatePath(p string) error {
	if p == "" {
		return fmt.Errorf("empty path")
	}
	for _, part := range strings.Split(path.Clean(strings.ReplaceAll(p, "\\", "/")), "/") {
		if part == ".." {
			return fmt.Errorf("path traversal in %q", p)
		}
	}
	return nil
}

// ValidateRelativePath checks that rel stays under base once joined.
func ValidateRelativePath(base, rel string) error {
	if err := ValidatePath(rel); err != nil {
		return err
	}
	joined := path.Join(base, rel)
	cleanBase := path.Clean(base)
	if joined != cleanBase && !strings.HasPrefix(joined, cleanBase+"/") {
		return fmt.Errorf("path traversal: %q escapes %q", rel, base)
	}
	return nil
}

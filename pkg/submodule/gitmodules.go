package submodule

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// removeGitmodulesEntry rewrites the parent's .gitmodules without any section
// whose path setting matches relPath. The file is deleted outright when no
// sections remain. Returns whether anything changed.
func removeGitmodulesEntry(repoDir, relPath string) (bool, error) {
	path := filepath.Join(repoDir, gitmodulesFile)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, errors.Wrapf(err, "failed to read %s", gitmodulesFile)
	}

	sections := splitSections(string(data))
	kept := sections[:0]
	removed := false
	for _, section := range sections {
		if sectionPath(section) == filepath.ToSlash(relPath) {
			removed = true
			continue
		}
		kept = append(kept, section)
	}

	if !removed {
		return false, nil
	}

	if len(kept) == 0 {
		if err := os.Remove(path); err != nil {
			return false, errors.Wrapf(err, "failed to delete empty %s", gitmodulesFile)
		}
		return true, nil
	}

	content := strings.Join(kept, "")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return false, errors.Wrapf(err, "failed to rewrite %s", gitmodulesFile)
	}
	return true, nil
}

// splitSections cuts .gitmodules content into chunks, each starting at a
// `[...]` header line. Leading content before the first header stays attached
// to the first section.
func splitSections(content string) []string {
	lines := strings.SplitAfter(content, "\n")

	var sections []string
	var current strings.Builder
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "[") && current.Len() > 0 {
			sections = append(sections, current.String())
			current.Reset()
		}
		current.WriteString(line)
	}
	if current.Len() > 0 {
		sections = append(sections, current.String())
	}
	return sections
}

// sectionPath extracts the `path = ...` value from one section, or "".
func sectionPath(section string) string {
	for _, line := range strings.Split(section, "\n") {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, "path") {
			continue
		}
		key, value, found := strings.Cut(trimmed, "=")
		if found && strings.TrimSpace(key) == "path" {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

package skills

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// SearchRoot is one location scanned for skills. Roots are searched in slice
// order; that order is the precedence order when names collide.
type SearchRoot struct {
	Path   string
	Origin Origin
	Scope  Scope
}

// Discovery finds skills under a fixed, ordered list of search roots.
type Discovery struct {
	roots []SearchRoot
}

// Option is a function that configures a Discovery
type Option func(*Discovery) error

// WithRoots sets an explicit ordered list of search roots.
func WithRoots(roots ...SearchRoot) Option {
	return func(d *Discovery) error {
		d.roots = roots
		return nil
	}
}

// WithDefaultRoots initializes the standard root order: project universal,
// global universal, project packs, global packs.
func WithDefaultRoots() Option {
	return func(d *Discovery) error {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return errors.Wrap(err, "failed to get user home directory")
		}

		d.roots = []SearchRoot{
			{Path: filepath.Join(".", ".skilldock", "skills"), Origin: OriginProject, Scope: ScopeUniversalProject},
			{Path: filepath.Join(homeDir, ".skilldock", "skills"), Origin: OriginGlobal, Scope: ScopeUniversalGlobal},
		}
		d.roots = append(d.roots, packRoots(filepath.Join(".", ".skilldock", "packs"), OriginProject, ScopeScopedProject)...)
		d.roots = append(d.roots, packRoots(filepath.Join(homeDir, ".skilldock", "packs"), OriginGlobal, ScopeScopedGlobal)...)

		return nil
	}
}

// packRoots expands a packs directory into one search root per installed
// pack, in lexical pack-name order so precedence stays deterministic.
func packRoots(packsDir string, origin Origin, scope Scope) []SearchRoot {
	entries, err := os.ReadDir(packsDir)
	if err != nil {
		return nil
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	var roots []SearchRoot
	for _, name := range names {
		skillsDir := filepath.Join(packsDir, name, "skills")
		if info, err := os.Stat(skillsDir); err == nil && info.IsDir() {
			roots = append(roots, SearchRoot{Path: skillsDir, Origin: origin, Scope: scope})
		}
	}
	return roots
}

// NewDiscovery creates a new skill discovery instance
func NewDiscovery(opts ...Option) (*Discovery, error) {
	d := &Discovery{}

	if len(opts) == 0 {
		opts = []Option{WithDefaultRoots()}
	}
	for _, opt := range opts {
		if err := opt(d); err != nil {
			return nil, err
		}
	}

	return d, nil
}

// Roots returns the configured search roots in precedence order.
func (d *Discovery) Roots() []SearchRoot {
	return d.roots
}

// FindAll discovers every skill visible from the configured roots. Roots are
// scanned in precedence order and a name is only inserted when absent, so the
// highest-precedence instance of a colliding name is the one returned.
func (d *Discovery) FindAll() (map[string]*Skill, error) {
	found := make(map[string]*Skill)

	for _, root := range d.roots {
		d.scanRoot(root, func(skill *Skill) bool {
			if _, exists := found[skill.Name]; !exists {
				found[skill.Name] = skill
			}
			return false
		})
	}

	return found, nil
}

// Find returns the highest-precedence skill with the given name, or nil when
// no root contains it.
func (d *Discovery) Find(name string) (*Skill, error) {
	var match *Skill

	for _, root := range d.roots {
		d.scanRoot(root, func(skill *Skill) bool {
			if skill.Name == name {
				match = skill
				return true
			}
			return false
		})
		if match != nil {
			return match, nil
		}
	}

	return nil, errors.Errorf("skill '%s' not found", name)
}

// ListNames returns the names of all visible skills in sorted order.
func (d *Discovery) ListNames() ([]string, error) {
	all, err := d.FindAll()
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(all))
	for name := range all {
		names = append(names, name)
	}
	sort.Strings(names)

	return names, nil
}

// scanRoot walks one search root and invokes visit for each valid skill in
// lexical path order. A directory containing a valid entry file is a leaf:
// the walk does not descend into it. Directories with missing or malformed
// entry files are not errors, just not skills; the walk continues into them.
// visit returning true stops the walk early.
func (d *Discovery) scanRoot(root SearchRoot, visit func(*Skill) bool) {
	_ = filepath.WalkDir(root.Path, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !entry.IsDir() {
			return nil
		}
		if entry.Name() == ".git" {
			return filepath.SkipDir
		}

		skill, ok := d.loadSkill(path)
		if !ok {
			return nil
		}

		skill.Root = root.Path
		skill.Origin = root.Origin
		if visit(skill) {
			return filepath.SkipAll
		}
		return filepath.SkipDir
	})
}

// loadSkill reads and validates a directory's entry file.
func (d *Discovery) loadSkill(dir string) (*Skill, bool) {
	content, err := os.ReadFile(filepath.Join(dir, SkillFileName))
	if err != nil {
		return nil, false
	}

	metadata, err := ParseMetadata(content)
	if err != nil {
		return nil, false
	}

	return &Skill{
		Name:        metadata.Name,
		Description: metadata.Description,
		Directory:   dir,
		Content:     extractBodyContent(string(content)),
	}, true
}

// extractBodyContent removes YAML frontmatter and returns the body
func extractBodyContent(content string) string {
	if !strings.HasPrefix(content, "---") {
		return content
	}

	lines := strings.Split(content, "\n")
	frontmatterEnd := -1

	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "---" {
			frontmatterEnd = i
			break
		}
	}

	if frontmatterEnd == -1 {
		return content
	}

	return strings.TrimLeft(strings.Join(lines[frontmatterEnd+1:], "\n"), "\n")
}

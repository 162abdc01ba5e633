// Package fscopy copies directory trees in two phases: BuildPlan walks the
// source and produces the list of operations, Apply performs them. The split
// keeps the exclusion and symlink rules testable without touching the
// destination. Symbolic links are always dereferenced: their content is
// copied, never a link.
package fscopy

import (
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/pkg/errors"
)

// Kind distinguishes plan operations.
type Kind int

const (
	// KindDir creates a directory.
	KindDir Kind = iota
	// KindFile copies one regular file.
	KindFile
)

// Op is a single planned copy step.
type Op struct {
	Src  string
	Dst  string
	Kind Kind
}

// DefaultExcludes match version-control metadata at any nesting depth, so a
// copied skill can never smuggle a nested repository into the destination.
var DefaultExcludes = []string{
	"**/.git",
	"**/.git/**",
	"**/.gitignore",
	"**/.gitattributes",
	"**/.gitmodules",
}

// Planner builds copy plans.
type Planner struct {
	excludes []string
}

// PlannerOption configures a Planner.
type PlannerOption func(*Planner)

// WithExcludes replaces the default exclusion patterns.
func WithExcludes(patterns ...string) PlannerOption {
	return func(p *Planner) {
		p.excludes = patterns
	}
}

// NewPlanner creates a Planner with DefaultExcludes unless overridden.
func NewPlanner(opts ...PlannerOption) *Planner {
	p := &Planner{excludes: DefaultExcludes}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// BuildPlan walks src and returns the ordered operations that would copy it
// to dst. Directory symlinks are walked into (their contents get copied),
// file symlinks resolve to their target's content. A symlink cycle is an
// error; two links resolving to the same directory outside each other are
// fine and each gets its own copy.
func (p *Planner) BuildPlan(src, dst string) ([]Op, error) {
	info, err := os.Stat(src)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to stat source %s", src)
	}
	if !info.IsDir() {
		return nil, errors.Errorf("source %s is not a directory", src)
	}

	ancestors := make(map[string]bool)
	var plan []Op
	if err := p.walk(src, dst, "", ancestors, &plan); err != nil {
		return nil, err
	}
	return plan, nil
}

// ancestors holds the resolved paths of the directories currently being
// descended into. A directory resolving to one of its own ancestors is a
// cycle; entries are removed on unwind so sibling links to a shared target
// stay legal.
func (p *Planner) walk(src, dst, rel string, ancestors map[string]bool, plan *[]Op) error {
	resolved, err := filepath.EvalSymlinks(src)
	if err != nil {
		return errors.Wrapf(err, "failed to resolve %s", src)
	}
	if ancestors[resolved] {
		return errors.Errorf("symlink cycle detected at %s", src)
	}
	ancestors[resolved] = true
	defer delete(ancestors, resolved)

	*plan = append(*plan, Op{Src: src, Dst: dst, Kind: KindDir})

	entries, err := os.ReadDir(src)
	if err != nil {
		return errors.Wrapf(err, "failed to read directory %s", src)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, entry := range entries {
		entryRel := filepath.ToSlash(filepath.Join(rel, entry.Name()))
		if p.excluded(entryRel) {
			continue
		}

		entrySrc := filepath.Join(src, entry.Name())
		entryDst := filepath.Join(dst, entry.Name())

		// Stat follows symlinks, so a link to a directory walks like a
		// directory and a link to a file copies like a file.
		info, err := os.Stat(entrySrc)
		if err != nil {
			return errors.Wrapf(err, "failed to stat %s", entrySrc)
		}

		if info.IsDir() {
			if err := p.walk(entrySrc, entryDst, entryRel, ancestors, plan); err != nil {
				return err
			}
			continue
		}

		*plan = append(*plan, Op{Src: entrySrc, Dst: entryDst, Kind: KindFile})
	}

	return nil
}

func (p *Planner) excluded(rel string) bool {
	for _, pattern := range p.excludes {
		if ok, err := doublestar.Match(pattern, rel); err == nil && ok {
			return true
		}
	}
	return false
}

// Apply performs a plan produced by BuildPlan, in order.
func Apply(plan []Op) error {
	for _, op := range plan {
		switch op.Kind {
		case KindDir:
			if err := os.MkdirAll(op.Dst, 0o755); err != nil {
				return errors.Wrapf(err, "failed to create directory %s", op.Dst)
			}
		case KindFile:
			if err := copyFile(op.Src, op.Dst); err != nil {
				return err
			}
		}
	}
	return nil
}

// CopyTree builds and applies a plan in one call.
func (p *Planner) CopyTree(src, dst string) error {
	plan, err := p.BuildPlan(src, dst)
	if err != nil {
		return err
	}
	return Apply(plan)
}

func copyFile(src, dst string) error {
	srcFile, err := os.Open(src)
	if err != nil {
		return errors.Wrapf(err, "failed to open %s", src)
	}
	defer srcFile.Close()

	srcInfo, err := srcFile.Stat()
	if err != nil {
		return errors.Wrapf(err, "failed to stat %s", src)
	}

	dstFile, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, srcInfo.Mode().Perm())
	if err != nil {
		return errors.Wrapf(err, "failed to create %s", dst)
	}
	defer dstFile.Close()

	if _, err := io.Copy(dstFile, srcFile); err != nil {
		return errors.Wrapf(err, "failed to copy %s", src)
	}
	return nil
}

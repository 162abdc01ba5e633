// Package install copies skills from a source — a local directory, a git
// URL, or an owner/repo shorthand — into one of the local skill roots.
// Installation never commits or pushes; the destination is a plain directory
// tree, so the submodule remediation that publishing needs does not apply
// here. Copies dereference symlinks and strip version-control metadata.
package install

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/skilldock/skilldock/pkg/fscopy"
	"github.com/skilldock/skilldock/pkg/gitx"
	"github.com/skilldock/skilldock/pkg/logger"
	"github.com/skilldock/skilldock/pkg/skills"
	"github.com/skilldock/skilldock/pkg/validate"
)

// Confirmer asks a yes/no question; an error aborts the install.
type Confirmer interface {
	Confirm(prompt string) (bool, error)
}

// Installer copies skills from a resolved source tree into a destination root.
type Installer struct {
	git         *gitx.Client
	planner     *fscopy.Planner
	confirmer   Confirmer
	destRoot    string
	subpath     string
	autoConfirm bool
}

// Option configures an Installer.
type Option func(*Installer)

// WithDestRoot sets the destination skill root explicitly.
func WithDestRoot(root string) Option {
	return func(i *Installer) {
		i.destRoot = root
	}
}

// WithSubpath restricts installation to one subdirectory of the source.
func WithSubpath(subpath string) Option {
	return func(i *Installer) {
		i.subpath = subpath
	}
}

// WithAutoConfirm overwrites existing skills without prompting.
func WithAutoConfirm(autoConfirm bool) Option {
	return func(i *Installer) {
		i.autoConfirm = autoConfirm
	}
}

// DefaultDestRoot returns the standard destination: the project-local skill
// root, or the user-global one when global is set.
func DefaultDestRoot(global bool) (string, error) {
	if !global {
		return filepath.Join(".", ".skilldock", "skills"), nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(err, "failed to get user home directory")
	}
	return filepath.Join(homeDir, ".skilldock", "skills"), nil
}

// New creates an Installer.
func New(git *gitx.Client, confirmer Confirmer, opts ...Option) *Installer {
	i := &Installer{
		git:       git,
		planner:   fscopy.NewPlanner(),
		confirmer: confirmer,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Result reports what one install did.
type Result struct {
	Installed []string
	Skipped   []string
	DestRoot  string
}

// Install resolves the source, locates the skills inside it, and copies each
// one into the destination root. Existing skills prompt for overwrite unless
// auto-confirm is set; a declined prompt skips that skill only.
func (i *Installer) Install(ctx context.Context, source string) (*Result, error) {
	if i.destRoot == "" {
		return nil, errors.New("no destination root configured")
	}

	worktree, cleanup, err := i.resolveSource(ctx, source)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	searchDir := worktree
	if i.subpath != "" {
		searchDir = filepath.Join(worktree, filepath.FromSlash(i.subpath))
		if err := ensureWithin(worktree, searchDir); err != nil {
			return nil, err
		}
	}

	discovery, err := skills.NewDiscovery(skills.WithRoots(skills.SearchRoot{Path: searchDir, Origin: skills.OriginProject, Scope: skills.ScopeUniversalProject}))
	if err != nil {
		return nil, err
	}
	found, err := discovery.FindAll()
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, errors.Errorf("no skills found in %s (expected directories with a valid %s)", source, skills.SkillFileName)
	}

	names := make([]string, 0, len(found))
	for name := range found {
		names = append(names, name)
	}
	sort.Strings(names)

	result := &Result{DestRoot: i.destRoot}
	for _, name := range names {
		installed, err := i.installOne(ctx, found[name])
		if err != nil {
			return nil, err
		}
		if installed {
			result.Installed = append(result.Installed, name)
		} else {
			result.Skipped = append(result.Skipped, name)
		}
	}

	return result, nil
}

func (i *Installer) installOne(ctx context.Context, skill *skills.Skill) (bool, error) {
	if err := validate.CheckName(skill.Name); err != nil {
		return false, err
	}

	dest := filepath.Join(i.destRoot, skill.Name)
	// Lexical containment check before any write: even a validated name
	// must not resolve outside the destination root.
	if err := ensureWithin(i.destRoot, dest); err != nil {
		return false, err
	}

	if _, err := os.Lstat(dest); err == nil && !i.autoConfirm {
		accepted, err := i.confirmer.Confirm("Skill '" + skill.Name + "' is already installed. Overwrite?")
		if err != nil {
			return false, errors.Wrap(err, "install aborted")
		}
		if !accepted {
			logger.G(ctx).WithField("skill", skill.Name).Info("overwrite declined, skipping skill")
			return false, nil
		}
	}

	if err := os.RemoveAll(dest); err != nil {
		return false, errors.Wrapf(err, "failed to clear %s", dest)
	}
	if err := i.planner.CopyTree(skill.Directory, dest); err != nil {
		return false, errors.Wrapf(err, "failed to install skill '%s'", skill.Name)
	}

	return true, nil
}

// resolveSource turns a source argument into a local work tree. Local paths
// are used in place; URLs and owner/repo shorthands are shallow-cloned into
// a temporary directory that cleanup removes.
func (i *Installer) resolveSource(ctx context.Context, source string) (string, func(), error) {
	noop := func() {}

	if info, err := os.Stat(source); err == nil && info.IsDir() {
		return source, noop, nil
	}

	url, subpath, ref, ok := parseSource(source)
	if !ok {
		return "", noop, errors.Errorf("cannot resolve source %q: not a directory, git URL, or owner/repo shorthand", source)
	}
	if subpath != "" && i.subpath == "" {
		i.subpath = subpath
	}

	tempDir, err := os.MkdirTemp("", "skilldock-install-*")
	if err != nil {
		return "", noop, errors.Wrap(err, "failed to create temp directory")
	}
	cleanup := func() { os.RemoveAll(tempDir) }

	if output, err := i.git.CloneShallow(ctx, url, tempDir, ref); err != nil {
		cleanup()
		return "", noop, errors.Wrapf(err, "failed to clone %s: %s", url, output)
	}

	return tempDir, cleanup, nil
}

// parseSource classifies a non-local source. Accepted forms are full git
// URLs and the owner/repo[/subpath][@ref] shorthand, which expands to a
// GitHub HTTPS URL.
func parseSource(source string) (url, subpath, ref string, ok bool) {
	rest := source
	if at := strings.LastIndex(rest, "@"); at > 0 && !strings.Contains(rest[:at], "://") && !strings.HasPrefix(rest, "git@") {
		ref = rest[at+1:]
		rest = rest[:at]
	}

	if validate.IsValidRemoteURL(rest) {
		return rest, "", ref, true
	}

	parts := strings.SplitN(rest, "/", 3)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", "", false
	}
	if !validate.IsValidName(parts[0]) || !validate.IsValidName(parts[1]) {
		return "", "", "", false
	}

	url = "https://github.com/" + parts[0] + "/" + parts[1] + ".git"
	if len(parts) == 3 {
		subpath = parts[2]
	}
	return url, subpath, ref, true
}

// ensureWithin rejects any path that is not lexically inside root.
func ensureWithin(root, path string) error {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return errors.Wrapf(err, "cannot resolve %s against %s", path, root)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return errors.Errorf("refusing to write outside %s: resolved path %s escapes the destination root", root, path)
	}
	return nil
}

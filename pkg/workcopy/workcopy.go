// Package workcopy manages the persistent local mirrors of remote skill
// repositories. Each named remote maps to one mirror directory that is cloned
// on first use and refreshed on every subsequent publish. Mirrors are never
// deleted here.
package workcopy

import (
	"context"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/skilldock/skilldock/pkg/gitx"
	"github.com/skilldock/skilldock/pkg/logger"
	"github.com/skilldock/skilldock/pkg/remotes"
	"github.com/skilldock/skilldock/pkg/validate"
)

// DefaultBranch is assumed when the mirror's active branch cannot be
// determined, e.g. a freshly cloned empty repository.
const DefaultBranch = "main"

// fallbackBranches are tried, in order, after the current branch when
// pulling. First-time pushes to empty remotes routinely have neither.
var fallbackBranches = []string{"main", "master"}

// Manager prepares mirrors below an explicit base directory.
type Manager struct {
	git     *gitx.Client
	baseDir string
}

// DefaultBaseDir returns the standard mirror base directory.
func DefaultBaseDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(err, "failed to get user home directory")
	}
	return filepath.Join(homeDir, ".skilldock", "mirrors"), nil
}

// NewManager creates a Manager whose mirrors live under baseDir.
func NewManager(git *gitx.Client, baseDir string) *Manager {
	return &Manager{git: git, baseDir: baseDir}
}

// MirrorPath derives the mirror directory for a remote name. The name is
// reduced to its final path element so a crafted name cannot escape baseDir.
func (m *Manager) MirrorPath(remoteName string) string {
	return filepath.Join(m.baseDir, filepath.Base(remoteName))
}

// EnsureReady makes the mirror for remote exist and be as fresh as the
// network allows, returning its path.
//
// A missing mirror is cloned; clone failure is fatal since there is no local
// state worth preserving. An existing mirror is fetched and pulled against
// the current branch, then the conventional defaults. Pull failures are
// tolerated: an empty remote has no branch to pull, and stale-but-present is
// still usable.
func (m *Manager) EnsureReady(ctx context.Context, remote remotes.Remote) (string, error) {
	log := logger.G(ctx).WithField("remote", remote.Name)
	path := m.MirrorPath(remote.Name)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := os.MkdirAll(m.baseDir, 0o755); err != nil {
			return "", errors.Wrap(err, "failed to create mirror base directory")
		}

		log.WithField("url", remote.URL).Info("cloning skill repository")
		if output, err := m.git.Clone(ctx, remote.URL, path); err != nil {
			return "", errors.Wrapf(err, "failed to clone %s: %s", remote.URL, output)
		}
		return path, nil
	}

	if output, err := m.git.Fetch(ctx, path); err != nil {
		log.WithField("output", output).Warn("fetch failed, continuing with stale mirror")
	}

	pulled := false
	for _, branch := range m.pullCandidates(ctx, path) {
		output, err := m.git.Pull(ctx, path, branch)
		if err == nil {
			pulled = true
			break
		}
		if gitx.IsBranchMissing(output) {
			log.WithField("branch", branch).Debug("branch not found on remote, trying next candidate")
		} else {
			log.WithFields(map[string]interface{}{"branch": branch, "output": output}).Warn("pull failed, trying next candidate")
		}
	}
	if !pulled {
		log.Warn("no branch could be pulled, treating repository as ready")
	}

	return path, nil
}

// CurrentBranch reads the mirror's active branch, falling back to
// DefaultBranch when it cannot be determined.
func (m *Manager) CurrentBranch(ctx context.Context, path string) string {
	branch, err := m.git.CurrentBranch(ctx, path)
	if err != nil || branch == "" || branch == "HEAD" {
		return DefaultBranch
	}
	return validate.SanitizeBranch(branch, func(msg string) {
		logger.G(ctx).Warn(msg)
	})
}

// pullCandidates returns the ordered branch list to attempt pulling: the
// current local branch first, then the conventional defaults, deduplicated.
func (m *Manager) pullCandidates(ctx context.Context, path string) []string {
	candidates := []string{m.CurrentBranch(ctx, path)}
	for _, branch := range fallbackBranches {
		if branch != candidates[0] {
			candidates = append(candidates, branch)
		}
	}
	return candidates
}

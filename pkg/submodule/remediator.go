// Package submodule detects and undoes nested-repository state at a target
// path before plain files are copied there. A directory that carries its own
// .git, or that the parent index records as a gitlink, would otherwise be
// committed as a submodule reference and the actual content silently lost.
package submodule

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/skilldock/skilldock/pkg/gitx"
	"github.com/skilldock/skilldock/pkg/logger"
	"github.com/skilldock/skilldock/pkg/validate"
)

const (
	// PurgeAttempts bounds the poll-until-absent loop for metadata removal.
	PurgeAttempts = 5
	// PurgeInterval is the fixed wait between removal attempts. Deletion is
	// not guaranteed synchronously visible on all filesystems.
	PurgeInterval = 200 * time.Millisecond

	gitmodulesFile = ".gitmodules"
)

// Inspection is the transient per-target state computed before each copy.
type Inspection struct {
	// NestedGitPath is the absolute path of the target's own .git directory
	// or file, empty when none exists.
	NestedGitPath string
	// Registered reports whether the parent index carries a gitlink entry
	// for the target path.
	Registered bool
}

// Hazardous reports whether anything needs remediating.
func (i Inspection) Hazardous() bool {
	return i.NestedGitPath != "" || i.Registered
}

// Result summarizes one remediation run.
type Result struct {
	Unregistered        bool
	PurgedNestedGit     bool
	CheckpointCommitted bool

	// Notes aggregates non-fatal sub-step failures. They are logged, not
	// returned as errors: remediation keeps going past them.
	Notes error
}

// Remediator strips nested-repository state from paths inside a working copy.
type Remediator struct {
	git      *gitx.Client
	attempts uint
	interval time.Duration
}

// New creates a Remediator with the standard retry bounds.
func New(git *gitx.Client) *Remediator {
	return &Remediator{git: git, attempts: PurgeAttempts, interval: PurgeInterval}
}

// Inspect computes the current nested-repository state of relPath inside
// repoDir. It is recomputed fresh on every publish, never cached.
func (r *Remediator) Inspect(ctx context.Context, repoDir, relPath string) Inspection {
	insp := Inspection{}

	nested := filepath.Join(repoDir, relPath, ".git")
	if _, err := os.Lstat(nested); err == nil {
		insp.NestedGitPath = nested
	}

	if stageInfo, err := r.git.StageInfo(ctx, repoDir, relPath); err == nil && gitx.IsGitlink(stageInfo) {
		insp.Registered = true
	}

	return insp
}

// Remediate runs the full detect / unregister / purge / checkpoint sequence
// for relPath inside repoDir. Sub-step failures are collected as notes and
// remediation continues; only an unremovable nested .git is fatal, because
// leaving it in place guarantees the subsequent copy publishes a submodule
// link instead of content.
func (r *Remediator) Remediate(ctx context.Context, repoDir, relPath string) (*Result, error) {
	log := logger.G(ctx).WithField("path", relPath)
	result := &Result{}

	insp := r.Inspect(ctx, repoDir, relPath)
	if !insp.Hazardous() {
		return result, nil
	}
	log.Info("nested repository state detected, remediating")

	// Unregister from the parent index. Absence is not an error: rm runs
	// with --ignore-unmatch, so this is idempotent.
	if output, err := r.git.RemoveCached(ctx, repoDir, relPath, true); err != nil {
		result.Notes = multierror.Append(result.Notes, errors.Wrapf(err, "failed to unregister %s from index: %s", relPath, output))
	} else {
		result.Unregistered = true
	}

	// Purge the nested metadata itself.
	if insp.NestedGitPath != "" {
		if err := r.removeUntilAbsent(insp.NestedGitPath); err != nil {
			return result, err
		}
		result.PurgedNestedGit = true
	}

	// Parent bookkeeping: the .gitmodules section and the modules cache.
	changed, err := removeGitmodulesEntry(repoDir, relPath)
	if err != nil {
		result.Notes = multierror.Append(result.Notes, err)
	} else if changed {
		if output, err := r.git.Add(ctx, repoDir, gitmodulesFile, false); err != nil {
			result.Notes = multierror.Append(result.Notes, errors.Wrapf(err, "failed to stage %s: %s", gitmodulesFile, output))
		}
	}

	modulesCache := filepath.Join(repoDir, ".git", "modules", filepath.FromSlash(relPath))
	if _, err := os.Lstat(modulesCache); err == nil {
		if err := r.removeUntilAbsent(modulesCache); err != nil {
			result.Notes = multierror.Append(result.Notes, err)
		}
	}

	if result.Notes != nil {
		log.WithError(result.Notes).Warn("remediation sub-steps reported non-fatal failures")
	}

	// Checkpoint: the removal must be committed before new content lands at
	// the same path, or the following add can still be read as a submodule
	// update.
	status, err := r.git.StatusShort(ctx, repoDir)
	if err == nil && status != "" {
		message := fmt.Sprintf("Remove submodule state at %s", relPath)
		if output, err := r.git.Commit(ctx, repoDir, message); err != nil {
			if !gitx.IsNothingToCommit(output) {
				result.Notes = multierror.Append(result.Notes, errors.Wrapf(err, "failed to commit submodule removal: %s", output))
			}
		} else {
			result.CheckpointCommitted = true
		}
	}

	return result, nil
}

// Verify re-checks that relPath holds no nested repository state. Unlike the
// remediation sub-steps this is fatal on failure: it is the integrity gate
// before content is staged.
func (r *Remediator) Verify(ctx context.Context, repoDir, relPath string) error {
	if nested := filepath.Join(repoDir, relPath, ".git"); pathExists(nested) {
		return errors.Errorf("nested git metadata still present at %s after remediation; remove it manually with: %s", nested, manualRemoveCommand(nested))
	}

	if stageInfo, err := r.git.StageInfo(ctx, repoDir, relPath); err == nil && gitx.IsGitlink(stageInfo) {
		return errors.Errorf("%s is still registered as a submodule in the parent index", relPath)
	}

	return nil
}

// removeUntilAbsent deletes path and polls until the deletion is actually
// visible, retrying up to the configured bound. Exhaustion surfaces the
// literal path plus a command the operator can run by hand.
func (r *Remediator) removeUntilAbsent(path string) error {
	err := retry.Do(
		func() error {
			_ = os.RemoveAll(path)
			if pathExists(path) {
				return errors.Errorf("%s still present after removal", path)
			}
			return nil
		},
		retry.Attempts(r.attempts),
		retry.Delay(r.interval),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return errors.Errorf("failed to delete %s after %d attempts; remove it manually with: %s", path, r.attempts, manualRemoveCommand(path))
	}
	return nil
}

func pathExists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

func manualRemoveCommand(path string) string {
	escaped := validate.EscapeForCommand(path)
	if runtime.GOOS == "windows" {
		return fmt.Sprintf(`rmdir /s /q "%s"`, escaped)
	}
	return fmt.Sprintf(`rm -rf "%s"`, escaped)
}

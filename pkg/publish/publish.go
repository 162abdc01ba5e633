// Package publish orchestrates uploading locally installed skills into a
// remote skill repository: per skill it confirms overwrites, remediates
// nested-repository hazards, copies content into the mirror, verifies the
// result, then commits and pushes the whole batch once.
package publish

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/skilldock/skilldock/pkg/fscopy"
	"github.com/skilldock/skilldock/pkg/gitx"
	"github.com/skilldock/skilldock/pkg/logger"
	"github.com/skilldock/skilldock/pkg/remotes"
	"github.com/skilldock/skilldock/pkg/skills"
	"github.com/skilldock/skilldock/pkg/submodule"
	"github.com/skilldock/skilldock/pkg/validate"
	"github.com/skilldock/skilldock/pkg/workcopy"
)

// SkillsSubdir is where skills live inside a skill repository.
const SkillsSubdir = "skills"

// Confirmer asks the user a yes/no question. Implementations must return
// presenter.ErrInterrupted (or any error) when the prompt is interrupted
// rather than answered; an error aborts the whole publish.
type Confirmer interface {
	Confirm(prompt string) (bool, error)
}

// Options tune one publish batch.
type Options struct {
	// CommitMessage overrides the generated commit message.
	CommitMessage string
	// SkipConfirmations publishes over existing skills without prompting.
	SkipConfirmations bool
}

// Result reports what one publish batch did.
type Result struct {
	Published []string
	Skipped   []string
	Branch    string
	Committed bool
	Pushed    bool
	// NoChanges is set when the batch produced nothing new to commit. That
	// is a successful outcome, not an error.
	NoChanges bool
}

// Pipeline publishes skills to named remotes.
type Pipeline struct {
	git        *gitx.Client
	mirrors    *workcopy.Manager
	directory  *remotes.Store
	remediator *submodule.Remediator
	planner    *fscopy.Planner
	confirmer  Confirmer
}

// New creates a publish pipeline.
func New(git *gitx.Client, mirrors *workcopy.Manager, directory *remotes.Store, confirmer Confirmer) *Pipeline {
	return &Pipeline{
		git:        git,
		mirrors:    mirrors,
		directory:  directory,
		remediator: submodule.New(git),
		planner:    fscopy.NewPlanner(),
		confirmer:  confirmer,
	}
}

// Publish uploads the given skills to the named remote. Skills whose
// overwrite prompt is declined are skipped; validation failures, post-copy
// verification failures, commit failures, and push failures abort the batch.
func (p *Pipeline) Publish(ctx context.Context, toPublish []*skills.Skill, remoteName string, opts Options) (*Result, error) {
	log := logger.G(ctx).WithFields(map[string]interface{}{
		"remote": remoteName,
		"batch":  uuid.NewString(),
	})
	ctx = logger.WithLogger(ctx, log)

	if len(toPublish) == 0 {
		return nil, errors.New("no skills to publish")
	}

	// Validate every name up front: no git process runs on a bad identifier.
	for _, skill := range toPublish {
		if err := validate.CheckName(skill.Name); err != nil {
			return nil, err
		}
	}

	remote, err := p.directory.Get(remoteName)
	if err != nil {
		return nil, err
	}
	if remote == nil {
		return nil, errors.Errorf("remote '%s' is not configured; add it with 'skilldock remote add %s <url>'", remoteName, remoteName)
	}

	mirrorPath, err := p.mirrors.EnsureReady(ctx, *remote)
	if err != nil {
		return nil, err
	}

	result := &Result{}
	for _, skill := range toPublish {
		published, err := p.publishOne(ctx, skill, mirrorPath, opts)
		if err != nil {
			return nil, err
		}
		if published {
			result.Published = append(result.Published, skill.Name)
		} else {
			result.Skipped = append(result.Skipped, skill.Name)
		}
	}

	if len(result.Published) == 0 {
		log.Info("all skills skipped, nothing to commit")
		result.NoChanges = true
		return result, nil
	}

	if err := p.stageBatch(ctx, mirrorPath, result.Published); err != nil {
		return nil, err
	}

	status, err := p.git.StatusShort(ctx, mirrorPath)
	if err == nil && status == "" {
		log.Info("published content matches remote, no changes to commit")
		result.NoChanges = true
		return result, nil
	}

	if err := p.commitBatch(ctx, mirrorPath, result, opts); err != nil {
		return nil, err
	}
	if result.NoChanges {
		return result, nil
	}

	branch, err := p.pushBatch(ctx, mirrorPath)
	if err != nil {
		return nil, err
	}
	result.Pushed = true
	result.Branch = branch

	return result, nil
}

// publishOne handles a single skill through the confirm / remediate / copy /
// verify stages. It returns false when the skill was skipped by a declined
// confirmation.
func (p *Pipeline) publishOne(ctx context.Context, skill *skills.Skill, mirrorPath string, opts Options) (bool, error) {
	log := logger.G(ctx).WithField("skill", skill.Name)
	relPath := path.Join(SkillsSubdir, skill.Name)
	target := filepath.Join(mirrorPath, SkillsSubdir, skill.Name)

	_, statErr := os.Lstat(target)
	targetExists := statErr == nil

	if targetExists && !opts.SkipConfirmations {
		accepted, err := p.confirmer.Confirm(fmt.Sprintf("Skill '%s' already exists in the repository. Overwrite?", skill.Name))
		if err != nil {
			// Interrupting the prompt aborts the whole batch. Checkpoint
			// commits from earlier skills stay committed.
			return false, errors.Wrap(err, "publish aborted")
		}
		if !accepted {
			log.Info("overwrite declined, skipping skill")
			return false, nil
		}
	}

	if targetExists {
		if _, err := p.remediator.Remediate(ctx, mirrorPath, relPath); err != nil {
			return false, err
		}
		if err := os.RemoveAll(target); err != nil {
			return false, errors.Wrapf(err, "failed to clear %s", target)
		}
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return false, errors.Wrapf(err, "failed to create %s", filepath.Dir(target))
	}
	if err := p.planner.CopyTree(skill.Directory, target); err != nil {
		return false, errors.Wrapf(err, "failed to copy skill '%s'", skill.Name)
	}

	// Integrity gate, never downgraded to a skip: a published skill without
	// verified content is worse than no publish at all.
	if err := verifyTarget(target); err != nil {
		return false, err
	}

	log.Info("skill copied into mirror")
	return true, nil
}

// verifyTarget re-checks the copied tree: the entry file must exist and no
// version-control metadata may remain at any depth. This defends against
// races and anything the copy exclusion missed.
func verifyTarget(target string) error {
	if _, err := os.Stat(filepath.Join(target, skills.SkillFileName)); err != nil {
		return errors.Errorf("verification failed: %s missing at %s after copy", skills.SkillFileName, target)
	}

	var nested string
	_ = filepath.WalkDir(target, func(walked string, entry fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if entry.Name() == ".git" {
			nested = walked
			return filepath.SkipAll
		}
		return nil
	})
	if nested != "" {
		return errors.Errorf("verification failed: version-control metadata at %s after copy", nested)
	}

	return nil
}

// stageBatch re-verifies and force-stages every published skill, then runs
// one blanket stage-all pass. The re-verification is defense in depth against
// filesystem propagation delay between remediation and staging.
func (p *Pipeline) stageBatch(ctx context.Context, mirrorPath string, published []string) error {
	for _, name := range published {
		relPath := path.Join(SkillsSubdir, name)
		if err := p.remediator.Verify(ctx, mirrorPath, relPath); err != nil {
			return err
		}
		// Forced add: skill content may match an ignore pattern in the
		// repository and must be staged regardless.
		if output, err := p.git.Add(ctx, mirrorPath, relPath, true); err != nil {
			return errors.Wrapf(err, "failed to stage %s: %s", relPath, output)
		}
	}

	if output, err := p.git.AddAll(ctx, mirrorPath); err != nil {
		return errors.Wrapf(err, "failed to stage changes: %s", output)
	}
	return nil
}

func (p *Pipeline) commitBatch(ctx context.Context, mirrorPath string, result *Result, opts Options) error {
	message := opts.CommitMessage
	if message == "" {
		message = defaultCommitMessage(result.Published)
	}

	output, err := p.git.Commit(ctx, mirrorPath, message)
	if err != nil {
		if gitx.IsNothingToCommit(output) {
			result.NoChanges = true
			return nil
		}
		if gitx.IsAuthorUnset(output) {
			return errors.Errorf("commit failed: %s\nhint: configure your identity with 'git config --global user.name' and 'git config --global user.email'", output)
		}
		return errors.Errorf("commit failed: %s", output)
	}

	result.Committed = true
	return nil
}

// pushBatch pushes to the current branch first, then the conventional
// defaults. A diagnostic that just means the remote branch does not exist
// advances to the next candidate; anything else stops with a targeted hint.
func (p *Pipeline) pushBatch(ctx context.Context, mirrorPath string) (string, error) {
	if _, err := p.git.RemoteURL(ctx, mirrorPath); err != nil {
		return "", errors.New("push failed: the mirror has no 'origin' remote configured")
	}

	current := p.mirrors.CurrentBranch(ctx, mirrorPath)
	candidates := []string{current}
	for _, fallback := range []string{"main", "master"} {
		if fallback != current {
			candidates = append(candidates, fallback)
		}
	}

	var lastOutput string
	for _, branch := range candidates {
		output, err := p.git.Push(ctx, mirrorPath, branch, true)
		if err == nil {
			return branch, nil
		}
		lastOutput = output

		if gitx.IsBranchMissing(output) {
			logger.G(ctx).WithField("branch", branch).Debug("branch not present upstream, trying next candidate")
			continue
		}
		return "", errors.Errorf("push to %s failed: %s\nhint: %s", branch, output, pushHint(output))
	}

	return "", errors.Errorf("push failed on all branch candidates (%s): %s\nhint: %s",
		strings.Join(candidates, ", "), lastOutput,
		"no matching branch exists upstream; create one with 'git push --set-upstream origin "+current+"' inside the mirror")
}

func pushHint(output string) string {
	switch {
	case gitx.IsAuthFailure(output):
		return "check your credentials (SSH key or access token) and that you have write access to the repository"
	case gitx.IsMissingUpstream(output):
		return "set an upstream with 'git push --set-upstream origin <branch>' inside the mirror"
	case gitx.IsNonFastForward(output):
		return "the remote has newer commits; run 'git pull --rebase' inside the mirror and publish again"
	default:
		return "inspect the git output above and retry"
	}
}

func defaultCommitMessage(published []string) string {
	if len(published) == 1 {
		return fmt.Sprintf("Add skill %s", published[0])
	}
	return fmt.Sprintf("Add %d skills: %s", len(published), strings.Join(published, ", "))
}

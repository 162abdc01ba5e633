// Package gitx drives the external git process through a narrow command
// surface. Git is treated as a black box: every operation shells out with an
// argument array (never string interpolation), blocks until the process
// exits, and returns the combined output so callers can surface diagnostics
// verbatim.
package gitx

import (
	"context"
	"os/exec"
	"strings"
)

// CommandRunner executes one git invocation in dir and returns its combined
// stdout/stderr. Implementations other than ExecRunner exist for tests.
type CommandRunner interface {
	Run(ctx context.Context, dir string, args ...string) (string, error)
}

// ExecRunner runs git as a subprocess.
type ExecRunner struct{}

// Run executes git with the given arguments, blocking until completion.
func (ExecRunner) Run(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	output, err := cmd.CombinedOutput()
	return strings.TrimSpace(string(output)), err
}

// Client exposes the git operations the sync engine needs.
type Client struct {
	runner CommandRunner
}

// NewClient creates a Client backed by the real git binary.
func NewClient() *Client {
	return &Client{runner: ExecRunner{}}
}

// NewClientWithRunner creates a Client with a custom runner.
func NewClientWithRunner(runner CommandRunner) *Client {
	return &Client{runner: runner}
}

// Clone clones url into dest.
func (c *Client) Clone(ctx context.Context, url, dest string) (string, error) {
	return c.runner.Run(ctx, "", "clone", url, dest)
}

// CloneShallow clones a single-depth copy of url into dest, optionally at a
// specific ref. Used for install sources, where history is dead weight.
func (c *Client) CloneShallow(ctx context.Context, url, dest, ref string) (string, error) {
	args := []string{"clone", "--depth", "1"}
	if ref != "" {
		args = append(args, "--branch", ref)
	}
	args = append(args, url, dest)
	return c.runner.Run(ctx, "", args...)
}

// Fetch fetches from origin.
func (c *Client) Fetch(ctx context.Context, dir string) (string, error) {
	return c.runner.Run(ctx, dir, "fetch", "origin")
}

// Pull pulls branch from origin.
func (c *Client) Pull(ctx context.Context, dir, branch string) (string, error) {
	return c.runner.Run(ctx, dir, "pull", "origin", branch)
}

// Add stages path. force bypasses ignore rules.
func (c *Client) Add(ctx context.Context, dir, path string, force bool) (string, error) {
	args := []string{"add"}
	if force {
		args = append(args, "-f")
	}
	args = append(args, "--", path)
	return c.runner.Run(ctx, dir, args...)
}

// AddAll stages everything under dir.
func (c *Client) AddAll(ctx context.Context, dir string) (string, error) {
	return c.runner.Run(ctx, dir, "add", "-A")
}

// Commit commits staged changes with the given message.
func (c *Client) Commit(ctx context.Context, dir, message string) (string, error) {
	return c.runner.Run(ctx, dir, "commit", "-m", message)
}

// Push pushes branch to origin, optionally setting the upstream.
func (c *Client) Push(ctx context.Context, dir, branch string, setUpstream bool) (string, error) {
	args := []string{"push"}
	if setUpstream {
		args = append(args, "-u")
	}
	args = append(args, "origin", branch)
	return c.runner.Run(ctx, dir, args...)
}

// CurrentBranch returns the active branch name.
func (c *Client) CurrentBranch(ctx context.Context, dir string) (string, error) {
	return c.runner.Run(ctx, dir, "rev-parse", "--abbrev-ref", "HEAD")
}

// StatusShort returns `git status --porcelain` output; empty means clean.
func (c *Client) StatusShort(ctx context.Context, dir string) (string, error) {
	return c.runner.Run(ctx, dir, "status", "--porcelain")
}

// RemoteURL returns the URL of origin, failing when no remote is configured.
func (c *Client) RemoteURL(ctx context.Context, dir string) (string, error) {
	return c.runner.Run(ctx, dir, "remote", "get-url", "origin")
}

// ListTracked lists tracked paths under prefix.
func (c *Client) ListTracked(ctx context.Context, dir, prefix string) (string, error) {
	return c.runner.Run(ctx, dir, "ls-files", "--", prefix)
}

// StageInfo returns `ls-files --stage` output for path, which includes the
// index mode. Gitlink entries carry mode 160000.
func (c *Client) StageInfo(ctx context.Context, dir, path string) (string, error) {
	return c.runner.Run(ctx, dir, "ls-files", "--stage", "--", path)
}

// RemoveCached removes path from the index without touching the work tree.
func (c *Client) RemoveCached(ctx context.Context, dir, path string, force bool) (string, error) {
	args := []string{"rm", "--cached"}
	if force {
		args = append(args, "-f")
	}
	args = append(args, "-r", "--ignore-unmatch", "--", path)
	return c.runner.Run(ctx, dir, args...)
}

// GitlinkMode is the index mode git records for a submodule entry.
const GitlinkMode = "160000"

// IsGitlink reports whether ls-files --stage output records path as a
// submodule rather than plain tracked content.
func IsGitlink(stageInfo string) bool {
	return strings.HasPrefix(strings.TrimSpace(stageInfo), GitlinkMode+" ")
}

// IsNothingToCommit reports whether commit output means the tree was already
// clean. That outcome is informational, not an error.
func IsNothingToCommit(output string) bool {
	lower := strings.ToLower(output)
	return strings.Contains(lower, "nothing to commit") ||
		strings.Contains(lower, "no changes added to commit") ||
		strings.Contains(lower, "nothing added to commit")
}

// IsAuthorUnset reports whether commit output means user.name/user.email are
// not configured.
func IsAuthorUnset(output string) bool {
	lower := strings.ToLower(output)
	return strings.Contains(lower, "please tell me who you are") ||
		strings.Contains(lower, "empty ident name")
}

// IsBranchMissing reports whether push/pull output means the remote branch
// simply does not exist yet, which is routine for first pushes and safe to
// retry against another branch candidate.
func IsBranchMissing(output string) bool {
	lower := strings.ToLower(output)
	return strings.Contains(lower, "couldn't find remote ref") ||
		strings.Contains(lower, "could not read") ||
		strings.Contains(lower, "no such ref") ||
		strings.Contains(lower, "does not match any") ||
		strings.Contains(lower, "src refspec")
}

// IsAuthFailure reports whether output indicates a credential problem.
func IsAuthFailure(output string) bool {
	lower := strings.ToLower(output)
	return strings.Contains(lower, "authentication failed") ||
		strings.Contains(lower, "permission denied") ||
		strings.Contains(lower, "403")
}

// IsNonFastForward reports whether push output indicates the remote has
// commits the local mirror lacks.
func IsNonFastForward(output string) bool {
	lower := strings.ToLower(output)
	return strings.Contains(lower, "non-fast-forward") ||
		strings.Contains(lower, "fetch first") ||
		strings.Contains(lower, "failed to push some refs")
}

// IsMissingUpstream reports whether push output indicates no upstream is
// configured for the branch.
func IsMissingUpstream(output string) bool {
	lower := strings.ToLower(output)
	return strings.Contains(lower, "no upstream") ||
		strings.Contains(lower, "set-upstream")
}

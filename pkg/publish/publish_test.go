package publish

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skilldock/skilldock/pkg/gitx"
	"github.com/skilldock/skilldock/pkg/presenter"
	"github.com/skilldock/skilldock/pkg/remotes"
	"github.com/skilldock/skilldock/pkg/skills"
	"github.com/skilldock/skilldock/pkg/workcopy"
)

// scriptRunner replays canned git responses. Each prefix maps to a sequence
// consumed call by call; the last response repeats once the sequence is
// exhausted. Unmatched calls succeed with empty output.
type scriptRunner struct {
	responses map[string][]scriptResponse
	consumed  map[string]int
	calls     []string
}

type scriptResponse struct {
	output string
	err    error
}

func newScriptRunner(responses map[string][]scriptResponse) *scriptRunner {
	return &scriptRunner{responses: responses, consumed: make(map[string]int)}
}

func (r *scriptRunner) Run(_ context.Context, _ string, args ...string) (string, error) {
	call := strings.Join(args, " ")
	r.calls = append(r.calls, call)
	for prefix, seq := range r.responses {
		if strings.HasPrefix(call, prefix) {
			i := r.consumed[prefix]
			if i >= len(seq) {
				i = len(seq) - 1
			} else {
				r.consumed[prefix]++
			}
			return seq[i].output, seq[i].err
		}
	}
	return "", nil
}

func (r *scriptRunner) countWithPrefix(prefix string) int {
	n := 0
	for _, call := range r.calls {
		if strings.HasPrefix(call, prefix) {
			n++
		}
	}
	return n
}

type funcConfirmer func(prompt string) (bool, error)

func (f funcConfirmer) Confirm(prompt string) (bool, error) { return f(prompt) }

func acceptAll(string) (bool, error)  { return true, nil }
func declineAll(string) (bool, error) { return false, nil }

type fixture struct {
	pipeline   *Pipeline
	runner     *scriptRunner
	mirrorBase string
	mirror     string
}

func newFixture(t *testing.T, runner *scriptRunner, confirm funcConfirmer) *fixture {
	t.Helper()

	store := remotes.NewStore(filepath.Join(t.TempDir(), "remotes.yaml"))
	require.NoError(t, store.Add("team", "https://host/skills.git"))

	git := gitx.NewClientWithRunner(runner)
	mirrorBase := t.TempDir()
	mirrors := workcopy.NewManager(git, mirrorBase)

	return &fixture{
		pipeline:   New(git, mirrors, store, confirm),
		runner:     runner,
		mirrorBase: mirrorBase,
		mirror:     filepath.Join(mirrorBase, "team"),
	}
}

func makeSkill(t *testing.T, name, description string) *skills.Skill {
	t.Helper()
	dir := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	content := fmt.Sprintf("---\nname: %s\ndescription: %s\n---\n\n# %s\n", name, description, name)
	require.NoError(t, os.WriteFile(filepath.Join(dir, skills.SkillFileName), []byte(content), 0o644))
	return &skills.Skill{Name: name, Description: description, Directory: dir}
}

func TestPublishToFreshRemote(t *testing.T) {
	// Scenario: single unseen skill, remote never cloned before. The mirror
	// is cloned, skills/demo lands in it, one commit, one push, no fallback.
	runner := newScriptRunner(map[string][]scriptResponse{
		"status": {{output: "A  skills/demo"}},
	})
	f := newFixture(t, runner, acceptAll)

	result, err := f.pipeline.Publish(context.Background(), []*skills.Skill{makeSkill(t, "demo", "a demo skill")}, "team", Options{})
	require.NoError(t, err)

	assert.Equal(t, []string{"demo"}, result.Published)
	assert.Empty(t, result.Skipped)
	assert.True(t, result.Committed)
	assert.True(t, result.Pushed)
	assert.Equal(t, "main", result.Branch)
	assert.False(t, result.NoChanges)

	assert.Contains(t, runner.calls, "clone https://host/skills.git "+f.mirror)
	assert.Contains(t, runner.calls, "add -f -- skills/demo")
	assert.Contains(t, runner.calls, "add -A")
	assert.Contains(t, runner.calls, "commit -m Add skill demo")
	assert.Contains(t, runner.calls, "push -u origin main")
	assert.Equal(t, 1, runner.countWithPrefix("push"), "no branch fallback needed")

	assert.FileExists(t, filepath.Join(f.mirror, "skills", "demo", skills.SkillFileName))
}

func TestPublishUnchangedSkillReportsNoChanges(t *testing.T) {
	runner := newScriptRunner(map[string][]scriptResponse{
		"status": {{output: ""}},
	})
	f := newFixture(t, runner, acceptAll)
	require.NoError(t, os.MkdirAll(f.mirror, 0o755))

	result, err := f.pipeline.Publish(context.Background(), []*skills.Skill{makeSkill(t, "demo", "a demo skill")}, "team", Options{SkipConfirmations: true})
	require.NoError(t, err)

	assert.True(t, result.NoChanges)
	assert.False(t, result.Committed)
	assert.False(t, result.Pushed)
	assert.Zero(t, runner.countWithPrefix("commit"))
	assert.Zero(t, runner.countWithPrefix("push"))
}

func TestPublishRemediatesRegisteredSubmodule(t *testing.T) {
	// Scenario: skills/demo already exists in the mirror as a registered
	// submodule. Remediation unregisters it, purges the nested metadata,
	// commits the removal, and only then copies and commits new content.
	gitlink := "160000 a94a8fe5ccb19ba61c4c0873d391e987982fbbd3 0\tskills/demo"
	runner := newScriptRunner(map[string][]scriptResponse{
		// First query during remediation sees the gitlink; the
		// re-verification before staging must see it gone.
		"ls-files --stage": {{output: gitlink}, {output: ""}},
		"status":           {{output: "D  skills/demo"}},
	})
	f := newFixture(t, runner, acceptAll)

	target := filepath.Join(f.mirror, "skills", "demo")
	require.NoError(t, os.MkdirAll(filepath.Join(target, ".git"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(f.mirror, ".gitmodules"),
		[]byte("[submodule \"demo\"]\n\tpath = skills/demo\n\turl = https://host/demo.git\n"), 0o644))

	result, err := f.pipeline.Publish(context.Background(), []*skills.Skill{makeSkill(t, "demo", "fresh content")}, "team", Options{SkipConfirmations: true})
	require.NoError(t, err)

	assert.Equal(t, []string{"demo"}, result.Published)
	assert.True(t, result.Committed)
	assert.True(t, result.Pushed)

	assert.GreaterOrEqual(t, runner.countWithPrefix("rm --cached -f -r --ignore-unmatch -- skills/demo"), 1)
	assert.Contains(t, runner.calls, "commit -m Remove submodule state at skills/demo")
	assert.Contains(t, runner.calls, "commit -m Add skill demo")

	// The removal checkpoint precedes the content commit.
	removalIdx, contentIdx := -1, -1
	for i, call := range runner.calls {
		switch call {
		case "commit -m Remove submodule state at skills/demo":
			removalIdx = i
		case "commit -m Add skill demo":
			contentIdx = i
		}
	}
	assert.Less(t, removalIdx, contentIdx)

	assert.NoDirExists(t, filepath.Join(target, ".git"))
	assert.NoFileExists(t, filepath.Join(f.mirror, ".gitmodules"))
	assert.FileExists(t, filepath.Join(target, skills.SkillFileName))
}

func TestPublishPushFallbackExhausted(t *testing.T) {
	// Scenario: neither the current branch nor either conventional default
	// exists upstream. Every attempt fails with "could not read"; the
	// publish is fatal with the missing-upstream hint.
	runner := newScriptRunner(map[string][]scriptResponse{
		"rev-parse": {{output: "develop"}},
		"status":    {{output: "A  skills/demo"}},
		"push":      {{output: "fatal: could not read from remote repository", err: errors.New("exit status 128")}},
	})
	f := newFixture(t, runner, acceptAll)
	require.NoError(t, os.MkdirAll(f.mirror, 0o755))

	_, err := f.pipeline.Publish(context.Background(), []*skills.Skill{makeSkill(t, "demo", "a demo skill")}, "team", Options{SkipConfirmations: true})
	require.Error(t, err)

	assert.Equal(t, 3, runner.countWithPrefix("push"))
	assert.Contains(t, runner.calls, "push -u origin develop")
	assert.Contains(t, runner.calls, "push -u origin main")
	assert.Contains(t, runner.calls, "push -u origin master")

	// The captured diagnostic and a set-upstream hint both surface.
	assert.ErrorContains(t, err, "could not read")
	assert.ErrorContains(t, err, "--set-upstream")
}

func TestPublishPushAuthFailureStopsFallback(t *testing.T) {
	runner := newScriptRunner(map[string][]scriptResponse{
		"status": {{output: "A  skills/demo"}},
		"push":   {{output: "remote: Authentication failed", err: errors.New("exit status 128")}},
	})
	f := newFixture(t, runner, acceptAll)
	require.NoError(t, os.MkdirAll(f.mirror, 0o755))

	_, err := f.pipeline.Publish(context.Background(), []*skills.Skill{makeSkill(t, "demo", "a demo skill")}, "team", Options{SkipConfirmations: true})
	require.Error(t, err)

	// Auth failures are not "branch missing": no further candidates tried.
	assert.Equal(t, 1, runner.countWithPrefix("push"))
	assert.ErrorContains(t, err, "Authentication failed")
	assert.ErrorContains(t, err, "credentials")
}

func TestPublishDeclinedOverwriteSkipsOnlyThatSkill(t *testing.T) {
	runner := newScriptRunner(map[string][]scriptResponse{
		"status": {{output: "A  skills/fresh"}},
	})

	declined := 0
	confirm := funcConfirmer(func(prompt string) (bool, error) {
		declined++
		return false, nil
	})
	f := newFixture(t, runner, confirm)

	existing := makeSkill(t, "existing", "already there")
	fresh := makeSkill(t, "fresh", "new one")
	require.NoError(t, os.MkdirAll(filepath.Join(f.mirror, "skills", "existing"), 0o755))

	result, err := f.pipeline.Publish(context.Background(), []*skills.Skill{existing, fresh}, "team", Options{})
	require.NoError(t, err)

	assert.Equal(t, 1, declined, "only the existing skill prompts")
	assert.Equal(t, []string{"existing"}, result.Skipped)
	assert.Equal(t, []string{"fresh"}, result.Published)
	assert.True(t, result.Committed)
	assert.Contains(t, runner.calls, "commit -m Add skill fresh")
}

func TestPublishInterruptedConfirmationAbortsBatch(t *testing.T) {
	runner := newScriptRunner(nil)
	confirm := funcConfirmer(func(string) (bool, error) {
		return false, presenter.ErrInterrupted
	})
	f := newFixture(t, runner, confirm)

	existing := makeSkill(t, "existing", "already there")
	never := makeSkill(t, "never", "should not publish")
	require.NoError(t, os.MkdirAll(filepath.Join(f.mirror, "skills", "existing"), 0o755))

	_, err := f.pipeline.Publish(context.Background(), []*skills.Skill{existing, never}, "team", Options{})
	require.Error(t, err)
	assert.ErrorIs(t, errors.Cause(err), presenter.ErrInterrupted)

	assert.Zero(t, runner.countWithPrefix("commit"))
	assert.NoDirExists(t, filepath.Join(f.mirror, "skills", "never"))
}

func TestPublishInvalidNameAbortsBeforeGit(t *testing.T) {
	runner := newScriptRunner(nil)
	f := newFixture(t, runner, acceptAll)

	bad := &skills.Skill{Name: "bad;name", Directory: t.TempDir()}
	_, err := f.pipeline.Publish(context.Background(), []*skills.Skill{bad}, "team", Options{})
	require.Error(t, err)
	assert.ErrorContains(t, err, "invalid name")
	assert.Empty(t, runner.calls, "no git process runs on a bad identifier")
}

func TestPublishUnknownRemote(t *testing.T) {
	runner := newScriptRunner(nil)
	f := newFixture(t, runner, acceptAll)

	_, err := f.pipeline.Publish(context.Background(), []*skills.Skill{makeSkill(t, "demo", "d")}, "nowhere", Options{})
	require.Error(t, err)
	assert.ErrorContains(t, err, "not configured")
	assert.ErrorContains(t, err, "skilldock remote add")
}

func TestPublishCommitReclassifiesNothingToCommit(t *testing.T) {
	runner := newScriptRunner(map[string][]scriptResponse{
		"status": {{output: "?? stray-file"}},
		"commit": {{output: "On branch main\nnothing to commit, working tree clean", err: errors.New("exit status 1")}},
	})
	f := newFixture(t, runner, acceptAll)
	require.NoError(t, os.MkdirAll(f.mirror, 0o755))

	result, err := f.pipeline.Publish(context.Background(), []*skills.Skill{makeSkill(t, "demo", "a demo skill")}, "team", Options{SkipConfirmations: true})
	require.NoError(t, err)

	assert.True(t, result.NoChanges)
	assert.False(t, result.Committed)
	assert.Zero(t, runner.countWithPrefix("push"))
}

func TestPublishCommitAuthorUnset(t *testing.T) {
	runner := newScriptRunner(map[string][]scriptResponse{
		"status": {{output: "A  skills/demo"}},
		"commit": {{output: "*** Please tell me who you are.", err: errors.New("exit status 128")}},
	})
	f := newFixture(t, runner, acceptAll)
	require.NoError(t, os.MkdirAll(f.mirror, 0o755))

	_, err := f.pipeline.Publish(context.Background(), []*skills.Skill{makeSkill(t, "demo", "a demo skill")}, "team", Options{SkipConfirmations: true})
	require.Error(t, err)
	assert.ErrorContains(t, err, "user.name")
}

func TestPublishCustomCommitMessage(t *testing.T) {
	runner := newScriptRunner(map[string][]scriptResponse{
		"status": {{output: "A  skills/demo"}},
	})
	f := newFixture(t, runner, acceptAll)
	require.NoError(t, os.MkdirAll(f.mirror, 0o755))

	_, err := f.pipeline.Publish(context.Background(), []*skills.Skill{makeSkill(t, "demo", "a demo skill")}, "team",
		Options{SkipConfirmations: true, CommitMessage: "Ship the demo skill"})
	require.NoError(t, err)

	assert.Contains(t, runner.calls, "commit -m Ship the demo skill")
}

func TestDefaultCommitMessage(t *testing.T) {
	assert.Equal(t, "Add skill demo", defaultCommitMessage([]string{"demo"}))
	assert.Equal(t, "Add 2 skills: a, b", defaultCommitMessage([]string{"a", "b"}))
}

func TestVerifyTarget(t *testing.T) {
	t.Run("entry file missing", func(t *testing.T) {
		target := t.TempDir()
		err := verifyTarget(target)
		assert.ErrorContains(t, err, skills.SkillFileName)
	})

	t.Run("nested metadata detected at depth", func(t *testing.T) {
		target := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(target, skills.SkillFileName), []byte("entry"), 0o644))
		require.NoError(t, os.MkdirAll(filepath.Join(target, "vendor", "dep", ".git"), 0o755))

		err := verifyTarget(target)
		assert.ErrorContains(t, err, "version-control metadata")
	})

	t.Run("clean target", func(t *testing.T) {
		target := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(target, skills.SkillFileName), []byte("entry"), 0o644))
		assert.NoError(t, verifyTarget(target))
	})
}

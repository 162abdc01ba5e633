package install

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skilldock/skilldock/pkg/gitx"
	"github.com/skilldock/skilldock/pkg/presenter"
	"github.com/skilldock/skilldock/pkg/skills"
)

type recordingRunner struct {
	calls [][]string
}

func (r *recordingRunner) Run(_ context.Context, _ string, args ...string) (string, error) {
	r.calls = append(r.calls, args)
	return "", nil
}

type funcConfirmer func(prompt string) (bool, error)

func (f funcConfirmer) Confirm(prompt string) (bool, error) { return f(prompt) }

func acceptAll(string) (bool, error) { return true, nil }

func writeSkill(t *testing.T, dir, name string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	content := fmt.Sprintf("---\nname: %s\ndescription: a %s skill\n---\n\nBody.\n", name, name)
	require.NoError(t, os.WriteFile(filepath.Join(dir, skills.SkillFileName), []byte(content), 0o644))
}

func TestInstallFromLocalDirectory(t *testing.T) {
	source := t.TempDir()
	writeSkill(t, filepath.Join(source, "alpha"), "alpha")
	writeSkill(t, filepath.Join(source, "beta"), "beta")

	destRoot := filepath.Join(t.TempDir(), "skills")
	runner := &recordingRunner{}
	installer := New(gitx.NewClientWithRunner(runner), funcConfirmer(acceptAll), WithDestRoot(destRoot))

	result, err := installer.Install(context.Background(), source)
	require.NoError(t, err)

	assert.Equal(t, []string{"alpha", "beta"}, result.Installed)
	assert.Empty(t, result.Skipped)
	assert.FileExists(t, filepath.Join(destRoot, "alpha", skills.SkillFileName))
	assert.FileExists(t, filepath.Join(destRoot, "beta", skills.SkillFileName))
	assert.Empty(t, runner.calls, "local sources never touch git")
}

func TestInstallStripsVCSMetadata(t *testing.T) {
	source := t.TempDir()
	skillDir := filepath.Join(source, "alpha")
	writeSkill(t, skillDir, "alpha")
	require.NoError(t, os.MkdirAll(filepath.Join(skillDir, ".git"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(skillDir, ".gitignore"), []byte("*.tmp\n"), 0o644))

	destRoot := filepath.Join(t.TempDir(), "skills")
	installer := New(gitx.NewClientWithRunner(&recordingRunner{}), funcConfirmer(acceptAll), WithDestRoot(destRoot))

	_, err := installer.Install(context.Background(), source)
	require.NoError(t, err)

	assert.NoDirExists(t, filepath.Join(destRoot, "alpha", ".git"))
	assert.NoFileExists(t, filepath.Join(destRoot, "alpha", ".gitignore"))
}

func TestInstallDereferencesSymlinks(t *testing.T) {
	base := t.TempDir()
	source := filepath.Join(base, "source")
	outside := filepath.Join(base, "outside")
	writeSkill(t, filepath.Join(source, "alpha"), "alpha")
	require.NoError(t, os.MkdirAll(outside, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(outside, "data.txt"), []byte("payload"), 0o644))
	require.NoError(t, os.Symlink(outside, filepath.Join(source, "alpha", "resources")))

	destRoot := filepath.Join(base, "dest")
	installer := New(gitx.NewClientWithRunner(&recordingRunner{}), funcConfirmer(acceptAll), WithDestRoot(destRoot))

	_, err := installer.Install(context.Background(), source)
	require.NoError(t, err)

	installed, err := os.Lstat(filepath.Join(destRoot, "alpha", "resources"))
	require.NoError(t, err)
	assert.Zero(t, installed.Mode()&os.ModeSymlink)
	assert.FileExists(t, filepath.Join(destRoot, "alpha", "resources", "data.txt"))
}

func TestInstallOverwritePrompt(t *testing.T) {
	source := t.TempDir()
	writeSkill(t, filepath.Join(source, "alpha"), "alpha")

	destRoot := filepath.Join(t.TempDir(), "skills")
	writeSkill(t, filepath.Join(destRoot, "alpha"), "alpha")
	require.NoError(t, os.WriteFile(filepath.Join(destRoot, "alpha", "old.txt"), []byte("old"), 0o644))

	t.Run("declined skips the skill", func(t *testing.T) {
		installer := New(gitx.NewClientWithRunner(&recordingRunner{}),
			funcConfirmer(func(string) (bool, error) { return false, nil }),
			WithDestRoot(destRoot))

		result, err := installer.Install(context.Background(), source)
		require.NoError(t, err)
		assert.Equal(t, []string{"alpha"}, result.Skipped)
		assert.FileExists(t, filepath.Join(destRoot, "alpha", "old.txt"))
	})

	t.Run("interrupt aborts", func(t *testing.T) {
		installer := New(gitx.NewClientWithRunner(&recordingRunner{}),
			funcConfirmer(func(string) (bool, error) { return false, presenter.ErrInterrupted }),
			WithDestRoot(destRoot))

		_, err := installer.Install(context.Background(), source)
		assert.ErrorIs(t, err, presenter.ErrInterrupted)
	})

	t.Run("accepted replaces prior content", func(t *testing.T) {
		installer := New(gitx.NewClientWithRunner(&recordingRunner{}), funcConfirmer(acceptAll), WithDestRoot(destRoot))

		result, err := installer.Install(context.Background(), source)
		require.NoError(t, err)
		assert.Equal(t, []string{"alpha"}, result.Installed)
		assert.NoFileExists(t, filepath.Join(destRoot, "alpha", "old.txt"))
	})

	t.Run("auto confirm never prompts", func(t *testing.T) {
		writeSkill(t, filepath.Join(destRoot, "alpha"), "alpha")
		installer := New(gitx.NewClientWithRunner(&recordingRunner{}),
			funcConfirmer(func(string) (bool, error) {
				t.Fatal("prompt must not fire with auto-confirm")
				return false, nil
			}),
			WithDestRoot(destRoot), WithAutoConfirm(true))

		_, err := installer.Install(context.Background(), source)
		require.NoError(t, err)
	})
}

func TestInstallNoSkillsFound(t *testing.T) {
	source := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(source, "README.md"), []byte("empty"), 0o644))

	installer := New(gitx.NewClientWithRunner(&recordingRunner{}), funcConfirmer(acceptAll),
		WithDestRoot(filepath.Join(t.TempDir(), "skills")))

	_, err := installer.Install(context.Background(), source)
	assert.ErrorContains(t, err, "no skills found")
}

func TestInstallRemoteSourceClonesShallow(t *testing.T) {
	// The clone lands in a temp dir the fake runner does not populate, so
	// discovery finds nothing; the clone invocation itself is the subject.
	runner := &recordingRunner{}
	installer := New(gitx.NewClientWithRunner(runner), funcConfirmer(acceptAll),
		WithDestRoot(filepath.Join(t.TempDir(), "skills")))

	_, err := installer.Install(context.Background(), "acme/skills@v1.2.0")
	require.Error(t, err)

	require.Len(t, runner.calls, 1)
	args := runner.calls[0]
	assert.Equal(t, "clone", args[0])
	assert.Contains(t, args, "--depth")
	assert.Contains(t, args, "--branch")
	assert.Contains(t, args, "v1.2.0")
	assert.Contains(t, args, "https://github.com/acme/skills.git")
}

func TestInstallUnresolvableSource(t *testing.T) {
	installer := New(gitx.NewClientWithRunner(&recordingRunner{}), funcConfirmer(acceptAll),
		WithDestRoot(filepath.Join(t.TempDir(), "skills")))

	_, err := installer.Install(context.Background(), "just-one-word")
	assert.ErrorContains(t, err, "cannot resolve source")
}

func TestParseSource(t *testing.T) {
	tests := []struct {
		name    string
		source  string
		url     string
		subpath string
		ref     string
		ok      bool
	}{
		{"https url", "https://host/org/skills.git", "https://host/org/skills.git", "", "", true},
		{"scp url keeps its at sign", "git@github.com:org/skills.git", "git@github.com:org/skills.git", "", "", true},
		{"shorthand", "acme/skills", "https://github.com/acme/skills.git", "", "", true},
		{"shorthand with subpath", "acme/skills/tools/pdf", "https://github.com/acme/skills.git", "tools/pdf", "", true},
		{"shorthand with ref", "acme/skills@main", "https://github.com/acme/skills.git", "", "main", true},
		{"shorthand with subpath and ref", "acme/skills/tools@v2", "https://github.com/acme/skills.git", "tools", "v2", true},
		{"bare word", "skills", "", "", "", false},
		{"empty owner", "/skills", "", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			url, subpath, ref, ok := parseSource(tt.source)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.url, url)
				assert.Equal(t, tt.subpath, subpath)
				assert.Equal(t, tt.ref, ref)
			}
		})
	}
}

func TestEnsureWithin(t *testing.T) {
	root := filepath.Join("/skills", "root")

	assert.NoError(t, ensureWithin(root, filepath.Join(root, "alpha")))
	assert.NoError(t, ensureWithin(root, filepath.Join(root, "nested", "deep")))

	err := ensureWithin(root, filepath.Join(root, "..", "escape"))
	assert.ErrorContains(t, err, "outside")

	err = ensureWithin(root, "/etc/passwd")
	assert.ErrorContains(t, err, "outside")
}

func TestInstallSubpathEscapeRejected(t *testing.T) {
	source := t.TempDir()
	writeSkill(t, filepath.Join(source, "alpha"), "alpha")

	installer := New(gitx.NewClientWithRunner(&recordingRunner{}), funcConfirmer(acceptAll),
		WithDestRoot(filepath.Join(t.TempDir(), "skills")),
		WithSubpath(strings.Join([]string{"..", "..", "etc"}, "/")))

	_, err := installer.Install(context.Background(), source)
	assert.ErrorContains(t, err, "outside")
}

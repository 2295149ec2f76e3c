package worktree

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mjankowski/autodev/internal/faults"
)

func gitOrSkip(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
}

func git(t *testing.T, dir string, args ...string) string {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, "git %v: %s", args, out)
	return strings.TrimSpace(string(out))
}

// setupRepo creates a repo with one commit on main and a bare origin
func setupRepo(t *testing.T) (repo string, g *Git) {
	t.Helper()
	gitOrSkip(t)

	base := t.TempDir()
	repo = filepath.Join(base, "repo")
	origin := filepath.Join(base, "origin.git")
	require.NoError(t, os.MkdirAll(repo, 0755))

	git(t, base, "init", "--bare", origin)
	git(t, base, "-c", "init.defaultBranch=main", "init", repo)
	git(t, repo, "config", "user.email", "dev@example.com")
	git(t, repo, "config", "user.name", "dev")
	require.NoError(t, os.WriteFile(filepath.Join(repo, "README.md"), []byte("hello\n"), 0644))
	git(t, repo, "add", "-A")
	git(t, repo, "commit", "-m", "initial commit")
	git(t, repo, "remote", "add", "origin", origin)
	git(t, repo, "push", "-u", "origin", "main")

	var err error
	g, err = NewGit(context.Background(), repo, filepath.Join(repo, ".worktrees"), "main")
	require.NoError(t, err)
	return repo, g
}

func TestNewGitRequiresRepository(t *testing.T) {
	gitOrSkip(t)

	_, err := NewGit(context.Background(), t.TempDir(), ".worktrees", "main")
	require.Error(t, err)
	assert.Equal(t, faults.KindFatal, faults.Classify(err))
}

func TestCreateListRemove(t *testing.T) {
	repo, g := setupRepo(t)
	ctx := context.Background()

	path := filepath.Join(repo, ".worktrees", "T-1")
	h, err := g.Create(ctx, "autodev/T-1", path)
	require.NoError(t, err)
	assert.Equal(t, "autodev/T-1", h.Branch)
	assert.DirExists(t, h.Path)
	assert.Equal(t, "autodev/T-1", git(t, h.Path, "rev-parse", "--abbrev-ref", "HEAD"))

	// A second worktree at the same path is refused
	_, err = g.Create(ctx, "autodev/T-1", path)
	require.Error(t, err)
	assert.Equal(t, faults.KindTicketScoped, faults.Classify(err))

	handles, err := g.List(ctx)
	require.NoError(t, err)
	require.Len(t, handles, 1)
	assert.Equal(t, "autodev/T-1", handles[0].Branch)

	require.NoError(t, g.Remove(ctx, h))
	assert.NoDirExists(t, h.Path)

	handles, err = g.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, handles)
}

func TestCreateAttachesExistingBranch(t *testing.T) {
	repo, g := setupRepo(t)
	ctx := context.Background()

	git(t, repo, "branch", "autodev/T-2")

	h, err := g.Create(ctx, "autodev/T-2", filepath.Join(repo, ".worktrees", "T-2"))
	require.NoError(t, err)
	assert.Equal(t, "autodev/T-2", git(t, h.Path, "rev-parse", "--abbrev-ref", "HEAD"))
}

func TestListIgnoresMainCheckout(t *testing.T) {
	_, g := setupRepo(t)

	handles, err := g.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, handles)
}

func TestCommitAndPush(t *testing.T) {
	repo, g := setupRepo(t)
	ctx := context.Background()

	h, err := g.Create(ctx, "autodev/T-3", filepath.Join(repo, ".worktrees", "T-3"))
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(h.Path, "feature.go"), []byte("package feature\n"), 0644))
	require.NoError(t, g.CommitAndPush(ctx, h, "T-3: add feature"))

	assert.Contains(t, git(t, h.Path, "log", "-1", "--pretty=%s"), "T-3: add feature")
	assert.NotEmpty(t, git(t, repo, "ls-remote", "origin", "refs/heads/autodev/T-3"))

	// A clean tree still republishes the branch without a new commit
	before := git(t, h.Path, "rev-parse", "HEAD")
	require.NoError(t, g.CommitAndPush(ctx, h, "T-3: no changes"))
	assert.Equal(t, before, git(t, h.Path, "rev-parse", "HEAD"))
}

func TestCommitAndPushRequiresMessage(t *testing.T) {
	repo, g := setupRepo(t)
	ctx := context.Background()

	h, err := g.Create(ctx, "autodev/T-4", filepath.Join(repo, ".worktrees", "T-4"))
	require.NoError(t, err)

	err = g.CommitAndPush(ctx, h, "")
	require.Error(t, err)
	assert.Equal(t, faults.KindTicketScoped, faults.Classify(err))
}

func TestRebaseOnMainClean(t *testing.T) {
	repo, g := setupRepo(t)
	ctx := context.Background()

	h, err := g.Create(ctx, "autodev/T-5", filepath.Join(repo, ".worktrees", "T-5"))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(h.Path, "feature.go"), []byte("package feature\n"), 0644))
	require.NoError(t, g.CommitAndPush(ctx, h, "T-5: add feature"))

	// main moves forward in a file the branch never touched
	require.NoError(t, os.WriteFile(filepath.Join(repo, "other.txt"), []byte("unrelated\n"), 0644))
	git(t, repo, "add", "-A")
	git(t, repo, "commit", "-m", "unrelated change")
	git(t, repo, "push", "origin", "main")

	result, err := g.RebaseOnMain(ctx, h)
	require.NoError(t, err)
	assert.True(t, result.Clean)
	assert.Empty(t, result.ConflictFiles)
}

func TestRebaseOnMainConflict(t *testing.T) {
	repo, g := setupRepo(t)
	ctx := context.Background()

	h, err := g.Create(ctx, "autodev/T-6", filepath.Join(repo, ".worktrees", "T-6"))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(h.Path, "README.md"), []byte("branch version\n"), 0644))
	require.NoError(t, g.CommitAndPush(ctx, h, "T-6: rewrite readme"))

	// main rewrites the same file
	require.NoError(t, os.WriteFile(filepath.Join(repo, "README.md"), []byte("main version\n"), 0644))
	git(t, repo, "add", "-A")
	git(t, repo, "commit", "-m", "conflicting change")
	git(t, repo, "push", "origin", "main")

	result, err := g.RebaseOnMain(ctx, h)
	require.NoError(t, err)
	assert.False(t, result.Clean)
	assert.Contains(t, result.ConflictFiles, "README.md")

	// The abort left the worktree usable
	assert.Equal(t, "autodev/T-6", git(t, h.Path, "rev-parse", "--abbrev-ref", "HEAD"))
	assert.Empty(t, git(t, h.Path, "status", "--porcelain"))
}

// Package worktree implements the Worktree Manager (spec.md §4.2): atomic
// creation and destruction of per-task git worktrees off a configured base
// repository, with startup reconciliation of orphaned directories and a
// fsnotify watch that keeps reconciliation live without polling.
package worktree

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/agentkit-run/agentkit/internal/core"
)

// gitClient wraps the git CLI the same way quorum's adapters/git.Client
// does: resolve the binary once, shell out with exec.CommandContext (never
// a shell, so no interpolation risk), validate user-controlled arguments
// before they reach git.
type gitClient struct {
	repoPath string
	gitPath  string
	timeout  time.Duration
}

func newGitClient(repoPath string) (*gitClient, error) {
	abs, err := filepath.Abs(repoPath)
	if err != nil {
		return nil, fmt.Errorf("resolving repo path: %w", err)
	}
	gitPath, err := resolveGitBinaryPath(abs)
	if err != nil {
		return nil, err
	}
	c := &gitClient{repoPath: abs, gitPath: gitPath, timeout: 30 * time.Second}
	if _, err := c.run(context.Background(), "rev-parse", "--git-dir"); err != nil {
		return nil, core.ErrValidation(core.CodeInvalidWorkspace, abs+" is not a git repository")
	}
	return c, nil
}

func (c *gitClient) run(ctx context.Context, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, c.gitPath, args...)
	cmd.Dir = c.repoPath

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", core.ErrTimeout("git command timed out: " + strings.Join(args, " "))
		}
		return "", core.ErrExecution("GIT_COMMAND_FAILED", fmt.Sprintf("git %s: %s", strings.Join(args, " "), stderr.String())).WithCause(err)
	}
	return strings.TrimSpace(stdout.String()), nil
}

func (c *gitClient) branchExists(ctx context.Context, name string) (bool, error) {
	out, err := c.run(ctx, "branch", "--list", "--format=%(refname:short)")
	if err != nil {
		return false, err
	}
	for _, line := range strings.Split(out, "\n") {
		if strings.TrimSpace(line) == name {
			return true, nil
		}
	}
	return false, nil
}

// addWorktree creates a worktree at path on branch, creating the branch
// from baseBranch if it does not already exist.
func (c *gitClient) addWorktree(ctx context.Context, path, branch, baseBranch string) error {
	exists, err := c.branchExists(ctx, branch)
	if err != nil {
		return err
	}
	var args []string
	if exists {
		args = []string{"worktree", "add", path, branch}
	} else {
		if ok, err := c.branchExists(ctx, baseBranch); err != nil {
			return err
		} else if !ok {
			if _, err := c.run(ctx, "rev-parse", "--verify", baseBranch); err != nil {
				return core.ErrState(core.CodeBaseMissing, "base branch not resolvable: "+baseBranch)
			}
		}
		args = []string{"worktree", "add", "-b", branch, path, baseBranch}
	}
	_, err = c.run(ctx, args...)
	return err
}

func (c *gitClient) removeWorktree(ctx context.Context, path string, force bool) error {
	args := []string{"worktree", "remove"}
	if force {
		args = append(args, "--force")
	}
	args = append(args, path)
	_, err := c.run(ctx, args...)
	return err
}

func (c *gitClient) deleteBranch(ctx context.Context, name string, force bool) error {
	flag := "-d"
	if force {
		flag = "-D"
	}
	_, err := c.run(ctx, "branch", flag, name)
	return err
}

// porcelainWorktree mirrors one stanza of `git worktree list --porcelain`.
type porcelainWorktree struct {
	Path   string
	Branch string
	Commit string
}

func (c *gitClient) listWorktrees(ctx context.Context) ([]porcelainWorktree, error) {
	out, err := c.run(ctx, "worktree", "list", "--porcelain")
	if err != nil {
		return nil, err
	}
	var result []porcelainWorktree
	var cur *porcelainWorktree
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "worktree "):
			if cur != nil {
				result = append(result, *cur)
			}
			cur = &porcelainWorktree{Path: strings.TrimPrefix(line, "worktree ")}
		case cur != nil && strings.HasPrefix(line, "HEAD "):
			cur.Commit = strings.TrimPrefix(line, "HEAD ")
		case cur != nil && strings.HasPrefix(line, "branch "):
			cur.Branch = strings.TrimPrefix(line, "branch refs/heads/")
		}
	}
	if cur != nil {
		result = append(result, *cur)
	}
	return result, nil
}

// commitsBetween returns commits reachable from head but not base, oldest
// first (topological order), as the spec's commits-on-branch requires.
func (c *gitClient) commitsBetween(ctx context.Context, base, head string) ([]core.CommitInfo, error) {
	out, err := c.run(ctx, "log", "--reverse", "--topo-order",
		"--format=%H|%an|%s|%cI", base+".."+head)
	if err != nil {
		return nil, err
	}
	if out == "" {
		return nil, nil
	}
	var commits []core.CommitInfo
	for _, line := range strings.Split(out, "\n") {
		parts := strings.SplitN(line, "|", 4)
		if len(parts) != 4 {
			continue
		}
		ts, _ := time.Parse(time.RFC3339, parts[3])
		commits = append(commits, core.CommitInfo{SHA: parts[0], Author: parts[1], Subject: parts[2], Timestamp: ts})
	}
	return commits, nil
}

func (c *gitClient) changedFiles(ctx context.Context, base, head string) ([]string, error) {
	out, err := c.run(ctx, "diff", "--name-only", base+"..."+head)
	if err != nil {
		return nil, err
	}
	if out == "" {
		return nil, nil
	}
	return strings.Split(out, "\n"), nil
}

func resolveGitBinaryPath(repoAbs string) (string, error) {
	p, err := exec.LookPath("git")
	if err != nil {
		return "", core.ErrValidation(core.CodeExecutableNotFound, "git not found in PATH")
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", fmt.Errorf("resolving git path: %w", err)
	}
	real := abs
	if rr, err := filepath.EvalSymlinks(abs); err == nil {
		real = rr
	}
	info, err := os.Stat(real)
	if err != nil {
		return "", fmt.Errorf("stat git binary: %w", err)
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("git binary is not a regular file: %s", real)
	}
	if runtime.GOOS != "windows" && info.Mode()&0o111 == 0 {
		return "", fmt.Errorf("git binary is not executable: %s", real)
	}
	if isPathWithinDir(repoAbs, real) {
		return "", fmt.Errorf("refusing to execute git from within repository: %s", real)
	}
	return real, nil
}

func isPathWithinDir(root, path string) bool {
	rootAbs, err1 := filepath.Abs(root)
	pathAbs, err2 := filepath.Abs(path)
	if err1 != nil || err2 != nil {
		return false
	}
	rel, err := filepath.Rel(rootAbs, pathAbs)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(os.PathSeparator)))
}

func resolvePath(path string) string {
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		return resolved
	}
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}

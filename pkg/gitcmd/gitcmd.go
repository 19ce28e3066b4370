// Package gitcmd drives the git binary for cloning corpus repositories and
// walking their history.
package gitcmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	apperrors "github.com/solfixes/solfixes/pkg/app/errors"
	"github.com/solfixes/solfixes/pkg/cmdutil"
)

const (
	githubBaseURL = "https://github.com"

	cloneAttempts   = 3
	cloneRetryDelay = 10 * time.Second
)

// Git runs git subcommands against local working copies.
type Git struct {
	binary string
}

func New() *Git {
	return &Git{binary: "git"}
}

// WorkDir returns the directory a repository is cloned under: a folder named
// after the mangled full name, holding the checkout itself.
func WorkDir(dataDir, fullName string) string {
	return filepath.Join(dataDir, strings.ReplaceAll(fullName, "/", "__"))
}

// CloneURL returns the HTTPS clone URL for a repository full name.
func CloneURL(fullName string) string {
	return githubBaseURL + "/" + fullName
}

// Clone fetches a repository under dataDir and returns the checkout path.
// An existing checkout is reused after being forced back to the default
// branch with local changes discarded.
func (g *Git) Clone(ctx context.Context, dataDir, fullName string) (string, error) {
	parent := WorkDir(dataDir, fullName)
	_, repoName, _ := strings.Cut(fullName, "/")
	checkout := filepath.Join(parent, repoName)

	if _, err := os.Stat(checkout); err == nil {
		if err := g.Clean(ctx, checkout); err != nil {
			return "", err
		}
		branch, err := g.DefaultBranch(ctx, checkout)
		if err != nil {
			return "", err
		}
		if _, err := g.run(ctx, checkout, "checkout", "-f", branch); err != nil {
			return "", err
		}
		return checkout, nil
	}

	if err := os.MkdirAll(parent, 0o755); err != nil {
		return "", fmt.Errorf("create clone parent: %w", err)
	}

	var err error
	for attempt := 0; attempt < cloneAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(cloneRetryDelay):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}
		if _, err = g.run(ctx, parent, "clone", CloneURL(fullName)); err == nil {
			return checkout, nil
		}
	}
	return "", err
}

// DefaultBranch resolves the branch a fresh checkout lands on. The remote
// HEAD works even when the working copy is on a detached commit.
func (g *Git) DefaultBranch(ctx context.Context, dir string) (string, error) {
	out, err := g.run(ctx, dir, "symbolic-ref", "refs/remotes/origin/HEAD")
	if err == nil {
		return strings.TrimPrefix(strings.TrimSpace(out), "refs/remotes/origin/"), nil
	}

	out, err = g.run(ctx, dir, "symbolic-ref", "--short", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// Checkout moves the working copy to a branch or commit.
func (g *Git) Checkout(ctx context.Context, dir, ref string) error {
	_, err := g.run(ctx, dir, "checkout", "-f", ref)
	return err
}

// ResetHard discards uncommitted changes.
func (g *Git) ResetHard(ctx context.Context, dir string) error {
	_, err := g.run(ctx, dir, "reset", "--hard")
	return err
}

// Clean removes untracked files, including build artifacts detectors leave
// behind between checkouts.
func (g *Git) Clean(ctx context.Context, dir string) error {
	_, err := g.run(ctx, dir, "clean", "-xdf")
	return err
}

// Commits lists first-parent commit hashes reachable from ref, oldest
// first.
func (g *Git) Commits(ctx context.Context, dir, ref string) ([]string, error) {
	out, err := g.run(ctx, dir, "log", "--first-parent", "--reverse", "--pretty=%H", ref)
	if err != nil {
		return nil, err
	}
	return strings.Fields(out), nil
}

// FileCommits lists the commits that touched one file, newest first,
// following renames.
func (g *Git) FileCommits(ctx context.Context, dir, path string) ([]string, error) {
	out, err := g.run(ctx, dir, "log", "--follow", "--pretty=%H", "--", path)
	if err != nil {
		return nil, err
	}
	return strings.Fields(out), nil
}

// ChangedFiles lists the paths a commit touched. For merge commits only the
// first parent's diff is reported.
func (g *Git) ChangedFiles(ctx context.Context, dir, commit string) ([]string, error) {
	out, err := g.run(ctx, dir, "log", "-m", "-1", "--name-only", "--pretty=format:", commit)
	if err != nil {
		return nil, err
	}
	return parseNameOnly(out), nil
}

// parseNameOnly extracts the leading file list from --name-only output. A
// merge commit's output repeats per parent with a blank line between blocks;
// the first block is the first-parent diff.
func parseNameOnly(out string) []string {
	var files []string
	for _, line := range strings.Split(strings.TrimLeft(out, "\n"), "\n") {
		if line == "" {
			break
		}
		files = append(files, line)
	}
	return files
}

func (g *Git) run(ctx context.Context, dir string, args ...string) (string, error) {
	stdout, stderr, err := cmdutil.Run(ctx, dir, nil, g.binary, args...)
	if err != nil {
		msg := strings.TrimSpace(string(stderr))
		if msg == "" {
			return "", apperrors.DependencyError(fmt.Errorf("git %s: %w", args[0], err), "git "+args[0]+" failed")
		}
		return "", apperrors.DependencyError(fmt.Errorf("git %s: %w: %s", args[0], err, msg), "git "+args[0]+" failed")
	}
	return string(stdout), nil
}

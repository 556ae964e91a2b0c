// Package gitsource fetches a catalog repo's tree into memory with
// go-git, the way C1's ingestion step needs to read a module-list file
// plus each module's metadata document without shelling out to a git
// binary or leaving a clone on disk (spec §4.1: "for each configured
// upstream catalog repo, parse the top-level module-list ... for each
// module, fetch its metadata document").
package gitsource

import (
	"context"
	"fmt"
	"io"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/storage/memory"
)

// Tree is a single shallow clone's worktree, kept entirely in memory.
type Tree struct {
	fs   billy.Filesystem
	repo *git.Repository
}

// Fetch performs a shallow, single-branch clone of url at branch into an
// in-memory filesystem and storer; no bytes touch local disk.
func Fetch(ctx context.Context, url, branch string) (*Tree, error) {
	fs := memfs.New()
	repo, err := git.CloneContext(ctx, memory.NewStorage(), fs, &git.CloneOptions{
		URL:           url,
		ReferenceName: plumbing.NewBranchReferenceName(branch),
		SingleBranch:  true,
		Depth:         1,
	})
	if err != nil {
		return nil, fmt.Errorf("gitsource: clone %s@%s: %w", url, branch, err)
	}
	return &Tree{fs: fs, repo: repo}, nil
}

// ReadFile returns the contents of path within the cloned tree.
func (t *Tree) ReadFile(path string) ([]byte, error) {
	f, err := t.fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("gitsource: open %s: %w", path, err)
	}
	defer f.Close()
	return io.ReadAll(f)
}

// ListDir returns the entry names directly under path (no recursion).
func (t *Tree) ListDir(path string) ([]string, error) {
	entries, err := t.fs.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("gitsource: readdir %s: %w", path, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names, nil
}

// HeadCommitTime returns the clone's HEAD commit time, used to populate
// a catalog item's "last-commit-date" when a live source-host query is
// unavailable (spec §4.1's "overwrite ... with values queried live from
// the source-code host when available" — HEAD's own commit time is the
// fallback when no such live query is configured).
func (t *Tree) HeadCommitTime() (string, error) {
	ref, err := t.repo.Head()
	if err != nil {
		return "", fmt.Errorf("gitsource: head: %w", err)
	}
	commit, err := t.repo.CommitObject(ref.Hash())
	if err != nil {
		return "", fmt.Errorf("gitsource: head commit: %w", err)
	}
	return commit.Committer.When.Format("2006-01-02"), nil
}

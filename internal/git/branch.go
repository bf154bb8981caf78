package git

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
)

// LocalBranch is a local branch and the commit it currently points to.
type LocalBranch struct {
	// Name is the branch's short name, e.g. "feat/a".
	Name string

	// Hash is the commit the branch currently points to.
	Hash Hash
}

// ListLocalBranches lists every local branch in the repository
// together with the commit it currently points to.
func (r *Repository) ListLocalBranches(ctx context.Context) ([]LocalBranch, error) {
	cmd := r.gitCmd(ctx,
		"for-each-ref",
		"--format=%(refname:short)%00%(objectname)",
		"refs/heads/",
	)
	out, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("git for-each-ref: %w", err)
	}

	if err := cmd.Start(r.exec); err != nil {
		return nil, fmt.Errorf("start git for-each-ref: %w", err)
	}

	var branches []LocalBranch
	scan := bufio.NewScanner(out)
	for scan.Scan() {
		line := scan.Bytes()
		if len(line) == 0 {
			continue
		}

		name, hash, ok := bytes.Cut(line, []byte{0})
		if !ok {
			r.log.Warn("skipping malformed for-each-ref line", "line", string(line))
			continue
		}

		branches = append(branches, LocalBranch{
			Name: string(name),
			Hash: Hash(hash),
		})
	}

	if err := scan.Err(); err != nil {
		return nil, fmt.Errorf("read output: %w", err)
	}

	if err := cmd.Wait(r.exec); err != nil {
		return nil, fmt.Errorf("git for-each-ref: %w", err)
	}

	return branches, nil
}

// ListMergedLocalBranches lists the full refnames of local branches
// already reachable from commitish, via a single "git for-each-ref
// --merged" scan. This is a fast, ancestry-only check: it misses
// squash- and rebase-merges (the Merge Oracle catches those), so
// callers should treat it only as a hint that can short-circuit the
// oracle, never as the sole merge decision.
func (r *Repository) ListMergedLocalBranches(ctx context.Context, commitish string) ([]string, error) {
	cmd := r.gitCmd(ctx,
		"for-each-ref",
		"--format=%(refname)",
		"--merged="+commitish,
		"refs/heads/",
	)
	out, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("git for-each-ref: %w", err)
	}

	if err := cmd.Start(r.exec); err != nil {
		return nil, fmt.Errorf("start git for-each-ref: %w", err)
	}

	var refs []string
	scan := bufio.NewScanner(out)
	for scan.Scan() {
		line := scan.Text()
		if line == "" {
			continue
		}
		refs = append(refs, line)
	}
	if err := scan.Err(); err != nil {
		return nil, fmt.Errorf("read output: %w", err)
	}

	if err := cmd.Wait(r.exec); err != nil {
		return nil, fmt.Errorf("git for-each-ref: %w", err)
	}

	return refs, nil
}

// BranchExists reports whether a local branch with the given name exists.
func (r *Repository) BranchExists(ctx context.Context, branch string) bool {
	return r.gitCmd(ctx,
		"show-ref", "--verify", "--quiet", "refs/heads/"+branch,
	).Run(r.exec) == nil
}

// ErrDetachedHead indicates that the repository is
// unexpectedly in detached HEAD state.
var ErrDetachedHead = errors.New("in detached HEAD state")

// CurrentBranch reports the current branch name.
// It returns [ErrDetachedHead] if the repository is in detached HEAD state.
func (r *Repository) CurrentBranch(ctx context.Context) (string, error) {
	name, err := r.gitCmd(ctx, "branch", "--show-current").
		OutputString(r.exec)
	if err != nil {
		return "", fmt.Errorf("git branch: %w", err)
	}
	name = strings.TrimSpace(name)
	if len(name) == 0 {
		// Per man git-branch, --show-current prints an empty string
		// if the repository is in detached HEAD state.
		return "", ErrDetachedHead
	}
	return name, nil
}

// BranchDeleteOptions specifies options for deleting a branch.
type BranchDeleteOptions struct {
	// Force specifies that a branch should be deleted
	// even if it has unmerged changes.
	Force bool
}

// DeleteBranch deletes a local branch from the repository.
// It returns an error if the branch does not exist,
// or if it has unmerged changes and the Force option is not set.
func (r *Repository) DeleteBranch(
	ctx context.Context,
	branch string,
	opts BranchDeleteOptions,
) error {
	args := []string{"branch", "--delete"}
	if opts.Force {
		args = append(args, "--force")
	}
	args = append(args, branch)

	if err := r.gitCmd(ctx, args...).Run(r.exec); err != nil {
		return fmt.Errorf("git branch: %w", err)
	}
	return nil
}

// DeleteRemoteTrackingBranch removes a remote-tracking ref
// (e.g. "refs/remotes/origin/feat/a") from the local repository.
//
// This never contacts the remote; it only removes the local
// bookkeeping ref that mirrors it.
func (r *Repository) DeleteRemoteTrackingBranch(ctx context.Context, refname string) error {
	if err := r.gitCmd(ctx, "update-ref", "-d", refname).Run(r.exec); err != nil {
		return fmt.Errorf("git update-ref -d %s: %w", refname, err)
	}
	return nil
}

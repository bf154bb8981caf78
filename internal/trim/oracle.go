package trim

import (
	"context"
	"fmt"
	"time"

	"go.abhg.dev/trim/internal/git"
)

// squashTestIdentity is the fixed author/committer identity used for
// the Merge Oracle's synthetic commits. It is not a real person; it's
// a stable placeholder so that the synthetic commit's hash is
// reproducible across runs given identical tree/parent inputs.
var squashTestIdentity = &git.Signature{
	Name:  "git-trim",
	Email: "git-trim@squash.merge.test.local",
	Time:  time.Unix(0, 0).UTC(),
}

const squashTestMessage = "trim: squash merge test"

// OracleRepo is the subset of the repo access layer the Merge Oracle
// needs: ancestry queries and synthetic-commit construction.
type OracleRepo interface {
	IsAncestor(ctx context.Context, ancestor, descendant git.Hash) bool
	MergeBase(ctx context.Context, a, b string) (git.Hash, error)
	PeelToTree(ctx context.Context, ref string) (git.Hash, error)
	CommitTree(ctx context.Context, req git.CommitTreeRequest) (git.Hash, error)
}

// Oracle decides whether one commit's work has been integrated into
// another, including through squash-merges and rebase-merges that
// destroy ancestry.
type Oracle struct {
	Repo OracleRepo
}

// IsMerged reports whether candidate's work has been integrated into base.
//
// The algorithm (§4.3):
//  1. If candidate is an ancestor of base, it's merged (fast-forward or
//     ordinary merge).
//  2. Otherwise, compute M = merge_base(base, candidate). If there is
//     no common ancestor, candidate is not merged.
//  3. Construct a synthetic commit S with candidate's tree, M as its
//     sole parent, and a fixed identity/message, not attached to any ref.
//  4. candidate is merged if S is an ancestor of base: the content
//     candidate would contribute on top of M is already present in base,
//     which is exactly what a squash-merge (or a rebase-merge, whose
//     commits collapse to the same tree) of candidate would produce.
func (o *Oracle) IsMerged(ctx context.Context, base, candidate git.Hash) (bool, error) {
	if o.Repo.IsAncestor(ctx, candidate, base) {
		return true, nil
	}

	mergeBase, err := o.Repo.MergeBase(ctx, string(base), string(candidate))
	if err != nil {
		// No common ancestor: definitely not merged.
		return false, nil
	}

	tree, err := o.Repo.PeelToTree(ctx, string(candidate))
	if err != nil {
		return false, &RefResolutionError{Ref: string(candidate), Err: err}
	}

	synthetic, err := o.Repo.CommitTree(ctx, git.CommitTreeRequest{
		Tree:      tree,
		Parents:   []git.Hash{mergeBase},
		Message:   squashTestMessage,
		Author:    squashTestIdentity,
		Committer: squashTestIdentity,
	})
	if err != nil {
		return false, fmt.Errorf("construct synthetic commit for %s onto %s: %w", candidate.Short(), mergeBase.Short(), err)
	}

	return o.Repo.IsAncestor(ctx, synthetic, base), nil
}

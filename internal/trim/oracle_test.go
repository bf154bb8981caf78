package trim

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.abhg.dev/trim/internal/git"
)

// fakeOracleRepo is an in-memory stand-in for the Merge Oracle's repo
// dependency, modeling a small DAG of ancestor relationships plus a
// single synthetic-commit slot.
type fakeOracleRepo struct {
	ancestors map[git.Hash]map[git.Hash]bool // descendant -> ancestor -> true
	mergeBase map[[2]git.Hash]git.Hash
	trees     map[git.Hash]git.Hash

	syntheticCalls int
	syntheticHash  git.Hash
	syntheticIsAncestorOfBase bool
}

func (f *fakeOracleRepo) IsAncestor(_ context.Context, ancestor, descendant git.Hash) bool {
	if ancestor == f.syntheticHash {
		return f.syntheticIsAncestorOfBase
	}
	return f.ancestors[descendant][ancestor]
}

func (f *fakeOracleRepo) MergeBase(_ context.Context, a, b string) (git.Hash, error) {
	key := [2]git.Hash{git.Hash(a), git.Hash(b)}
	if h, ok := f.mergeBase[key]; ok {
		return h, nil
	}
	key = [2]git.Hash{git.Hash(b), git.Hash(a)}
	if h, ok := f.mergeBase[key]; ok {
		return h, nil
	}
	return "", assert.AnError
}

func (f *fakeOracleRepo) PeelToTree(_ context.Context, ref string) (git.Hash, error) {
	if h, ok := f.trees[git.Hash(ref)]; ok {
		return h, nil
	}
	return "", assert.AnError
}

func (f *fakeOracleRepo) CommitTree(_ context.Context, req git.CommitTreeRequest) (git.Hash, error) {
	f.syntheticCalls++
	if req.Message != squashTestMessage {
		return "", assert.AnError
	}
	return f.syntheticHash, nil
}

func TestOracle_IsMerged_directAncestor(t *testing.T) {
	base := git.Hash("base")
	candidate := git.Hash("candidate")
	repo := &fakeOracleRepo{
		ancestors: map[git.Hash]map[git.Hash]bool{
			base: {candidate: true},
		},
	}

	o := &Oracle{Repo: repo}
	merged, err := o.IsMerged(context.Background(), base, candidate)
	require.NoError(t, err)
	assert.True(t, merged)
	assert.Zero(t, repo.syntheticCalls, "a direct ancestor never needs a synthetic commit")
}

func TestOracle_IsMerged_noCommonAncestor(t *testing.T) {
	base := git.Hash("base")
	candidate := git.Hash("candidate")
	repo := &fakeOracleRepo{
		ancestors: map[git.Hash]map[git.Hash]bool{},
		mergeBase: map[[2]git.Hash]git.Hash{},
	}

	o := &Oracle{Repo: repo}
	merged, err := o.IsMerged(context.Background(), base, candidate)
	require.NoError(t, err)
	assert.False(t, merged)
}

func TestOracle_IsMerged_squashMerge(t *testing.T) {
	base := git.Hash("base")
	candidate := git.Hash("candidate")
	mergeBase := git.Hash("merge-base")
	synthetic := git.Hash("synthetic")

	repo := &fakeOracleRepo{
		ancestors: map[git.Hash]map[git.Hash]bool{},
		mergeBase: map[[2]git.Hash]git.Hash{
			{base, candidate}: mergeBase,
		},
		trees: map[git.Hash]git.Hash{
			candidate: "candidate-tree",
		},
		syntheticHash:             synthetic,
		syntheticIsAncestorOfBase: true,
	}

	o := &Oracle{Repo: repo}
	merged, err := o.IsMerged(context.Background(), base, candidate)
	require.NoError(t, err)
	assert.True(t, merged)
	assert.Equal(t, 1, repo.syntheticCalls)
}

func TestOracle_IsMerged_rebasedButNotIntegrated(t *testing.T) {
	base := git.Hash("base")
	candidate := git.Hash("candidate")
	mergeBase := git.Hash("merge-base")

	repo := &fakeOracleRepo{
		ancestors: map[git.Hash]map[git.Hash]bool{},
		mergeBase: map[[2]git.Hash]git.Hash{
			{base, candidate}: mergeBase,
		},
		trees: map[git.Hash]git.Hash{
			candidate: "candidate-tree",
		},
		syntheticHash:             "synthetic",
		syntheticIsAncestorOfBase: false,
	}

	o := &Oracle{Repo: repo}
	merged, err := o.IsMerged(context.Background(), base, candidate)
	require.NoError(t, err)
	assert.False(t, merged)
}

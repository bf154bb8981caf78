package upstream_test

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.abhg.dev/trim/internal/git"
	"go.abhg.dev/trim/internal/upstream"
)

type fakeConfig struct {
	entries []git.ConfigEntry
}

func (f *fakeConfig) ListRegexp(_ context.Context, pattern string) (func(yield func(git.ConfigEntry, error) bool), error) {
	re := regexp.MustCompile(pattern)
	return func(yield func(git.ConfigEntry, error) bool) {
		for _, e := range f.entries {
			if !re.MatchString(string(e.Key)) {
				continue
			}
			if !yield(e, nil) {
				return
			}
		}
	}, nil
}

type fakeRepo struct {
	remotes []string
	heads   map[string]git.Hash // "remote/refname" (refs/heads/... stripped) -> hash
}

func (f *fakeRepo) ListRemotes(context.Context) ([]string, error) {
	return f.remotes, nil
}

func (f *fakeRepo) PeelToCommit(_ context.Context, ref string) (git.Hash, error) {
	hash, ok := f.heads[ref]
	if !ok {
		return "", git.ErrNotExist
	}
	return hash, nil
}

func newResolver(cfg *fakeConfig, repo *fakeRepo, pushDefault upstream.PushDefault) *upstream.Resolver {
	return &upstream.Resolver{Config: cfg, Repo: repo, PushDefault: pushDefault}
}

func TestFetchUpstream_noConfig(t *testing.T) {
	r := newResolver(&fakeConfig{}, &fakeRepo{}, upstream.PushDefaultSimple)
	up, err := r.FetchUpstream(context.Background(), "feat/a")
	require.NoError(t, err)
	assert.Nil(t, up)
}

func TestFetchUpstream_resolvesKnownRemote(t *testing.T) {
	cfg := &fakeConfig{entries: []git.ConfigEntry{
		{Key: "branch.feat/a.remote", Value: "origin"},
		{Key: "branch.feat/a.merge", Value: "refs/heads/feat/a"},
	}}
	repo := &fakeRepo{
		remotes: []string{"origin"},
		heads:   map[string]git.Hash{"refs/remotes/origin/feat/a": "deadbeef"},
	}
	r := newResolver(cfg, repo, upstream.PushDefaultSimple)

	up, err := r.FetchUpstream(context.Background(), "feat/a")
	require.NoError(t, err)
	require.NotNil(t, up)
	assert.Equal(t, "origin", up.Remote)
	assert.Equal(t, "refs/heads/feat/a", up.Refname)
	assert.Equal(t, git.Hash("deadbeef"), up.Hash)
}

func TestFetchUpstream_unknownRemoteFallsBackToRaw(t *testing.T) {
	cfg := &fakeConfig{entries: []git.ConfigEntry{
		{Key: "branch.feat/a.remote", Value: "git@example.com:some/repo.git"},
		{Key: "branch.feat/a.merge", Value: "refs/heads/feat/a"},
	}}
	repo := &fakeRepo{remotes: []string{"origin"}}
	r := newResolver(cfg, repo, upstream.PushDefaultSimple)

	up, err := r.FetchUpstream(context.Background(), "feat/a")
	assert.Nil(t, up)
	assert.ErrorIs(t, err, upstream.ErrNoRemoteBlock)

	raw, err := r.Raw(context.Background(), "feat/a")
	require.NoError(t, err)
	require.NotNil(t, raw)
	assert.Equal(t, "git@example.com:some/repo.git", raw.RemoteURL)
	assert.Equal(t, "refs/heads/feat/a", raw.MergeRef)
}

func TestPushUpstream_nothing(t *testing.T) {
	r := newResolver(&fakeConfig{}, &fakeRepo{}, upstream.PushDefaultNothing)
	ups, err := r.PushUpstream(context.Background(), "feat/a")
	require.NoError(t, err)
	assert.Nil(t, ups)
}

func TestPushUpstream_current(t *testing.T) {
	cfg := &fakeConfig{entries: []git.ConfigEntry{
		{Key: "branch.feat/a.remote", Value: "origin"},
		{Key: "branch.feat/a.merge", Value: "refs/heads/upstream-name"},
	}}
	repo := &fakeRepo{
		remotes: []string{"origin"},
		heads:   map[string]git.Hash{"refs/remotes/origin/feat/a": "cafe"},
	}
	r := newResolver(cfg, repo, upstream.PushDefaultCurrent)

	ups, err := r.PushUpstream(context.Background(), "feat/a")
	require.NoError(t, err)
	require.Len(t, ups, 1)
	assert.Equal(t, "origin", ups[0].Remote)
	assert.Equal(t, "refs/heads/feat/a", ups[0].Refname)
}

func TestPushUpstream_upstreamAlias(t *testing.T) {
	cfg := &fakeConfig{entries: []git.ConfigEntry{
		{Key: "branch.feat/a.remote", Value: "origin"},
		{Key: "branch.feat/a.merge", Value: "refs/heads/renamed"},
	}}
	repo := &fakeRepo{
		remotes: []string{"origin"},
		heads:   map[string]git.Hash{"refs/remotes/origin/renamed": "abc123"},
	}
	r := newResolver(cfg, repo, upstream.ParsePushDefault("tracking"))

	ups, err := r.PushUpstream(context.Background(), "feat/a")
	require.NoError(t, err)
	require.Len(t, ups, 1)
	assert.Equal(t, "refs/heads/renamed", ups[0].Refname)
}

func TestPushUpstream_simpleRefusesWhenNamesDiffer(t *testing.T) {
	cfg := &fakeConfig{entries: []git.ConfigEntry{
		{Key: "branch.feat/a.remote", Value: "origin"},
		{Key: "branch.feat/a.merge", Value: "refs/heads/renamed"},
	}}
	repo := &fakeRepo{
		remotes: []string{"origin"},
		heads:   map[string]git.Hash{"refs/remotes/origin/renamed": "abc123"},
	}
	r := newResolver(cfg, repo, upstream.PushDefaultSimple)

	ups, err := r.PushUpstream(context.Background(), "feat/a")
	require.NoError(t, err)
	assert.Nil(t, ups)
}

func TestPushUpstream_matchingFoldsEveryRemote(t *testing.T) {
	repo := &fakeRepo{
		remotes: []string{"origin", "fork"},
		heads: map[string]git.Hash{
			"refs/remotes/origin/feat/a": "h1",
			"refs/remotes/fork/feat/a":   "h2",
		},
	}
	r := newResolver(&fakeConfig{}, repo, upstream.PushDefaultMatching)

	ups, err := r.PushUpstream(context.Background(), "feat/a")
	require.NoError(t, err)
	require.Len(t, ups, 2)

	byRemote := map[string]git.Hash{}
	for _, u := range ups {
		byRemote[u.Remote] = u.Hash
	}
	assert.Equal(t, git.Hash("h1"), byRemote["origin"])
	assert.Equal(t, git.Hash("h2"), byRemote["fork"])
}

func TestPushUpstream_matchingSkipsRemotesWithoutTheBranch(t *testing.T) {
	repo := &fakeRepo{
		remotes: []string{"origin", "fork"},
		heads: map[string]git.Hash{
			"refs/remotes/origin/feat/a": "h1",
		},
	}
	r := newResolver(&fakeConfig{}, repo, upstream.PushDefaultMatching)

	ups, err := r.PushUpstream(context.Background(), "feat/a")
	require.NoError(t, err)
	require.Len(t, ups, 1)
	assert.Equal(t, "origin", ups[0].Remote)
}

func TestParsePushDefault(t *testing.T) {
	cases := map[string]upstream.PushDefault{
		"":         upstream.PushDefaultSimple,
		"bogus":    upstream.PushDefaultSimple,
		"nothing":  upstream.PushDefaultNothing,
		"current":  upstream.PushDefaultCurrent,
		"upstream": upstream.PushDefaultUpstream,
		"tracking": upstream.PushDefaultUpstream,
		"matching": upstream.PushDefaultMatching,
	}
	for in, want := range cases {
		assert.Equal(t, want, upstream.ParsePushDefault(in), in)
	}
}

func TestFetchUpstream_propagatesPeelError(t *testing.T) {
	cfg := &fakeConfig{entries: []git.ConfigEntry{
		{Key: "branch.feat/a.remote", Value: "origin"},
		{Key: "branch.feat/a.merge", Value: "refs/heads/feat/a"},
	}}
	repo := &fakeRepo{remotes: []string{"origin"}}
	r := newResolver(cfg, repo, upstream.PushDefaultSimple)

	_, err := r.FetchUpstream(context.Background(), "feat/a")
	require.Error(t, err)
	assert.True(t, errors.Is(err, git.ErrNotExist), fmt.Sprintf("got %v", err))
}

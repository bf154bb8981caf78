package trimconfig_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.abhg.dev/trim/internal/git"
	"go.abhg.dev/trim/internal/trimconfig"
)

type fakeConfigReader struct {
	entries []git.ConfigEntry
}

func (f *fakeConfigReader) ListRegexp(context.Context, string) (func(yield func(git.ConfigEntry, error) bool), error) {
	return func(yield func(git.ConfigEntry, error) bool) {
		for _, e := range f.entries {
			if !yield(e, nil) {
				return
			}
		}
	}, nil
}

func TestResolve_defaults(t *testing.T) {
	cfg, err := trimconfig.Resolve(context.Background(), &fakeConfigReader{})
	require.NoError(t, err)
	assert.Equal(t, trimconfig.Default(), cfg)
}

func TestResolve_overridesFromGitConfig(t *testing.T) {
	cfg, err := trimconfig.Resolve(context.Background(), &fakeConfigReader{
		entries: []git.ConfigEntry{
			{Key: "trim.base", Value: "develop"},
			{Key: "trim.protected", Value: "release/*"},
			{Key: "trim.protected", Value: "hotfix/*"},
			{Key: "trim.filter", Value: "merged-locals,stray-locals"},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "develop", cfg.Base)
	assert.Equal(t, []string{"release/*", "hotfix/*"}, cfg.Protected)
	assert.Equal(t, trimconfig.FilterNames{MergedLocals: true, StrayLocals: true}, cfg.Filter)
}

func TestParseFilterNames(t *testing.T) {
	f := trimconfig.ParseFilterNames("merged-remotes, stray-remotes")
	assert.Equal(t, trimconfig.FilterNames{MergedRemotes: true, StrayRemotes: true}, f)
}

// Package trimconfig resolves trim's per-repository settings, layered
// over git config's "trim.*" namespace with built-in defaults at the
// bottom and CLI flags taking priority over everything.
package trimconfig

import (
	"context"
	"fmt"
	"strings"

	"go.abhg.dev/trim/internal/git"
)

// ConfigReader is the subset of [git.Config] needed to read the
// "trim.*" settings namespace.
type ConfigReader interface {
	ListRegexp(ctx context.Context, pattern string) (func(yield func(git.ConfigEntry, error) bool), error)
}

var _ ConfigReader = (*git.Config)(nil)

// FilterNames is the set of delete-filter predicate names enabled.
type FilterNames struct {
	MergedLocals  bool
	StrayLocals   bool
	MergedRemotes bool
	StrayRemotes  bool
}

// ParseFilterNames parses a comma-separated filter spec, e.g.
// "merged-locals,merged-remotes".
func ParseFilterNames(spec string) FilterNames {
	var f FilterNames
	for _, name := range strings.Split(spec, ",") {
		switch strings.TrimSpace(name) {
		case "merged-locals":
			f.MergedLocals = true
		case "stray-locals":
			f.StrayLocals = true
		case "merged-remotes":
			f.MergedRemotes = true
		case "stray-remotes":
			f.StrayRemotes = true
		}
	}
	return f
}

// Config holds trim's resolved settings for one repository.
type Config struct {
	// Base is the integration target branch name, e.g. "main". Empty
	// means "detect from origin/HEAD".
	Base string

	// Protected holds glob patterns matched against candidate refnames
	// (§4.5 guard 2).
	Protected []string

	// Filter names which of the four delete-filter predicates are
	// enabled by default.
	Filter FilterNames
}

// Default is the built-in configuration used when neither a CLI flag
// nor a "trim.*" git-config entry supplies a value.
func Default() Config {
	return Config{
		Base:      "",
		Protected: nil,
		Filter:    ParseFilterNames("merged-locals,merged-remotes"),
	}
}

// Resolve reads every "trim.*" entry from cfg and overlays it onto the
// built-in defaults. CLI flags should be applied by the caller after
// Resolve returns, since they always take priority over git config.
func Resolve(ctx context.Context, cfg ConfigReader) (Config, error) {
	result := Default()

	iterFn, err := cfg.ListRegexp(ctx, `^trim\.`)
	if err != nil {
		return Config{}, fmt.Errorf("read trim.* config: %w", err)
	}

	var iterErr error
	iterFn(func(e git.ConfigEntry, err error) bool {
		if err != nil {
			iterErr = err
			return false
		}
		switch e.Key.Canonical() {
		case "trim.base":
			result.Base = e.Value
		case "trim.protected":
			result.Protected = append(result.Protected, e.Value)
		case "trim.filter":
			result.Filter = ParseFilterNames(e.Value)
		}
		return true
	})
	if iterErr != nil {
		return Config{}, fmt.Errorf("read trim.* config: %w", iterErr)
	}

	return result, nil
}

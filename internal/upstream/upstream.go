// Package upstream resolves a local branch's fetch and push upstream
// remote-tracking branches from raw Git configuration, honoring
// push-default policy and the legacy remote=URL/merge=refname fallback.
package upstream

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.abhg.dev/trim/internal/git"
)

// ErrNoRemoteBlock indicates that a branch's "remote" configuration
// names a URL (or a remote) with no corresponding "remote.<name>"
// block, so no remote-tracking branch can be resolved the normal way.
// Callers should fall back to a remote-heads-per-URL index (§4.2).
var ErrNoRemoteBlock = errors.New("no matching remote block")

// Upstream is a resolved remote-tracking destination for a local branch.
type Upstream struct {
	// Remote is the name of the remote, e.g. "origin".
	Remote string

	// Refname is the full refname on the remote, e.g. "refs/heads/feat/a".
	Refname string

	// Hash is the current tip of the local remote-tracking ref that
	// mirrors this upstream, e.g. the tip of "refs/remotes/origin/feat/a".
	Hash git.Hash
}

// RawConfig is a branch's raw "remote"/"merge" configuration when it
// does not resolve to a known remote block — i.e. "remote" is
// literally a URL rather than the name of a configured remote.
type RawConfig struct {
	// RemoteURL is the literal value of branch.<name>.remote.
	RemoteURL string

	// MergeRef is the literal value of branch.<name>.merge.
	MergeRef string
}

// PushDefault mirrors Git's push.default configuration values.
type PushDefault int

// Recognized push.default values. PushDefaultUpstream also covers the
// "tracking" alias, which Git treats identically.
const (
	PushDefaultSimple PushDefault = iota
	PushDefaultNothing
	PushDefaultCurrent
	PushDefaultUpstream
	PushDefaultMatching
)

// ParsePushDefault parses a push.default configuration value.
// Unrecognized or empty values default to [PushDefaultSimple], Git's
// own default since Git 2.0.
func ParsePushDefault(s string) PushDefault {
	switch s {
	case "nothing":
		return PushDefaultNothing
	case "current":
		return PushDefaultCurrent
	case "upstream", "tracking":
		return PushDefaultUpstream
	case "matching":
		return PushDefaultMatching
	default:
		return PushDefaultSimple
	}
}

// ConfigReader is the subset of [git.Config] the Resolver needs.
type ConfigReader interface {
	ListRegexp(ctx context.Context, pattern string) (func(yield func(git.ConfigEntry, error) bool), error)
}

var _ ConfigReader = (*git.Config)(nil)

// Repo is the subset of [git.Repository] the Resolver needs to turn a
// remote-tracking refname into a concrete commit.
type Repo interface {
	PeelToCommit(ctx context.Context, ref string) (git.Hash, error)
	ListRemotes(ctx context.Context) ([]string, error)
}

// Resolver resolves fetch and push upstreams for local branches.
type Resolver struct {
	Config      ConfigReader
	Repo        Repo
	PushDefault PushDefault

	remotes     []string
	remotesErr  error
	remotesOnce bool
}

func (r *Resolver) knownRemotes(ctx context.Context) ([]string, error) {
	if !r.remotesOnce {
		r.remotes, r.remotesErr = r.Repo.ListRemotes(ctx)
		r.remotesOnce = true
	}
	return r.remotes, r.remotesErr
}

func (r *Resolver) isKnownRemote(ctx context.Context, name string) bool {
	remotes, err := r.knownRemotes(ctx)
	if err != nil {
		return false
	}
	for _, remote := range remotes {
		if remote == name {
			return true
		}
	}
	return false
}

// branchConfig reads branch.<name>.remote and branch.<name>.merge.
func (r *Resolver) branchConfig(ctx context.Context, branch string) (remote, merge string, err error) {
	pattern := fmt.Sprintf(`^branch\.%s\.(remote|merge)$`, regexpQuoteBranch(branch))
	iterFn, err := r.Config.ListRegexp(ctx, pattern)
	if err != nil {
		return "", "", err
	}

	var iterErr error
	iterFn(func(entry git.ConfigEntry, entryErr error) bool {
		if entryErr != nil {
			iterErr = entryErr
			return false
		}
		switch entry.Key.Name() {
		case "remote":
			remote = entry.Value
		case "merge":
			merge = entry.Value
		}
		return true
	})
	return remote, merge, iterErr
}

// regexpQuoteBranch escapes a branch name for use in the fixed
// "branch.<name>.key" pattern matched against git config --get-regexp.
// Branch names may contain regexp metacharacters (e.g. "feat/a.b").
func regexpQuoteBranch(branch string) string {
	var buf strings.Builder
	for _, r := range branch {
		switch r {
		case '.', '*', '+', '?', '(', ')', '[', ']', '{', '}', '^', '$', '|', '\\':
			buf.WriteByte('\\')
		}
		buf.WriteRune(r)
	}
	return buf.String()
}

// refnameFromMerge normalizes a branch.<name>.merge value to a full
// refname. It's usually already in "refs/heads/..." form, but accepts
// bare branch names too.
func refnameFromMerge(merge string) string {
	if strings.HasPrefix(merge, "refs/") {
		return merge
	}
	return "refs/heads/" + merge
}

// FetchUpstream resolves branch's configured fetch upstream.
//
// It returns (nil, nil) if the branch has no upstream configuration at
// all. It returns (nil, [ErrNoRemoteBlock]) if the branch's "remote"
// value does not name a configured remote (the legacy raw-URL case);
// callers should fall back to a remote-heads-per-URL index and may
// call [Resolver.Raw] to get the literal configuration.
func (r *Resolver) FetchUpstream(ctx context.Context, branch string) (*Upstream, error) {
	remote, merge, err := r.branchConfig(ctx, branch)
	if err != nil {
		return nil, err
	}
	if remote == "" || merge == "" {
		return nil, nil
	}

	if !r.isKnownRemote(ctx, remote) {
		return nil, ErrNoRemoteBlock
	}

	refname := refnameFromMerge(merge)
	trackingRef := trackingRefname(remote, refname)
	hash, err := r.Repo.PeelToCommit(ctx, trackingRef)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", trackingRef, err)
	}

	return &Upstream{Remote: remote, Refname: refname, Hash: hash}, nil
}

// Raw returns a branch's raw "remote"/"merge" configuration, for use
// when [Resolver.FetchUpstream] reports [ErrNoRemoteBlock].
func (r *Resolver) Raw(ctx context.Context, branch string) (*RawConfig, error) {
	remote, merge, err := r.branchConfig(ctx, branch)
	if err != nil {
		return nil, err
	}
	if remote == "" {
		return nil, nil
	}
	return &RawConfig{RemoteURL: remote, MergeRef: refnameFromMerge(merge)}, nil
}

// PushUpstream computes the push destination(s) for branch under the
// Resolver's configured push-default policy (§4.2):
//
//   - nothing: no destination.
//   - current: the branch's own name, on its fetch remote.
//   - upstream (and the "tracking" alias): same as the fetch upstream.
//   - simple: same as the fetch upstream, but only if the local and
//     remote names match; otherwise no destination (Git itself would
//     refuse to push in this case without an explicit refspec).
//   - matching: the branch's own name, on every remote that already
//     has a branch by that name. May return more than one Upstream.
//
// It returns (nil, nil) if there is no push destination under the
// configured policy.
func (r *Resolver) PushUpstream(ctx context.Context, branch string) ([]Upstream, error) {
	switch r.PushDefault {
	case PushDefaultNothing:
		return nil, nil

	case PushDefaultCurrent:
		remote, merge, err := r.branchConfig(ctx, branch)
		if err != nil {
			return nil, err
		}
		if remote == "" || merge == "" || !r.isKnownRemote(ctx, remote) {
			remote = "origin"
		}
		return r.resolveOne(ctx, remote, "refs/heads/"+branch)

	case PushDefaultUpstream:
		fetch, err := r.FetchUpstream(ctx, branch)
		if err != nil {
			if errors.Is(err, ErrNoRemoteBlock) {
				return nil, nil
			}
			return nil, err
		}
		if fetch == nil {
			return nil, nil
		}
		return []Upstream{*fetch}, nil

	case PushDefaultMatching:
		remotes, err := r.knownRemotes(ctx)
		if err != nil {
			return nil, err
		}
		var ups []Upstream
		for _, remote := range remotes {
			resolved, err := r.resolveOne(ctx, remote, "refs/heads/"+branch)
			if err != nil {
				continue // remote doesn't have a matching branch
			}
			ups = append(ups, resolved...)
		}
		return ups, nil

	default: // PushDefaultSimple
		fetch, err := r.FetchUpstream(ctx, branch)
		if err != nil {
			if errors.Is(err, ErrNoRemoteBlock) {
				return nil, nil
			}
			return nil, err
		}
		if fetch == nil || fetch.Refname != "refs/heads/"+branch {
			return nil, nil
		}
		return []Upstream{*fetch}, nil
	}
}

func (r *Resolver) resolveOne(ctx context.Context, remote, refname string) ([]Upstream, error) {
	trackingRef := trackingRefname(remote, refname)
	hash, err := r.Repo.PeelToCommit(ctx, trackingRef)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", trackingRef, err)
	}
	return []Upstream{{Remote: remote, Refname: refname, Hash: hash}}, nil
}

// trackingRefname computes the local remote-tracking refname for a
// remote branch, e.g. ("origin", "refs/heads/feat/a") =>
// "refs/remotes/origin/feat/a".
func trackingRefname(remote, refname string) string {
	name := strings.TrimPrefix(refname, "refs/heads/")
	return "refs/remotes/" + remote + "/" + name
}

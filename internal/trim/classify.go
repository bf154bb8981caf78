package trim

import (
	"context"
	"fmt"

	"go.abhg.dev/trim/internal/git"
	"go.abhg.dev/trim/internal/upstream"
)

// ClassifierRepo is the subset of the repo access layer the Classifier
// needs directly (beyond what it delegates to the Oracle and the
// Upstream Resolver).
type ClassifierRepo interface {
	PeelToCommit(ctx context.Context, ref string) (git.Hash, error)
}

// RemoteHeadsIndex maps a remote URL to the set of refnames it
// publishes, keyed further by refname to the hash each points at.
// It's built once per run by querying every distinct remote URL that a
// candidate's raw branch.<name>.remote names without a matching
// configured remote, and is consulted only by
// the "no upstream resolved" fallback (§4.2, §4.4, scenario S6).
type RemoteHeadsIndex map[string]map[string]git.Hash

// Classifier decides, per branch, which of its local and
// remote-tracking forms are merged, stray, or alive (§4.4).
type Classifier struct {
	Repo     ClassifierRepo
	Oracle   *Oracle
	Upstream *upstream.Resolver

	// MergedHint is a set of full local refnames (e.g. "refs/heads/feat/a")
	// already known to be merged by a fast external scan (§6), such as
	// [git.Repository.ListMergedLocalBranches]. It's an optimization only:
	// a refname absent from the hint still goes through the Merge Oracle,
	// which also catches squash- and rebase-merges the hint's plain
	// ancestry scan would miss.
	MergedHint map[string]struct{}

	RemoteURLs RemoteHeadsIndex
}

// Classify runs the per-branch decision tree against one candidate
// local branch and returns its Classification.
func (c *Classifier) Classify(ctx context.Context, base RemoteTrackingBranch, branch git.LocalBranch) (Classification, error) {
	result := Classification{
		Branch: Reference{Name: branch.Name, Hash: branch.Hash},
		Result: NewMergedOrStray(),
	}

	branchMerged, err := c.isMerged(ctx, base, "refs/heads/"+branch.Name, branch.Hash)
	if err != nil {
		return Classification{}, fmt.Errorf("classify %q: %w", branch.Name, err)
	}
	result.Merged = branchMerged

	fetch, fetchErr := c.Upstream.FetchUpstream(ctx, branch.Name)
	if fetchErr != nil && fetchErr != upstream.ErrNoRemoteBlock {
		return Classification{}, &ConfigMissingError{Branch: branch.Name, Err: fetchErr}
	}

	var fetchState *UpstreamMergeState
	if fetch != nil {
		merged, err := c.upstreamMerged(ctx, base, branchMerged, branch.Hash, fetch.Hash, nil)
		if err != nil {
			return Classification{}, fmt.Errorf("classify %q: %w", branch.Name, err)
		}
		fetchState = &UpstreamMergeState{
			Upstream: toTrackingBranch(*fetch, git.Hash("")),
			Merged:   merged,
		}
		fetchState.Upstream.Ref.Hash = fetch.Hash
		result.Fetch = fetchState
	}

	pushAll, pushErr := c.Upstream.PushUpstream(ctx, branch.Name)
	if pushErr != nil {
		return Classification{}, fmt.Errorf("classify %q: resolve push upstream: %w", branch.Name, pushErr)
	}

	var pushStates []UpstreamMergeState
	for _, push := range pushAll {
		merged, err := c.upstreamMerged(ctx, base, branchMerged, branch.Hash, push.Hash, fetchState)
		if err != nil {
			return Classification{}, fmt.Errorf("classify %q: %w", branch.Name, err)
		}
		state := UpstreamMergeState{
			Upstream: toTrackingBranch(push, push.Hash),
			Merged:   merged,
		}
		pushStates = append(pushStates, state)
	}
	if len(pushStates) > 0 {
		result.Push = &pushStates[0]
		result.PushAll = pushStates
	}

	switch {
	case fetchState != nil && len(pushStates) > 0:
		c.dispatchBothPresent(&result, branchMerged, *fetchState, pushStates)

	case fetchState != nil || len(pushStates) > 0:
		var only UpstreamMergeState
		if fetchState != nil {
			only = *fetchState
		} else {
			only = pushStates[0]
		}
		c.dispatchOnePresent(&result, branchMerged, only)
		// Any additional push destinations beyond the first, under a
		// "matching" push-default, are emitted the same way.
		for _, extra := range pushStates[1:] {
			emitUpstream(&result.Result, extra.Upstream.RemoteBranch(), extra.Merged)
		}

	default:
		if err := c.dispatchNonePresent(ctx, &result, branch.Name, branchMerged); err != nil {
			return Classification{}, err
		}
	}

	return result, nil
}

func (c *Classifier) isMerged(ctx context.Context, base RemoteTrackingBranch, refname string, candidate git.Hash) (bool, error) {
	if _, ok := c.MergedHint[refname]; ok {
		return true, nil
	}
	return c.Oracle.IsMerged(ctx, base.Ref.Hash, candidate)
}

// upstreamMerged implements steps 3-4 of §4.4: an upstream is merged
// if it shares the branch's already-proven-merged tip, if it shares a
// fetch upstream that was already proven merged (short-circuiting a
// second synthetic-commit test), or if the oracle says so directly.
func (c *Classifier) upstreamMerged(
	ctx context.Context,
	base RemoteTrackingBranch,
	branchMerged bool,
	branchHash, upstreamHash git.Hash,
	fetch *UpstreamMergeState,
) (bool, error) {
	if branchMerged && upstreamHash == branchHash {
		return true, nil
	}
	if fetch != nil && fetch.Merged && upstreamHash == fetch.Upstream.Ref.Hash {
		return true, nil
	}
	return c.Oracle.IsMerged(ctx, base.Ref.Hash, upstreamHash)
}

func emitUpstream(result *MergedOrStray, rb RemoteBranch, merged bool) {
	if merged {
		result.AddMergedRemote(rb)
	} else {
		result.AddStrayRemote(rb)
	}
}

func (c *Classifier) dispatchBothPresent(
	result *Classification, branchMerged bool, fetch UpstreamMergeState, push []UpstreamMergeState,
) {
	anyUpstreamMerged := fetch.Merged
	for _, p := range push {
		anyUpstreamMerged = anyUpstreamMerged || p.Merged
	}

	switch {
	case branchMerged:
		result.Result.AddMergedLocal(result.Branch.Name)
	case anyUpstreamMerged:
		result.Result.AddStrayLocal(result.Branch.Name)
	default:
		return // alive: emit nothing
	}

	emitUpstream(&result.Result, fetch.Upstream.RemoteBranch(), fetch.Merged)
	for _, p := range push {
		emitUpstream(&result.Result, p.Upstream.RemoteBranch(), p.Merged)
	}
}

func (c *Classifier) dispatchOnePresent(result *Classification, branchMerged bool, only UpstreamMergeState) {
	switch {
	case branchMerged:
		result.Result.AddMergedLocal(result.Branch.Name)
	case only.Merged:
		result.Result.AddStrayLocal(result.Branch.Name)
	default:
		return // alive: emit nothing
	}
	emitUpstream(&result.Result, only.Upstream.RemoteBranch(), only.Merged)
}

func (c *Classifier) dispatchNonePresent(ctx context.Context, result *Classification, branchName string, branchMerged bool) error {
	raw, err := c.Upstream.Raw(ctx, branchName)
	if err != nil {
		return &ConfigMissingError{Branch: branchName, Err: err}
	}

	if raw == nil {
		// No upstream configuration of any kind.
		if branchMerged {
			result.Result.AddMergedLocal(branchName)
		}
		return nil
	}

	heads, haveURL := c.RemoteURLs[raw.RemoteURL]
	_, headExists := heads[raw.MergeRef]

	switch {
	case branchMerged && haveURL && headExists:
		result.Result.AddMergedLocal(branchName)
		result.Result.AddMergedRemote(RemoteBranch{Remote: raw.RemoteURL, Refname: raw.MergeRef})
	case branchMerged:
		result.Result.AddMergedLocal(branchName)
	case haveURL && !headExists:
		result.Result.AddStrayLocal(branchName)
	default:
		// alive: the remote head still exists and nothing is merged.
	}
	return nil
}

func toTrackingBranch(u upstream.Upstream, hash git.Hash) RemoteTrackingBranch {
	if hash == "" {
		hash = u.Hash
	}
	return RemoteTrackingBranch{
		Remote:  u.Remote,
		Refname: u.Refname,
		Ref:     Reference{Name: u.Refname, Hash: hash},
	}
}

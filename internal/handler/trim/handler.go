// Package trim orchestrates the branch classifier and trim planner
// (internal/trim) against a live repository: resolving the base
// branch, listing candidates, building the plan, and carrying out the
// deletions it calls for.
package trim

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"go.abhg.dev/trim/internal/git"
	"go.abhg.dev/trim/internal/silog"
	"go.abhg.dev/trim/internal/sliceutil"
	"go.abhg.dev/trim/internal/trim"
	"go.abhg.dev/trim/internal/upstream"
)

// GitRepository is the subset of the repo access layer the handler
// needs: everything C3 (Merge Oracle), C4 (Classifier), and C5 (Trim
// Planner) require, plus the deletion calls C7 itself makes.
type GitRepository interface {
	ListLocalBranches(ctx context.Context) ([]git.LocalBranch, error)
	ListMergedLocalBranches(ctx context.Context, commitish string) ([]string, error)
	CurrentBranch(ctx context.Context) (string, error)
	PeelToCommit(ctx context.Context, ref string) (git.Hash, error)
	PeelToTree(ctx context.Context, ref string) (git.Hash, error)
	MergeBase(ctx context.Context, a, b string) (git.Hash, error)
	IsAncestor(ctx context.Context, a, b git.Hash) bool
	ForkPoint(ctx context.Context, a, b string) (git.Hash, error)
	CommitTree(ctx context.Context, req git.CommitTreeRequest) (git.Hash, error)
	ListRemotes(ctx context.Context) ([]string, error)
	ListRemoteRefs(ctx context.Context, remote string, opts *git.ListRemoteRefsOptions) iter.Seq2[git.RemoteRef, error]
	ListCommits(ctx context.Context, start, stop string) (*git.RevList, error)
	DeleteBranch(ctx context.Context, branch string, opts git.BranchDeleteOptions) error
	DeleteRemoteTrackingBranch(ctx context.Context, refname string) error
	BranchExists(ctx context.Context, branch string) bool
}

var _ GitRepository = (*git.Repository)(nil)

// ConfigReader is the subset of [git.Config] the upstream resolver
// needs to read branch.<name>.remote/merge.
type ConfigReader interface {
	ListRegexp(ctx context.Context, pattern string) (func(yield func(git.ConfigEntry, error) bool), error)
}

var _ ConfigReader = (*git.Config)(nil)

// Handler orchestrates C1-C6 into one trim run.
type Handler struct {
	Log        *silog.Logger // required
	Repository GitRepository // required
	Config     ConfigReader  // required

	// PushDefault is the resolved push.default policy (§4.2).
	PushDefault upstream.PushDefault

	// Parallelism bounds concurrent per-branch classification; zero
	// lets the planner pick runtime.GOMAXPROCS(0).
	Parallelism int
}

// Request is one trim run's parameters (§6).
type Request struct {
	// Base names the local branch, on the given remote, to classify
	// every other local branch against.
	BaseRemote string
	BaseBranch string

	// BaseRefs and ProtectedPatterns are guards 1 and 2 (§4.5).
	BaseRefs          []string
	ProtectedPatterns []string

	// Filter is guard 4 (§4.5).
	Filter trim.DeleteFilter

	// DryRun, if true, returns the plan without deleting anything.
	DryRun bool
}

// Plan resolves the base branch (req.BaseBranch on req.BaseRemote),
// classifies every local branch against it (the base itself is kept
// back by the planner's base guard), and returns the resulting TrimPlan. Unless req.DryRun is set, it
// also deletes every surviving candidate before returning.
func (h *Handler) Plan(ctx context.Context, req Request) (*trim.TrimPlan, error) {
	baseTrackingRef := "refs/remotes/" + req.BaseRemote + "/" + req.BaseBranch
	baseHash, err := h.Repository.PeelToCommit(ctx, baseTrackingRef)
	if err != nil {
		return nil, &trim.RefResolutionError{Ref: baseTrackingRef, Err: err}
	}
	base := trim.RemoteTrackingBranch{
		Remote:  req.BaseRemote,
		Refname: "refs/heads/" + req.BaseBranch,
		Ref:     trim.Reference{Name: baseTrackingRef, Hash: baseHash},
	}

	resolver := &upstream.Resolver{
		Config:      h.Config,
		Repo:        h.Repository,
		PushDefault: h.PushDefault,
	}

	branches, err := h.Repository.ListLocalBranches(ctx)
	if err != nil {
		return nil, fmt.Errorf("list local branches: %w", err)
	}

	remoteURLs, err := h.buildRemoteHeadsIndex(ctx, resolver, branches)
	if err != nil {
		return nil, err
	}

	classifier := &trim.Classifier{
		Repo:       h.Repository,
		Oracle:     &trim.Oracle{Repo: h.Repository},
		Upstream:   resolver,
		MergedHint: h.buildMergedHint(ctx, baseTrackingRef),
		RemoteURLs: remoteURLs,
	}
	planner := &trim.Planner{
		Repo:        h.Repository,
		Classifier:  classifier,
		Parallelism: h.Parallelism,
	}

	baseRefs := make(map[string]struct{}, len(req.BaseRefs)+1)
	baseRefs[base.Refname] = struct{}{}
	for _, ref := range req.BaseRefs {
		baseRefs[ref] = struct{}{}
	}

	plan, err := planner.Plan(ctx, trim.Request{
		Base:              base,
		BaseRefs:          baseRefs,
		ProtectedPatterns: req.ProtectedPatterns,
		Filter:            req.Filter,
	})
	if err != nil {
		return nil, err
	}

	if !req.DryRun {
		if err := h.deleteAll(ctx, baseTrackingRef, plan); err != nil {
			return plan, err
		}
	}

	return plan, nil
}

// buildMergedHint runs the fast "git for-each-ref --merged" ancestry
// scan (§6) once per run, so the Classifier can skip the Merge
// Oracle's more expensive synthetic-commit test for branches it
// already knows are plain-ancestor-merged. It's an optimization only:
// a failure here never aborts the run, since every branch the scan
// misses still gets classified correctly by the oracle itself.
func (h *Handler) buildMergedHint(ctx context.Context, baseTrackingRef string) map[string]struct{} {
	refs, err := h.Repository.ListMergedLocalBranches(ctx, baseTrackingRef)
	if err != nil {
		h.Log.Debug("merged-branch hint scan failed, falling back to the merge oracle for every branch", "error", err)
		return nil
	}

	hint := make(map[string]struct{}, len(refs))
	for _, ref := range refs {
		hint[ref] = struct{}{}
	}
	return hint
}

// buildRemoteHeadsIndex queries every distinct remote URL that at
// least one candidate's raw (unresolvable-remote) upstream
// configuration names, so the Classifier's S6 fallback has something
// to consult. It's skipped entirely when every candidate's upstream
// resolves through a configured remote (§4.7 step 3).
func (h *Handler) buildRemoteHeadsIndex(ctx context.Context, resolver *upstream.Resolver, branches []git.LocalBranch) (trim.RemoteHeadsIndex, error) {
	urls := make(map[string]struct{})
	for _, b := range branches {
		_, err := resolver.FetchUpstream(ctx, b.Name)
		if err == nil || !errors.Is(err, upstream.ErrNoRemoteBlock) {
			// Either no upstream configuration at all, or one that
			// resolves through a configured remote: no fallback needed.
			continue
		}

		raw, err := resolver.Raw(ctx, b.Name)
		if err != nil {
			return nil, &trim.ConfigMissingError{Branch: b.Name, Err: err}
		}
		if raw != nil {
			urls[raw.RemoteURL] = struct{}{}
		}
	}
	if len(urls) == 0 {
		return nil, nil
	}

	index := make(trim.RemoteHeadsIndex, len(urls))
	for url := range urls {
		refs, err := sliceutil.CollectErr(h.Repository.ListRemoteRefs(ctx, url, &git.ListRemoteRefsOptions{Heads: true}))
		if err != nil {
			return nil, &trim.RemoteQueryFailedError{URL: url, Err: err}
		}

		heads := make(map[string]git.Hash, len(refs))
		for _, ref := range refs {
			heads[ref.Name] = ref.Hash
		}
		index[url] = heads
	}
	return index, nil
}

// deleteAll carries out the plan's ToDelete set: local branches via
// "git branch -D", remote-tracking refs via "git update-ref -d" (trim
// never pushes; it only ever prunes refs already present locally).
func (h *Handler) deleteAll(ctx context.Context, baseTrackingRef string, plan *trim.TrimPlan) error {
	for name := range plan.ToDelete.MergedLocals {
		if err := h.deleteLocal(ctx, name); err != nil {
			return err
		}
	}
	for name := range plan.ToDelete.StrayLocals {
		// Unlike a merged local, a stray local isn't known to be fully
		// integrated into the base: it goes because its upstream was
		// merged or has vanished. Surface what it would take with it.
		h.logLostCommits(ctx, name, baseTrackingRef)
		if err := h.deleteLocal(ctx, name); err != nil {
			return err
		}
	}
	for rb := range plan.ToDelete.MergedRemotes {
		if err := h.deleteRemoteTracking(ctx, rb); err != nil {
			return err
		}
	}
	for rb := range plan.ToDelete.StrayRemotes {
		if err := h.deleteRemoteTracking(ctx, rb); err != nil {
			return err
		}
	}
	return nil
}

// logLostCommits logs, at debug level, the commits reachable from a
// branch but not from base — the history a stray local would take with
// it. It's a diagnostic only: failures here never abort the deletion.
func (h *Handler) logLostCommits(ctx context.Context, branch, baseTrackingRef string) {
	if h.Log.Level() > silog.LevelDebug {
		return
	}

	revs, err := h.Repository.ListCommits(ctx, "refs/heads/"+branch, baseTrackingRef)
	if err != nil {
		h.Log.Debug("could not list lost commits", "branch", branch, "error", err)
		return
	}

	var lost []string
	for revs.Next() {
		lost = append(lost, revs.Commit())
	}
	if err := revs.Err(); err != nil {
		h.Log.Debug("could not list lost commits", "branch", branch, "error", err)
		return
	}

	attrs := []any{"branch", branch, "lost_commits", lost}
	if diverged, err := h.Repository.ForkPoint(ctx, baseTrackingRef, "refs/heads/"+branch); err == nil {
		attrs = append(attrs, "diverged_at", diverged)
	}
	h.Log.Debug("deleting stray local branch", attrs...)
}

func (h *Handler) deleteLocal(ctx context.Context, name string) error {
	if err := h.Repository.DeleteBranch(ctx, name, git.BranchDeleteOptions{Force: true}); err != nil {
		if h.Repository.BranchExists(ctx, name) {
			return fmt.Errorf("delete branch %v: %w", name, err)
		}
		h.Log.Warn("branch may already have been deleted", "branch", name, "error", err)
		return nil
	}
	h.Log.Info("deleted local branch", "branch", name)
	return nil
}

func (h *Handler) deleteRemoteTracking(ctx context.Context, rb trim.RemoteBranch) error {
	refname := trackingRefname(rb)
	if err := h.Repository.DeleteRemoteTrackingBranch(ctx, refname); err != nil {
		return fmt.Errorf("delete remote-tracking ref %v: %w", refname, err)
	}
	h.Log.Info("deleted remote-tracking branch", "ref", refname)
	return nil
}

func trackingRefname(rb trim.RemoteBranch) string {
	name := rb.Refname
	const prefix = "refs/heads/"
	if len(name) >= len(prefix) && name[:len(prefix)] == prefix {
		name = name[len(prefix):]
	}
	return "refs/remotes/" + rb.Remote + "/" + name
}

package trim

import (
	"context"
	"errors"
	"path"
	"runtime"

	"go.abhg.dev/trim/internal/git"
	"golang.org/x/sync/errgroup"
)

// PlannerRepo is the subset of the repo access layer the Trim Planner
// needs directly, beyond what it delegates to the Classifier.
type PlannerRepo interface {
	ListLocalBranches(ctx context.Context) ([]git.LocalBranch, error)
	CurrentBranch(ctx context.Context) (string, error)
}

// DeleteFilter gates which classified candidates the planner is
// willing to put in the final to-delete set (§4.5 guard 4). A nil
// predicate admits everything; [NewDeleteFilter] installs
// always-true defaults.
type DeleteFilter struct {
	IncludeMergedLocal  func(name string) bool
	IncludeStrayLocal   func(name string) bool
	IncludeMergedRemote func(rb RemoteBranch) bool
	IncludeStrayRemote  func(rb RemoteBranch) bool
}

// NewDeleteFilter returns a DeleteFilter whose four predicates all
// admit everything.
func NewDeleteFilter() DeleteFilter {
	always := func(string) bool { return true }
	alwaysRemote := func(RemoteBranch) bool { return true }
	return DeleteFilter{
		IncludeMergedLocal:  always,
		IncludeStrayLocal:   always,
		IncludeMergedRemote: alwaysRemote,
		IncludeStrayRemote:  alwaysRemote,
	}
}

// Request describes one trim run's inputs (§6).
type Request struct {
	// Base is the integration target every candidate is classified against.
	Base RemoteTrackingBranch

	// BaseRefs protects exact refnames from ever appearing in ToDelete,
	// regardless of classification (guard 1).
	BaseRefs map[string]struct{}

	// ProtectedPatterns are glob patterns (matched with path.Match)
	// against a candidate's refname; remote candidates are matched via
	// their remote-tracking refname (guard 2).
	ProtectedPatterns []string

	// Filter gates the final to-delete set (guard 4).
	Filter DeleteFilter
}

// Planner runs the Classifier over every candidate branch and reduces
// the results to a final TrimPlan through the guard pipeline (§4.5).
type Planner struct {
	Repo       PlannerRepo
	Classifier *Classifier

	// Parallelism bounds the number of concurrent per-branch
	// classifications. Zero means Plan picks runtime.GOMAXPROCS(0).
	Parallelism int
}

// Plan lists every local branch, classifies each one (in parallel, §5),
// and reduces the results into a TrimPlan. Branches named in
// req.BaseRefs are classified too and then kept back by guard 1.
func (p *Planner) Plan(ctx context.Context, req Request) (*TrimPlan, error) {
	branches, err := p.Repo.ListLocalBranches(ctx)
	if err != nil {
		return nil, err
	}

	classifications, err := p.classifyAll(ctx, req.Base, branches)
	if err != nil {
		return nil, err
	}

	accum := NewMergedOrStray()
	for _, c := range classifications {
		accum.Merge(c.Result)
	}

	plan := NewTrimPlan()
	plan.ToDelete = accum

	p.guardBase(plan, req.BaseRefs)
	if err := p.guardProtected(plan, req.ProtectedPatterns); err != nil {
		return nil, err
	}
	p.guardNonHeads(plan)
	p.guardFilterScope(plan, req.Filter)
	if err := p.guardDetachedHead(ctx, plan); err != nil {
		return nil, err
	}

	return plan, nil
}

// classifyAll runs the Classifier over every candidate with bounded
// parallelism, cancelling the remaining work at the first error
// (spec §7: per-branch errors are fatal to the whole run).
func (p *Planner) classifyAll(ctx context.Context, base RemoteTrackingBranch, candidates []git.LocalBranch) ([]Classification, error) {
	results := make([]Classification, len(candidates))

	group, groupCtx := errgroup.WithContext(ctx)
	if p.Parallelism > 0 {
		group.SetLimit(p.Parallelism)
	} else {
		group.SetLimit(runtime.GOMAXPROCS(0))
	}

	for i, branch := range candidates {
		group.Go(func() error {
			c, err := p.Classifier.Classify(groupCtx, base, branch)
			if err != nil {
				return err
			}
			results[i] = c
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, &CancelledError{Err: err}
		}
		return nil, err
	}
	return results, nil
}

// guardBase removes exact base refnames from the to-delete sets (guard 1).
func (p *Planner) guardBase(plan *TrimPlan, baseRefs map[string]struct{}) {
	for name := range plan.ToDelete.MergedLocals {
		if _, ok := baseRefs["refs/heads/"+name]; ok {
			p.keepLocal(plan, name, MergedLocal, ReasonBaseBranch)
		}
	}
	for name := range plan.ToDelete.StrayLocals {
		if _, ok := baseRefs["refs/heads/"+name]; ok {
			p.keepLocal(plan, name, StrayLocal, ReasonBaseBranch)
		}
	}
	for rb := range plan.ToDelete.MergedRemotes {
		if _, ok := baseRefs[rb.Refname]; ok {
			p.keepRemote(plan, rb, MergedRemote, ReasonBaseBranch)
		}
	}
	for rb := range plan.ToDelete.StrayRemotes {
		if _, ok := baseRefs[rb.Refname]; ok {
			p.keepRemote(plan, rb, StrayRemote, ReasonBaseBranch)
		}
	}
}

// guardProtected removes candidates matching a protected glob pattern
// (guard 2). Remote candidates match via their remote-tracking refname.
// It returns a *ProtectedPatternError if any pattern is malformed.
func (p *Planner) guardProtected(plan *TrimPlan, patterns []string) error {
	matches := func(refname string) (bool, error) {
		for _, pat := range patterns {
			ok, err := path.Match(pat, refname)
			if err != nil {
				return false, &ProtectedPatternError{Pattern: pat, Err: err}
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	}

	for name := range plan.ToDelete.MergedLocals {
		ok, err := matches("refs/heads/" + name)
		if err != nil {
			return err
		}
		if ok {
			p.keepLocal(plan, name, MergedLocal, ReasonProtectedBranch)
		}
	}
	for name := range plan.ToDelete.StrayLocals {
		ok, err := matches("refs/heads/" + name)
		if err != nil {
			return err
		}
		if ok {
			p.keepLocal(plan, name, StrayLocal, ReasonProtectedBranch)
		}
	}
	for rb := range plan.ToDelete.MergedRemotes {
		ok, err := matches(trackingRefnameFor(rb))
		if err != nil {
			return err
		}
		if ok {
			p.keepRemote(plan, rb, MergedRemote, ReasonProtectedBranch)
		}
	}
	for rb := range plan.ToDelete.StrayRemotes {
		ok, err := matches(trackingRefnameFor(rb))
		if err != nil {
			return err
		}
		if ok {
			p.keepRemote(plan, rb, StrayRemote, ReasonProtectedBranch)
		}
	}
	return nil
}

// guardNonHeads removes remote candidates whose refname is not under
// refs/heads/ (guard 3): PR refs, review refs, and similar.
func (p *Planner) guardNonHeads(plan *TrimPlan) {
	for rb := range plan.ToDelete.MergedRemotes {
		if !isHeadsRef(rb.Refname) {
			p.keepRemote(plan, rb, MergedRemote, ReasonNonHeadsRemote)
		}
	}
	for rb := range plan.ToDelete.StrayRemotes {
		if !isHeadsRef(rb.Refname) {
			p.keepRemote(plan, rb, StrayRemote, ReasonNonHeadsRemote)
		}
	}
}

// guardFilterScope applies the caller's four delete-filter predicates
// (guard 4).
func (p *Planner) guardFilterScope(plan *TrimPlan, filter DeleteFilter) {
	for name := range plan.ToDelete.MergedLocals {
		if filter.IncludeMergedLocal != nil && !filter.IncludeMergedLocal(name) {
			p.keepLocal(plan, name, MergedLocal, ReasonOutOfFilterScope)
		}
	}
	for name := range plan.ToDelete.StrayLocals {
		if filter.IncludeStrayLocal != nil && !filter.IncludeStrayLocal(name) {
			p.keepLocal(plan, name, StrayLocal, ReasonOutOfFilterScope)
		}
	}
	for rb := range plan.ToDelete.MergedRemotes {
		if filter.IncludeMergedRemote != nil && !filter.IncludeMergedRemote(rb) {
			p.keepRemote(plan, rb, MergedRemote, ReasonOutOfFilterScope)
		}
	}
	for rb := range plan.ToDelete.StrayRemotes {
		if filter.IncludeStrayRemote != nil && !filter.IncludeStrayRemote(rb) {
			p.keepRemote(plan, rb, StrayRemote, ReasonOutOfFilterScope)
		}
	}
}

// guardDetachedHead removes the current branch from the local
// to-delete sets, so that deleting it would never detach HEAD (guard 5).
func (p *Planner) guardDetachedHead(ctx context.Context, plan *TrimPlan) error {
	current, err := p.Repo.CurrentBranch(ctx)
	if err != nil {
		if errors.Is(err, git.ErrDetachedHead) {
			return nil
		}
		return &RefResolutionError{Ref: "HEAD", Err: err}
	}

	if _, ok := plan.ToDelete.MergedLocals[current]; ok {
		p.keepLocal(plan, current, MergedLocal, ReasonDetachedHead)
	}
	if _, ok := plan.ToDelete.StrayLocals[current]; ok {
		p.keepLocal(plan, current, StrayLocal, ReasonDetachedHead)
	}
	return nil
}

func (p *Planner) keepLocal(plan *TrimPlan, name string, class OriginalClassification, message string) {
	switch class {
	case MergedLocal:
		delete(plan.ToDelete.MergedLocals, name)
	case StrayLocal:
		delete(plan.ToDelete.StrayLocals, name)
	}
	plan.KeptBacks[name] = Reason{Classification: class, Message: message}
}

func (p *Planner) keepRemote(plan *TrimPlan, rb RemoteBranch, class OriginalClassification, message string) {
	switch class {
	case MergedRemote:
		delete(plan.ToDelete.MergedRemotes, rb)
	case StrayRemote:
		delete(plan.ToDelete.StrayRemotes, rb)
	}
	plan.KeptBackRemotes[rb] = Reason{Classification: class, Message: message}
}

func isHeadsRef(refname string) bool {
	const prefix = "refs/heads/"
	return len(refname) >= len(prefix) && refname[:len(prefix)] == prefix
}

// trackingRefnameFor computes the local remote-tracking refname a
// RemoteBranch is mirrored under, for matching against protected
// patterns (§4.5 guard 2).
func trackingRefnameFor(rb RemoteBranch) string {
	name := rb.Refname
	const prefix = "refs/heads/"
	if len(name) >= len(prefix) && name[:len(prefix)] == prefix {
		name = name[len(prefix):]
	}
	return "refs/remotes/" + rb.Remote + "/" + name
}

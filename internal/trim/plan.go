// Package trim implements the branch classifier and trim planner:
// it decides which local and remote-tracking branches are safe to
// delete because their work has already been integrated into a base
// branch, and produces the final [TrimPlan] of survivors and reasons
// they were kept back.
package trim

import (
	"go.abhg.dev/trim/internal/git"
	"go.abhg.dev/trim/internal/must"
)

// Reference is a symbolic name paired with the commit it currently
// points to. It's immutable once constructed for a repository snapshot.
type Reference struct {
	// Name is the ref's short or full name, depending on context.
	Name string

	// Hash is the commit the reference points to.
	Hash git.Hash
}

// RemoteBranch is a branch published on a remote: a pair of the
// remote's name and the refname it publishes the branch under.
//
// Refname retains its full path form (including a "refs/heads/" prefix
// when applicable) because some tools publish branches under
// non-"refs/heads/" paths, e.g. pull-request refs, and the planner
// must be able to tell those apart.
type RemoteBranch struct {
	Remote  string
	Refname string
}

// RemoteTrackingBranch is a reference in the local repository that
// mirrors a RemoteBranch, e.g. "refs/remotes/origin/feat/a".
type RemoteTrackingBranch struct {
	// Remote is the name of the remote this ref tracks.
	Remote string

	// Refname is the full refname on the remote, e.g. "refs/heads/feat/a".
	Refname string

	// Ref is the local ref that mirrors the remote branch, together
	// with the commit it currently points to.
	Ref Reference
}

// RemoteBranch reports the RemoteBranch this tracking branch mirrors.
func (r RemoteTrackingBranch) RemoteBranch() RemoteBranch {
	return RemoteBranch{Remote: r.Remote, Refname: r.Refname}
}

// UpstreamMergeState is an upstream reference plus whether that
// upstream's tip has been merged into the base, in the Merge Oracle's
// sense (§4.3).
type UpstreamMergeState struct {
	Upstream RemoteTrackingBranch
	Merged   bool
}

// OriginalClassification records which of the four disjoint buckets a
// kept-back candidate originally belonged to, before a guard removed it.
type OriginalClassification int

const (
	// MergedLocal is a local branch whose work is already in the base.
	MergedLocal OriginalClassification = iota
	// StrayLocal is a local branch that isn't itself merged, but whose
	// remote-tracking counterpart is, or whose upstream has vanished.
	StrayLocal
	// MergedRemote is a remote-tracking branch merged into the base.
	MergedRemote
	// StrayRemote is a remote-tracking branch not merged into the base.
	StrayRemote
)

// String renders the classification as the lowercased two-word string
// used throughout diagnostics and the JSON output contract.
func (c OriginalClassification) String() string {
	switch c {
	case MergedLocal:
		return "merged local"
	case StrayLocal:
		return "stray local"
	case MergedRemote:
		return "merged remote"
	case StrayRemote:
		return "stray remote"
	default:
		return "unknown"
	}
}

// Reason records why a candidate was kept back from deletion: what it
// was originally classified as, and a short, stable diagnostic message.
type Reason struct {
	Classification OriginalClassification
	Message        string
}

// Guard messages. These are exact literals so that callers (including
// tests and the JSON output contract) can match on them reliably.
const (
	ReasonBaseBranch       = "a base branch"
	ReasonProtectedBranch  = "a protected branch"
	ReasonNonHeadsRemote   = "a non-heads remote branch"
	ReasonOutOfFilterScope = "out of filter scope"
	ReasonDetachedHead     = "not to make detached HEAD"
)

// MergedOrStray holds four disjoint sets of candidates: merged and
// stray local branch names, and merged and stray RemoteBranches.
//
// Invariant: within one MergedOrStray, no name appears in both
// MergedLocals and StrayLocals; likewise for the remote sets.
type MergedOrStray struct {
	MergedLocals  map[string]struct{}
	StrayLocals   map[string]struct{}
	MergedRemotes map[RemoteBranch]struct{}
	StrayRemotes  map[RemoteBranch]struct{}
}

// NewMergedOrStray returns an empty MergedOrStray with its sets initialized.
func NewMergedOrStray() MergedOrStray {
	return MergedOrStray{
		MergedLocals:  make(map[string]struct{}),
		StrayLocals:   make(map[string]struct{}),
		MergedRemotes: make(map[RemoteBranch]struct{}),
		StrayRemotes:  make(map[RemoteBranch]struct{}),
	}
}

// AddMergedLocal records name as a merged local branch.
// It panics if name is already recorded as stray, since a single
// branch is classified in exactly one call and must not double-add.
func (m *MergedOrStray) AddMergedLocal(name string) {
	_, isStray := m.StrayLocals[name]
	must.NotBef(isStray, "branch %q already recorded as stray local", name)
	m.MergedLocals[name] = struct{}{}
}

// AddStrayLocal records name as a stray local branch.
func (m *MergedOrStray) AddStrayLocal(name string) {
	_, isMerged := m.MergedLocals[name]
	must.NotBef(isMerged, "branch %q already recorded as merged local", name)
	m.StrayLocals[name] = struct{}{}
}

// AddMergedRemote records rb as a merged remote branch.
func (m *MergedOrStray) AddMergedRemote(rb RemoteBranch) {
	_, isStray := m.StrayRemotes[rb]
	must.NotBef(isStray, "remote branch %+v already recorded as stray", rb)
	m.MergedRemotes[rb] = struct{}{}
}

// AddStrayRemote records rb as a stray remote branch.
func (m *MergedOrStray) AddStrayRemote(rb RemoteBranch) {
	_, isMerged := m.MergedRemotes[rb]
	must.NotBef(isMerged, "remote branch %+v already recorded as merged", rb)
	m.StrayRemotes[rb] = struct{}{}
}

// Merge unions other into m. Since set union is commutative and no
// branch is classified twice, the result is independent of call order.
func (m *MergedOrStray) Merge(other MergedOrStray) {
	for name := range other.MergedLocals {
		m.AddMergedLocal(name)
	}
	for name := range other.StrayLocals {
		m.AddStrayLocal(name)
	}
	for rb := range other.MergedRemotes {
		m.AddMergedRemote(rb)
	}
	for rb := range other.StrayRemotes {
		m.AddStrayRemote(rb)
	}
}

// Classification is one branch's classification report.
type Classification struct {
	// Branch is the candidate local branch that was classified.
	Branch Reference

	// Merged reports whether Branch itself is merged into the base.
	Merged bool

	// Fetch is the branch's fetch upstream merge state, if resolved.
	Fetch *UpstreamMergeState

	// Push is the branch's push upstream merge state, if resolved.
	// When the push-default policy is "matching", more than one push
	// destination may exist; PushAll holds every resolved destination.
	Push *UpstreamMergeState

	// PushAll holds every resolved push destination: at most one,
	// except under a "matching" push-default policy. It's empty when
	// none was resolved; Push, if set, is PushAll[0].
	PushAll []UpstreamMergeState

	// Messages are short diagnostic strings describing how this
	// branch was classified, for --verbose output.
	Messages []string

	// Result accumulates this branch's contribution to the run's
	// overall MergedOrStray.
	Result MergedOrStray
}

// TrimPlan is the final outcome of a trim run: the survivors (items to
// actually delete) plus the reasons every other candidate was kept back.
type TrimPlan struct {
	// ToDelete holds the branches and remote-tracking branches that
	// survived every guard and are safe to delete.
	ToDelete MergedOrStray

	// KeptBacks maps a kept-back local branch name to the reason it
	// was excluded from ToDelete.
	KeptBacks map[string]Reason

	// KeptBackRemotes maps a kept-back RemoteBranch to the reason it
	// was excluded from ToDelete.
	KeptBackRemotes map[RemoteBranch]Reason
}

// NewTrimPlan returns an empty TrimPlan with its maps initialized.
func NewTrimPlan() *TrimPlan {
	return &TrimPlan{
		ToDelete:        NewMergedOrStray(),
		KeptBacks:       make(map[string]Reason),
		KeptBackRemotes: make(map[RemoteBranch]Reason),
	}
}

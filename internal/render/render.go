// Package render formats a [trim.TrimPlan] for the three output
// contracts trim supports: a local branch list, a remote branch list,
// and a JSON document (spec.md §6).
package render

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"go.abhg.dev/trim/internal/trim"
)

// Locals writes one local branch short-name per line, sorted ascending.
func Locals(w io.Writer, plan *trim.TrimPlan) error {
	names := make([]string, 0, len(plan.ToDelete.MergedLocals)+len(plan.ToDelete.StrayLocals))
	for name := range plan.ToDelete.MergedLocals {
		names = append(names, name)
	}
	for name := range plan.ToDelete.StrayLocals {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if _, err := fmt.Fprintln(w, name); err != nil {
			return err
		}
	}
	return nil
}

// Remotes writes one "<remote>/<branch>" per line, sorted ascending,
// with the refs/heads/ prefix stripped from <branch>.
func Remotes(w io.Writer, plan *trim.TrimPlan) error {
	lines := make([]string, 0, len(plan.ToDelete.MergedRemotes)+len(plan.ToDelete.StrayRemotes))
	for rb := range plan.ToDelete.MergedRemotes {
		lines = append(lines, remoteLine(rb))
	}
	for rb := range plan.ToDelete.StrayRemotes {
		lines = append(lines, remoteLine(rb))
	}
	sort.Strings(lines)

	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

// Summary writes a one-line human-readable count of what a plan
// deleted (or would delete) and kept back, for interactive use.
func Summary(w io.Writer, plan *trim.TrimPlan) error {
	locals := len(plan.ToDelete.MergedLocals) + len(plan.ToDelete.StrayLocals)
	remotes := len(plan.ToDelete.MergedRemotes) + len(plan.ToDelete.StrayRemotes)
	kept := len(plan.KeptBacks) + len(plan.KeptBackRemotes)

	var parts []string
	if locals > 0 {
		parts = append(parts, fmt.Sprintf("%s local %s", humanize.Comma(int64(locals)), plural(locals, "branch", "branches")))
	}
	if remotes > 0 {
		parts = append(parts, fmt.Sprintf("%s remote-tracking %s", humanize.Comma(int64(remotes)), plural(remotes, "branch", "branches")))
	}
	if len(parts) == 0 {
		_, err := fmt.Fprintln(w, "nothing to trim")
		return err
	}

	line := strings.Join(parts, " and ")
	if kept > 0 {
		line += fmt.Sprintf(" (kept back %s)", humanize.Comma(int64(kept)))
	}
	_, err := fmt.Fprintln(w, line)
	return err
}

func plural(n int, singular, plural string) string {
	if n == 1 {
		return singular
	}
	return plural
}

func remoteLine(rb trim.RemoteBranch) string {
	name := strings.TrimPrefix(rb.Refname, "refs/heads/")
	return rb.Remote + "/" + name
}

// jsonReason is a [trim.Reason] in its wire representation.
type jsonReason struct {
	OriginalClassification string `json:"original_classification"`
	Message                string `json:"message"`
}

// jsonRemoteBranch is a [trim.RemoteBranch] in its wire representation.
type jsonRemoteBranch struct {
	Remote  string `json:"remote"`
	Refname string `json:"refname"`
}

// jsonPlan is a [trim.TrimPlan] in its wire representation: field names
// and shapes fixed by spec.md §6.
type jsonPlan struct {
	ToDelete struct {
		MergedLocals  []string           `json:"merged_locals"`
		StrayLocals   []string           `json:"stray_locals"`
		MergedRemotes []jsonRemoteBranch `json:"merged_remotes"`
		StrayRemotes  []jsonRemoteBranch `json:"stray_remotes"`
	} `json:"to_delete"`
	KeptBacks       map[string]jsonReason `json:"kept_backs"`
	KeptBackRemotes []keptBackRemote      `json:"kept_back_remotes"`
}

type keptBackRemote struct {
	jsonRemoteBranch
	Reason jsonReason `json:"reason"`
}

// JSON serializes plan verbatim to w, per the wire contract in spec.md §6.
func JSON(w io.Writer, plan *trim.TrimPlan) error {
	out := jsonPlan{
		KeptBacks: make(map[string]jsonReason, len(plan.KeptBacks)),
	}

	for name := range plan.ToDelete.MergedLocals {
		out.ToDelete.MergedLocals = append(out.ToDelete.MergedLocals, name)
	}
	for name := range plan.ToDelete.StrayLocals {
		out.ToDelete.StrayLocals = append(out.ToDelete.StrayLocals, name)
	}
	for rb := range plan.ToDelete.MergedRemotes {
		out.ToDelete.MergedRemotes = append(out.ToDelete.MergedRemotes, jsonRemoteBranch{rb.Remote, rb.Refname})
	}
	for rb := range plan.ToDelete.StrayRemotes {
		out.ToDelete.StrayRemotes = append(out.ToDelete.StrayRemotes, jsonRemoteBranch{rb.Remote, rb.Refname})
	}
	sort.Strings(out.ToDelete.MergedLocals)
	sort.Strings(out.ToDelete.StrayLocals)
	sortRemoteBranches(out.ToDelete.MergedRemotes)
	sortRemoteBranches(out.ToDelete.StrayRemotes)

	for name, reason := range plan.KeptBacks {
		out.KeptBacks[name] = jsonReason{
			OriginalClassification: reason.Classification.String(),
			Message:                reason.Message,
		}
	}
	for rb, reason := range plan.KeptBackRemotes {
		out.KeptBackRemotes = append(out.KeptBackRemotes, keptBackRemote{
			jsonRemoteBranch: jsonRemoteBranch{rb.Remote, rb.Refname},
			Reason: jsonReason{
				OriginalClassification: reason.Classification.String(),
				Message:                reason.Message,
			},
		})
	}
	sort.Slice(out.KeptBackRemotes, func(i, j int) bool {
		a, b := out.KeptBackRemotes[i], out.KeptBackRemotes[j]
		if a.Remote != b.Remote {
			return a.Remote < b.Remote
		}
		return a.Refname < b.Refname
	})

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func sortRemoteBranches(rbs []jsonRemoteBranch) {
	sort.Slice(rbs, func(i, j int) bool {
		if rbs[i].Remote != rbs[j].Remote {
			return rbs[i].Remote < rbs[j].Remote
		}
		return rbs[i].Refname < rbs[j].Refname
	})
}

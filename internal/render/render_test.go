package render_test

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/hexops/autogold/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.abhg.dev/trim/internal/render"
	"go.abhg.dev/trim/internal/trim"
)

func samplePlan() *trim.TrimPlan {
	plan := trim.NewTrimPlan()
	plan.ToDelete.AddMergedLocal("feat/a")
	plan.ToDelete.AddStrayLocal("feat/b")
	plan.ToDelete.AddMergedRemote(trim.RemoteBranch{Remote: "origin", Refname: "refs/heads/feat/a"})
	plan.KeptBacks["main"] = trim.Reason{Classification: trim.MergedLocal, Message: trim.ReasonBaseBranch}
	plan.KeptBackRemotes[trim.RemoteBranch{Remote: "origin", Refname: "refs/pulls/42/head"}] = trim.Reason{
		Classification: trim.MergedRemote,
		Message:        trim.ReasonNonHeadsRemote,
	}
	return plan
}

func TestLocals_sortedAscending(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, render.Locals(&buf, samplePlan()))
	assert.Equal(t, "feat/a\nfeat/b\n", buf.String())
}

func TestRemotes_stripsHeadsPrefix(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, render.Remotes(&buf, samplePlan()))
	assert.Equal(t, "origin/feat/a\n", buf.String())
}

func TestJSON_fieldNamesMatchContract(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, render.JSON(&buf, samplePlan()))

	var doc map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))

	toDelete, ok := doc["to_delete"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, toDelete, "merged_locals")
	assert.Contains(t, toDelete, "stray_locals")
	assert.Contains(t, toDelete, "merged_remotes")
	assert.Contains(t, toDelete, "stray_remotes")
	assert.Contains(t, doc, "kept_backs")
	assert.Contains(t, doc, "kept_back_remotes")

	keptBacks, ok := doc["kept_backs"].(map[string]any)
	require.True(t, ok)
	mainReason, ok := keptBacks["main"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "merged local", mainReason["original_classification"])
	assert.Equal(t, trim.ReasonBaseBranch, mainReason["message"])
}

func TestSummary_golden(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, render.Summary(&buf, samplePlan()))
	autogold.Expect("2 local branches and 1 remote-tracking branch (kept back 2)\n").Equal(t, buf.String())
}

func TestSummary(t *testing.T) {
	tests := []struct {
		name string
		plan *trim.TrimPlan
		want string
	}{
		{"nothing", trim.NewTrimPlan(), "nothing to trim\n"},
		{"mixed", samplePlan(), "2 local branches and 1 remote-tracking branch (kept back 2)\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, render.Summary(&buf, tt.plan))
			assert.Equal(t, tt.want, buf.String())
		})
	}
}

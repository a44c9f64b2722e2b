package qa

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"t3-curator/internal/cases"
	"t3-curator/internal/db"
)

func TestBuildReportTallies(t *testing.T) {
	cs := []*cases.Case{
		{TrapType: "CORR:seasonal", Assoc: &cases.Association{Claim: "c", Label: cases.LabelNo}},
		{TrapType: "CORR:reverse", Assoc: &cases.Association{Claim: "c", Label: cases.LabelYes}},
		{TrapType: "CONF:self_selection", Interv: &cases.Intervention{Claim: "c"}},
		{TrapType: "TWIN", Counter: &cases.Counterfactual{Claim: "c", Label: cases.LabelConditional}},
	}
	evs := []db.Evaluation{
		{TotalScore: 9.3, OverallVerdict: "APPROVED"},
		{TotalScore: 8.0, OverallVerdict: "APPROVED"},
		{TotalScore: 6.5, OverallVerdict: "NEEDS_REVIEW"},
		{TotalScore: 2.2, OverallVerdict: "REJECTED"},
	}

	rep := BuildReport("b1", cs, evs)

	assert.Equal(t, "b1", rep.BatchID)
	assert.Equal(t, 4, rep.TotalCases)
	assert.Equal(t, 4, rep.Evaluated)
	assert.Equal(t, map[string]int{"L1": 2, "L2": 1, "L3": 1}, rep.ByLevel)
	assert.Equal(t, map[string]int{"NO": 1, "YES": 1}, rep.LabelsByLevel["L1"])
	assert.Equal(t, map[string]int{"NO": 1}, rep.LabelsByLevel["L2"])
	assert.Equal(t, map[string]int{"CONDITIONAL": 1}, rep.LabelsByLevel["L3"])
	assert.Equal(t, map[string]int{"CORR": 2, "CONF": 1, "TWIN": 1}, rep.TrapFamilies)
	assert.Equal(t, map[string]int{"9.0+": 1, "8.0-8.9": 1, "6.0-6.9": 1, "<6.0": 1}, rep.ScoreRanges)
	assert.Equal(t, map[string]int{"APPROVED": 2, "NEEDS_REVIEW": 1, "REJECTED": 1}, rep.Verdicts)
	assert.InDelta(t, 6.5, rep.MeanScore, 1e-9)
	assert.False(t, rep.GeneratedAt.IsZero())
}

func TestBuildReportEmptyBatch(t *testing.T) {
	rep := BuildReport("b2", nil, nil)
	assert.Zero(t, rep.TotalCases)
	assert.Zero(t, rep.Evaluated)
	assert.Zero(t, rep.MeanScore)
	assert.Empty(t, rep.ByLevel)
}

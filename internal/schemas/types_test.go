package schemas

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"t3-curator/internal/cases"
)

func TestToCaseBuildsTaggedForm(t *testing.T) {
	in := &CaseIn{
		PearlLevel: "L1",
		Scenario:   "s",
		Claim:      "x causes y",
		Label:      "NO",
		Variables:  cases.Variables{Exposure: "x", Outcome: "y"},
		TrapType:   "CORR:spurious",
		Author:     "alice",
	}
	c, err := in.ToCase()
	require.NoError(t, err)
	require.NotNil(t, c.Assoc)
	assert.Nil(t, c.Interv)
	assert.Nil(t, c.Counter)
	assert.Equal(t, cases.L1, c.Level())
	assert.Equal(t, "x causes y", c.Claim())
	assert.False(t, c.IsAmbiguous)
	assert.NotNil(t, c.Variables.Context, "missing z must become an empty set")
	assert.Equal(t, "alice", c.Provenance.Author)
}

func TestToCaseDerivesAmbiguityWhenFlagAbsent(t *testing.T) {
	// L2 records are ambiguous by construction even with label NO.
	l2 := &CaseIn{PearlLevel: "L2", Scenario: "s", Claim: "c", Label: "NO"}
	c, err := l2.ToCase()
	require.NoError(t, err)
	assert.True(t, c.IsAmbiguous)

	// CONDITIONAL implies ambiguous at L3.
	l3 := &CaseIn{PearlLevel: "L3", Scenario: "s", CounterfactualClaim: "cc", Label: "CONDITIONAL"}
	c, err = l3.ToCase()
	require.NoError(t, err)
	assert.True(t, c.IsAmbiguous)

	// A clearly labeled L1 is not.
	l1 := &CaseIn{PearlLevel: "L1", Scenario: "s", Claim: "c", Label: "YES"}
	c, err = l1.ToCase()
	require.NoError(t, err)
	assert.False(t, c.IsAmbiguous)
}

func TestToCaseKeepsExplicitContradictionForValidate(t *testing.T) {
	f := false
	in := &CaseIn{
		PearlLevel:  "L2",
		Scenario:    "s",
		Claim:       "c",
		Label:       "NO",
		IsAmbiguous: &f,
		Variables:   cases.Variables{Exposure: "x", Outcome: "y", Context: cases.ContextSet{}},
		TrapType:    "CONF",
	}
	c, err := in.ToCase()
	require.NoError(t, err)
	assert.False(t, c.IsAmbiguous)
	assert.Error(t, c.Validate())
}

func TestToCaseL3ClaimFallback(t *testing.T) {
	in := &CaseIn{PearlLevel: "L3", Scenario: "s", Claim: "legacy claim field", Label: "VALID"}
	c, err := in.ToCase()
	require.NoError(t, err)
	assert.Equal(t, "legacy claim field", c.Claim())
}

func TestToCaseRejectsUnknownLevel(t *testing.T) {
	in := &CaseIn{PearlLevel: "L4", Scenario: "s", Claim: "c"}
	_, err := in.ToCase()
	assert.Error(t, err)
}

func TestFromCaseRoundTrip(t *testing.T) {
	in := &CaseIn{
		PearlLevel:          "L3",
		Scenario:            "scenario",
		CounterfactualClaim: "had x not happened, y",
		Label:               "CONDITIONAL",
		Variables:           cases.Variables{Exposure: "x", Outcome: "y", Context: cases.ContextSet{"z"}},
		TrapType:            "CF_NEC:necessity",
		HiddenQuestion:      "hq",
		AnswerIfTrue:        "at",
		AnswerIfFalse:       "af",
		Author:              "bob",
		Dataset:             "main",
	}
	c, err := in.ToCase()
	require.NoError(t, err)
	require.NoError(t, c.Validate())

	out := FromCase(c)
	assert.Equal(t, "L3", out.PearlLevel)
	assert.Equal(t, "had x not happened, y", out.CounterfactualClaim)
	assert.Empty(t, out.Claim)
	assert.Equal(t, "CONDITIONAL", out.Label)
	require.NotNil(t, out.IsAmbiguous)
	assert.True(t, *out.IsAmbiguous)
	assert.Equal(t, "hq", out.HiddenQuestion)
	assert.Equal(t, "bob", out.Author)
	assert.Equal(t, "main", out.Dataset)
}

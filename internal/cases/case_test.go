package cases

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validL1() *Case {
	return &Case{
		ID:       "c1",
		Scenario: "Cities with more ice cream sales report more drownings.",
		Variables: Variables{
			Exposure: "ice cream sales",
			Outcome:  "drownings",
			Context:  ContextSet{"summer temperature"},
		},
		TrapType: "CORR:seasonal_confounder",
		Assoc:    &Association{Claim: "Ice cream causes drowning.", Label: LabelNo},
	}
}

func validL2() *Case {
	return &Case{
		ID:       "c2",
		Scenario: "Employees who attend optional trainings get promoted more often.",
		Variables: Variables{
			Exposure: "training attendance",
			Outcome:  "promotion",
			Context:  ContextSet{"motivation"},
		},
		TrapType:    "CONF:self_selection",
		IsAmbiguous: true,
		Ambiguity: &Ambiguity{
			HiddenQuestion: "Does training improve skills independent of who attends?",
			AnswerIfTrue:   "Mandating training raises promotion rates.",
			AnswerIfFalse:  "Mandating training changes nothing.",
		},
		Interv: &Intervention{Claim: "Mandating training will raise promotion rates."},
	}
}

func validL3() *Case {
	return &Case{
		ID:       "c3",
		Scenario: "A patient took the drug and recovered.",
		Variables: Variables{
			Exposure: "drug",
			Outcome:  "recovery",
			Context:  ContextSet{},
		},
		TrapType:    "CF_NEC:probability_of_necessity",
		IsAmbiguous: true,
		Ambiguity: &Ambiguity{
			HiddenQuestion: "Would this patient have recovered untreated?",
			AnswerIfTrue:   "The claim is invalid.",
			AnswerIfFalse:  "The claim is valid.",
		},
		Counter: &Counterfactual{
			Claim: "Had the patient not taken the drug, they would not have recovered.",
			Label: LabelConditional,
		},
	}
}

func TestValidateAcceptsWellFormedCases(t *testing.T) {
	require.NoError(t, validL1().Validate())
	require.NoError(t, validL2().Validate())
	require.NoError(t, validL3().Validate())
}

func TestLevelLabelClaimFollowTheSetDetail(t *testing.T) {
	c := validL2()
	assert.Equal(t, L2, c.Level())
	assert.Equal(t, LabelNo, c.Label())
	assert.Equal(t, "Mandating training will raise promotion rates.", c.Claim())

	c3 := validL3()
	assert.Equal(t, L3, c3.Level())
	assert.Equal(t, LabelConditional, c3.Label())
}

func TestValidateRequiresExactlyOneDetail(t *testing.T) {
	c := validL1()
	c.Interv = &Intervention{Claim: "also intervention"}
	assert.Error(t, c.Validate())

	empty := &Case{ID: "none"}
	assert.Error(t, empty.Validate())
}

func TestValidateRejectsLabelOutsideLevelSpace(t *testing.T) {
	c := validL1()
	c.Assoc.Label = LabelValid // L3-only label
	assert.Error(t, c.Validate())

	c3 := validL3()
	c3.Counter.Label = LabelYes
	assert.Error(t, c3.Validate())
}

func TestValidateRejectsTrapCodeFromWrongLevel(t *testing.T) {
	c := validL1()
	c.TrapType = "CONF:self_selection" // L2 code space
	assert.Error(t, c.Validate())

	c.TrapType = "CORRELATION" // prefix must match whole segment
	assert.Error(t, c.Validate())

	c.TrapType = "CORR" // bare family code is fine
	assert.NoError(t, c.Validate())
}

func TestValidateAmbiguityConsistency(t *testing.T) {
	// AMBIGUOUS label with the flag cleared contradicts itself.
	c := validL1()
	c.Assoc.Label = LabelAmbiguous
	c.IsAmbiguous = false
	assert.Error(t, c.Validate())

	// Flag set but no hidden question.
	c.IsAmbiguous = true
	assert.Error(t, c.Validate())

	c.Ambiguity = &Ambiguity{
		HiddenQuestion: "Is there a third factor?",
		AnswerIfTrue:   "Then no.",
		AnswerIfFalse:  "Then yes.",
	}
	assert.NoError(t, c.Validate())

	// Ambiguity block on a clearly labeled case.
	clear := validL1()
	clear.Ambiguity = &Ambiguity{HiddenQuestion: "q", AnswerIfTrue: "a", AnswerIfFalse: "b"}
	assert.Error(t, clear.Validate())
}

func TestValidateL2IsAlwaysAmbiguous(t *testing.T) {
	c := validL2()
	c.IsAmbiguous = false
	c.Ambiguity = nil
	assert.Error(t, c.Validate())
}

func TestContextSetUnmarshalCoercesScalars(t *testing.T) {
	var z ContextSet
	require.NoError(t, json.Unmarshal([]byte(`["a","b"]`), &z))
	assert.Equal(t, ContextSet{"a", "b"}, z)

	require.NoError(t, json.Unmarshal([]byte(`"lone confounder"`), &z))
	assert.Equal(t, ContextSet{"lone confounder"}, z)

	require.NoError(t, json.Unmarshal([]byte(`""`), &z))
	assert.Equal(t, ContextSet{}, z)

	require.NoError(t, json.Unmarshal([]byte(`null`), &z))
	assert.Equal(t, ContextSet{}, z)

	assert.Error(t, json.Unmarshal([]byte(`42`), &z))
}

func TestVariablesWithNullContextValidate(t *testing.T) {
	c := validL1()
	require.NoError(t, json.Unmarshal([]byte(`{"x":"ice cream sales","y":"drownings","z":null}`), &c.Variables))
	require.NotNil(t, c.Variables.Context)
	assert.NoError(t, c.Validate())
}

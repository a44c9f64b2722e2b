package cases

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// PearlLevel is the rung of Pearl's causal hierarchy a case tests.
type PearlLevel string

const (
	L1 PearlLevel = "L1" // association
	L2 PearlLevel = "L2" // intervention
	L3 PearlLevel = "L3" // counterfactual
)

type Label string

const (
	LabelYes         Label = "YES"
	LabelNo          Label = "NO"
	LabelAmbiguous   Label = "AMBIGUOUS"
	LabelValid       Label = "VALID"
	LabelInvalid     Label = "INVALID"
	LabelConditional Label = "CONDITIONAL"
)

// ContextSet is the Z variable set. It is always a sequence on the wire,
// but legacy records sometimes encoded a single confounder as a bare string.
type ContextSet []string

func (z *ContextSet) UnmarshalJSON(b []byte) error {
	// null also unmarshals cleanly into a nil slice, so check it first.
	if string(bytes.TrimSpace(b)) == "null" {
		*z = ContextSet{}
		return nil
	}
	var many []string
	if err := json.Unmarshal(b, &many); err == nil {
		*z = many
		return nil
	}
	var one string
	if err := json.Unmarshal(b, &one); err == nil {
		if one == "" {
			*z = ContextSet{}
		} else {
			*z = ContextSet{one}
		}
		return nil
	}
	return fmt.Errorf("context variables: expected string or array, got %s", string(b))
}

type Variables struct {
	Exposure string     `json:"x"`
	Outcome  string     `json:"y"`
	Context  ContextSet `json:"z"`
}

// Ambiguity holds the hidden question that decides an ambiguous case, plus
// the two mutually exclusive conditional answers.
type Ambiguity struct {
	HiddenQuestion string `json:"hidden_question"`
	AnswerIfTrue   string `json:"answer_if_true"`
	AnswerIfFalse  string `json:"answer_if_false"`
}

type Provenance struct {
	Author       string    `json:"author"`
	Validator    string    `json:"validator,omitempty"`
	Dataset      string    `json:"dataset,omitempty"`
	SourceCaseID string    `json:"source_case_id,omitempty"`
	Difficulty   string    `json:"difficulty,omitempty"`
	LLMGenerated bool      `json:"llm_generated"`
	Verified     bool      `json:"verified"`
	CreatedAt    time.Time `json:"created_at,omitempty"`
	UpdatedAt    time.Time `json:"updated_at,omitempty"`
}

// Association is the L1 detail: does the stated correlation support the claim?
type Association struct {
	Claim string `json:"claim"`
	Label Label  `json:"label"` // YES, NO or AMBIGUOUS
}

// Intervention is the L2 detail. Every L2 case is a deliberate trap, so the
// record-level label is always NO; the real answer hides behind the hidden
// question.
type Intervention struct {
	Claim string `json:"claim"`
}

// Counterfactual is the L3 detail.
type Counterfactual struct {
	Claim string `json:"counterfactual_claim"`
	Label Label  `json:"label"` // VALID, INVALID or CONDITIONAL
}

// Case is a single benchmark entry. Exactly one of Assoc, Interv, Counter is
// set; which one decides the Pearl level, the label space and the rubric.
type Case struct {
	ID              string     `json:"id"`
	Scenario        string     `json:"scenario"`
	Variables       Variables  `json:"variables"`
	TrapType        string     `json:"trap_type"`
	CausalStructure string     `json:"causal_structure,omitempty"`
	KeyInsight      string     `json:"key_insight,omitempty"`
	GoldRationale   string     `json:"gold_rationale,omitempty"`
	WiseRefusal     string     `json:"wise_refusal,omitempty"`
	IsAmbiguous     bool       `json:"is_ambiguous"`
	Ambiguity       *Ambiguity `json:"ambiguity,omitempty"`
	Provenance      Provenance `json:"provenance"`

	Assoc   *Association    `json:"association,omitempty"`
	Interv  *Intervention   `json:"intervention,omitempty"`
	Counter *Counterfactual `json:"counterfactual,omitempty"`
}

// trapFamilies maps each level to the prefixes of its trap-code space. The
// code spaces are disjoint across levels.
var trapFamilies = map[PearlLevel][]string{
	L1: {"CORR", "SEL", "REVCAUSE", "SPURIOUS"},
	L2: {"CONF", "MEDIATOR", "POLICY", "COLLIDER"},
	L3: {"CF_NEC", "CF_SUF", "TWIN", "UNDETERMINED"},
}

func (c *Case) Level() PearlLevel {
	switch {
	case c.Assoc != nil:
		return L1
	case c.Interv != nil:
		return L2
	case c.Counter != nil:
		return L3
	}
	return ""
}

func (c *Case) Label() Label {
	switch {
	case c.Assoc != nil:
		return c.Assoc.Label
	case c.Interv != nil:
		return LabelNo
	case c.Counter != nil:
		return c.Counter.Label
	}
	return ""
}

func (c *Case) Claim() string {
	switch {
	case c.Assoc != nil:
		return c.Assoc.Claim
	case c.Interv != nil:
		return c.Interv.Claim
	case c.Counter != nil:
		return c.Counter.Claim
	}
	return ""
}

func labelAllowed(level PearlLevel, l Label) bool {
	switch level {
	case L1:
		return l == LabelYes || l == LabelNo || l == LabelAmbiguous
	case L2:
		return l == LabelNo
	case L3:
		return l == LabelValid || l == LabelInvalid || l == LabelConditional
	}
	return false
}

func trapAllowed(level PearlLevel, code string) bool {
	for _, p := range trapFamilies[level] {
		if code == p || strings.HasPrefix(code, p+":") {
			return true
		}
	}
	return false
}

// Validate enforces the write-time invariants. A case that fails here must
// never reach the evaluation pipeline or the store.
func (c *Case) Validate() error {
	n := 0
	for _, set := range []bool{c.Assoc != nil, c.Interv != nil, c.Counter != nil} {
		if set {
			n++
		}
	}
	if n != 1 {
		return fmt.Errorf("case %s: exactly one level detail required, got %d", c.ID, n)
	}
	level := c.Level()

	if strings.TrimSpace(c.Scenario) == "" {
		return fmt.Errorf("case %s: scenario is required", c.ID)
	}
	if strings.TrimSpace(c.Claim()) == "" {
		return fmt.Errorf("case %s: claim is required", c.ID)
	}
	if !labelAllowed(level, c.Label()) {
		return fmt.Errorf("case %s: label %q not allowed at %s", c.ID, c.Label(), level)
	}
	if c.Variables.Exposure == "" || c.Variables.Outcome == "" {
		return fmt.Errorf("case %s: exposure and outcome variables are required", c.ID)
	}
	if c.Variables.Context == nil {
		return fmt.Errorf("case %s: context variable set must be present (may be empty)", c.ID)
	}
	if !trapAllowed(level, c.TrapType) {
		return fmt.Errorf("case %s: trap code %q not in the %s code space", c.ID, c.TrapType, level)
	}

	wantAmbiguous := c.Label() == LabelAmbiguous || c.Label() == LabelConditional || level == L2
	if c.IsAmbiguous != wantAmbiguous {
		return fmt.Errorf("case %s: is_ambiguous=%v inconsistent with label %q", c.ID, c.IsAmbiguous, c.Label())
	}
	if c.IsAmbiguous {
		if c.Ambiguity == nil {
			return fmt.Errorf("case %s: ambiguous case needs a hidden question", c.ID)
		}
		if c.Ambiguity.HiddenQuestion == "" || c.Ambiguity.AnswerIfTrue == "" || c.Ambiguity.AnswerIfFalse == "" {
			return fmt.Errorf("case %s: hidden question and both conditional answers are required", c.ID)
		}
	} else if c.Ambiguity != nil {
		return fmt.Errorf("case %s: ambiguity block present on a non-ambiguous case", c.ID)
	}
	return nil
}

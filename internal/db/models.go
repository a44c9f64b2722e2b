package db

import "time"

// Batch statuses. pending and running are transient; completed and failed
// are terminal.
const (
	BatchPending   = "pending"
	BatchRunning   = "running"
	BatchCompleted = "completed"
	BatchFailed    = "failed"
)

type CaseRow struct {
	ID                 string    `db:"id"`
	PearlLevel         string    `db:"pearl_level"`
	Scenario           string    `db:"scenario"`
	Claim              string    `db:"claim"`
	Label              string    `db:"label"`
	IsAmbiguous        bool      `db:"is_ambiguous"`
	Variables          []byte    `db:"variables"`
	TrapType           string    `db:"trap_type"`
	CausalStructure    string    `db:"causal_structure"`
	KeyInsight         string    `db:"key_insight"`
	GoldRationale      string    `db:"gold_rationale"`
	WiseRefusal        string    `db:"wise_refusal"`
	HiddenQuestion     string    `db:"hidden_question"`
	ConditionalAnswers []byte    `db:"conditional_answers"`
	Author             string    `db:"author"`
	Validator          string    `db:"validator"`
	Dataset            string    `db:"dataset"`
	SourceCaseID       string    `db:"source_case_id"`
	Difficulty         string    `db:"difficulty"`
	LLMGenerated       bool      `db:"llm_generated"`
	Verified           bool      `db:"verified"`
	CreatedAt          time.Time `db:"created_at"`
	UpdatedAt          time.Time `db:"updated_at"`
}

// Evaluation is immutable once inserted; a revision produces new case
// content and a new batch, never an update here.
type Evaluation struct {
	ID             string    `db:"id"`
	CaseID         string    `db:"case_id"`
	BatchID        string    `db:"batch_id"`
	CategoryScores []byte    `db:"category_scores"`
	CategoryNotes  []byte    `db:"category_notes"`
	TotalScore     float64   `db:"total_score"`
	OverallVerdict string    `db:"overall_verdict"`
	PriorityLevel  int       `db:"priority_level"`
	RubricVersion  string    `db:"rubric_version"`
	Model          string    `db:"model"`
	CreatedAt      time.Time `db:"created_at"`
}

type EvaluationBatch struct {
	ID             string    `db:"id"`
	Status         string    `db:"status"`
	TotalCount     int       `db:"total_count"`
	CompletedCount int       `db:"completed_count"`
	CaseIDs        []byte    `db:"case_ids"`
	Error          string    `db:"error"`
	CreatedAt      time.Time `db:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"`
}

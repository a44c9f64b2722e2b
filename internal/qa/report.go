package qa

import (
	"strings"
	"time"

	"t3-curator/internal/cases"
	"t3-curator/internal/db"
)

// Report is the post-batch summary: the same tallies the dataset report
// tooling consumes (per-level counts, per-level labels, trap families,
// score ranges, verdicts).
type Report struct {
	BatchID       string                    `json:"batch_id"`
	GeneratedAt   time.Time                 `json:"generated_at"`
	TotalCases    int                       `json:"total_cases"`
	Evaluated     int                       `json:"evaluated"`
	ByLevel       map[string]int            `json:"by_level"`
	LabelsByLevel map[string]map[string]int `json:"labels_by_level"`
	TrapFamilies  map[string]int            `json:"trap_families"`
	ScoreRanges   map[string]int            `json:"score_ranges"`
	Verdicts      map[string]int            `json:"verdicts"`
	MeanScore     float64                   `json:"mean_score"`
}

func scoreRange(total float64) string {
	switch {
	case total >= 9.0:
		return "9.0+"
	case total >= 8.0:
		return "8.0-8.9"
	case total >= 7.0:
		return "7.0-7.9"
	case total >= 6.0:
		return "6.0-6.9"
	default:
		return "<6.0"
	}
}

func trapFamily(code string) string {
	if i := strings.IndexByte(code, ':'); i > 0 {
		return code[:i]
	}
	return code
}

func BuildReport(batchID string, cs []*cases.Case, evs []db.Evaluation) *Report {
	rep := &Report{
		BatchID:       batchID,
		GeneratedAt:   time.Now().UTC(),
		TotalCases:    len(cs),
		Evaluated:     len(evs),
		ByLevel:       map[string]int{},
		LabelsByLevel: map[string]map[string]int{},
		TrapFamilies:  map[string]int{},
		ScoreRanges:   map[string]int{},
		Verdicts:      map[string]int{},
	}
	for _, c := range cs {
		level := string(c.Level())
		rep.ByLevel[level]++
		if rep.LabelsByLevel[level] == nil {
			rep.LabelsByLevel[level] = map[string]int{}
		}
		rep.LabelsByLevel[level][string(c.Label())]++
		if c.TrapType != "" {
			rep.TrapFamilies[trapFamily(c.TrapType)]++
		}
	}
	var sum float64
	for _, ev := range evs {
		rep.ScoreRanges[scoreRange(ev.TotalScore)]++
		rep.Verdicts[ev.OverallVerdict]++
		sum += ev.TotalScore
	}
	if len(evs) > 0 {
		rep.MeanScore = sum / float64(len(evs))
	}
	return rep
}

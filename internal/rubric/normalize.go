package rubric

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"unicode"
)

// ScorePayload is the canonical form of whatever the external scorer sent
// back. All keys are snake_case; categories that could not be coerced to a
// finite number are simply absent.
type ScorePayload struct {
	Scores        map[string]float64
	Notes         map[string]string
	ReportedTotal *float64
}

// ParseScorePayload turns raw scorer output into a ScorePayload. It never
// fails: one garbage reply must not take down a batch of hundreds, so
// anything unusable degrades to empty maps.
func ParseScorePayload(text string) ScorePayload {
	p := ScorePayload{Scores: map[string]float64{}, Notes: map[string]string{}}

	raw, ok := extractJSON(text)
	if !ok {
		return p
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return p
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return p
	}

	canon := make(map[string]any, len(obj))
	for k, val := range obj {
		canon[SnakeCase(k)] = val
	}

	for _, k := range []string{"total_score", "total", "overall", "overall_score"} {
		if n, found := coerceNumber(canon[k]); found {
			p.ReportedTotal = &n
			break
		}
	}

	var scoreSrc any
	for _, k := range []string{"scores", "category_scores", "rubric_scores"} {
		if s, found := canon[k]; found {
			scoreSrc = s
			break
		}
	}
	if scoreSrc == nil {
		// Flat payload: the object itself is the score map, minus the
		// bookkeeping keys.
		flat := make(map[string]any, len(canon))
		for k, val := range canon {
			switch k {
			case "total_score", "total", "overall", "overall_score", "model", "rubric_version":
			default:
				flat[k] = val
			}
		}
		scoreSrc = flat
	}
	p.Scores = NormalizeScores(scoreSrc)

	for _, k := range []string{"notes", "category_notes", "comments", "justifications"} {
		if s, found := canon[k]; found {
			p.Notes = NormalizeNotes(s)
			break
		}
	}
	return p
}

// NormalizeScores canonicalizes a loosely typed score map. Keys become
// snake_case; values are coerced to finite float64s. Values that cannot be
// coerced are dropped, never defaulted to zero.
func NormalizeScores(v any) map[string]float64 {
	out := map[string]float64{}
	obj, ok := v.(map[string]any)
	if !ok {
		return out
	}
	for k, val := range obj {
		if n, found := coerceNumber(val); found {
			out[SnakeCase(k)] = n
		}
	}
	return out
}

// NormalizeNotes canonicalizes a loosely typed notes map. Notes are
// best-effort diagnostics, so non-string values are stringified rather than
// dropped; only nulls are skipped.
func NormalizeNotes(v any) map[string]string {
	out := map[string]string{}
	obj, ok := v.(map[string]any)
	if !ok {
		return out
	}
	for k, val := range obj {
		switch t := val.(type) {
		case nil:
		case string:
			out[SnakeCase(k)] = t
		case json.Number:
			out[SnakeCase(k)] = t.String()
		default:
			if b, err := json.Marshal(t); err == nil {
				out[SnakeCase(k)] = string(b)
			}
		}
	}
	return out
}

func coerceNumber(v any) (float64, bool) {
	var n float64
	switch t := v.(type) {
	case float64:
		n = t
	case int:
		n = float64(t)
	case int64:
		n = float64(t)
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return 0, false
		}
		n = f
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		n = f
	default:
		return 0, false
	}
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, false
	}
	return n, true
}

// extractJSON pulls the outermost JSON object out of free-form model text,
// tolerating markdown code fences and prose around it.
func extractJSON(text string) ([]byte, bool) {
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end <= start {
		return nil, false
	}
	raw := []byte(text[start : end+1])
	if !json.Valid(raw) {
		return nil, false
	}
	return raw, true
}

// SnakeCase converts a camelCase or mixed key to snake_case. Already-snake
// keys pass through unchanged, so normalization is idempotent.
func SnakeCase(s string) string {
	var b strings.Builder
	rs := []rune(s)
	for i, r := range rs {
		switch {
		case r == ' ' || r == '-':
			b.WriteRune('_')
		case unicode.IsUpper(r):
			if i > 0 && rs[i-1] != '_' {
				prevLower := unicode.IsLower(rs[i-1]) || unicode.IsDigit(rs[i-1])
				nextLower := i+1 < len(rs) && unicode.IsLower(rs[i+1])
				if prevLower || (unicode.IsUpper(rs[i-1]) && nextLower) {
					b.WriteRune('_')
				}
			}
			b.WriteRune(unicode.ToLower(r))
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

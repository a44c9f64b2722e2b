// Package export assembles the final benchmark dataset from verified cases.
package export

import (
	"context"
	"fmt"
	"strings"
	"time"

	"t3-curator/internal/cases"
	"t3-curator/internal/db"
)

// CaseSource lists cases; *db.Store satisfies it.
type CaseSource interface {
	ListCases(ctx context.Context, f db.CaseFilter) ([]*cases.Case, error)
}

// Sink writes the dataset document; the storage client satisfies it.
type Sink interface {
	PutJSONAt(ctx context.Context, key string, v any) (string, error)
}

// Dataset is the exported document shape: a named bundle of cases.
type Dataset struct {
	Name        string        `json:"name"`
	GeneratedAt time.Time     `json:"generated_at"`
	Count       int           `json:"count"`
	Cases       []*cases.Case `json:"cases"`
}

type Exporter struct {
	Source CaseSource
	Sink   Sink
}

// Export collects the verified cases of a dataset (all datasets when name is
// empty) and writes them as one JSON document. Returns the object ref and
// the case count.
func (e *Exporter) Export(ctx context.Context, dataset string) (string, int, error) {
	verified := true
	cs, err := e.Source.ListCases(ctx, db.CaseFilter{Dataset: dataset, Verified: &verified})
	if err != nil {
		return "", 0, fmt.Errorf("list verified cases: %w", err)
	}
	name := dataset
	if name == "" {
		name = "t3-full"
	}
	doc := Dataset{
		Name:        name,
		GeneratedAt: time.Now().UTC(),
		Count:       len(cs),
		Cases:       cs,
	}
	key := fmt.Sprintf("exports/%s_%s.json", safeName(name), doc.GeneratedAt.Format("20060102T150405Z"))
	ref, err := e.Sink.PutJSONAt(ctx, key, doc)
	if err != nil {
		return "", 0, fmt.Errorf("store dataset: %w", err)
	}
	return ref, len(cs), nil
}

func safeName(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

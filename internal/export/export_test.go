package export

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"t3-curator/internal/cases"
	"t3-curator/internal/db"
)

type memSource struct {
	gotFilter db.CaseFilter
	cases     []*cases.Case
}

func (m *memSource) ListCases(_ context.Context, f db.CaseFilter) ([]*cases.Case, error) {
	m.gotFilter = f
	return m.cases, nil
}

type memSink struct {
	key string
	doc any
}

func (m *memSink) PutJSONAt(_ context.Context, key string, v any) (string, error) {
	m.key = key
	m.doc = v
	return "s3://bucket/" + key, nil
}

func TestExportOnlyVerifiedCases(t *testing.T) {
	src := &memSource{cases: []*cases.Case{
		{ID: "a", Assoc: &cases.Association{Claim: "c", Label: cases.LabelNo}},
		{ID: "b", Assoc: &cases.Association{Claim: "c", Label: cases.LabelYes}},
	}}
	sink := &memSink{}
	e := &Exporter{Source: src, Sink: sink}

	ref, count, err := e.Export(context.Background(), "pilot")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.Contains(t, ref, "exports/pilot_")

	require.NotNil(t, src.gotFilter.Verified)
	assert.True(t, *src.gotFilter.Verified)
	assert.Equal(t, "pilot", src.gotFilter.Dataset)

	doc, ok := sink.doc.(Dataset)
	require.True(t, ok)
	assert.Equal(t, "pilot", doc.Name)
	assert.Equal(t, 2, doc.Count)
	assert.Len(t, doc.Cases, 2)
}

func TestExportDefaultsNameAndSanitizesKey(t *testing.T) {
	src := &memSource{}
	sink := &memSink{}
	e := &Exporter{Source: src, Sink: sink}

	_, count, err := e.Export(context.Background(), "")
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Contains(t, sink.key, "exports/t3-full_")

	_, _, err = e.Export(context.Background(), "My Data/Set!")
	require.NoError(t, err)
	assert.Contains(t, sink.key, "exports/my_data_set__")
}

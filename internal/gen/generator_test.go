package gen

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"t3-curator/internal/cases"
	"t3-curator/internal/schemas"
)

type fakeLLM struct {
	reply  string
	prompt string
}

func (f *fakeLLM) Score(_ context.Context, prompt string) (string, error) {
	f.prompt = prompt
	return f.reply, nil
}

type memSink struct {
	inserted []*cases.Case
}

func (m *memSink) InsertCase(_ context.Context, c *cases.Case) error {
	if err := c.Validate(); err != nil {
		return err
	}
	m.inserted = append(m.inserted, c)
	return nil
}

func TestGeneratePersistsValidDraftsOnly(t *testing.T) {
	llm := &fakeLLM{reply: `Here you go:
[
  {"scenario": "s1", "claim": "x causes y", "label": "NO",
   "variables": {"x": "x", "y": "y", "z": []}, "trap_type": "CORR:spurious"},
  {"scenario": "", "claim": "missing scenario", "label": "NO",
   "variables": {"x": "x", "y": "y", "z": []}, "trap_type": "CORR"},
  {"scenario": "s3", "claim": "x causes y", "label": "YES",
   "variables": {"x": "x", "y": "y", "z": "single confounder"}, "trap_type": "SEL:survivorship"}
]`}
	sink := &memSink{}
	g := &Generator{LLM: llm, Store: sink}

	created, skipped, err := g.Generate(context.Background(), schemas.GenerateRequest{
		PearlLevel: "L1",
		Count:      3,
		Author:     "gen-bot",
		Dataset:    "drafts",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, skipped)
	require.Len(t, created, 2)
	assert.Len(t, sink.inserted, 2)

	for _, c := range created {
		assert.NotEmpty(t, c.ID)
		assert.True(t, c.Provenance.LLMGenerated)
		assert.False(t, c.Provenance.Verified)
		assert.Equal(t, "gen-bot", c.Provenance.Author)
		assert.Equal(t, "drafts", c.Provenance.Dataset)
		assert.Equal(t, cases.L1, c.Level())
	}
	// Legacy scalar z coerces into a one-element set.
	assert.Equal(t, cases.ContextSet{"single confounder"}, created[1].Variables.Context)
}

func TestGenerateRejectsUnknownLevel(t *testing.T) {
	g := &Generator{LLM: &fakeLLM{}, Store: &memSink{}}
	_, _, err := g.Generate(context.Background(), schemas.GenerateRequest{PearlLevel: "L9"})
	assert.Error(t, err)
}

func TestGenerateUnparseableReplySkipsNothingFatally(t *testing.T) {
	g := &Generator{LLM: &fakeLLM{reply: "I refuse to answer."}, Store: &memSink{}}
	created, skipped, err := g.Generate(context.Background(), schemas.GenerateRequest{PearlLevel: "L2"})
	require.NoError(t, err)
	assert.Empty(t, created)
	assert.Zero(t, skipped)
}

func TestGeneratePromptCarriesConstraints(t *testing.T) {
	llm := &fakeLLM{reply: "[]"}
	g := &Generator{LLM: llm, Store: &memSink{}}
	_, _, err := g.Generate(context.Background(), schemas.GenerateRequest{
		PearlLevel: "L2",
		Domain:     "public health",
		TrapType:   "CONF:self_selection",
		Count:      50, // clamped
	})
	require.NoError(t, err)
	assert.Contains(t, llm.prompt, "Draft 10 candidate L2 cases")
	assert.Contains(t, llm.prompt, "Domain: public health")
	assert.Contains(t, llm.prompt, "CONF:self_selection")
	assert.Contains(t, llm.prompt, "hidden_question")
}

package scorer

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyAPIErrorTokenLimit(t *testing.T) {
	tokenLimited := [][2]any{
		{429, `{"error": {"code": 429, "status": "RESOURCE_EXHAUSTED", "message": "quota exceeded"}}`},
		{400, `{"error": {"code": 400, "status": "INVALID_ARGUMENT", "message": "request exceeds the token limit"}}`},
		{400, `{"error": {"message": "total token count too large"}}`},
		{429, `not even json`},
	}
	for _, tc := range tokenLimited {
		err := classifyAPIError(tc[0].(int), []byte(tc[1].(string)))
		assert.ErrorIs(t, err, ErrTokenLimit, "body %s", tc[1])
	}

	err := classifyAPIError(403, []byte(`{"error": {"status": "PERMISSION_DENIED", "message": "bad key"}}`))
	assert.NotErrorIs(t, err, ErrTokenLimit)
	assert.Contains(t, err.Error(), "PERMISSION_DENIED")
}

func TestJobStatusTerminal(t *testing.T) {
	for _, s := range []JobStatus{JobCompleted, JobFailed, JobExpired, JobCanceled} {
		assert.True(t, s.Terminal(), string(s))
	}
	for _, s := range []JobStatus{JobQueued, JobRunning} {
		assert.False(t, s.Terminal(), string(s))
	}
}

func TestGeminiBatchLifecycle(t *testing.T) {
	const jobName = "batches/job-123"

	mux := http.NewServeMux()
	mux.HandleFunc("POST /models/test-model:batchGenerateContent", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "key", r.Header.Get("x-goog-api-key"))
		var body struct {
			Batch struct {
				InputConfig struct {
					Requests struct {
						Requests []struct {
							Metadata map[string]string `json:"metadata"`
						} `json:"requests"`
					} `json:"requests"`
				} `json:"input_config"`
			} `json:"batch"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		reqs := body.Batch.InputConfig.Requests.Requests
		require.Len(t, reqs, 2)
		assert.Equal(t, "case-a", reqs[0].Metadata["key"])

		_ = json.NewEncoder(w).Encode(map[string]any{"name": jobName})
	})
	mux.HandleFunc("GET /"+jobName, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"name": jobName,
			"done": true,
			"metadata": map[string]any{
				"state": "BATCH_STATE_SUCCEEDED",
			},
			"response": map[string]any{
				"inlinedResponses": map[string]any{
					"inlinedResponses": []map[string]any{
						{
							"metadata": map[string]string{"key": "case-b"},
							"response": map[string]any{
								"candidates": []map[string]any{{
									"content": map[string]any{
										"parts": []map[string]any{{"text": `{"scores": {}}`}},
									},
								}},
							},
						},
						{
							"metadata": map[string]string{"key": "case-a"},
							"error":    map[string]any{"message": "safety block"},
						},
					},
				},
			},
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	b := NewGeminiBatch("key", "test-model")
	b.baseURL = srv.URL

	ctx := context.Background()
	jobID, err := b.Submit(ctx, []BulkRequest{
		{ID: "case-a", Prompt: "score a"},
		{ID: "case-b", Prompt: "score b"},
	})
	require.NoError(t, err)
	assert.Equal(t, jobName, jobID)

	status, err := b.Status(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, JobCompleted, status)

	results, err := b.Results(ctx, jobID)
	require.NoError(t, err)
	require.Len(t, results, 2)
	// Results arrive in provider order, addressable only by correlation key.
	assert.Equal(t, "case-b", results[0].ID)
	assert.Equal(t, `{"scores": {}}`, results[0].Text)
	assert.Equal(t, "case-a", results[1].ID)
	assert.Equal(t, "safety block", results[1].Err)
}

func TestGeminiBatchSubmitTokenLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error": {"status": "RESOURCE_EXHAUSTED", "message": "quota"}}`))
	}))
	defer srv.Close()

	b := NewGeminiBatch("key", "test-model")
	b.baseURL = srv.URL

	_, err := b.Submit(context.Background(), []BulkRequest{{ID: "x", Prompt: "p"}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTokenLimit))
}

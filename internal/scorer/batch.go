package scorer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultBatchBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// GeminiBatch drives the Gemini batch endpoint over plain REST: one
// submission carries many inlined requests, each tagged with a correlation
// key that comes back attached to its response.
type GeminiBatch struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

func NewGeminiBatch(apiKey, model string) *GeminiBatch {
	if strings.TrimSpace(model) == "" {
		model = defaultModel
	}
	return &GeminiBatch{
		apiKey:     apiKey,
		baseURL:    defaultBatchBaseURL,
		model:      model,
		httpClient: &http.Client{Timeout: 2 * time.Minute},
	}
}

type batchAPIError struct {
	Error struct {
		Code    int    `json:"code"`
		Status  string `json:"status"`
		Message string `json:"message"`
	} `json:"error"`
}

type batchState struct {
	Name     string `json:"name"`
	Done     bool   `json:"done"`
	Metadata struct {
		State string `json:"state"`
	} `json:"metadata"`
	Response struct {
		InlinedResponses struct {
			InlinedResponses []inlinedResponse `json:"inlinedResponses"`
		} `json:"inlinedResponses"`
	} `json:"response"`
}

type inlinedResponse struct {
	Metadata map[string]string `json:"metadata"`
	Error    *struct {
		Message string `json:"message"`
	} `json:"error"`
	Response *struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	} `json:"response"`
}

func (b *GeminiBatch) Submit(ctx context.Context, reqs []BulkRequest) (string, error) {
	inlined := make([]map[string]any, len(reqs))
	for i, r := range reqs {
		inlined[i] = map[string]any{
			"request": map[string]any{
				"contents": []map[string]any{{
					"role":  "user",
					"parts": []map[string]any{{"text": r.Prompt}},
				}},
			},
			"metadata": map[string]string{"key": r.ID},
		}
	}
	body := map[string]any{
		"batch": map[string]any{
			"display_name": fmt.Sprintf("t3-eval-%d", time.Now().UnixNano()),
			"input_config": map[string]any{
				"requests": map[string]any{"requests": inlined},
			},
		},
	}

	url := fmt.Sprintf("%s/models/%s:batchGenerateContent", b.baseURL, b.model)
	var out batchState
	if err := b.do(ctx, http.MethodPost, url, body, &out); err != nil {
		return "", err
	}
	if out.Name == "" {
		return "", fmt.Errorf("batch submit: no job name in response")
	}
	return out.Name, nil
}

func (b *GeminiBatch) Status(ctx context.Context, jobID string) (JobStatus, error) {
	st, err := b.get(ctx, jobID)
	if err != nil {
		return "", err
	}
	switch st.Metadata.State {
	case "BATCH_STATE_PENDING":
		return JobQueued, nil
	case "BATCH_STATE_RUNNING":
		return JobRunning, nil
	case "BATCH_STATE_SUCCEEDED":
		return JobCompleted, nil
	case "BATCH_STATE_FAILED":
		return JobFailed, nil
	case "BATCH_STATE_EXPIRED":
		return JobExpired, nil
	case "BATCH_STATE_CANCELLED":
		return JobCanceled, nil
	}
	if st.Done {
		return JobCompleted, nil
	}
	return JobRunning, nil
}

func (b *GeminiBatch) Results(ctx context.Context, jobID string) ([]BulkResult, error) {
	st, err := b.get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	entries := st.Response.InlinedResponses.InlinedResponses
	out := make([]BulkResult, 0, len(entries))
	for _, e := range entries {
		res := BulkResult{ID: e.Metadata["key"]}
		if e.Error != nil {
			res.Err = e.Error.Message
		} else if e.Response != nil {
			var sb strings.Builder
			for _, c := range e.Response.Candidates {
				for _, p := range c.Content.Parts {
					sb.WriteString(p.Text)
				}
			}
			res.Text = sb.String()
		}
		out = append(out, res)
	}
	return out, nil
}

func (b *GeminiBatch) get(ctx context.Context, jobID string) (*batchState, error) {
	url := fmt.Sprintf("%s/%s", b.baseURL, jobID)
	var st batchState
	if err := b.do(ctx, http.MethodGet, url, nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

func (b *GeminiBatch) do(ctx context.Context, method, url string, body, out any) error {
	var rd io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("batch request marshal: %w", err)
		}
		rd = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, rd)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", b.apiKey)

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("batch %s %s: %w", method, url, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("batch read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return classifyAPIError(resp.StatusCode, data)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("batch decode response: %w", err)
	}
	return nil
}

// classifyAPIError maps provider error bodies to sentinel errors so the
// runner can tell a capacity rejection from everything else.
func classifyAPIError(status int, body []byte) error {
	var apiErr batchAPIError
	_ = json.Unmarshal(body, &apiErr)
	msg := apiErr.Error.Message
	if msg == "" {
		msg = strings.TrimSpace(string(body))
	}
	lower := strings.ToLower(msg)
	if apiErr.Error.Status == "RESOURCE_EXHAUSTED" || status == http.StatusTooManyRequests ||
		strings.Contains(lower, "token limit") || strings.Contains(lower, "token count") {
		return fmt.Errorf("%w: %s", ErrTokenLimit, msg)
	}
	return fmt.Errorf("batch API %d %s: %s", status, apiErr.Error.Status, msg)
}

// Smoke driver for a running t3-curator API: creates a handful of cases,
// kicks off an evaluation batch, polls it to a terminal state and prints the
// verdicts.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

type caseResp struct {
	ID string `json:"id"`
}

type batchResp struct {
	BatchID    string `json:"batch_id"`
	TotalCount int    `json:"total_count"`
}

type batchStatus struct {
	BatchID        string `json:"batch_id"`
	Status         string `json:"status"`
	TotalCount     int    `json:"total_count"`
	CompletedCount int    `json:"completed_count"`
	Error          string `json:"error,omitempty"`
	Evaluations    []struct {
		CaseID         string  `json:"case_id"`
		TotalScore     float64 `json:"total_score"`
		OverallVerdict string  `json:"overall_verdict"`
		PriorityLevel  int     `json:"priority_level"`
	} `json:"evaluations,omitempty"`
}

func main() {
	base := envOr("API_BASE_URL", "http://localhost:8000")
	token := envOr("API_TOKEN", "dev-secret-token")

	baseFlag := flag.String("base", base, "API base URL (e.g., http://localhost:8000)")
	tokenFlag := flag.String("token", token, "API token for admin endpoints")
	wait := flag.Duration("wait", 5*time.Minute, "How long to poll for batch completion")
	flag.Parse()

	httpc := &http.Client{Timeout: 30 * time.Second}

	// 1) Create sample cases, one per level
	samples := []map[string]any{
		{
			"pearl_level": "L1",
			"scenario":    "Cities with more ice cream sales report more drownings each summer.",
			"claim":       "Ice cream consumption causes drowning.",
			"label":       "NO",
			"variables":   map[string]any{"x": "ice cream sales", "y": "drownings", "z": []string{"summer temperature"}},
			"trap_type":   "CORR:seasonal_confounder",
			"author":      "smoke",
			"dataset":     "smoke",
		},
		{
			"pearl_level":     "L2",
			"scenario":        "Employees who attend optional trainings get promoted more often. HR proposes making training mandatory.",
			"claim":           "Mandating training will raise promotion rates.",
			"label":           "NO",
			"variables":       map[string]any{"x": "training attendance", "y": "promotion", "z": []string{"motivation"}},
			"trap_type":       "CONF:self_selection",
			"hidden_question": "Does training itself improve the skills promotions reward, independent of who chooses to attend?",
			"answer_if_true":  "Mandating training should raise promotion rates somewhat.",
			"answer_if_false": "Mandating training will not change promotion rates; attendance only marked motivated employees.",
			"wise_refusal":    "Cannot answer without knowing whether attendance has an effect beyond selection.",
			"author":          "smoke",
			"dataset":         "smoke",
		},
		{
			"pearl_level":          "L3",
			"scenario":             "A patient took the drug and recovered. The drug cures 90% of patients; untreated recovery is 10%.",
			"counterfactual_claim": "Had the patient not taken the drug, they would not have recovered.",
			"label":                "CONDITIONAL",
			"variables":            map[string]any{"x": "drug", "y": "recovery", "z": []string{}},
			"trap_type":            "CF_NEC:probability_of_necessity",
			"hidden_question":      "Was this patient one of the 10% who recover untreated?",
			"answer_if_true":       "The claim is invalid; they would have recovered anyway.",
			"answer_if_false":      "The claim is valid; recovery depended on the drug.",
			"author":               "smoke",
			"dataset":              "smoke",
		},
	}

	ids := make([]string, 0, len(samples))
	for _, body := range samples {
		var created caseResp
		if err := postJSON(httpc, *baseFlag+"/cases", *tokenFlag, body, &created); err != nil {
			fatalf("create case: %v", err)
		}
		fmt.Printf("created case %s (%s)\n", created.ID, body["pearl_level"])
		ids = append(ids, created.ID)
	}

	// 2) Kick off a batch over just those cases
	var batch batchResp
	if err := postJSON(httpc, *baseFlag+"/batches", *tokenFlag, map[string]any{"case_ids": ids}, &batch); err != nil {
		fatalf("create batch: %v", err)
	}
	fmt.Printf("batch %s enqueued (%d cases)\n", batch.BatchID, batch.TotalCount)

	// 3) Poll the read-only surface until terminal
	deadline := time.Now().Add(*wait)
	for {
		var st batchStatus
		if err := getJSON(httpc, fmt.Sprintf("%s/batches/%s", *baseFlag, batch.BatchID), &st); err != nil {
			fatalf("poll batch: %v", err)
		}
		fmt.Printf("status=%s progress=%d/%d\n", st.Status, st.CompletedCount, st.TotalCount)
		if st.Status == "completed" || st.Status == "failed" {
			if st.Status == "failed" {
				fatalf("batch failed: %s", st.Error)
			}
			for _, ev := range st.Evaluations {
				fmt.Printf("  case %s: %.1f -> %s (priority %d)\n",
					ev.CaseID, ev.TotalScore, ev.OverallVerdict, ev.PriorityLevel)
			}
			fmt.Println("smoke run OK")
			return
		}
		if time.Now().After(deadline) {
			fatalf("batch not terminal after %s", *wait)
		}
		time.Sleep(3 * time.Second)
	}
}

func postJSON(httpc *http.Client, url, token string, body, out any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s: %s", resp.Status, string(data))
	}
	return json.Unmarshal(data, out)
}

func getJSON(httpc *http.Client, url string, out any) error {
	resp, err := httpc.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s: %s", resp.Status, string(data))
	}
	return json.Unmarshal(data, out)
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

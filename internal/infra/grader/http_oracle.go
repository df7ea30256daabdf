package grader

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// HTTPOracle calls the external grading service over HTTP. Callers treat
// any error as an incorrect verdict; the adapter only reports, it never
// decides fail-open.
type HTTPOracle struct {
	baseURL string
	client  *http.Client
}

func NewHTTPOracle(baseURL string, timeout time.Duration) *HTTPOracle {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPOracle{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

type evaluateRequest struct {
	ChallengeID string `json:"challengeId"`
	Code        string `json:"code"`
}

type evaluateResponse struct {
	IsCorrect bool `json:"isCorrect"`
}

func (o *HTTPOracle) Evaluate(ctx context.Context, challengeID, code string) (bool, error) {
	body, err := json.Marshal(evaluateRequest{ChallengeID: challengeID, Code: code})
	if err != nil {
		return false, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/evaluate", bytes.NewReader(body))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("grading oracle: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("grading oracle: unexpected status %d", resp.StatusCode)
	}

	var verdict evaluateResponse
	if err := json.NewDecoder(resp.Body).Decode(&verdict); err != nil {
		return false, fmt.Errorf("grading oracle: decode verdict: %w", err)
	}
	return verdict.IsCorrect, nil
}

package judge

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/fraglens/painmap/pkg/models"
)

// maxResponseBytes caps how much of a judgment response is read.
const maxResponseBytes = 1 << 20

// HTTPJudge calls a judgment service over HTTP.
type HTTPJudge struct {
	url    string
	client *http.Client
}

// NewHTTPJudge creates a judge client for the given endpoint.
func NewHTTPJudge(url string, timeout time.Duration) *HTTPJudge {
	return &HTTPJudge{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

// judgeRequest is the wire form of a judgment call.
type judgeRequest struct {
	Events []eventSummaryWire `json:"events"`
}

type eventSummaryWire struct {
	ID         string `json:"id"`
	Actor      string `json:"actor"`
	Situation  string `json:"situation"`
	Problem    string `json:"problem"`
	Workaround string `json:"workaround,omitempty"`
}

// JudgeGroup posts the ordered event summaries and decodes the decision.
// Any transport failure, non-2xx status, or undecodable body is an error;
// the judge never fabricates a decision.
func (j *HTTPJudge) JudgeGroup(ctx context.Context, summaries []models.EventSummary) (*Decision, error) {
	wire := judgeRequest{Events: make([]eventSummaryWire, len(summaries))}
	for i, s := range summaries {
		wire.Events[i] = eventSummaryWire{
			ID:         s.ID,
			Actor:      s.Actor,
			Situation:  s.Situation,
			Problem:    s.Problem,
			Workaround: s.Workaround,
		}
	}

	body, err := json.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("marshal judge request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, j.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build judge request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := j.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("judge request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("judge returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read judge response: %w", err)
	}

	var decision Decision
	if err := json.Unmarshal(data, &decision); err != nil {
		return nil, fmt.Errorf("decode judge response: %w", err)
	}

	if decision.SameWorkflow && decision.WorkflowName == "" {
		return nil, fmt.Errorf("judge accepted group without a workflow name")
	}
	if decision.Confidence < 0 {
		decision.Confidence = 0
	}
	if decision.Confidence > 1 {
		decision.Confidence = 1
	}

	return &decision, nil
}

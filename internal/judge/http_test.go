package judge

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fraglens/painmap/pkg/models"
)

func testSummaries() []models.EventSummary {
	return []models.EventSummary{
		{ID: "a", Actor: "freelancer", Situation: "invoicing", Problem: "can't track invoices manually"},
		{ID: "b", Actor: "consultant", Situation: "invoicing", Problem: "spreadsheet tracking is error-prone"},
	}
}

func TestHTTPJudge_Accept(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req struct {
			Events []models.EventSummary `json:"events"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Events, 2)
		assert.Equal(t, "a", req.Events[0].ID)

		_ = json.NewEncoder(w).Encode(Decision{
			SameWorkflow: true,
			WorkflowName: "invoice tracking",
			Confidence:   0.9,
		})
	}))
	defer srv.Close()

	j := NewHTTPJudge(srv.URL, 5*time.Second)
	decision, err := j.JudgeGroup(context.Background(), testSummaries())
	require.NoError(t, err)
	assert.True(t, decision.SameWorkflow)
	assert.Equal(t, "invoice tracking", decision.WorkflowName)
	assert.InDelta(t, 0.9, decision.Confidence, 0.001)
}

func TestHTTPJudge_Reject(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(Decision{SameWorkflow: false})
	}))
	defer srv.Close()

	j := NewHTTPJudge(srv.URL, 5*time.Second)
	decision, err := j.JudgeGroup(context.Background(), testSummaries())
	require.NoError(t, err)
	assert.False(t, decision.SameWorkflow)
}

func TestHTTPJudge_MalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not json at all"))
	}))
	defer srv.Close()

	j := NewHTTPJudge(srv.URL, 5*time.Second)
	_, err := j.JudgeGroup(context.Background(), testSummaries())
	assert.Error(t, err)
}

func TestHTTPJudge_AcceptWithoutName(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(Decision{SameWorkflow: true, Confidence: 0.8})
	}))
	defer srv.Close()

	j := NewHTTPJudge(srv.URL, 5*time.Second)
	_, err := j.JudgeGroup(context.Background(), testSummaries())
	assert.Error(t, err)
}

func TestHTTPJudge_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	j := NewHTTPJudge(srv.URL, 5*time.Second)
	_, err := j.JudgeGroup(context.Background(), testSummaries())
	assert.Error(t, err)
}

func TestHTTPJudge_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // shut down before calling

	j := NewHTTPJudge(srv.URL, 1*time.Second)
	_, err := j.JudgeGroup(context.Background(), testSummaries())
	assert.Error(t, err)
}

func TestHTTPJudge_ConfidenceClamped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(Decision{
			SameWorkflow: true,
			WorkflowName: "invoice tracking",
			Confidence:   3.5,
		})
	}))
	defer srv.Close()

	j := NewHTTPJudge(srv.URL, 5*time.Second)
	decision, err := j.JudgeGroup(context.Background(), testSummaries())
	require.NoError(t, err)
	assert.Equal(t, 1.0, decision.Confidence)
}

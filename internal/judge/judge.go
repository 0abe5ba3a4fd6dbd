// Package judge provides the client for the external text-judgment
// collaborator that decides whether a candidate group is one workflow.
package judge

import (
	"context"

	"github.com/fraglens/painmap/pkg/models"
)

// Decision is the collaborator's answer for one candidate group.
type Decision struct {
	SameWorkflow bool    `json:"same_workflow"`
	WorkflowName string  `json:"workflow_name"`
	Confidence   float64 `json:"confidence"`
}

// Judge issues one judgment call per candidate group. Implementations are
// treated as unreliable: timeouts and malformed responses surface as errors
// and the caller degrades to rejection for the current run.
type Judge interface {
	JudgeGroup(ctx context.Context, summaries []models.EventSummary) (*Decision, error)
}

package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidationResult_Accepted(t *testing.T) {
	accepted := ValidationResult{Verdict: VerdictAccepted, WorkflowName: "invoice tracking", Confidence: 0.9}
	assert.True(t, accepted.Accepted())

	assert.False(t, ValidationResult{Verdict: VerdictRejected}.Accepted())
	assert.False(t, ValidationResult{Verdict: VerdictMalformed}.Accepted())
}

func TestVerdict_String(t *testing.T) {
	assert.Equal(t, "accepted", VerdictAccepted.String())
	assert.Equal(t, "rejected", VerdictRejected.String())
	assert.Equal(t, "malformed", VerdictMalformed.String())
}

func TestCandidateGroup_Summaries(t *testing.T) {
	group := CandidateGroup{
		EventIDs: []string{"a", "b"},
		Events: []*PainEvent{
			{ID: "a", Actor: "freelancer", Problem: "can't track invoices"},
			{ID: "b", Actor: "consultant", Problem: "spreadsheet tracking is error-prone"},
		},
	}

	require.Equal(t, 2, group.Size())
	sums := group.Summaries()
	require.Len(t, sums, 2)
	assert.Equal(t, "a", sums[0].ID)
	assert.Equal(t, "b", sums[1].ID)
	assert.Equal(t, "can't track invoices", sums[0].Problem)
}

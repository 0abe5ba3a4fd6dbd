package cluster

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/fraglens/painmap/internal/judge"
	"github.com/fraglens/painmap/pkg/models"
)

// Validator applies the interaction contract around the judgment
// collaborator: one call per candidate group per run, read-only, no retry
// within a run. Failures degrade to a malformed verdict with confidence 0;
// a positive decision is never fabricated.
type Validator struct {
	judge judge.Judge
}

// NewValidator creates a validator over the given judge.
func NewValidator(j judge.Judge) *Validator {
	return &Validator{judge: j}
}

// Validate issues exactly one judgment call for the group and maps the
// outcome to a tagged result. Malformed results leave the group eligible for
// the next run.
func (v *Validator) Validate(ctx context.Context, group models.CandidateGroup) models.ValidationResult {
	decision, err := v.judge.JudgeGroup(ctx, group.Summaries())
	if err != nil {
		log.Warn().Err(err).
			Int("group_size", group.Size()).
			Msg("Judgment call failed, group deferred to next run")
		return models.ValidationResult{Verdict: models.VerdictMalformed}
	}

	if !decision.SameWorkflow {
		return models.ValidationResult{Verdict: models.VerdictRejected}
	}

	return models.ValidationResult{
		Verdict:      models.VerdictAccepted,
		WorkflowName: decision.WorkflowName,
		Confidence:   decision.Confidence,
	}
}

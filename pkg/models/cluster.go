// Package models contains domain models for painmap.
package models

import "time"

// Cluster is the durable unit of output: a validated, growable grouping of
// pain events representing one workflow problem.
type Cluster struct {
	ID                 string   `db:"id" json:"id"`
	Name               string   `db:"name" json:"name"`
	Description        string   `db:"description" json:"description,omitempty"`
	MemberIDs          []string `json:"member_ids"` // insertion order
	Size               int      `db:"size" json:"size"`
	PainScore          float64  `db:"pain_score" json:"pain_score"`
	WorkflowConfidence float64  `db:"workflow_confidence" json:"workflow_confidence"`
	CreatedAt          string   `db:"created_at" json:"created_at"`
	CreatedAtEpoch     int64    `db:"created_at_epoch" json:"created_at_epoch"`
	UpdatedAt          string   `db:"updated_at" json:"updated_at"`
	UpdatedAtEpoch     int64    `db:"updated_at_epoch" json:"updated_at_epoch"`
}

// CandidateGroup is a transient set of events proposed by the similarity
// grouper as possibly belonging to one workflow. Never persisted.
// EventIDs and Events are kept in canonical (sorted-by-id) order.
type CandidateGroup struct {
	EventIDs []string
	Events   []*PainEvent
}

// Size returns the number of events in the group.
func (g CandidateGroup) Size() int { return len(g.EventIDs) }

// Summaries returns the judgment-facing views of the group's events,
// preserving canonical order.
func (g CandidateGroup) Summaries() []EventSummary {
	out := make([]EventSummary, len(g.Events))
	for i, ev := range g.Events {
		out[i] = ev.Summary()
	}
	return out
}

// Verdict is the outcome of validating a candidate group.
type Verdict int

// Validation verdicts. Malformed covers unreachable or undecodable judgment
// responses; such groups are retried on the next run.
const (
	VerdictAccepted Verdict = iota
	VerdictRejected
	VerdictMalformed
)

// String returns the verdict name for logs and reports.
func (v Verdict) String() string {
	switch v {
	case VerdictAccepted:
		return "accepted"
	case VerdictRejected:
		return "rejected"
	default:
		return "malformed"
	}
}

// ValidationResult is the tagged outcome of one validation call.
// WorkflowName and Confidence are meaningful only when accepted.
type ValidationResult struct {
	Verdict      Verdict
	WorkflowName string
	Confidence   float64
}

// Accepted reports whether the group was judged a coherent workflow.
func (r ValidationResult) Accepted() bool { return r.Verdict == VerdictAccepted }

// CommitResult describes what the cluster store did with an accepted group.
type CommitResult struct {
	ClusterID          string   `json:"cluster_id"`
	Created            bool     `json:"created"`
	AddedMembers       int      `json:"added_members"`
	OverlapConflict    bool     `json:"overlap_conflict"`
	ConflictClusterIDs []string `json:"conflict_cluster_ids,omitempty"`
}

// RunReport holds the statistics of one clustering run. It is a value built
// fresh per run and returned to the caller, never shared process state.
type RunReport struct {
	StartedAt           time.Time     `json:"started_at"`
	EventsProcessed     int           `json:"events_processed"`
	EventsMissingVector int           `json:"events_missing_vector"`
	GroupsProposed      int           `json:"groups_proposed"`
	Singletons          int           `json:"singletons"`
	GroupsAccepted      int           `json:"groups_accepted"`
	GroupsRejected      int           `json:"groups_rejected"`
	ValidatorErrors     int           `json:"validator_errors"`
	ClustersCreated     int           `json:"clusters_created"`
	ClustersExtended    int           `json:"clusters_extended"`
	OverlapConflicts    int           `json:"overlap_conflicts"`
	AverageClusterSize  float64       `json:"average_cluster_size"`
	Elapsed             time.Duration `json:"elapsed"`
}

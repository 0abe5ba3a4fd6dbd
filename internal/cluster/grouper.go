// Package cluster implements the clustering core: similarity grouping,
// validation policy, and the batch orchestrator.
package cluster

import (
	"github.com/fraglens/painmap/pkg/models"
	"github.com/fraglens/painmap/pkg/similarity"
)

// Grouper proposes candidate groups from pairwise embedding similarity.
type Grouper struct {
	tau float64
}

// NewGrouper creates a grouper with the given similarity threshold.
// The threshold is inclusive: a pair exactly at tau is connected.
func NewGrouper(tau float64) *Grouper {
	return &Grouper{tau: tau}
}

// Group partitions events into candidate groups via connected components of
// the similarity graph. Only events present in vectors participate; the
// caller accounts for events with missing embeddings. Output is canonical:
// groups ordered by smallest member id, members sorted by id. Singletons are
// retained as size-1 groups so they can be revisited in later runs.
func (g *Grouper) Group(events []*models.PainEvent, vectors map[string][]float32) []models.CandidateGroup {
	byID := make(map[string]*models.PainEvent, len(events))
	pairs := make([]similarity.EventVector, 0, len(events))
	for _, ev := range events {
		vec, ok := vectors[ev.ID]
		if !ok {
			continue
		}
		byID[ev.ID] = ev
		pairs = append(pairs, similarity.EventVector{ID: ev.ID, Vector: vec})
	}

	components := similarity.Components(pairs, g.tau)

	groups := make([]models.CandidateGroup, 0, len(components))
	for _, ids := range components {
		group := models.CandidateGroup{
			EventIDs: ids,
			Events:   make([]*models.PainEvent, len(ids)),
		}
		for i, id := range ids {
			group.Events[i] = byID[id]
		}
		groups = append(groups, group)
	}
	return groups
}

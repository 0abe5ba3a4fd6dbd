package cluster

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/fraglens/painmap/pkg/models"
)

// EventSource supplies unclustered events and their embeddings.
type EventSource interface {
	UnclusteredWithEmbeddings(ctx context.Context, limit int) ([]*models.PainEvent, map[string][]float32, []string, error)
}

// ClusterSink is the persistence side of a run: the merge policy plus the
// single-writer guard and aggregate stats.
type ClusterSink interface {
	Commit(ctx context.Context, group models.CandidateGroup, validation models.ValidationResult) (*models.CommitResult, error)
	AcquireRunLock(ctx context.Context, holder string) error
	ReleaseRunLock(ctx context.Context) error
	AverageClusterSize(ctx context.Context) (float64, error)
}

// Orchestrator drives one end-to-end clustering batch.
type Orchestrator struct {
	events      EventSource
	clusters    ClusterSink
	validator   *Validator
	grouper     *Grouper
	concurrency int
}

// NewOrchestrator wires the clustering pipeline. concurrency bounds parallel
// judgment calls; values below 1 mean sequential.
func NewOrchestrator(events EventSource, clusters ClusterSink, grouper *Grouper, validator *Validator, concurrency int) *Orchestrator {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Orchestrator{
		events:      events,
		clusters:    clusters,
		validator:   validator,
		grouper:     grouper,
		concurrency: concurrency,
	}
}

// Run executes one clustering batch over up to limit unclustered events and
// returns the run's statistics. Store failures abort the run; already
// committed groups stay intact, and the next run picks up where this one
// stopped since clustered events drop out of its input.
func (o *Orchestrator) Run(ctx context.Context, limit int) (*models.RunReport, error) {
	report := &models.RunReport{StartedAt: time.Now()}

	holder := fmt.Sprintf("painmap-%d", os.Getpid())
	if err := o.clusters.AcquireRunLock(ctx, holder); err != nil {
		return nil, err
	}
	defer func() {
		if err := o.clusters.ReleaseRunLock(ctx); err != nil {
			log.Error().Err(err).Msg("Failed to release run lock")
		}
	}()

	events, vectors, missing, err := o.events.UnclusteredWithEmbeddings(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("fetch unclustered events: %w", err)
	}
	report.EventsProcessed = len(events)
	report.EventsMissingVector = len(missing)
	if len(missing) > 0 {
		log.Warn().Int("count", len(missing)).
			Msg("Events skipped for missing embeddings")
	}

	groups := o.grouper.Group(events, vectors)
	var candidates []models.CandidateGroup
	for _, g := range groups {
		if g.Size() >= 2 {
			candidates = append(candidates, g)
		} else {
			// Singletons stay unclustered and become eligible again once
			// more events accumulate.
			report.Singletons++
		}
	}
	report.GroupsProposed = len(groups)

	// One judgment per group per run, issued with bounded concurrency;
	// results are attributed back by index.
	results := make([]models.ValidationResult, len(candidates))
	var vg errgroup.Group
	vg.SetLimit(o.concurrency)
	for i, group := range candidates {
		vg.Go(func() error {
			results[i] = o.validator.Validate(ctx, group)
			return nil
		})
	}
	_ = vg.Wait()

	// Commits are sequential: one logical writer.
	for i, group := range candidates {
		result := results[i]
		switch result.Verdict {
		case models.VerdictRejected:
			report.GroupsRejected++
			continue
		case models.VerdictMalformed:
			report.ValidatorErrors++
			continue
		}
		report.GroupsAccepted++

		commit, err := o.clusters.Commit(ctx, group, result)
		if err != nil {
			return nil, fmt.Errorf("commit group: %w", err)
		}
		if commit.Created {
			report.ClustersCreated++
		} else if commit.AddedMembers > 0 {
			report.ClustersExtended++
		}
		if commit.OverlapConflict {
			report.OverlapConflicts++
			log.Warn().
				Str("cluster_id", commit.ClusterID).
				Strs("conflicting_clusters", commit.ConflictClusterIDs).
				Msg("Candidate group overlaps multiple clusters, merged into largest overlap only")
		}
	}

	avg, err := o.clusters.AverageClusterSize(ctx)
	if err != nil {
		return nil, fmt.Errorf("average cluster size: %w", err)
	}
	report.AverageClusterSize = avg
	report.Elapsed = time.Since(report.StartedAt)

	log.Info().
		Int("events_processed", report.EventsProcessed).
		Int("groups_proposed", report.GroupsProposed).
		Int("clusters_created", report.ClustersCreated).
		Int("clusters_extended", report.ClustersExtended).
		Int("overlap_conflicts", report.OverlapConflicts).
		Dur("elapsed", report.Elapsed).
		Msg("Clustering run complete")

	return report, nil
}

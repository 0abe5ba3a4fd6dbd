// Package gorm provides GORM-based database operations for painmap.
package gorm

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fraglens/painmap/pkg/models"
)

// Sentinel errors for callers that need to branch.
var (
	ErrClusterNotFound = errors.New("cluster not found")
	ErrRunLockHeld     = errors.New("clustering run lock already held")
	ErrNotAccepted     = errors.New("only accepted groups can be committed")
)

// runLockName is the singleton row key for the clustering run lock.
const runLockName = "clustering_run"

// ClusterStore provides cluster persistence and the merge policy.
// Commit is all-or-nothing per group: it either fully applies or leaves the
// database untouched.
type ClusterStore struct {
	db *gorm.DB
}

// NewClusterStore creates a new cluster store.
func NewClusterStore(store *Store) *ClusterStore {
	return &ClusterStore{db: store.DB}
}

// Commit applies an accepted candidate group to durable cluster state.
//
// Merge policy:
//   - no overlap with any existing cluster: create a new cluster
//   - overlap with exactly one cluster: extend that cluster
//   - overlap with two or more clusters: never merge the pre-existing
//     clusters; extend the largest-overlap one and surface the conflict
//
// Membership exclusivity holds after every commit: event ids already assigned
// elsewhere are never re-added, and the unique index on cluster_members
// backs that up at the database level.
func (s *ClusterStore) Commit(ctx context.Context, group models.CandidateGroup, validation models.ValidationResult) (*models.CommitResult, error) {
	if !validation.Accepted() {
		return nil, ErrNotAccepted
	}
	if group.Size() == 0 {
		return nil, errors.New("empty candidate group")
	}

	result := &models.CommitResult{}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Existing assignments for the group's members.
		var assigned []ClusterMember
		if err := tx.Where("event_id IN ?", group.EventIDs).Find(&assigned).Error; err != nil {
			return err
		}

		overlap := make(map[string]int)
		assignedIDs := make(map[string]bool, len(assigned))
		for _, m := range assigned {
			overlap[m.ClusterID]++
			assignedIDs[m.EventID] = true
		}

		var unassigned []string
		for _, id := range group.EventIDs {
			if !assignedIDs[id] {
				unassigned = append(unassigned, id)
			}
		}

		if len(overlap) == 0 {
			return s.createCluster(tx, group, validation, result)
		}

		targetID, conflictIDs, err := pickMergeTarget(tx, overlap)
		if err != nil {
			return err
		}
		if len(conflictIDs) > 0 {
			result.OverlapConflict = true
			result.ConflictClusterIDs = conflictIDs
		}
		return s.extendCluster(tx, targetID, unassigned, validation, result)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// createCluster inserts a new cluster with the group as its initial members.
func (s *ClusterStore) createCluster(tx *gorm.DB, group models.CandidateGroup, validation models.ValidationResult, result *models.CommitResult) error {
	now := time.Now()
	cluster := &Cluster{
		ID:                 uuid.NewString(),
		Name:               validation.WorkflowName,
		Description:        nullString(describeMembers(group.Events)),
		Size:               group.Size(),
		PainScore:          sumPainWeights(group.Events),
		WorkflowConfidence: validation.Confidence,
		CreatedAt:          now.Format(time.RFC3339),
		CreatedAtEpoch:     now.UnixMilli(),
		UpdatedAt:          now.Format(time.RFC3339),
		UpdatedAtEpoch:     now.UnixMilli(),
	}
	if err := tx.Create(cluster).Error; err != nil {
		return err
	}

	members := make([]*ClusterMember, len(group.EventIDs))
	for i, id := range group.EventIDs {
		members[i] = &ClusterMember{
			ClusterID: cluster.ID,
			EventID:   id,
			Position:  i,
		}
	}
	if err := tx.Create(members).Error; err != nil {
		return err
	}

	result.ClusterID = cluster.ID
	result.Created = true
	result.AddedMembers = len(members)
	return nil
}

// extendCluster appends unassigned members to the target and recomputes its
// aggregates from the full member set. Confidence only ever goes up.
func (s *ClusterStore) extendCluster(tx *gorm.DB, clusterID string, unassigned []string, validation models.ValidationResult, result *models.CommitResult) error {
	var cluster Cluster
	if err := tx.First(&cluster, "id = ?", clusterID).Error; err != nil {
		return err
	}

	var maxPos int
	if err := tx.Model(&ClusterMember{}).
		Where("cluster_id = ?", clusterID).
		Select("COALESCE(MAX(position), -1)").
		Scan(&maxPos).Error; err != nil {
		return err
	}

	for i, id := range unassigned {
		member := &ClusterMember{
			ClusterID: clusterID,
			EventID:   id,
			Position:  maxPos + 1 + i,
		}
		if err := tx.Create(member).Error; err != nil {
			return err
		}
	}

	// Recompute size and pain score over the full updated member set.
	var memberIDs []string
	if err := tx.Model(&ClusterMember{}).
		Where("cluster_id = ?", clusterID).
		Order("position").
		Pluck("event_id", &memberIDs).Error; err != nil {
		return err
	}

	var dbEvents []PainEvent
	if err := tx.Where("id IN ?", memberIDs).Find(&dbEvents).Error; err != nil {
		return err
	}
	painScore := sumPainWeights(toModelEvents(dbEvents))

	confidence := cluster.WorkflowConfidence
	if validation.Confidence > confidence {
		confidence = validation.Confidence
	}

	now := time.Now()
	updates := map[string]interface{}{
		"size":                len(memberIDs),
		"pain_score":          painScore,
		"workflow_confidence": confidence,
		"updated_at":          now.Format(time.RFC3339),
		"updated_at_epoch":    now.UnixMilli(),
	}
	if err := tx.Model(&Cluster{}).Where("id = ?", clusterID).Updates(updates).Error; err != nil {
		return err
	}

	result.ClusterID = clusterID
	result.AddedMembers = len(unassigned)
	return nil
}

// pickMergeTarget chooses the merge target from the overlapping clusters:
// largest overlap, then larger cluster size, then older creation, then id.
// Returns the remaining overlapping cluster ids (sorted) when there is more
// than one, so the conflict can be surfaced instead of silently merged.
func pickMergeTarget(tx *gorm.DB, overlap map[string]int) (string, []string, error) {
	ids := make([]string, 0, len(overlap))
	for id := range overlap {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	if len(ids) == 1 {
		return ids[0], nil, nil
	}

	var clusters []Cluster
	if err := tx.Where("id IN ?", ids).Find(&clusters).Error; err != nil {
		return "", nil, err
	}
	byID := make(map[string]Cluster, len(clusters))
	for _, c := range clusters {
		byID[c.ID] = c
	}

	target := ids[0]
	for _, id := range ids[1:] {
		a, b := byID[target], byID[id]
		switch {
		case overlap[id] > overlap[target]:
			target = id
		case overlap[id] == overlap[target] && b.Size > a.Size:
			target = id
		case overlap[id] == overlap[target] && b.Size == a.Size && b.CreatedAtEpoch < a.CreatedAtEpoch:
			target = id
		}
	}

	conflicts := make([]string, 0, len(ids)-1)
	for _, id := range ids {
		if id != target {
			conflicts = append(conflicts, id)
		}
	}
	return target, conflicts, nil
}

// GetClusterByID retrieves a cluster with its ordered member ids.
// Returns ErrClusterNotFound if no such cluster exists.
func (s *ClusterStore) GetClusterByID(ctx context.Context, id string) (*models.Cluster, error) {
	var dbCluster Cluster
	err := s.db.WithContext(ctx).First(&dbCluster, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrClusterNotFound
	}
	if err != nil {
		return nil, err
	}

	cluster := toModelCluster(&dbCluster)
	if err := s.loadMemberIDs(ctx, cluster); err != nil {
		return nil, err
	}
	return cluster, nil
}

// ListClusters returns clusters ordered by size descending then confidence
// descending, for downstream opportunity mapping.
func (s *ClusterStore) ListClusters(ctx context.Context, limit int) ([]*models.Cluster, error) {
	var dbClusters []Cluster
	query := s.db.WithContext(ctx).
		Order("size DESC, workflow_confidence DESC, id")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&dbClusters).Error; err != nil {
		return nil, err
	}

	clusters := make([]*models.Cluster, len(dbClusters))
	for i := range dbClusters {
		clusters[i] = toModelCluster(&dbClusters[i])
		if err := s.loadMemberIDs(ctx, clusters[i]); err != nil {
			return nil, err
		}
	}
	return clusters, nil
}

// ClusterCount returns the number of clusters.
func (s *ClusterStore) ClusterCount(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&Cluster{}).Count(&count).Error
	return count, err
}

// AverageClusterSize returns the mean cluster size, 0 when empty.
func (s *ClusterStore) AverageClusterSize(ctx context.Context) (float64, error) {
	var avg *float64
	err := s.db.WithContext(ctx).
		Model(&Cluster{}).
		Select("AVG(size)").
		Scan(&avg).Error
	if err != nil {
		return 0, err
	}
	if avg == nil {
		return 0, nil
	}
	return *avg, nil
}

// AcquireRunLock claims the singleton run lock. Returns ErrRunLockHeld when
// another run holds it.
func (s *ClusterStore) AcquireRunLock(ctx context.Context, holder string) error {
	now := time.Now()
	lock := &RunLock{
		Name:            runLockName,
		Holder:          holder,
		AcquiredAt:      now.Format(time.RFC3339),
		AcquiredAtEpoch: now.UnixMilli(),
	}
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(lock)
	if res.Error != nil {
		return fmt.Errorf("acquire run lock: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrRunLockHeld
	}
	return nil
}

// ReleaseRunLock releases the singleton run lock.
func (s *ClusterStore) ReleaseRunLock(ctx context.Context) error {
	return s.db.WithContext(ctx).
		Where("name = ?", runLockName).
		Delete(&RunLock{}).Error
}

// loadMemberIDs fills the cluster's member ids in insertion order.
func (s *ClusterStore) loadMemberIDs(ctx context.Context, cluster *models.Cluster) error {
	return s.db.WithContext(ctx).
		Model(&ClusterMember{}).
		Where("cluster_id = ?", cluster.ID).
		Order("position").
		Pluck("event_id", &cluster.MemberIDs).Error
}

// sumPainWeights aggregates per-event pain weights.
func sumPainWeights(events []*models.PainEvent) float64 {
	var total float64
	for _, ev := range events {
		total += ev.PainWeight()
	}
	return total
}

// describeMembers builds a short description from member problem statements.
func describeMembers(events []*models.PainEvent) string {
	const maxProblems = 3
	problems := make([]string, 0, maxProblems)
	for _, ev := range events {
		if len(problems) == maxProblems {
			break
		}
		problems = append(problems, ev.Problem)
	}
	return strings.Join(problems, "; ")
}

// toModelCluster converts a GORM Cluster to the domain model.
func toModelCluster(c *Cluster) *models.Cluster {
	return &models.Cluster{
		ID:                 c.ID,
		Name:               c.Name,
		Description:        c.Description.String,
		Size:               c.Size,
		PainScore:          c.PainScore,
		WorkflowConfidence: c.WorkflowConfidence,
		CreatedAt:          c.CreatedAt,
		CreatedAtEpoch:     c.CreatedAtEpoch,
		UpdatedAt:          c.UpdatedAt,
		UpdatedAtEpoch:     c.UpdatedAtEpoch,
	}
}

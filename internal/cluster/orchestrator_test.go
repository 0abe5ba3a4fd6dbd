package cluster

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gormdb "github.com/fraglens/painmap/internal/db/gorm"
	"github.com/fraglens/painmap/internal/judge"
	"github.com/fraglens/painmap/pkg/models"
)

// fakeSource serves a fixed batch.
type fakeSource struct {
	events  []*models.PainEvent
	vectors map[string][]float32
	missing []string
	err     error
}

func (f *fakeSource) UnclusteredWithEmbeddings(ctx context.Context, limit int) ([]*models.PainEvent, map[string][]float32, []string, error) {
	if f.err != nil {
		return nil, nil, nil, f.err
	}
	return f.events, f.vectors, f.missing, nil
}

// fakeSink records commits and simulates merge outcomes.
type fakeSink struct {
	commits    []models.CandidateGroup
	results    []*models.CommitResult // consumed in order; default: created
	commitErr  error
	lockErr    error
	locked     bool
	released   bool
	avgSize    float64
	sizeByCall int
}

func (f *fakeSink) Commit(ctx context.Context, group models.CandidateGroup, validation models.ValidationResult) (*models.CommitResult, error) {
	if f.commitErr != nil {
		return nil, f.commitErr
	}
	f.commits = append(f.commits, group)
	if f.sizeByCall < len(f.results) {
		r := f.results[f.sizeByCall]
		f.sizeByCall++
		return r, nil
	}
	return &models.CommitResult{ClusterID: "c1", Created: true, AddedMembers: group.Size()}, nil
}

func (f *fakeSink) AcquireRunLock(ctx context.Context, holder string) error {
	if f.lockErr != nil {
		return f.lockErr
	}
	f.locked = true
	return nil
}

func (f *fakeSink) ReleaseRunLock(ctx context.Context) error {
	f.released = true
	return nil
}

func (f *fakeSink) AverageClusterSize(ctx context.Context) (float64, error) {
	return f.avgSize, nil
}

func newTestOrchestrator(source *fakeSource, sink *fakeSink, fj judge.Judge) *Orchestrator {
	return NewOrchestrator(source, sink, NewGrouper(0.8), NewValidator(fj), 2)
}

func invoiceBatch() *fakeSource {
	return &fakeSource{
		events: []*models.PainEvent{
			{ID: "a", Problem: "can't track freelance invoices manually"},
			{ID: "b", Problem: "spreadsheet invoice tracking is error-prone"},
			{ID: "c", Problem: "favorite coffee brewing method"},
		},
		vectors: map[string][]float32{
			"a": {1, 0, 0},
			"b": {0.95, 0.2, 0},
			"c": {0, 0, 1},
		},
	}
}

func TestOrchestrator_InvoiceScenario(t *testing.T) {
	sink := &fakeSink{avgSize: 2}
	fj := &fakeJudge{decision: &judge.Decision{
		SameWorkflow: true,
		WorkflowName: "invoice tracking",
		Confidence:   0.9,
	}}

	report, err := newTestOrchestrator(invoiceBatch(), sink, fj).Run(context.Background(), 100)
	require.NoError(t, err)

	assert.Equal(t, 3, report.EventsProcessed)
	assert.Equal(t, 2, report.GroupsProposed) // {a,b} and singleton {c}
	assert.Equal(t, 1, report.Singletons)
	assert.Equal(t, 1, report.GroupsAccepted)
	assert.Equal(t, 1, report.ClustersCreated)
	assert.Zero(t, report.ClustersExtended)
	assert.Equal(t, 2.0, report.AverageClusterSize)

	require.Len(t, sink.commits, 1)
	assert.Equal(t, []string{"a", "b"}, sink.commits[0].EventIDs)
	assert.Equal(t, 1, fj.calls, "singletons are never validated")
	assert.True(t, sink.released)
}

func TestOrchestrator_ExtensionCountsAsExtended(t *testing.T) {
	sink := &fakeSink{
		results: []*models.CommitResult{
			{ClusterID: "c1", Created: false, AddedMembers: 1},
		},
		avgSize: 3,
	}
	fj := &fakeJudge{decision: &judge.Decision{
		SameWorkflow: true,
		WorkflowName: "invoice tracking",
		Confidence:   0.7,
	}}

	report, err := newTestOrchestrator(invoiceBatch(), sink, fj).Run(context.Background(), 100)
	require.NoError(t, err)
	assert.Zero(t, report.ClustersCreated)
	assert.Equal(t, 1, report.ClustersExtended)
}

func TestOrchestrator_RejectionLeavesEventsEligible(t *testing.T) {
	sink := &fakeSink{}
	fj := &fakeJudge{decision: &judge.Decision{SameWorkflow: false}}

	report, err := newTestOrchestrator(invoiceBatch(), sink, fj).Run(context.Background(), 100)
	require.NoError(t, err)

	assert.Equal(t, 1, report.GroupsRejected)
	assert.Zero(t, report.ClustersCreated)
	assert.Zero(t, report.ClustersExtended)
	assert.Empty(t, sink.commits, "rejected groups are never committed")
}

func TestOrchestrator_ValidatorErrorDefersGroup(t *testing.T) {
	sink := &fakeSink{}
	fj := &fakeJudge{err: errors.New("judge down")}

	report, err := newTestOrchestrator(invoiceBatch(), sink, fj).Run(context.Background(), 100)
	require.NoError(t, err)

	assert.Equal(t, 1, report.ValidatorErrors)
	assert.Zero(t, report.ClustersCreated)
	assert.Empty(t, sink.commits)
}

func TestOrchestrator_MissingEmbeddingsCounted(t *testing.T) {
	source := invoiceBatch()
	source.events = append(source.events, &models.PainEvent{ID: "d", Problem: "no vector yet"})
	source.missing = []string{"d"}

	sink := &fakeSink{}
	fj := &fakeJudge{decision: &judge.Decision{SameWorkflow: true, WorkflowName: "invoice tracking", Confidence: 0.9}}

	report, err := newTestOrchestrator(source, sink, fj).Run(context.Background(), 100)
	require.NoError(t, err)

	assert.Equal(t, 4, report.EventsProcessed)
	assert.Equal(t, 1, report.EventsMissingVector)
	// d never appears in any committed group
	for _, g := range sink.commits {
		assert.NotContains(t, g.EventIDs, "d")
	}
}

func TestOrchestrator_IdempotentEmptyRun(t *testing.T) {
	sink := &fakeSink{}
	fj := &fakeJudge{}

	report, err := newTestOrchestrator(&fakeSource{}, sink, fj).Run(context.Background(), 100)
	require.NoError(t, err)

	assert.Zero(t, report.EventsProcessed)
	assert.Zero(t, report.ClustersCreated)
	assert.Zero(t, report.ClustersExtended)
	assert.Zero(t, fj.calls)
}

func TestOrchestrator_OverlapConflictSurfaced(t *testing.T) {
	sink := &fakeSink{
		results: []*models.CommitResult{
			{ClusterID: "c1", AddedMembers: 1, OverlapConflict: true, ConflictClusterIDs: []string{"c2"}},
		},
	}
	fj := &fakeJudge{decision: &judge.Decision{SameWorkflow: true, WorkflowName: "invoice tracking", Confidence: 0.9}}

	report, err := newTestOrchestrator(invoiceBatch(), sink, fj).Run(context.Background(), 100)
	require.NoError(t, err)
	assert.Equal(t, 1, report.OverlapConflicts)
}

func TestOrchestrator_LockHeldFailsFast(t *testing.T) {
	sink := &fakeSink{lockErr: gormdb.ErrRunLockHeld}
	fj := &fakeJudge{}

	_, err := newTestOrchestrator(invoiceBatch(), sink, fj).Run(context.Background(), 100)
	assert.ErrorIs(t, err, gormdb.ErrRunLockHeld)
	assert.Empty(t, sink.commits)
}

func TestOrchestrator_SourceErrorAborts(t *testing.T) {
	sink := &fakeSink{}
	fj := &fakeJudge{}
	source := &fakeSource{err: errors.New("storage unavailable")}

	_, err := newTestOrchestrator(source, sink, fj).Run(context.Background(), 100)
	assert.Error(t, err)
	assert.Empty(t, sink.commits)
	assert.True(t, sink.released, "lock is released even on failure")
}

func TestOrchestrator_CommitErrorAborts(t *testing.T) {
	sink := &fakeSink{commitErr: errors.New("disk full")}
	fj := &fakeJudge{decision: &judge.Decision{SameWorkflow: true, WorkflowName: "invoice tracking", Confidence: 0.9}}

	_, err := newTestOrchestrator(invoiceBatch(), sink, fj).Run(context.Background(), 100)
	assert.Error(t, err)
	assert.True(t, sink.released)
}

// Package gorm provides GORM-based database operations for painmap.
package gorm

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"strings"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	"gorm.io/gorm"

	"github.com/fraglens/painmap/pkg/models"
)

// PainEventStore provides pain-event and embedding database operations.
// Events and embeddings are written by the upstream extraction and embedding
// stages; the clustering core only reads them.
type PainEventStore struct {
	db    *gorm.DB
	rawDB *sql.DB
}

// NewPainEventStore creates a new pain event store.
func NewPainEventStore(store *Store) *PainEventStore {
	return &PainEventStore{
		db:    store.DB,
		rawDB: store.GetRawDB(),
	}
}

// InsertEvent stores a pain event. Used by the ingestion stage.
func (s *PainEventStore) InsertEvent(ctx context.Context, ev *models.PainEvent) error {
	dbEv := toDBEvent(ev)
	return s.db.WithContext(ctx).Create(dbEv).Error
}

// InsertEvents stores a batch of pain events.
func (s *PainEventStore) InsertEvents(ctx context.Context, evs []*models.PainEvent) error {
	if len(evs) == 0 {
		return nil
	}
	dbEvs := make([]*PainEvent, len(evs))
	for i, ev := range evs {
		dbEvs[i] = toDBEvent(ev)
	}
	return s.db.WithContext(ctx).Create(dbEvs).Error
}

// PutEmbedding stores or replaces the embedding for an event.
func (s *PainEventStore) PutEmbedding(ctx context.Context, eventID string, vec []float32, modelVersion string) error {
	blob, err := sqlite_vec.SerializeFloat32(vec)
	if err != nil {
		return fmt.Errorf("serialize embedding: %w", err)
	}
	// vec0 virtual tables don't support upsert; delete-then-insert instead.
	if _, err := s.rawDB.ExecContext(ctx,
		`DELETE FROM event_vectors WHERE event_id = ?`, eventID); err != nil {
		return fmt.Errorf("delete stale embedding: %w", err)
	}
	_, err = s.rawDB.ExecContext(ctx,
		`INSERT INTO event_vectors (event_id, embedding, model_version) VALUES (?, ?, ?)`,
		eventID, blob, modelVersion)
	if err != nil {
		return fmt.Errorf("insert embedding: %w", err)
	}
	return nil
}

// GetEmbedding returns the embedding for an event, or nil if none is stored.
func (s *PainEventStore) GetEmbedding(ctx context.Context, eventID string) ([]float32, error) {
	var blob []byte
	err := s.rawDB.QueryRowContext(ctx,
		`SELECT embedding FROM event_vectors WHERE event_id = ?`, eventID).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query embedding: %w", err)
	}
	return deserializeFloat32(blob)
}

// UnclusteredWithEmbeddings fetches up to limit events not yet assigned to
// any cluster, with their embeddings. Events without a stored embedding are
// returned in the missing list and excluded from the vector map; they are
// never an error. Ordered by id for deterministic batches.
func (s *PainEventStore) UnclusteredWithEmbeddings(ctx context.Context, limit int) ([]*models.PainEvent, map[string][]float32, []string, error) {
	var dbEvents []PainEvent
	query := s.db.WithContext(ctx).
		Where("id NOT IN (?)", s.db.Model(&ClusterMember{}).Select("event_id")).
		Order("id")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&dbEvents).Error; err != nil {
		return nil, nil, nil, fmt.Errorf("query unclustered events: %w", err)
	}

	events := make([]*models.PainEvent, len(dbEvents))
	vectors := make(map[string][]float32, len(dbEvents))
	var missing []string
	for i := range dbEvents {
		ev := toModelEvent(&dbEvents[i])
		events[i] = ev

		vec, err := s.GetEmbedding(ctx, ev.ID)
		if err != nil {
			return nil, nil, nil, err
		}
		if vec == nil {
			missing = append(missing, ev.ID)
			continue
		}
		vectors[ev.ID] = vec
	}

	return events, vectors, missing, nil
}

// GetEventsByIDs retrieves events by id, ordered by id.
func (s *PainEventStore) GetEventsByIDs(ctx context.Context, ids []string) ([]*models.PainEvent, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var dbEvents []PainEvent
	err := s.db.WithContext(ctx).
		Where("id IN ?", ids).
		Order("id").
		Find(&dbEvents).Error
	if err != nil {
		return nil, err
	}
	return toModelEvents(dbEvents), nil
}

// EventCount returns the total number of stored events.
func (s *PainEventStore) EventCount(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&PainEvent{}).Count(&count).Error
	return count, err
}

// UnclusteredCount returns the number of events not yet assigned to a cluster.
func (s *PainEventStore) UnclusteredCount(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&PainEvent{}).
		Where("id NOT IN (?)", s.db.Model(&ClusterMember{}).Select("event_id")).
		Count(&count).Error
	return count, err
}

// SearchEventsFTS performs full-text search on pain events using FTS5.
// Falls back to LIKE search if FTS5 fails.
func (s *PainEventStore) SearchEventsFTS(ctx context.Context, query string, limit int) ([]*models.PainEvent, error) {
	if limit <= 0 {
		limit = 10
	}

	keywords := extractKeywords(query)
	if len(keywords) == 0 {
		return nil, nil
	}

	ftsTerms := strings.Join(keywords, " OR ")

	// FTS5 via raw SQL (GORM can't handle the MATCH operator)
	ftsQuery := `
		SELECT e.id, e.actor, e.situation, e.problem, e.workaround, e.frequency,
		       e.emotion, e.tools, e.source_ref, e.created_at, e.created_at_epoch
		FROM pain_events e
		JOIN pain_events_fts fts ON e.rowid = fts.rowid
		WHERE pain_events_fts MATCH ?
		ORDER BY rank
		LIMIT ?
	`

	rows, err := s.rawDB.QueryContext(ctx, ftsQuery, ftsTerms, limit)
	if err != nil {
		return s.searchEventsLike(ctx, keywords, limit)
	}
	defer rows.Close()

	events, err := scanEventRows(rows)
	if err != nil {
		return nil, err
	}

	if len(events) == 0 {
		return s.searchEventsLike(ctx, keywords, limit)
	}

	return events, nil
}

// searchEventsLike performs fallback LIKE search using GORM.
func (s *PainEventStore) searchEventsLike(ctx context.Context, keywords []string, limit int) ([]*models.PainEvent, error) {
	if len(keywords) == 0 {
		return nil, nil
	}

	var conditions []string
	var args []interface{}
	for _, kw := range keywords {
		pattern := "%" + kw + "%"
		conditions = append(conditions, "(actor LIKE ? OR situation LIKE ? OR problem LIKE ?)")
		args = append(args, pattern, pattern, pattern)
	}

	var dbEvents []PainEvent
	err := s.db.WithContext(ctx).
		Where(strings.Join(conditions, " OR "), args...).
		Order("created_at_epoch DESC").
		Limit(limit).
		Find(&dbEvents).Error
	if err != nil {
		return nil, err
	}

	return toModelEvents(dbEvents), nil
}

// ====================
// Helper Functions
// ====================

// extractKeywords extracts keywords from a search query.
func extractKeywords(query string) []string {
	words := strings.Fields(strings.ToLower(query))
	var keywords []string

	commonWords := map[string]bool{
		"the": true, "and": true, "or": true, "but": true, "in": true,
		"on": true, "at": true, "to": true, "for": true, "of": true,
		"with": true, "by": true, "from": true, "as": true, "is": true,
		"was": true, "are": true, "were": true, "be": true, "been": true,
		"have": true, "has": true, "had": true, "do": true, "does": true,
		"did": true, "will": true, "would": true, "should": true,
		"could": true, "may": true, "might": true, "must": true, "can": true,
	}

	for _, word := range words {
		if len(word) <= 3 || commonWords[word] {
			continue
		}
		keywords = append(keywords, word)
	}

	return keywords
}

// deserializeFloat32 decodes a sqlite-vec float32 blob (little-endian).
func deserializeFloat32(blob []byte) ([]float32, error) {
	if len(blob)%4 != 0 {
		return nil, fmt.Errorf("embedding blob length %d is not a multiple of 4", len(blob))
	}
	vec := make([]float32, len(blob)/4)
	for i := range vec {
		bits := binary.LittleEndian.Uint32(blob[i*4:])
		vec[i] = math.Float32frombits(bits)
	}
	return vec, nil
}

// scanEventRows scans multiple events from raw SQL rows.
func scanEventRows(rows *sql.Rows) ([]*models.PainEvent, error) {
	var events []*models.PainEvent
	for rows.Next() {
		var dbEv PainEvent
		err := rows.Scan(
			&dbEv.ID, &dbEv.Actor, &dbEv.Situation, &dbEv.Problem, &dbEv.Workaround,
			&dbEv.Frequency, &dbEv.Emotion, &dbEv.Tools, &dbEv.SourceRef,
			&dbEv.CreatedAt, &dbEv.CreatedAtEpoch,
		)
		if err != nil {
			return nil, err
		}
		events = append(events, toModelEvent(&dbEv))
	}
	return events, rows.Err()
}

// toDBEvent converts a domain PainEvent to its GORM form.
func toDBEvent(ev *models.PainEvent) *PainEvent {
	return &PainEvent{
		ID:             ev.ID,
		Actor:          ev.Actor,
		Situation:      ev.Situation,
		Problem:        ev.Problem,
		Workaround:     nullString(ev.Workaround),
		Frequency:      string(ev.Frequency),
		Emotion:        string(ev.Emotion),
		Tools:          ev.Tools,
		SourceRef:      ev.SourceRef,
		CreatedAt:      ev.CreatedAt,
		CreatedAtEpoch: ev.CreatedAtEpoch,
	}
}

// toModelEvent converts a GORM PainEvent to the domain model.
func toModelEvent(e *PainEvent) *models.PainEvent {
	return &models.PainEvent{
		ID:             e.ID,
		Actor:          e.Actor,
		Situation:      e.Situation,
		Problem:        e.Problem,
		Workaround:     e.Workaround.String,
		Frequency:      models.FrequencyType(e.Frequency),
		Emotion:        models.EmotionalSignal(e.Emotion),
		Tools:          e.Tools,
		SourceRef:      e.SourceRef,
		CreatedAt:      e.CreatedAt,
		CreatedAtEpoch: e.CreatedAtEpoch,
	}
}

// toModelEvents converts a slice of GORM PainEvent to domain models.
func toModelEvents(events []PainEvent) []*models.PainEvent {
	result := make([]*models.PainEvent, len(events))
	for i := range events {
		result[i] = toModelEvent(&events[i])
	}
	return result
}

// nullString converts a string to sql.NullString.
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: s, Valid: true}
}

// Package models contains domain models for painmap.
package models

import (
	"database/sql/driver"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// FrequencyType describes how often the reporter hits the problem.
type FrequencyType string

// Frequency descriptors, as produced by the extraction stage.
const (
	FrequencyDaily   FrequencyType = "daily"
	FrequencyWeekly  FrequencyType = "weekly"
	FrequencyMonthly FrequencyType = "monthly"
	FrequencyRare    FrequencyType = "rare"
	FrequencyUnknown FrequencyType = "unknown"
)

// EmotionalSignal tags the tone of the original report.
type EmotionalSignal string

// Emotional signal tags, strongest first.
const (
	EmotionRage       EmotionalSignal = "rage"
	EmotionFrustrated EmotionalSignal = "frustrated"
	EmotionResigned   EmotionalSignal = "resigned"
	EmotionAnnoyed    EmotionalSignal = "annoyed"
	EmotionNeutral    EmotionalSignal = "neutral"
)

var frequencyWeights = map[FrequencyType]float64{
	FrequencyDaily:   1.0,
	FrequencyWeekly:  0.7,
	FrequencyMonthly: 0.4,
	FrequencyRare:    0.2,
	FrequencyUnknown: 0.3,
}

var emotionWeights = map[EmotionalSignal]float64{
	EmotionRage:       1.0,
	EmotionFrustrated: 0.8,
	EmotionResigned:   0.6,
	EmotionAnnoyed:    0.5,
	EmotionNeutral:    0.2,
}

// PainEvent is an atomic, already-extracted problem report.
// Immutable once created; the clustering core only reads it.
type PainEvent struct {
	ID             string          `db:"id" json:"id"`
	Actor          string          `db:"actor" json:"actor"`
	Situation      string          `db:"situation" json:"situation"`
	Problem        string          `db:"problem" json:"problem"`
	Workaround     string          `db:"workaround" json:"workaround,omitempty"`
	Frequency      FrequencyType   `db:"frequency" json:"frequency"`
	Emotion        EmotionalSignal `db:"emotion" json:"emotion"`
	Tools          JSONStringArray `db:"tools" json:"tools,omitempty"`
	SourceRef      string          `db:"source_ref" json:"source_ref"`
	CreatedAt      string          `db:"created_at" json:"created_at"`
	CreatedAtEpoch int64           `db:"created_at_epoch" json:"created_at_epoch"`
}

// NewPainEvent creates a pain event with timestamps set.
func NewPainEvent(id, actor, situation, problem string) *PainEvent {
	now := time.Now()
	return &PainEvent{
		ID:             id,
		Actor:          actor,
		Situation:      situation,
		Problem:        problem,
		Frequency:      FrequencyUnknown,
		Emotion:        EmotionNeutral,
		CreatedAt:      now.Format(time.RFC3339),
		CreatedAtEpoch: now.UnixMilli(),
	}
}

// PainWeight scores a single event from its frequency and emotional signal.
// Unrecognized descriptors fall back to the weakest non-zero weights so that
// aggregate scores stay monotonic under cluster growth.
func (e *PainEvent) PainWeight() float64 {
	fw, ok := frequencyWeights[e.Frequency]
	if !ok {
		fw = frequencyWeights[FrequencyUnknown]
	}
	ew, ok := emotionWeights[e.Emotion]
	if !ok {
		ew = emotionWeights[EmotionNeutral]
	}
	return fw * ew
}

// EmbeddingText returns the canonical concatenation the embedding stage uses.
// Deliberately excludes tone and source text so vectors capture what happened,
// not how it was phrased.
func (e *PainEvent) EmbeddingText() string {
	parts := []string{e.Actor, e.Situation, e.Problem}
	if e.Workaround != "" {
		parts = append(parts, e.Workaround)
	}
	return strings.Join(parts, "\n")
}

// EventSummary is the compact view sent to the judgment collaborator.
type EventSummary struct {
	ID         string `json:"id"`
	Actor      string `json:"actor"`
	Situation  string `json:"situation"`
	Problem    string `json:"problem"`
	Workaround string `json:"workaround,omitempty"`
}

// Summary produces the judgment-facing view of the event.
func (e *PainEvent) Summary() EventSummary {
	return EventSummary{
		ID:         e.ID,
		Actor:      e.Actor,
		Situation:  e.Situation,
		Problem:    e.Problem,
		Workaround: e.Workaround,
	}
}

// JSONStringArray is a []string stored as a JSON TEXT column.
type JSONStringArray []string

// Scan implements sql.Scanner.
func (a *JSONStringArray) Scan(value interface{}) error {
	if value == nil {
		*a = nil
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type for JSONStringArray: %T", value)
	}
	if len(data) == 0 {
		*a = nil
		return nil
	}
	return json.Unmarshal(data, a)
}

// Value implements driver.Valuer.
func (a JSONStringArray) Value() (driver.Value, error) {
	if a == nil {
		return nil, nil
	}
	data, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

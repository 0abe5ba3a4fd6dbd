// Package gorm provides GORM-based database operations for painmap.
package gorm

import (
	"database/sql"
	"time"

	"gorm.io/gorm"

	"github.com/fraglens/painmap/pkg/models"
)

// GORM models. JSON column types come from pkg/models and already implement
// sql.Scanner and driver.Valuer.

// PainEvent is the stored form of a pain event. Written by the upstream
// extraction stage; the clustering core only reads it.
type PainEvent struct {
	ID             string                 `gorm:"primaryKey;type:text"`
	Actor          string                 `gorm:"type:text;not null"`
	Situation      string                 `gorm:"type:text;not null"`
	Problem        string                 `gorm:"type:text;not null"`
	Workaround     sql.NullString         `gorm:"type:text"`
	Frequency      string                 `gorm:"type:text;check:frequency IN ('daily', 'weekly', 'monthly', 'rare', 'unknown');default:'unknown';not null"`
	Emotion        string                 `gorm:"type:text;check:emotion IN ('rage', 'frustrated', 'resigned', 'annoyed', 'neutral');default:'neutral';not null"`
	Tools          models.JSONStringArray `gorm:"type:text"`
	SourceRef      string                 `gorm:"column:source_ref;index;type:text"`
	CreatedAt      string                 `gorm:"not null"`
	CreatedAtEpoch int64                  `gorm:"index:idx_pain_events_created,sort:desc;not null"`
}

func (PainEvent) TableName() string { return "pain_events" }

// BeforeCreate hook to ensure timestamps and defaults are set.
func (e *PainEvent) BeforeCreate(tx *gorm.DB) error {
	now := time.Now()
	if e.CreatedAtEpoch == 0 {
		e.CreatedAtEpoch = now.UnixMilli()
	}
	if e.CreatedAt == "" {
		e.CreatedAt = now.Format(time.RFC3339)
	}
	if e.Frequency == "" {
		e.Frequency = string(models.FrequencyUnknown)
	}
	if e.Emotion == "" {
		e.Emotion = string(models.EmotionNeutral)
	}
	return nil
}

// Cluster is the durable grouping of pain events for one workflow problem.
type Cluster struct {
	ID                 string         `gorm:"primaryKey;type:text"` // uuid
	Name               string         `gorm:"type:text;not null"`
	Description        sql.NullString `gorm:"type:text"`
	Size               int            `gorm:"default:0;index:idx_clusters_size,sort:desc;not null"`
	PainScore          float64        `gorm:"type:real;default:0;not null"`
	WorkflowConfidence float64        `gorm:"type:real;default:0;index:idx_clusters_confidence,sort:desc;not null"`
	CreatedAt          string         `gorm:"not null"`
	CreatedAtEpoch     int64          `gorm:"index:idx_clusters_created,sort:desc;not null"`
	UpdatedAt          string         `gorm:"not null"`
	UpdatedAtEpoch     int64          `gorm:"not null"`
}

func (Cluster) TableName() string { return "clusters" }

// BeforeCreate hook to ensure timestamps are set.
func (c *Cluster) BeforeCreate(tx *gorm.DB) error {
	now := time.Now()
	if c.CreatedAtEpoch == 0 {
		c.CreatedAtEpoch = now.UnixMilli()
	}
	if c.CreatedAt == "" {
		c.CreatedAt = now.Format(time.RFC3339)
	}
	if c.UpdatedAtEpoch == 0 {
		c.UpdatedAtEpoch = c.CreatedAtEpoch
	}
	if c.UpdatedAt == "" {
		c.UpdatedAt = c.CreatedAt
	}
	return nil
}

// ClusterMember joins events to clusters. The unique index on EventID is the
// database-level guarantee of membership exclusivity; Position preserves
// merge insertion order.
type ClusterMember struct {
	ID           int64  `gorm:"primaryKey;autoIncrement"`
	ClusterID    string `gorm:"index:idx_members_cluster;type:text;not null"`
	EventID      string `gorm:"uniqueIndex:idx_members_event_unique;type:text;not null"`
	Position     int    `gorm:"not null"`
	AddedAt      string `gorm:"not null"`
	AddedAtEpoch int64  `gorm:"not null"`
}

func (ClusterMember) TableName() string { return "cluster_members" }

// BeforeCreate hook to ensure timestamps are set.
func (m *ClusterMember) BeforeCreate(tx *gorm.DB) error {
	now := time.Now()
	if m.AddedAtEpoch == 0 {
		m.AddedAtEpoch = now.UnixMilli()
	}
	if m.AddedAt == "" {
		m.AddedAt = now.Format(time.RFC3339)
	}
	return nil
}

// RunLock is a singleton-row advisory lock. The merge policy is not safe
// under concurrent runs, so a second run must fail fast.
type RunLock struct {
	Name            string `gorm:"primaryKey;type:text"`
	Holder          string `gorm:"type:text"`
	AcquiredAt      string `gorm:"not null"`
	AcquiredAtEpoch int64  `gorm:"not null"`
}

func (RunLock) TableName() string { return "run_locks" }

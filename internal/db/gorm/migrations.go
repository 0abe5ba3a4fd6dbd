// Package gorm provides GORM-based database operations for painmap.
package gorm

import (
	"fmt"

	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

// runMigrations runs all database migrations using gormigrate.
func runMigrations(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		// Migration 001: Core tables
		{
			ID: "001_core_tables",
			Migrate: func(tx *gorm.DB) error {
				if err := tx.AutoMigrate(&PainEvent{}); err != nil {
					return err
				}
				if err := tx.AutoMigrate(&Cluster{}); err != nil {
					return err
				}
				return tx.AutoMigrate(&ClusterMember{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("pain_events", "clusters", "cluster_members")
			},
		},

		// Migration 002: FTS5 virtual table for pain events
		{
			ID: "002_pain_events_fts",
			Migrate: func(tx *gorm.DB) error {
				sqls := []string{
					`CREATE VIRTUAL TABLE IF NOT EXISTS pain_events_fts USING fts5(
						actor, situation, problem,
						content='pain_events',
						content_rowid='rowid'
					)`,
					`CREATE TRIGGER IF NOT EXISTS pain_events_ai AFTER INSERT ON pain_events BEGIN
						INSERT INTO pain_events_fts(rowid, actor, situation, problem)
						VALUES (new.rowid, new.actor, new.situation, new.problem);
					END`,
					`CREATE TRIGGER IF NOT EXISTS pain_events_ad AFTER DELETE ON pain_events BEGIN
						INSERT INTO pain_events_fts(pain_events_fts, rowid, actor, situation, problem)
						VALUES('delete', old.rowid, old.actor, old.situation, old.problem);
					END`,
					`CREATE TRIGGER IF NOT EXISTS pain_events_au AFTER UPDATE ON pain_events BEGIN
						INSERT INTO pain_events_fts(pain_events_fts, rowid, actor, situation, problem)
						VALUES('delete', old.rowid, old.actor, old.situation, old.problem);
						INSERT INTO pain_events_fts(rowid, actor, situation, problem)
						VALUES (new.rowid, new.actor, new.situation, new.problem);
					END`,
				}
				for _, s := range sqls {
					if err := tx.Exec(s).Error; err != nil {
						return err
					}
				}
				return nil
			},
			Rollback: func(tx *gorm.DB) error {
				sqls := []string{
					"DROP TRIGGER IF EXISTS pain_events_au",
					"DROP TRIGGER IF EXISTS pain_events_ad",
					"DROP TRIGGER IF EXISTS pain_events_ai",
					"DROP TABLE IF EXISTS pain_events_fts",
				}
				for _, s := range sqls {
					if err := tx.Exec(s).Error; err != nil {
						return err
					}
				}
				return nil
			},
		},

		// Migration 003: sqlite-vec embeddings table
		{
			ID: "003_event_vectors",
			Migrate: func(tx *gorm.DB) error {
				// bge-small-en-v1.5 embeddings (384 dimensions) with model_version
				sql := `CREATE VIRTUAL TABLE IF NOT EXISTS event_vectors USING vec0(
					event_id TEXT PRIMARY KEY,
					embedding float[384],
					model_version TEXT
				)`
				return tx.Exec(sql).Error
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Exec("DROP TABLE IF EXISTS event_vectors").Error
			},
		},

		// Migration 004: Run locks table
		{
			ID: "004_run_locks",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&RunLock{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("run_locks")
			},
		},
	})

	if err := m.Migrate(); err != nil {
		return fmt.Errorf("run gormigrate migrations: %w", err)
	}

	return nil
}

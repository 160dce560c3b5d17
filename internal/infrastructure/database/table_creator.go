// Package database holds the schema of the visitor store.
package database

import (
	"context"
	"database/sql"
	"fmt"
)

// TableCreator handles the creation of the database schema.
type TableCreator struct{}

// NewTableCreator creates a new TableCreator.
func NewTableCreator() *TableCreator {
	return &TableCreator{}
}

// CreateSchema executes all necessary queries to build the tables and
// indexes. Every statement is idempotent.
func (tc *TableCreator) CreateSchema(ctx context.Context, db *sql.DB) error {
	for _, tableSQL := range tables {
		if _, err := db.ExecContext(ctx, tableSQL); err != nil {
			return fmt.Errorf("failed to create table for query [%s]: %w", tableSQL, err)
		}
	}

	for _, indexSQL := range indexes {
		if _, err := db.ExecContext(ctx, indexSQL); err != nil {
			return fmt.Errorf("failed to create index for query [%s]: %w", indexSQL, err)
		}
	}
	return nil
}

// Tables lists the table names the schema creates.
func (tc *TableCreator) Tables() []string {
	return []string{"visitor_profiles", "session_events", "scheduled_insights", "node_signals", "intelligence_logs"}
}

// Timestamps are TEXT in a fixed-width UTC layout so that lexical comparison
// is chronological on every driver.
var tables = []string{
	`CREATE TABLE IF NOT EXISTS visitor_profiles (
		id TEXT PRIMARY KEY,
		fingerprint TEXT NOT NULL UNIQUE,
		access_level TEXT NOT NULL DEFAULT 'observer' CHECK (access_level IN ('observer', 'acknowledged', 'considered')),
		patience_score REAL NOT NULL DEFAULT 0.5,
		curiosity_score REAL NOT NULL DEFAULT 0.5,
		deepest_scroll_depth REAL NOT NULL DEFAULT 0,
		impatience_events INTEGER NOT NULL DEFAULT 0,
		nodes_viewed TEXT NOT NULL DEFAULT '[]',
		total_time_seconds INTEGER NOT NULL DEFAULT 0,
		visit_count INTEGER NOT NULL DEFAULT 0,
		promotion_probability REAL,
		metadata TEXT,
		first_visit TEXT NOT NULL,
		last_visit TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL)`,
	`CREATE TABLE IF NOT EXISTS session_events (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		visitor_id TEXT NOT NULL REFERENCES visitor_profiles(id),
		seq INTEGER NOT NULL,
		event_type TEXT NOT NULL,
		event_data TEXT,
		timestamp TEXT NOT NULL,
		UNIQUE(session_id, seq))`,
	`CREATE TABLE IF NOT EXISTS scheduled_insights (
		id TEXT PRIMARY KEY,
		insight_type TEXT NOT NULL CHECK (insight_type IN ('re_engagement', 'threshold_alert', 'signal_digest')),
		target_visitor_id TEXT NOT NULL REFERENCES visitor_profiles(id),
		content TEXT NOT NULL,
		metadata TEXT,
		generated_at TEXT NOT NULL,
		delivered INTEGER NOT NULL DEFAULT 0,
		delivered_at TEXT)`,
	`CREATE TABLE IF NOT EXISTS node_signals (
		id TEXT PRIMARY KEY,
		node_id TEXT NOT NULL,
		node_name TEXT NOT NULL,
		signal_type TEXT NOT NULL,
		signal_strength REAL NOT NULL DEFAULT 0,
		message TEXT,
		metadata TEXT,
		created_at TEXT NOT NULL)`,
	`CREATE TABLE IF NOT EXISTS intelligence_logs (
		id TEXT PRIMARY KEY,
		log_type TEXT NOT NULL,
		trigger_source TEXT NOT NULL,
		visitor_id TEXT,
		input_data TEXT,
		output_data TEXT,
		processing_time_ms INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL)`,
}

var indexes = []string{
	`CREATE INDEX IF NOT EXISTS idx_visitor_profiles_level_last_visit ON visitor_profiles(access_level, last_visit)`,
	`CREATE INDEX IF NOT EXISTS idx_session_events_visitor_id ON session_events(visitor_id)`,
	`CREATE INDEX IF NOT EXISTS idx_scheduled_insights_target ON scheduled_insights(target_visitor_id, insight_type, generated_at)`,
	// At most one undelivered insight per visitor for the idempotent types.
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_scheduled_insights_one_undelivered ON scheduled_insights(target_visitor_id, insight_type) WHERE delivered = 0 AND insight_type IN ('re_engagement', 'threshold_alert')`,
	`CREATE INDEX IF NOT EXISTS idx_node_signals_created_at ON node_signals(created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_intelligence_logs_type ON intelligence_logs(log_type, created_at)`,
}

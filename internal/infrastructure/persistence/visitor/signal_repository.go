package visitor

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/AtRiskMedia/threshold/internal/domain/visitor"
	"github.com/AtRiskMedia/threshold/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/threshold/internal/infrastructure/persistence/database"
	"github.com/AtRiskMedia/threshold/internal/infrastructure/security"
)

// SQLSignalRepository persists node signals.
type SQLSignalRepository struct {
	db     *database.DB
	logger *logging.ChanneledLogger
}

// NewSQLSignalRepository creates a new instance of the repository.
func NewSQLSignalRepository(db *database.DB, logger *logging.ChanneledLogger) *SQLSignalRepository {
	return &SQLSignalRepository{db: db, logger: logger}
}

// Create saves a new signal, assigning an ID when missing.
func (r *SQLSignalRepository) Create(ctx context.Context, signal *visitor.NodeSignal) error {
	const query = `
		INSERT INTO node_signals (id, node_id, node_name, signal_type, signal_strength, message, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	if signal.ID == "" {
		signal.ID = security.GenerateULID()
	}

	start := time.Now()
	r.logger.Database().Debug("Executing signal insert", "id", signal.ID, "nodeId", signal.NodeID)

	metadata, err := database.MarshalJSONColumn(signal.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode signal metadata: %w", err)
	}
	message := sql.NullString{String: signal.Message, Valid: signal.Message != ""}

	if _, err := r.db.ExecContext(ctx, query, signal.ID, signal.NodeID, signal.NodeName, signal.SignalType,
		signal.SignalStrength, message, metadata, database.FormatTime(signal.CreatedAt)); err != nil {
		r.logger.Database().Error("Signal insert failed", "error", err.Error(), "nodeId", signal.NodeID)
		return fmt.Errorf("failed to insert signal: %w", err)
	}

	duration := time.Since(start)
	r.logger.Database().Info("Signal insert completed", "id", signal.ID, "duration", duration)
	database.CheckAndLogSlowQuery(r.logger, query, duration, "system")
	return nil
}

// ListSince returns signals created at or after since, newest first.
func (r *SQLSignalRepository) ListSince(ctx context.Context, since time.Time, limit int) ([]*visitor.NodeSignal, error) {
	const query = `
		SELECT id, node_id, node_name, signal_type, signal_strength, message, metadata, created_at
		FROM node_signals
		WHERE created_at >= ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?`

	start := time.Now()
	r.logger.Database().Debug("Listing recent signals", "since", since)

	rows, err := r.db.QueryContext(ctx, query, database.FormatTime(since), limit)
	if err != nil {
		r.logger.Database().Error("Failed to list signals", "error", err.Error())
		return nil, fmt.Errorf("failed to list signals: %w", err)
	}
	defer rows.Close()

	var signals []*visitor.NodeSignal
	for rows.Next() {
		var (
			s         visitor.NodeSignal
			message   sql.NullString
			metadata  sql.NullString
			createdAt string
		)
		if err := rows.Scan(&s.ID, &s.NodeID, &s.NodeName, &s.SignalType, &s.SignalStrength,
			&message, &metadata, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan signal: %w", err)
		}
		s.Message = message.String
		if err := database.UnmarshalJSONColumn(metadata, &s.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode signal metadata: %w", err)
		}
		if s.CreatedAt, err = database.ParseTime(createdAt); err != nil {
			return nil, err
		}
		signals = append(signals, &s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	duration := time.Since(start)
	r.logger.Database().Info("Signals listed", "count", len(signals), "duration", duration)
	database.CheckAndLogSlowQuery(r.logger, query, duration, "system")
	return signals, nil
}

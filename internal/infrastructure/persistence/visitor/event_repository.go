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

// SQLEventRepository persists significant session events. A (session, seq)
// pair is written at most once, so retried flushes are harmless.
type SQLEventRepository struct {
	db     *database.DB
	logger *logging.ChanneledLogger
}

// NewSQLEventRepository creates a new instance of the repository.
func NewSQLEventRepository(db *database.DB, logger *logging.ChanneledLogger) *SQLEventRepository {
	return &SQLEventRepository{db: db, logger: logger}
}

// Append writes events in one transaction.
func (r *SQLEventRepository) Append(ctx context.Context, events []visitor.SessionEvent) error {
	const query = `
		INSERT INTO session_events (id, session_id, visitor_id, seq, event_type, event_data, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id, seq) DO NOTHING`

	if len(events) == 0 {
		return nil
	}

	start := time.Now()
	r.logger.Database().Debug("Appending session events", "sessionId", events[0].SessionID, "count", len(events))

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		r.logger.Database().Error("Failed to begin event transaction", "error", err.Error())
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare event insert: %w", err)
	}
	defer stmt.Close()

	for _, ev := range events {
		id := ev.ID
		if id == "" {
			id = security.GenerateULID()
		}
		data, err := database.MarshalJSONColumn(ev.EventData)
		if err != nil {
			return fmt.Errorf("failed to encode event data: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, id, ev.SessionID, ev.VisitorID, ev.Seq, ev.EventType, data,
			database.FormatTime(ev.Timestamp)); err != nil {
			r.logger.Database().Error("Session event insert failed", "error", err.Error(), "sessionId", ev.SessionID, "seq", ev.Seq)
			return fmt.Errorf("failed to insert session event %d: %w", ev.Seq, err)
		}
	}

	if err := tx.Commit(); err != nil {
		r.logger.Database().Error("Failed to commit session events", "error", err.Error())
		return fmt.Errorf("failed to commit session events: %w", err)
	}

	duration := time.Since(start)
	r.logger.Database().Info("Session events appended", "count", len(events), "duration", duration)
	database.CheckAndLogSlowQuery(r.logger, "BATCH_"+query, duration, "system")
	return nil
}

// ListBySession returns the persisted events of a session in sequence order.
func (r *SQLEventRepository) ListBySession(ctx context.Context, sessionID string) ([]visitor.SessionEvent, error) {
	const query = `
		SELECT id, session_id, visitor_id, seq, event_type, event_data, timestamp
		FROM session_events
		WHERE session_id = ?
		ORDER BY seq ASC`

	start := time.Now()
	r.logger.Database().Debug("Loading session events", "sessionId", sessionID)

	rows, err := r.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		r.logger.Database().Error("Failed to load session events", "error", err.Error(), "sessionId", sessionID)
		return nil, fmt.Errorf("failed to load session events: %w", err)
	}
	defer rows.Close()

	var events []visitor.SessionEvent
	for rows.Next() {
		var (
			ev   visitor.SessionEvent
			data sql.NullString
			ts   string
		)
		if err := rows.Scan(&ev.ID, &ev.SessionID, &ev.VisitorID, &ev.Seq, &ev.EventType, &data, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan session event: %w", err)
		}
		if err := database.UnmarshalJSONColumn(data, &ev.EventData); err != nil {
			return nil, fmt.Errorf("failed to decode event data: %w", err)
		}
		if ev.Timestamp, err = database.ParseTime(ts); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	duration := time.Since(start)
	r.logger.Database().Info("Session events loaded", "sessionId", sessionID, "count", len(events), "duration", duration)
	database.CheckAndLogSlowQuery(r.logger, query, duration, "system")
	return events, nil
}

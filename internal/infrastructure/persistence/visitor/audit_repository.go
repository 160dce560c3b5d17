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

// SQLAuditRepository persists audit entries to intelligence_logs.
type SQLAuditRepository struct {
	db     *database.DB
	logger *logging.ChanneledLogger
}

// NewSQLAuditRepository creates a new instance of the repository.
func NewSQLAuditRepository(db *database.DB, logger *logging.ChanneledLogger) *SQLAuditRepository {
	return &SQLAuditRepository{db: db, logger: logger}
}

// Record saves an audit entry, assigning an ID when missing.
func (r *SQLAuditRepository) Record(ctx context.Context, entry *visitor.AuditEntry) error {
	const query = `
		INSERT INTO intelligence_logs (id, log_type, trigger_source, visitor_id, input_data, output_data, processing_time_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	if entry.ID == "" {
		entry.ID = security.GenerateULID()
	}

	start := time.Now()
	r.logger.Database().Debug("Executing audit insert", "id", entry.ID, "logType", entry.LogType)

	input, err := database.MarshalJSONColumn(entry.InputData)
	if err != nil {
		return fmt.Errorf("failed to encode audit input: %w", err)
	}
	output, err := database.MarshalJSONColumn(entry.OutputData)
	if err != nil {
		return fmt.Errorf("failed to encode audit output: %w", err)
	}
	visitorID := sql.NullString{String: entry.VisitorID, Valid: entry.VisitorID != ""}

	if _, err := r.db.ExecContext(ctx, query, entry.ID, entry.LogType, entry.TriggerSource, visitorID,
		input, output, entry.ProcessingTimeMs, database.FormatTime(entry.CreatedAt)); err != nil {
		r.logger.Database().Error("Audit insert failed", "error", err.Error(), "logType", entry.LogType)
		return fmt.Errorf("failed to insert audit entry: %w", err)
	}

	duration := time.Since(start)
	r.logger.Database().Info("Audit insert completed", "id", entry.ID, "duration", duration)
	database.CheckAndLogSlowQuery(r.logger, query, duration, "system")
	return nil
}

// ListByType returns entries of logType, newest first.
func (r *SQLAuditRepository) ListByType(ctx context.Context, logType string, limit int) ([]*visitor.AuditEntry, error) {
	const query = `
		SELECT id, log_type, trigger_source, visitor_id, input_data, output_data, processing_time_ms, created_at
		FROM intelligence_logs
		WHERE log_type = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?`

	start := time.Now()
	r.logger.Database().Debug("Listing audit entries", "logType", logType)

	rows, err := r.db.QueryContext(ctx, query, logType, limit)
	if err != nil {
		r.logger.Database().Error("Failed to list audit entries", "error", err.Error(), "logType", logType)
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer rows.Close()

	var entries []*visitor.AuditEntry
	for rows.Next() {
		var (
			e         visitor.AuditEntry
			visitorID sql.NullString
			input     sql.NullString
			output    sql.NullString
			createdAt string
		)
		if err := rows.Scan(&e.ID, &e.LogType, &e.TriggerSource, &visitorID, &input, &output,
			&e.ProcessingTimeMs, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		e.VisitorID = visitorID.String
		if err := database.UnmarshalJSONColumn(input, &e.InputData); err != nil {
			return nil, err
		}
		if err := database.UnmarshalJSONColumn(output, &e.OutputData); err != nil {
			return nil, err
		}
		if e.CreatedAt, err = database.ParseTime(createdAt); err != nil {
			return nil, err
		}
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	duration := time.Since(start)
	r.logger.Database().Info("Audit entries listed", "logType", logType, "count", len(entries), "duration", duration)
	database.CheckAndLogSlowQuery(r.logger, query, duration, "system")
	return entries, nil
}

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

const insightColumns = `id, insight_type, target_visitor_id, content, metadata, generated_at, delivered, delivered_at`

// SQLInsightRepository persists scheduled insights.
type SQLInsightRepository struct {
	db     *database.DB
	logger *logging.ChanneledLogger
}

// NewSQLInsightRepository creates a new instance of the repository.
func NewSQLInsightRepository(db *database.DB, logger *logging.ChanneledLogger) *SQLInsightRepository {
	return &SQLInsightRepository{db: db, logger: logger}
}

// HasUndelivered reports whether the visitor has an undelivered insight of
// the given type.
func (r *SQLInsightRepository) HasUndelivered(ctx context.Context, visitorID string, insightType visitor.InsightType) (bool, error) {
	const query = `
		SELECT EXISTS(SELECT 1 FROM scheduled_insights
			WHERE target_visitor_id = ? AND insight_type = ? AND delivered = 0)`

	return r.exists(ctx, query, visitorID, string(insightType))
}

// HasGeneratedSince reports whether an insight of the given type was
// generated for the visitor at or after since, delivered or not.
func (r *SQLInsightRepository) HasGeneratedSince(ctx context.Context, visitorID string, insightType visitor.InsightType, since time.Time) (bool, error) {
	const query = `
		SELECT EXISTS(SELECT 1 FROM scheduled_insights
			WHERE target_visitor_id = ? AND insight_type = ? AND generated_at >= ?)`

	return r.exists(ctx, query, visitorID, string(insightType), database.FormatTime(since))
}

func (r *SQLInsightRepository) exists(ctx context.Context, query string, args ...any) (bool, error) {
	start := time.Now()
	r.logger.Database().Debug("Checking insight existence", "args", len(args))

	var found bool
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&found); err != nil {
		r.logger.Database().Error("Insight existence check failed", "error", err.Error())
		return false, fmt.Errorf("failed to check insight existence: %w", err)
	}

	database.CheckAndLogSlowQuery(r.logger, query, time.Since(start), "system")
	return found, nil
}

// Insert stores the insight. A conflicting undelivered insight of an
// idempotent type leaves the table untouched and yields false, nil.
func (r *SQLInsightRepository) Insert(ctx context.Context, insight *visitor.Insight) (bool, error) {
	const query = `
		INSERT INTO scheduled_insights (` + insightColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, 0, NULL)
		ON CONFLICT DO NOTHING`

	if insight.ID == "" {
		insight.ID = security.GenerateULID()
	}

	start := time.Now()
	r.logger.Database().Debug("Executing insight insert", "id", insight.ID, "type", insight.InsightType, "visitorId", insight.TargetVisitorID)

	metadata, err := database.MarshalJSONColumn(insight.Metadata)
	if err != nil {
		return false, fmt.Errorf("failed to encode insight metadata: %w", err)
	}

	res, err := r.db.ExecContext(ctx, query, insight.ID, string(insight.InsightType), insight.TargetVisitorID,
		insight.Content, metadata, database.FormatTime(insight.GeneratedAt))
	if err != nil {
		r.logger.Database().Error("Insight insert failed", "error", err.Error(), "visitorId", insight.TargetVisitorID)
		return false, fmt.Errorf("failed to insert insight: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read insert result: %w", err)
	}

	duration := time.Since(start)
	r.logger.Database().Info("Insight insert completed", "id", insight.ID, "written", n > 0, "duration", duration)
	database.CheckAndLogSlowQuery(r.logger, query, duration, "system")
	return n > 0, nil
}

// FindByID retrieves an insight by its unique identifier.
func (r *SQLInsightRepository) FindByID(ctx context.Context, id string) (*visitor.Insight, error) {
	const query = `SELECT ` + insightColumns + ` FROM scheduled_insights WHERE id = ?`

	start := time.Now()
	r.logger.Database().Debug("Loading insight by ID", "id", id)

	insight, err := scanInsight(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		r.logger.Database().Error("Failed to load insight", "error", err.Error(), "id", id)
		return nil, err
	}

	duration := time.Since(start)
	r.logger.Database().Info("Insight loaded by ID", "id", id, "duration", duration)
	database.CheckAndLogSlowQuery(r.logger, query, duration, "system")
	return insight, nil
}

// ListForVisitor returns a visitor's insights, newest first.
func (r *SQLInsightRepository) ListForVisitor(ctx context.Context, visitorID string, includeDelivered bool, limit int) ([]*visitor.Insight, error) {
	query := `SELECT ` + insightColumns + ` FROM scheduled_insights WHERE target_visitor_id = ?`
	if !includeDelivered {
		query += ` AND delivered = 0`
	}
	query += ` ORDER BY generated_at DESC, id DESC LIMIT ?`

	start := time.Now()
	r.logger.Database().Debug("Listing insights", "visitorId", visitorID, "includeDelivered", includeDelivered)

	rows, err := r.db.QueryContext(ctx, query, visitorID, limit)
	if err != nil {
		r.logger.Database().Error("Failed to list insights", "error", err.Error(), "visitorId", visitorID)
		return nil, fmt.Errorf("failed to list insights: %w", err)
	}
	defer rows.Close()

	var insights []*visitor.Insight
	for rows.Next() {
		insight, err := scanInsight(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan insight: %w", err)
		}
		insights = append(insights, insight)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	duration := time.Since(start)
	r.logger.Database().Info("Insights listed", "visitorId", visitorID, "count", len(insights), "duration", duration)
	database.CheckAndLogSlowQuery(r.logger, query, duration, "system")
	return insights, nil
}

// MarkDelivered flags an insight as delivered. Marking twice keeps the
// first delivery time.
func (r *SQLInsightRepository) MarkDelivered(ctx context.Context, id string, at time.Time) error {
	const query = `
		UPDATE scheduled_insights
		SET delivered = 1, delivered_at = COALESCE(delivered_at, ?)
		WHERE id = ?`

	start := time.Now()
	r.logger.Database().Debug("Marking insight delivered", "id", id)

	res, err := r.db.ExecContext(ctx, query, database.FormatTime(at), id)
	if err != nil {
		r.logger.Database().Error("Insight delivery update failed", "error", err.Error(), "id", id)
		return fmt.Errorf("failed to mark insight delivered: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return visitor.ErrInsightNotFound
	}

	duration := time.Since(start)
	r.logger.Database().Info("Insight marked delivered", "id", id, "duration", duration)
	database.CheckAndLogSlowQuery(r.logger, query, duration, "system")
	return nil
}

func scanInsight(row rowScanner) (*visitor.Insight, error) {
	var (
		in          visitor.Insight
		kind        string
		metadata    sql.NullString
		generatedAt string
		deliveredAt sql.NullString
	)
	if err := row.Scan(&in.ID, &kind, &in.TargetVisitorID, &in.Content, &metadata, &generatedAt,
		&in.Delivered, &deliveredAt); err != nil {
		return nil, err
	}
	in.InsightType = visitor.InsightType(kind)
	if err := database.UnmarshalJSONColumn(metadata, &in.Metadata); err != nil {
		return nil, fmt.Errorf("failed to decode insight metadata: %w", err)
	}

	var err error
	if in.GeneratedAt, err = database.ParseTime(generatedAt); err != nil {
		return nil, err
	}
	if deliveredAt.Valid {
		t, err := database.ParseTime(deliveredAt.String)
		if err != nil {
			return nil, err
		}
		in.DeliveredAt = &t
	}
	return &in, nil
}

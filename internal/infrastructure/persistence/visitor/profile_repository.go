// Package visitor provides the SQL implementations of the visitor domain
// repositories (profiles, session events, insights, node signals, audit).
package visitor

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/AtRiskMedia/threshold/internal/domain/behavior"
	"github.com/AtRiskMedia/threshold/internal/domain/visitor"
	"github.com/AtRiskMedia/threshold/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/threshold/internal/infrastructure/persistence/database"
	"github.com/AtRiskMedia/threshold/internal/infrastructure/security"
)

const profileColumns = `id, fingerprint, access_level, patience_score, curiosity_score,
	deepest_scroll_depth, impatience_events, nodes_viewed, total_time_seconds, visit_count,
	promotion_probability, metadata, first_visit, last_visit, created_at, updated_at`

// levelRank orders access levels inside SQL; unknown values rank lowest.
const levelRank = `(CASE %s WHEN 'observer' THEN 0 WHEN 'acknowledged' THEN 1 WHEN 'considered' THEN 2 ELSE -1 END)`

// SQLProfileRepository is the SQL-based implementation of the ProfileRepository.
type SQLProfileRepository struct {
	db     *database.DB
	clock  behavior.Clock
	logger *logging.ChanneledLogger
}

// NewSQLProfileRepository creates a new instance of the repository.
func NewSQLProfileRepository(db *database.DB, clock behavior.Clock, logger *logging.ChanneledLogger) *SQLProfileRepository {
	if clock == nil {
		clock = behavior.SystemClock{}
	}
	return &SQLProfileRepository{
		db:     db,
		clock:  clock,
		logger: logger,
	}
}

// FindByFingerprint retrieves the profile for a fingerprint.
func (r *SQLProfileRepository) FindByFingerprint(ctx context.Context, fingerprint string) (*visitor.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM visitor_profiles WHERE fingerprint = ?`

	start := time.Now()
	r.logger.Database().Debug("Loading profile by fingerprint", "fingerprint", fingerprint)

	profile, err := scanProfile(r.db.QueryRowContext(ctx, query, fingerprint))
	if err != nil {
		if err == sql.ErrNoRows {
			r.logger.Database().Debug("Profile not found by fingerprint", "fingerprint", fingerprint)
			return nil, nil
		}
		r.logger.Database().Error("Failed to load profile by fingerprint", "error", err.Error(), "fingerprint", fingerprint)
		return nil, err
	}

	duration := time.Since(start)
	r.logger.Database().Info("Profile loaded by fingerprint", "profileId", profile.ID, "duration", duration)
	database.CheckAndLogSlowQuery(r.logger, query, duration, "system")
	return profile, nil
}

// FindByID retrieves a profile by its unique identifier.
func (r *SQLProfileRepository) FindByID(ctx context.Context, id string) (*visitor.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM visitor_profiles WHERE id = ?`

	start := time.Now()
	r.logger.Database().Debug("Loading profile by ID", "id", id)

	profile, err := scanProfile(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			r.logger.Database().Debug("Profile not found by ID", "id", id)
			return nil, nil
		}
		r.logger.Database().Error("Failed to load profile by ID", "error", err.Error(), "id", id)
		return nil, err
	}

	duration := time.Since(start)
	r.logger.Database().Info("Profile loaded by ID", "id", id, "duration", duration)
	database.CheckAndLogSlowQuery(r.logger, query, duration, "system")
	return profile, nil
}

// Create inserts an observer profile with default scores. When another
// writer created the fingerprint first, that profile is returned instead.
func (r *SQLProfileRepository) Create(ctx context.Context, fingerprint string) (*visitor.Profile, error) {
	const query = `
		INSERT INTO visitor_profiles (id, fingerprint, access_level, patience_score, curiosity_score,
			nodes_viewed, first_visit, last_visit, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, '[]', ?, ?, ?, ?)
		ON CONFLICT(fingerprint) DO NOTHING`

	if fingerprint == "" {
		return nil, fmt.Errorf("fingerprint is required")
	}

	start := time.Now()
	now := database.FormatTime(r.clock.Now())
	id := security.GenerateULID()
	r.logger.Database().Debug("Executing profile insert", "id", id, "fingerprint", fingerprint)

	if _, err := r.db.ExecContext(ctx, query, id, fingerprint, string(visitor.LevelObserver),
		visitor.DefaultScore, visitor.DefaultScore, now, now, now, now); err != nil {
		r.logger.Database().Error("Profile insert failed", "error", err.Error(), "fingerprint", fingerprint)
		return nil, fmt.Errorf("failed to create profile: %w", err)
	}

	duration := time.Since(start)
	r.logger.Database().Info("Profile insert completed", "fingerprint", fingerprint, "duration", duration)
	database.CheckAndLogSlowQuery(r.logger, query, duration, "system")

	profile, err := r.FindByFingerprint(ctx, fingerprint)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return nil, fmt.Errorf("profile for %s vanished after insert", fingerprint)
	}
	return profile, nil
}

// RecordVisit increments the visit count and stamps lastVisit.
func (r *SQLProfileRepository) RecordVisit(ctx context.Context, id string, at time.Time) (*visitor.Profile, error) {
	const query = `
		UPDATE visitor_profiles
		SET visit_count = visit_count + 1, last_visit = ?, updated_at = ?
		WHERE id = ?`

	start := time.Now()
	r.logger.Database().Debug("Recording visit", "id", id)

	res, err := r.db.ExecContext(ctx, query, database.FormatTime(at), database.FormatTime(r.clock.Now()), id)
	if err != nil {
		r.logger.Database().Error("Visit update failed", "error", err.Error(), "id", id)
		return nil, fmt.Errorf("failed to record visit: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, visitor.ErrProfileNotFound
	}

	duration := time.Since(start)
	r.logger.Database().Info("Visit recorded", "id", id, "duration", duration)
	database.CheckAndLogSlowQuery(r.logger, query, duration, "system")

	return r.FindByID(ctx, id)
}

// Update applies a partial update. Scroll depth, impatience events, total
// time and lastVisit only grow; nodes are unioned; the access level only
// advances.
func (r *SQLProfileRepository) Update(ctx context.Context, id string, update visitor.ProfileUpdate) error {
	if update.IsEmpty() {
		return nil
	}

	var (
		sets []string
		args []any
	)
	if update.PatienceScore != nil {
		sets = append(sets, "patience_score = ?")
		args = append(args, behavior.Clamp01(*update.PatienceScore))
	}
	if update.CuriosityScore != nil {
		sets = append(sets, "curiosity_score = ?")
		args = append(args, behavior.Clamp01(*update.CuriosityScore))
	}
	if update.DeepestScrollDepth != nil {
		sets = append(sets, "deepest_scroll_depth = MAX(deepest_scroll_depth, ?)")
		args = append(args, behavior.Clamp01(*update.DeepestScrollDepth))
	}
	if update.ImpatienceEvents != nil {
		sets = append(sets, "impatience_events = MAX(impatience_events, ?)")
		args = append(args, *update.ImpatienceEvents)
	}
	if update.TotalTimeSeconds != nil {
		sets = append(sets, "total_time_seconds = MAX(total_time_seconds, ?)")
		args = append(args, *update.TotalTimeSeconds)
	}
	if len(update.NodesViewed) > 0 {
		nodes, err := json.Marshal(update.NodesViewed)
		if err != nil {
			return fmt.Errorf("failed to encode nodes: %w", err)
		}
		sets = append(sets, `nodes_viewed = (SELECT json_group_array(value) FROM (
			SELECT value FROM json_each(visitor_profiles.nodes_viewed)
			UNION
			SELECT value FROM json_each(?)
			ORDER BY value))`)
		args = append(args, string(nodes))
	}
	if update.AccessLevel != nil {
		level := *update.AccessLevel
		if !level.IsValid() {
			return fmt.Errorf("invalid access level %q", level)
		}
		sets = append(sets, fmt.Sprintf("access_level = CASE WHEN %s > %s THEN ? ELSE access_level END",
			fmt.Sprintf(levelRank, "?"), fmt.Sprintf(levelRank, "access_level")))
		args = append(args, string(level), string(level))
	}
	if update.LastVisit != nil {
		sets = append(sets, "last_visit = MAX(last_visit, ?)")
		args = append(args, database.FormatTime(*update.LastVisit))
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, database.FormatTime(r.clock.Now()), id)

	query := "UPDATE visitor_profiles SET " + strings.Join(sets, ", ") + " WHERE id = ?"

	start := time.Now()
	r.logger.Database().Debug("Executing profile update", "id", id, "fields", len(sets)-1)

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.Database().Error("Profile update failed", "error", err.Error(), "id", id)
		return fmt.Errorf("failed to update profile: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return visitor.ErrProfileNotFound
	}

	duration := time.Since(start)
	r.logger.Database().Info("Profile update completed", "id", id, "duration", duration)
	database.CheckAndLogSlowQuery(r.logger, query, duration, "system")
	return nil
}

// UpdatePromotionProbability stores the evaluator's latest probability.
func (r *SQLProfileRepository) UpdatePromotionProbability(ctx context.Context, id string, probability float64) error {
	const query = `UPDATE visitor_profiles SET promotion_probability = ?, updated_at = ? WHERE id = ?`

	start := time.Now()
	r.logger.Database().Debug("Updating promotion probability", "id", id, "probability", probability)

	res, err := r.db.ExecContext(ctx, query, behavior.Clamp01(probability), database.FormatTime(r.clock.Now()), id)
	if err != nil {
		r.logger.Database().Error("Promotion probability update failed", "error", err.Error(), "id", id)
		return fmt.Errorf("failed to update promotion probability: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return visitor.ErrProfileNotFound
	}

	duration := time.Since(start)
	r.logger.Database().Info("Promotion probability updated", "id", id, "duration", duration)
	database.CheckAndLogSlowQuery(r.logger, query, duration, "system")
	return nil
}

// ListStaleByLevel returns profiles at level whose last visit is older than
// before, oldest first.
func (r *SQLProfileRepository) ListStaleByLevel(ctx context.Context, level visitor.AccessLevel, before time.Time, limit int) ([]*visitor.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM visitor_profiles
		WHERE access_level = ? AND last_visit < ?
		ORDER BY last_visit ASC
		LIMIT ?`

	return r.list(ctx, "stale", query, string(level), database.FormatTime(before), limit)
}

// ListByLevels returns profiles at any of levels, most recently seen first.
func (r *SQLProfileRepository) ListByLevels(ctx context.Context, levels []visitor.AccessLevel, limit int) ([]*visitor.Profile, error) {
	if len(levels) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(levels)), ", ")
	query := `SELECT ` + profileColumns + ` FROM visitor_profiles
		WHERE access_level IN (` + placeholders + `)
		ORDER BY last_visit DESC
		LIMIT ?`

	args := make([]any, 0, len(levels)+1)
	for _, l := range levels {
		args = append(args, string(l))
	}
	args = append(args, limit)
	return r.list(ctx, "by_levels", query, args...)
}

func (r *SQLProfileRepository) list(ctx context.Context, name, query string, args ...any) ([]*visitor.Profile, error) {
	start := time.Now()
	r.logger.Database().Debug("Listing profiles", "query", name)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Database().Error("Failed to list profiles", "error", err.Error(), "query", name)
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}
	defer rows.Close()

	var profiles []*visitor.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan profile: %w", err)
		}
		profiles = append(profiles, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate profiles: %w", err)
	}

	duration := time.Since(start)
	r.logger.Database().Info("Profiles listed", "query", name, "count", len(profiles), "duration", duration)
	database.CheckAndLogSlowQuery(r.logger, query, duration, "system")
	return profiles, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(row rowScanner) (*visitor.Profile, error) {
	var (
		p           visitor.Profile
		level       string
		nodes       string
		probability sql.NullFloat64
		metadata    sql.NullString
		firstVisit  string
		lastVisit   string
		createdAt   string
		updatedAt   string
	)
	if err := row.Scan(&p.ID, &p.Fingerprint, &level, &p.PatienceScore, &p.CuriosityScore,
		&p.DeepestScrollDepth, &p.ImpatienceEvents, &nodes, &p.TotalTimeSeconds, &p.VisitCount,
		&probability, &metadata, &firstVisit, &lastVisit, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	p.AccessLevel = visitor.AccessLevel(level)
	if probability.Valid {
		v := probability.Float64
		p.PromotionProbability = &v
	}
	if err := json.Unmarshal([]byte(nodes), &p.NodesViewed); err != nil {
		return nil, fmt.Errorf("failed to decode nodes_viewed: %w", err)
	}
	if p.NodesViewed == nil {
		p.NodesViewed = []string{}
	}
	sort.Strings(p.NodesViewed)
	if err := database.UnmarshalJSONColumn(metadata, &p.Metadata); err != nil {
		return nil, fmt.Errorf("failed to decode metadata: %w", err)
	}

	var err error
	if p.FirstVisit, err = database.ParseTime(firstVisit); err != nil {
		return nil, err
	}
	if p.LastVisit, err = database.ParseTime(lastVisit); err != nil {
		return nil, err
	}
	if p.CreatedAt, err = database.ParseTime(createdAt); err != nil {
		return nil, err
	}
	if p.UpdatedAt, err = database.ParseTime(updatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/AtRiskMedia/threshold/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/threshold/pkg/config"
)

// VerifyConnection runs a trivial query against db.
func VerifyConnection(ctx context.Context, db *sql.DB) error {
	var result int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("connection test query failed: %w", err)
	}
	if result != 1 {
		return fmt.Errorf("unexpected query result: %d", result)
	}
	return nil
}

// GetSlowQueryThreshold returns the configured slow query threshold
func GetSlowQueryThreshold() time.Duration {
	return config.SlowQueryThreshold
}

// CheckAndLogSlowQuery checks if a query duration exceeds threshold
// and logs it using the slow query channel if it does
func CheckAndLogSlowQuery(logger *logging.ChanneledLogger, query string, duration time.Duration, source string) {
	threshold := GetSlowQueryThreshold()

	// Batch statements are allowed three times the budget
	if strings.HasPrefix(query, "BATCH_") {
		threshold *= 3
	}

	if duration > threshold {
		logger.LogSlowQuery(query, duration, source)
	}
}

// MarshalJSONColumn encodes v for a TEXT column; nil maps to NULL.
func MarshalJSONColumn(v any) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	if string(b) == "null" {
		return sql.NullString{}, nil
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

// UnmarshalJSONColumn decodes a TEXT column into dst, leaving dst untouched
// for NULL or empty values.
func UnmarshalJSONColumn(src sql.NullString, dst any) error {
	if !src.Valid || src.String == "" {
		return nil
	}
	return json.Unmarshal([]byte(src.String), dst)
}

// FormatTime renders t in the canonical stored form. Stored timestamps are
// compared lexically so every write goes through this.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// ParseTime reads a timestamp written by FormatTime.
func ParseTime(s string) (time.Time, error) {
	return time.Parse(TimeLayout, s)
}

// TimeLayout is fixed width so lexical order matches chronological order.
const TimeLayout = "2006-01-02T15:04:05.000000000Z"

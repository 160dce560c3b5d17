// Package database provides the core functionality for creating and managing
// database connections in a clean, isolated manner.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	_ "github.com/mattn/go-sqlite3"
	_ "github.com/tursodatabase/libsql-client-go/libsql"
	_ "modernc.org/sqlite"

	"github.com/AtRiskMedia/threshold/internal/infrastructure/observability/logging"
)

// Supported driver names.
const (
	DriverSQLite3 = "sqlite3" // cgo, github.com/mattn/go-sqlite3
	DriverSQLite  = "sqlite"  // pure Go, modernc.org/sqlite
	DriverLibSQL  = "libsql"  // Turso / libSQL over HTTP
)

// DB represents a wrapper around the standard SQL database connection.
type DB struct {
	*sql.DB
	Driver string
}

// PoolConfig bounds the connection pool.
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DefaultDatabasePath is the on-disk location used when no URL is configured.
func DefaultDatabasePath() string {
	return filepath.Join(xdg.DataHome, "threshold", "threshold.db")
}

// ResolveDSN builds the data source name for driver. Local drivers get a
// busy timeout and WAL; an empty url selects DefaultDatabasePath.
func ResolveDSN(driver, rawURL, authToken string) (string, error) {
	switch driver {
	case DriverLibSQL:
		if rawURL == "" {
			return "", fmt.Errorf("libsql driver requires DB_URL")
		}
		if authToken == "" {
			return rawURL, nil
		}
		sep := "?"
		if strings.Contains(rawURL, "?") {
			sep = "&"
		}
		return rawURL + sep + "authToken=" + url.QueryEscape(authToken), nil

	case DriverSQLite3, DriverSQLite:
		path := rawURL
		if path == "" {
			path = DefaultDatabasePath()
		}
		if path == ":memory:" || strings.Contains(path, "?") {
			return path, nil
		}
		if err := os.MkdirAll(filepath.Dir(strings.TrimPrefix(path, "file:")), 0o755); err != nil {
			return "", fmt.Errorf("failed to create database directory: %w", err)
		}
		if driver == DriverSQLite3 {
			return "file:" + strings.TrimPrefix(path, "file:") + "?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on", nil
		}
		return "file:" + strings.TrimPrefix(path, "file:") + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)", nil
	}
	return "", fmt.Errorf("unsupported database driver %q", driver)
}

// NewConnectionWithLogger establishes a new database connection for the specified driver with logging.
func NewConnectionWithLogger(ctx context.Context, driverName, dataSourceName string, pool PoolConfig, logger *logging.ChanneledLogger) (*DB, error) {
	start := time.Now()
	logger.Database().Debug("Creating new database connection", "driverName", driverName)

	db, err := sql.Open(driverName, dataSourceName)
	if err != nil {
		logger.Database().Error("Failed to open database connection", "error", err.Error(), "driverName", driverName)
		return nil, fmt.Errorf("failed to open %s database: %w", driverName, err)
	}

	if pool.MaxOpenConns > 0 {
		db.SetMaxOpenConns(pool.MaxOpenConns)
	}
	if pool.MaxIdleConns > 0 {
		db.SetMaxIdleConns(pool.MaxIdleConns)
	}
	if pool.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(pool.ConnMaxLifetime)
	}

	if err = db.PingContext(ctx); err != nil {
		db.Close()
		logger.Database().Error("Database ping failed", "error", err.Error(), "driverName", driverName)
		return nil, fmt.Errorf("failed to ping %s database: %w", driverName, err)
	}

	duration := time.Since(start)
	logger.Database().Info("Database connection established", "driverName", driverName, "duration", duration)
	CheckAndLogSlowQuery(logger, "DATABASE_CONNECTION", duration, "system")

	return &DB{DB: db, Driver: driverName}, nil
}

// Package health provides health check implementations for the node's
// backing stores.
package health

import (
	"context"
	"database/sql"
)

// Checker is implemented by anything that can report its own health.
type Checker interface {
	HealthCheck(ctx context.Context) error
}

// DBChecker implements health checking for the Postgres-backed message
// store and event log.
type DBChecker struct {
	db *sql.DB
}

// NewDBChecker creates a new database health checker.
func NewDBChecker(db *sql.DB) *DBChecker {
	return &DBChecker{
		db: db,
	}
}

// HealthCheck performs a health check on the database by pinging it.
func (d *DBChecker) HealthCheck(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

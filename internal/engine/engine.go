// Package engine executes candidate SQL against target databases. Every
// execution is bounded by a row ceiling and passes the injection guard
// first; connections are acquired per call and released before returning.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/sqlforge/sqlforge/internal/models"
	"github.com/sqlforge/sqlforge/internal/security"
)

// fallbackMaxRows protects against callers passing a non-positive ceiling.
const fallbackMaxRows = 50

// QueryResult holds bounded results of one execution.
type QueryResult struct {
	Columns         []string
	Rows            []map[string]interface{}
	ExecutionTimeMs int64
}

// TableColumn describes one column of a target table.
type TableColumn struct {
	Name string
	Type string
}

// TableDescription describes one target table for agent schema context.
type TableDescription struct {
	Name    string
	Columns []TableColumn
}

// Engine runs SQL against one family of target databases.
type Engine interface {
	// RunSQL executes sql with at most maxRows rows returned. It fails
	// with *models.SQLInjectionError before execution when the statement
	// is judged unsafe and with *models.EngineLimitError on timeout.
	RunSQL(ctx context.Context, conn *models.DatabaseConnection, sql string, maxRows int) (*QueryResult, error)

	// DescribeTables returns the target schema for agent context.
	DescribeTables(ctx context.Context, conn *models.DatabaseConnection) ([]TableDescription, error)
}

// Resolver picks the engine for a connection by dialect.
type Resolver struct {
	sqldb    *SQLEngine
	bigquery *BigQueryEngine
}

func NewResolver(guard *security.SQLGuard, queryTimeout time.Duration) *Resolver {
	return &Resolver{
		sqldb:    NewSQLEngine(guard, queryTimeout),
		bigquery: NewBigQueryEngine(guard, queryTimeout),
	}
}

// ForConnection returns the engine serving conn.
func (r *Resolver) ForConnection(conn *models.DatabaseConnection) (Engine, error) {
	switch conn.Dialect {
	case "bigquery":
		return r.bigquery, nil
	case "", "postgres", "sql":
		if conn.DSN == "" {
			return nil, fmt.Errorf("connection %s has no DSN", conn.ID)
		}
		return r.sqldb, nil
	default:
		return nil, fmt.Errorf("unsupported dialect %q", conn.Dialect)
	}
}

func clampMaxRows(maxRows int) int {
	if maxRows <= 0 {
		return fallbackMaxRows
	}
	return maxRows
}

package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
	"github.com/rs/zerolog/log"
	"github.com/sqlforge/sqlforge/internal/models"
	"github.com/sqlforge/sqlforge/internal/security"
)

const defaultDriver = "pgx"

// Opener turns connection parameters into a live database handle. Replaced
// in tests with a sqlmock-backed opener.
type Opener func(driverName, dsn string) (*sql.DB, error)

// SQLEngine executes queries against any database/sql-compatible target.
// A fresh handle is opened per call and closed before returning, so two
// generations never share a connection.
type SQLEngine struct {
	guard        *security.SQLGuard
	queryTimeout time.Duration
	open         Opener
}

func NewSQLEngine(guard *security.SQLGuard, queryTimeout time.Duration) *SQLEngine {
	return &SQLEngine{
		guard:        guard,
		queryTimeout: queryTimeout,
		open:         sql.Open,
	}
}

// NewSQLEngineWithOpener is used by tests to swap the database handle.
func NewSQLEngineWithOpener(guard *security.SQLGuard, queryTimeout time.Duration, open Opener) *SQLEngine {
	return &SQLEngine{guard: guard, queryTimeout: queryTimeout, open: open}
}

func (e *SQLEngine) RunSQL(ctx context.Context, conn *models.DatabaseConnection, sqlText string, maxRows int) (*QueryResult, error) {
	if err := e.guard.Check(sqlText); err != nil {
		return nil, err
	}
	maxRows = clampMaxRows(maxRows)

	driver := conn.Driver
	if driver == "" {
		driver = defaultDriver
	}
	db, err := e.open(driver, conn.DSN)
	if err != nil {
		return nil, fmt.Errorf("open connection %s: %w", conn.ID, err)
	}
	defer db.Close()

	queryCtx, cancel := context.WithTimeout(ctx, e.queryTimeout)
	defer cancel()

	start := time.Now()
	rows, err := db.QueryContext(queryCtx, sqlText)
	if err != nil {
		return nil, wrapExecError(queryCtx, err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read columns: %w", err)
	}

	result := &QueryResult{Columns: columns}
	values := make([]interface{}, len(columns))
	ptrs := make([]interface{}, len(columns))
	for i := range values {
		ptrs[i] = &values[i]
	}

	for rows.Next() {
		if len(result.Rows) >= maxRows {
			log.Debug().Int("max_rows", maxRows).Msg("row ceiling reached, truncating result")
			break
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, wrapExecError(queryCtx, err)
		}
		row := make(map[string]interface{}, len(columns))
		for i, col := range columns {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = values[i]
			}
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapExecError(queryCtx, err)
	}

	result.ExecutionTimeMs = time.Since(start).Milliseconds()
	return result, nil
}

// DescribeTables reads column metadata from information_schema.
func (e *SQLEngine) DescribeTables(ctx context.Context, conn *models.DatabaseConnection) ([]TableDescription, error) {
	driver := conn.Driver
	if driver == "" {
		driver = defaultDriver
	}
	db, err := e.open(driver, conn.DSN)
	if err != nil {
		return nil, fmt.Errorf("open connection %s: %w", conn.ID, err)
	}
	defer db.Close()

	queryCtx, cancel := context.WithTimeout(ctx, e.queryTimeout)
	defer cancel()

	const q = `
		SELECT table_name, column_name, data_type
		FROM information_schema.columns
		WHERE table_schema NOT IN ('pg_catalog', 'information_schema')
		ORDER BY table_name, ordinal_position`

	rows, err := db.QueryContext(queryCtx, q)
	if err != nil {
		return nil, wrapExecError(queryCtx, err)
	}
	defer rows.Close()

	var tables []TableDescription
	byName := map[string]int{}
	for rows.Next() {
		var table, column, dataType string
		if err := rows.Scan(&table, &column, &dataType); err != nil {
			return nil, fmt.Errorf("scan schema row: %w", err)
		}
		idx, ok := byName[table]
		if !ok {
			tables = append(tables, TableDescription{Name: table})
			idx = len(tables) - 1
			byName[table] = idx
		}
		tables[idx].Columns = append(tables[idx].Columns, TableColumn{Name: column, Type: dataType})
	}
	return tables, rows.Err()
}

// wrapExecError maps timeouts to the distinct engine-limit kind; everything
// else stays an ordinary execution error the validator records as INVALID.
func wrapExecError(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &models.EngineLimitError{Msg: "query execution timed out"}
	}
	return err
}

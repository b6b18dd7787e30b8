package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/sqlforge/sqlforge/internal/models"
	"github.com/sqlforge/sqlforge/internal/security"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// BigQueryEngine executes queries against BigQuery targets. Clients are
// created per call and closed before returning.
type BigQueryEngine struct {
	guard        *security.SQLGuard
	queryTimeout time.Duration
}

func NewBigQueryEngine(guard *security.SQLGuard, queryTimeout time.Duration) *BigQueryEngine {
	return &BigQueryEngine{guard: guard, queryTimeout: queryTimeout}
}

func (e *BigQueryEngine) client(ctx context.Context, conn *models.DatabaseConnection) (*bigquery.Client, error) {
	var opts []option.ClientOption
	if conn.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(conn.CredentialsFile))
	}
	client, err := bigquery.NewClient(ctx, conn.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("bigquery.NewClient: %w", err)
	}
	return client, nil
}

func (e *BigQueryEngine) RunSQL(ctx context.Context, conn *models.DatabaseConnection, sqlText string, maxRows int) (*QueryResult, error) {
	if err := e.guard.Check(sqlText); err != nil {
		return nil, err
	}
	maxRows = clampMaxRows(maxRows)

	client, err := e.client(ctx, conn)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	queryCtx, cancel := context.WithTimeout(ctx, e.queryTimeout)
	defer cancel()

	q := client.Query(sqlText)
	if conn.Location != "" {
		q.Location = conn.Location
	}

	start := time.Now()
	job, err := q.Run(queryCtx)
	if err != nil {
		return nil, wrapExecError(queryCtx, err)
	}
	status, err := job.Wait(queryCtx)
	if err != nil {
		return nil, wrapExecError(queryCtx, err)
	}
	if err := status.Err(); err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}

	it, err := job.Read(queryCtx)
	if err != nil {
		return nil, wrapExecError(queryCtx, err)
	}

	result := &QueryResult{}
	first := true
	for {
		if len(result.Rows) >= maxRows {
			break
		}
		var row map[string]bigquery.Value
		err := it.Next(&row)
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, wrapExecError(queryCtx, err)
		}
		if first && it.Schema != nil {
			for _, f := range it.Schema {
				result.Columns = append(result.Columns, f.Name)
			}
			first = false
		}
		m := make(map[string]interface{}, len(row))
		for k, v := range row {
			m[k] = v
		}
		result.Rows = append(result.Rows, m)
	}

	result.ExecutionTimeMs = time.Since(start).Milliseconds()
	return result, nil
}

// DescribeTables lists the tables of the connection's dataset.
func (e *BigQueryEngine) DescribeTables(ctx context.Context, conn *models.DatabaseConnection) ([]TableDescription, error) {
	if conn.Dataset == "" {
		return nil, fmt.Errorf("connection %s has no dataset", conn.ID)
	}

	client, err := e.client(ctx, conn)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	queryCtx, cancel := context.WithTimeout(ctx, e.queryTimeout)
	defer cancel()

	var tables []TableDescription
	it := client.Dataset(conn.Dataset).Tables(queryCtx)
	for {
		tbl, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list tables: %w", err)
		}
		meta, err := tbl.Metadata(queryCtx)
		if err != nil {
			return nil, fmt.Errorf("table metadata %q: %w", tbl.TableID, err)
		}
		desc := TableDescription{Name: tbl.TableID}
		for _, f := range meta.Schema {
			desc.Columns = append(desc.Columns, TableColumn{Name: f.Name, Type: string(f.Type)})
		}
		tables = append(tables, desc)
	}
	return tables, nil
}

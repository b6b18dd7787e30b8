package tools_test

import (
	"context"
	"strings"
	"testing"

	"github.com/sqlforge/sqlforge/internal/engine"
	"github.com/sqlforge/sqlforge/internal/models"
	"github.com/sqlforge/sqlforge/internal/tools"
)

type stubEngine struct {
	tables  []engine.TableDescription
	lastSQL string
	maxRows int
	err     error
}

func (s *stubEngine) RunSQL(_ context.Context, _ *models.DatabaseConnection, sql string, maxRows int) (*engine.QueryResult, error) {
	s.lastSQL = sql
	s.maxRows = maxRows
	if s.err != nil {
		return nil, s.err
	}
	return &engine.QueryResult{Columns: []string{"id"}, Rows: []map[string]interface{}{{"id": 1}}}, nil
}

func (s *stubEngine) DescribeTables(context.Context, *models.DatabaseConnection) ([]engine.TableDescription, error) {
	return s.tables, s.err
}

var conn = &models.DatabaseConnection{ID: "c1", Dialect: "postgres", DSN: "postgres://test"}

func TestListTablesTool(t *testing.T) {
	eng := &stubEngine{tables: []engine.TableDescription{{Name: "users"}, {Name: "orders"}}}
	tool := tools.ListTablesTool(eng, conn)

	out, err := tool.Execute(context.Background(), nil)
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if out != "users, orders" {
		t.Errorf("output = %q", out)
	}
}

func TestTableSchemaToolFiltersRequested(t *testing.T) {
	eng := &stubEngine{tables: []engine.TableDescription{
		{Name: "users", Columns: []engine.TableColumn{{Name: "id", Type: "bigint"}}},
		{Name: "orders", Columns: []engine.TableColumn{{Name: "total", Type: "numeric"}}},
	}}
	tool := tools.TableSchemaTool(eng, conn)

	out, err := tool.Execute(context.Background(), map[string]interface{}{"tables": "users"})
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if !strings.Contains(out, "users:") || strings.Contains(out, "orders:") {
		t.Errorf("output = %q, want only the requested table", out)
	}

	if _, err := tool.Execute(context.Background(), map[string]interface{}{"tables": "ghost"}); err == nil {
		t.Error("unknown table should error")
	}
	if _, err := tool.Execute(context.Background(), map[string]interface{}{}); err == nil {
		t.Error("missing input should error")
	}
}

func TestSampleRowsToolCapsAtFive(t *testing.T) {
	eng := &stubEngine{}
	tool := tools.SampleRowsTool(eng, conn, 50)

	if _, err := tool.Execute(context.Background(), map[string]interface{}{"table": "users"}); err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if eng.maxRows != 5 {
		t.Errorf("maxRows = %d, want sample cap of 5", eng.maxRows)
	}
	if !strings.Contains(eng.lastSQL, "LIMIT 5") {
		t.Errorf("sql = %q, want LIMIT clause", eng.lastSQL)
	}
}

func TestExecuteSQLToolPropagatesGuardError(t *testing.T) {
	eng := &stubEngine{err: &models.SQLInjectionError{Msg: "only SELECT queries are allowed"}}
	tool := tools.ExecuteSQLTool(eng, conn, 50)

	_, err := tool.Execute(context.Background(), map[string]interface{}{"sql": "DROP TABLE users"})
	if !models.IsSQLInjection(err) {
		t.Fatalf("got %v, want the injection error to keep its identity", err)
	}
}

func TestExecuteSQLToolMarshalsResult(t *testing.T) {
	eng := &stubEngine{}
	tool := tools.ExecuteSQLTool(eng, conn, 50)

	out, err := tool.Execute(context.Background(), map[string]interface{}{"sql": "SELECT id FROM users"})
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if !strings.Contains(out, `"row_count":1`) {
		t.Errorf("output = %q, want marshalled result", out)
	}
	if eng.maxRows != 50 {
		t.Errorf("maxRows = %d, want configured ceiling", eng.maxRows)
	}
}

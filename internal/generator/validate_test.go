package generator_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/sqlforge/sqlforge/internal/engine"
	"github.com/sqlforge/sqlforge/internal/generator"
	"github.com/sqlforge/sqlforge/internal/models"
)

// stubEngine satisfies engine.Engine without touching a database.
type stubEngine struct {
	err     error
	lastSQL string
	maxRows int
	calls   int
}

func (s *stubEngine) RunSQL(_ context.Context, _ *models.DatabaseConnection, sql string, maxRows int) (*engine.QueryResult, error) {
	s.calls++
	s.lastSQL = sql
	s.maxRows = maxRows
	if s.err != nil {
		return nil, s.err
	}
	return &engine.QueryResult{Columns: []string{"n"}, Rows: []map[string]interface{}{{"n": 1}}}, nil
}

func (s *stubEngine) DescribeTables(context.Context, *models.DatabaseConnection) ([]engine.TableDescription, error) {
	return nil, nil
}

var testConn = &models.DatabaseConnection{ID: "conn-1", Dialect: "postgres", DSN: "postgres://test"}

func TestValidateMarksValidOnSuccess(t *testing.T) {
	eng := &stubEngine{}
	v := generator.NewQueryValidator(25)
	gen := &models.SQLGeneration{ID: "gen-1", Error: "stale"}

	if err := v.Validate(context.Background(), eng, testConn, "SELECT 1", gen); err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}
	if gen.Status != models.StatusValid {
		t.Errorf("status = %s, want VALID", gen.Status)
	}
	if gen.SQL != "SELECT 1" {
		t.Errorf("sql = %q, want the validated statement", gen.SQL)
	}
	if gen.Error != "" {
		t.Errorf("error = %q, want cleared", gen.Error)
	}
	if eng.maxRows != 25 {
		t.Errorf("maxRows = %d, want the validator ceiling", eng.maxRows)
	}
}

func TestValidateRecordsOrdinaryFailureAsInvalid(t *testing.T) {
	eng := &stubEngine{err: errors.New(`relation "userz" does not exist`)}
	v := generator.NewQueryValidator(25)
	gen := &models.SQLGeneration{ID: "gen-1"}

	if err := v.Validate(context.Background(), eng, testConn, "SELECT * FROM userz", gen); err != nil {
		t.Fatalf("ordinary execution failure must not propagate, got %v", err)
	}
	if gen.Status != models.StatusInvalid {
		t.Errorf("status = %s, want INVALID", gen.Status)
	}
	if !strings.Contains(gen.Error, "userz") {
		t.Errorf("error = %q, want the execution message", gen.Error)
	}
}

func TestValidatePropagatesInjectionError(t *testing.T) {
	eng := &stubEngine{err: &models.SQLInjectionError{Msg: "multiple statements are not allowed"}}
	v := generator.NewQueryValidator(25)
	gen := &models.SQLGeneration{ID: "gen-1"}

	err := v.Validate(context.Background(), eng, testConn, "SELECT 1; DROP TABLE t", gen)
	if !models.IsSQLInjection(err) {
		t.Fatalf("got %v, want injection error propagated", err)
	}
	if gen.Status != models.StatusInvalid {
		t.Errorf("status = %s, want INVALID recorded before propagation", gen.Status)
	}
}

func TestValidatePropagatesEngineLimitError(t *testing.T) {
	eng := &stubEngine{err: &models.EngineLimitError{Msg: "query execution timed out"}}
	v := generator.NewQueryValidator(25)
	gen := &models.SQLGeneration{ID: "gen-1"}

	err := v.Validate(context.Background(), eng, testConn, "SELECT pg_sleep(999)", gen)
	if !models.IsEngineLimit(err) {
		t.Fatalf("got %v, want engine limit error propagated", err)
	}
	if gen.Status != models.StatusInvalid {
		t.Errorf("status = %s, want INVALID", gen.Status)
	}
}

func TestValidateBoundsErrorLength(t *testing.T) {
	eng := &stubEngine{err: errors.New(strings.Repeat("e", 5000))}
	v := generator.NewQueryValidator(25)
	gen := &models.SQLGeneration{ID: "gen-1"}

	if err := v.Validate(context.Background(), eng, testConn, "SELECT 1", gen); err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}
	if len(gen.Error) != 2000 {
		t.Errorf("error length = %d, want bounded to 2000", len(gen.Error))
	}
}

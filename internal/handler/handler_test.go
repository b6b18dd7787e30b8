package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/sqlforge/sqlforge/internal/engine"
	"github.com/sqlforge/sqlforge/internal/generator"
	"github.com/sqlforge/sqlforge/internal/handler"
	"github.com/sqlforge/sqlforge/internal/models"
	"github.com/sqlforge/sqlforge/internal/repository"
	"github.com/sqlforge/sqlforge/internal/security"
	"github.com/sqlforge/sqlforge/internal/service"
)

type stubEngine struct{}

func (stubEngine) RunSQL(context.Context, *models.DatabaseConnection, string, int) (*engine.QueryResult, error) {
	return &engine.QueryResult{Columns: []string{"n"}, Rows: []map[string]interface{}{{"n": 1}}}, nil
}

func (stubEngine) DescribeTables(context.Context, *models.DatabaseConnection) ([]engine.TableDescription, error) {
	return nil, nil
}

type stubResolver struct{}

func (stubResolver) ForConnection(*models.DatabaseConnection) (engine.Engine, error) {
	return stubEngine{}, nil
}

func newRouter(t *testing.T) chi.Router {
	t.Helper()
	store := repository.NewMemoryStore()
	svc := service.NewSQLGenerationService(
		store.Prompts(), store.Connections(), store.Generations(),
		stubResolver{},
		generator.NewQueryValidator(5),
		nil, nil,
		security.NewAuditLogger(false),
	)

	promptH := handler.NewPromptHandler(store.Prompts(), store.Connections())
	connH := handler.NewConnectionHandler(store.Connections())
	genH := handler.NewGenerationHandler(svc, 5)

	r := chi.NewRouter()
	r.Post("/connections", connH.Create)
	r.Get("/connections/{connection_id}", connH.Get)
	r.Post("/prompts", promptH.Create)
	r.Get("/prompts/{prompt_id}", promptH.Get)
	r.Post("/prompts/{prompt_id}/sql-generations", genH.Create)
	r.Get("/sql-generations", genH.List)
	r.Get("/sql-generations/{generation_id}", genH.Get)
	r.Post("/sql-generations/{generation_id}/execute", genH.Execute)
	r.Put("/sql-generations/{generation_id}/metadata", genH.UpdateMetadata)
	return r
}

func doJSON(t *testing.T, r chi.Router, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode request: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode response %q: %v", rr.Body.String(), err)
	}
	return v
}

func createConnection(t *testing.T, r chi.Router) models.DatabaseConnection {
	t.Helper()
	rr := doJSON(t, r, http.MethodPost, "/connections", models.ConnectionRequest{
		Alias: "analytics", Dialect: "postgres", DSN: "postgres://test",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create connection: %d %s", rr.Code, rr.Body.String())
	}
	return decode[models.DatabaseConnection](t, rr)
}

func createPrompt(t *testing.T, r chi.Router, connID string) models.Prompt {
	t.Helper()
	rr := doJSON(t, r, http.MethodPost, "/prompts", models.PromptRequest{
		Text: "how many users signed up?", ConnectionID: connID,
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create prompt: %d %s", rr.Code, rr.Body.String())
	}
	return decode[models.Prompt](t, rr)
}

func TestConnectionValidation(t *testing.T) {
	r := newRouter(t)

	rr := doJSON(t, r, http.MethodPost, "/connections", models.ConnectionRequest{Dialect: "postgres", DSN: "x"})
	if rr.Code != http.StatusBadRequest {
		t.Errorf("missing alias: got %d, want 400", rr.Code)
	}

	rr = doJSON(t, r, http.MethodPost, "/connections", models.ConnectionRequest{Alias: "bq", Dialect: "bigquery"})
	if rr.Code != http.StatusBadRequest {
		t.Errorf("bigquery without project: got %d, want 400", rr.Code)
	}

	rr = doJSON(t, r, http.MethodPost, "/connections", models.ConnectionRequest{Alias: "pg", Dialect: "postgres"})
	if rr.Code != http.StatusBadRequest {
		t.Errorf("postgres without dsn: got %d, want 400", rr.Code)
	}
}

func TestPromptRejectsUnknownConnection(t *testing.T) {
	r := newRouter(t)

	rr := doJSON(t, r, http.MethodPost, "/prompts", models.PromptRequest{Text: "q", ConnectionID: "ghost"})
	if rr.Code != http.StatusNotFound {
		t.Errorf("got %d, want 404 for dangling connection reference", rr.Code)
	}
}

func TestPromptRoundTrip(t *testing.T) {
	r := newRouter(t)
	conn := createConnection(t, r)
	prompt := createPrompt(t, r, conn.ID)

	rr := doJSON(t, r, http.MethodGet, "/prompts/"+prompt.ID, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("get prompt: %d", rr.Code)
	}
	got := decode[models.Prompt](t, rr)
	if got.Text != prompt.Text {
		t.Errorf("text = %q, want %q", got.Text, prompt.Text)
	}
}

func TestGenerationPassthroughLifecycle(t *testing.T) {
	r := newRouter(t)
	conn := createConnection(t, r)
	prompt := createPrompt(t, r, conn.ID)

	rr := doJSON(t, r, http.MethodPost, "/prompts/"+prompt.ID+"/sql-generations",
		models.SQLGenerationRequest{SQL: "SELECT count(*) FROM users"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create generation: %d %s", rr.Code, rr.Body.String())
	}
	gen := decode[models.SQLGeneration](t, rr)
	if gen.Status != models.StatusValid {
		t.Errorf("status = %s, want VALID", gen.Status)
	}

	rr = doJSON(t, r, http.MethodGet, "/sql-generations/"+gen.ID, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("get generation: %d", rr.Code)
	}

	rr = doJSON(t, r, http.MethodGet, "/sql-generations?prompt_id="+prompt.ID+"&status=VALID", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("list generations: %d", rr.Code)
	}
	listed := decode[[]models.SQLGeneration](t, rr)
	if len(listed) != 1 {
		t.Errorf("listed = %d, want 1", len(listed))
	}

	rr = doJSON(t, r, http.MethodPost, "/sql-generations/"+gen.ID+"/execute", models.ExecuteRequest{MaxRows: 2})
	if rr.Code != http.StatusOK {
		t.Fatalf("execute: %d %s", rr.Code, rr.Body.String())
	}
	exec := decode[models.ExecuteResponse](t, rr)
	if exec.RowCount != 1 {
		t.Errorf("row count = %d, want 1", exec.RowCount)
	}

	rr = doJSON(t, r, http.MethodPut, "/sql-generations/"+gen.ID+"/metadata",
		models.MetadataRequest{Metadata: map[string]interface{}{"reviewed": true}})
	if rr.Code != http.StatusOK {
		t.Fatalf("update metadata: %d %s", rr.Code, rr.Body.String())
	}
	updated := decode[models.SQLGeneration](t, rr)
	if updated.Metadata["reviewed"] != true {
		t.Errorf("metadata = %v, want reviewed flag", updated.Metadata)
	}
}

func TestGenerationUnknownPromptIs404(t *testing.T) {
	r := newRouter(t)

	rr := doJSON(t, r, http.MethodPost, "/prompts/ghost/sql-generations",
		models.SQLGenerationRequest{SQL: "SELECT 1"})
	if rr.Code != http.StatusNotFound {
		t.Errorf("got %d, want 404", rr.Code)
	}
}

func TestGenerationWithoutAgentOrSQLIs500(t *testing.T) {
	r := newRouter(t)
	conn := createConnection(t, r)
	prompt := createPrompt(t, r, conn.ID)

	rr := doJSON(t, r, http.MethodPost, "/prompts/"+prompt.ID+"/sql-generations",
		models.SQLGenerationRequest{})
	if rr.Code != http.StatusInternalServerError {
		t.Errorf("got %d, want 500 when no agent is configured", rr.Code)
	}
}

func TestListGenerationsEmpty(t *testing.T) {
	r := newRouter(t)

	rr := doJSON(t, r, http.MethodGet, "/sql-generations", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("list: %d", rr.Code)
	}
	if body := rr.Body.String(); body == "null\n" {
		t.Error("empty list should serialize as [], not null")
	}
}

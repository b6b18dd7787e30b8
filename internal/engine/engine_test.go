package engine_test

import (
	"testing"
	"time"

	"github.com/sqlforge/sqlforge/internal/engine"
	"github.com/sqlforge/sqlforge/internal/models"
	"github.com/sqlforge/sqlforge/internal/security"
)

func TestResolverDispatchesByDialect(t *testing.T) {
	r := engine.NewResolver(security.NewSQLGuard(), time.Second)

	cases := []struct {
		name    string
		conn    *models.DatabaseConnection
		wantErr bool
	}{
		{"postgres", &models.DatabaseConnection{ID: "a", Dialect: "postgres", DSN: "postgres://x"}, false},
		{"default dialect", &models.DatabaseConnection{ID: "b", DSN: "postgres://x"}, false},
		{"bigquery", &models.DatabaseConnection{ID: "c", Dialect: "bigquery", ProjectID: "p"}, false},
		{"missing dsn", &models.DatabaseConnection{ID: "d", Dialect: "postgres"}, true},
		{"unknown dialect", &models.DatabaseConnection{ID: "e", Dialect: "oracle", DSN: "x"}, true},
	}
	for _, c := range cases {
		eng, err := r.ForConnection(c.conn)
		if c.wantErr {
			if err == nil {
				t.Errorf("%s: expected error", c.name)
			}
			continue
		}
		if err != nil {
			t.Errorf("%s: unexpected error %v", c.name, err)
		}
		if eng == nil {
			t.Errorf("%s: nil engine", c.name)
		}
	}
}

package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sqlforge/sqlforge/internal/models"
)

// PostgresStore implements the repositories on a pgx connection pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Prompts() PromptRepository            { return (*pgPrompts)(s) }
func (s *PostgresStore) Connections() ConnectionRepository    { return (*pgConnections)(s) }
func (s *PostgresStore) Generations() SQLGenerationRepository { return (*pgGenerations)(s) }

type pgPrompts PostgresStore

func (r *pgPrompts) Insert(ctx context.Context, p *models.Prompt) error {
	meta, err := json.Marshal(p.Metadata)
	if err != nil {
		return fmt.Errorf("marshal prompt metadata: %w", err)
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO prompts (id, text, db_connection_id, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		p.ID, p.Text, p.ConnectionID, meta, p.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting prompt: %w", err)
	}
	return nil
}

func (r *pgPrompts) FindByID(ctx context.Context, id string) (*models.Prompt, error) {
	var p models.Prompt
	var meta []byte
	err := r.pool.QueryRow(ctx, `
		SELECT id, text, db_connection_id, metadata, created_at
		FROM prompts WHERE id = $1`, id).
		Scan(&p.ID, &p.Text, &p.ConnectionID, &meta, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &models.NotFoundError{Resource: "prompt", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("finding prompt: %w", err)
	}
	if err := unmarshalMap(meta, &p.Metadata); err != nil {
		return nil, err
	}
	return &p, nil
}

type pgConnections PostgresStore

func (r *pgConnections) Insert(ctx context.Context, c *models.DatabaseConnection) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO database_connections
			(id, alias, dialect, driver, dsn, project_id, dataset, credentials_file, location, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		c.ID, c.Alias, c.Dialect, c.Driver, c.DSN, c.ProjectID, c.Dataset, c.CredentialsFile, c.Location, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting database connection: %w", err)
	}
	return nil
}

func (r *pgConnections) FindByID(ctx context.Context, id string) (*models.DatabaseConnection, error) {
	var c models.DatabaseConnection
	err := r.pool.QueryRow(ctx, `
		SELECT id, alias, dialect, driver, dsn, project_id, dataset, credentials_file, location, created_at
		FROM database_connections WHERE id = $1`, id).
		Scan(&c.ID, &c.Alias, &c.Dialect, &c.Driver, &c.DSN, &c.ProjectID, &c.Dataset, &c.CredentialsFile, &c.Location, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &models.NotFoundError{Resource: "database connection", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("finding database connection: %w", err)
	}
	return &c, nil
}

type pgGenerations PostgresStore

func (r *pgGenerations) Insert(ctx context.Context, g *models.SQLGeneration) error {
	meta, steps, err := marshalGeneration(g)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO sql_generations
			(id, prompt_id, finetuning_id, sql, status, error, tokens_used,
			 evaluate, confidence_score, intermediate_steps, metadata, created_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		g.ID, g.PromptID, g.FinetuningID, g.SQL, string(g.Status), g.Error, g.TokensUsed,
		g.Evaluate, g.ConfidenceScore, steps, meta, g.CreatedAt, g.CompletedAt)
	if err != nil {
		return fmt.Errorf("inserting sql generation: %w", err)
	}
	return nil
}

func (r *pgGenerations) Update(ctx context.Context, g *models.SQLGeneration) error {
	meta, steps, err := marshalGeneration(g)
	if err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE sql_generations SET
			finetuning_id = $2, sql = $3, status = $4, error = $5, tokens_used = $6,
			evaluate = $7, confidence_score = $8, intermediate_steps = $9,
			metadata = $10, completed_at = $11
		WHERE id = $1`,
		g.ID, g.FinetuningID, g.SQL, string(g.Status), g.Error, g.TokensUsed,
		g.Evaluate, g.ConfidenceScore, steps, meta, g.CompletedAt)
	if err != nil {
		return fmt.Errorf("updating sql generation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &models.NotFoundError{Resource: "sql generation", ID: g.ID}
	}
	return nil
}

func (r *pgGenerations) FindByID(ctx context.Context, id string) (*models.SQLGeneration, error) {
	rows, err := r.pool.Query(ctx, selectGeneration+` WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("finding sql generation: %w", err)
	}
	defer rows.Close()
	gens, err := scanGenerations(rows)
	if err != nil {
		return nil, err
	}
	if len(gens) == 0 {
		return nil, &models.NotFoundError{Resource: "sql generation", ID: id}
	}
	return gens[0], nil
}

func (r *pgGenerations) FindBy(ctx context.Context, filter GenerationFilter) ([]*models.SQLGeneration, error) {
	query := selectGeneration + ` WHERE ($1 = '' OR prompt_id = $1) AND ($2 = '' OR status = $2) ORDER BY created_at`
	rows, err := r.pool.Query(ctx, query, filter.PromptID, string(filter.Status))
	if err != nil {
		return nil, fmt.Errorf("listing sql generations: %w", err)
	}
	defer rows.Close()
	return scanGenerations(rows)
}

const selectGeneration = `
	SELECT id, prompt_id, finetuning_id, sql, status, error, tokens_used,
	       evaluate, confidence_score, intermediate_steps, metadata, created_at, completed_at
	FROM sql_generations`

func scanGenerations(rows pgx.Rows) ([]*models.SQLGeneration, error) {
	var out []*models.SQLGeneration
	for rows.Next() {
		var g models.SQLGeneration
		var status string
		var steps, meta []byte
		if err := rows.Scan(&g.ID, &g.PromptID, &g.FinetuningID, &g.SQL, &status, &g.Error,
			&g.TokensUsed, &g.Evaluate, &g.ConfidenceScore, &steps, &meta, &g.CreatedAt, &g.CompletedAt); err != nil {
			return nil, fmt.Errorf("scanning sql generation: %w", err)
		}
		g.Status = models.GenerationStatus(status)
		if steps != nil {
			if err := json.Unmarshal(steps, &g.IntermediateSteps); err != nil {
				return nil, fmt.Errorf("unmarshal intermediate steps: %w", err)
			}
		}
		if err := unmarshalMap(meta, &g.Metadata); err != nil {
			return nil, err
		}
		out = append(out, &g)
	}
	return out, rows.Err()
}

func marshalGeneration(g *models.SQLGeneration) (meta, steps []byte, err error) {
	meta, err = json.Marshal(g.Metadata)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal generation metadata: %w", err)
	}
	steps, err = json.Marshal(g.IntermediateSteps)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal intermediate steps: %w", err)
	}
	return meta, steps, nil
}

func unmarshalMap(raw []byte, dst *map[string]interface{}) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("unmarshal metadata: %w", err)
	}
	return nil
}

// Package repository persists prompts, database connections and SQL
// generation records. A Postgres implementation backs production; an
// in-memory implementation backs tests and storage-less development.
package repository

import (
	"context"

	"github.com/sqlforge/sqlforge/internal/models"
)

// GenerationFilter selects generations in FindBy queries.
type GenerationFilter struct {
	PromptID string
	Status   models.GenerationStatus
}

type PromptRepository interface {
	Insert(ctx context.Context, p *models.Prompt) error
	FindByID(ctx context.Context, id string) (*models.Prompt, error)
}

type ConnectionRepository interface {
	Insert(ctx context.Context, c *models.DatabaseConnection) error
	FindByID(ctx context.Context, id string) (*models.DatabaseConnection, error)
}

type SQLGenerationRepository interface {
	Insert(ctx context.Context, g *models.SQLGeneration) error

	// Update persists the full record and is idempotent on repeated
	// identical input.
	Update(ctx context.Context, g *models.SQLGeneration) error

	FindByID(ctx context.Context, id string) (*models.SQLGeneration, error)
	FindBy(ctx context.Context, filter GenerationFilter) ([]*models.SQLGeneration, error)
}

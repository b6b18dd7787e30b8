package repository

import (
	"context"
	"sync"

	"github.com/sqlforge/sqlforge/internal/models"
)

// MemoryStore keeps all records in process. Used by tests and as the
// storage backend when DATABASE_URL is unset.
type MemoryStore struct {
	mu          sync.RWMutex
	prompts     map[string]models.Prompt
	connections map[string]models.DatabaseConnection
	generations map[string]models.SQLGeneration
	order       []string // generation insertion order, for stable FindBy
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		prompts:     make(map[string]models.Prompt),
		connections: make(map[string]models.DatabaseConnection),
		generations: make(map[string]models.SQLGeneration),
	}
}

// Prompts returns the prompt repository view of the store.
func (s *MemoryStore) Prompts() PromptRepository { return (*memoryPrompts)(s) }

// Connections returns the connection repository view of the store.
func (s *MemoryStore) Connections() ConnectionRepository { return (*memoryConnections)(s) }

// Generations returns the generation repository view of the store.
func (s *MemoryStore) Generations() SQLGenerationRepository { return (*memoryGenerations)(s) }

type memoryPrompts MemoryStore

func (r *memoryPrompts) Insert(_ context.Context, p *models.Prompt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prompts[p.ID] = *p
	return nil
}

func (r *memoryPrompts) FindByID(_ context.Context, id string) (*models.Prompt, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.prompts[id]
	if !ok {
		return nil, &models.NotFoundError{Resource: "prompt", ID: id}
	}
	return &p, nil
}

type memoryConnections MemoryStore

func (r *memoryConnections) Insert(_ context.Context, c *models.DatabaseConnection) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connections[c.ID] = *c
	return nil
}

func (r *memoryConnections) FindByID(_ context.Context, id string) (*models.DatabaseConnection, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.connections[id]
	if !ok {
		return nil, &models.NotFoundError{Resource: "database connection", ID: id}
	}
	return &c, nil
}

type memoryGenerations MemoryStore

func (r *memoryGenerations) Insert(_ context.Context, g *models.SQLGeneration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.generations[g.ID] = *g
	r.order = append(r.order, g.ID)
	return nil
}

func (r *memoryGenerations) Update(_ context.Context, g *models.SQLGeneration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.generations[g.ID]; !ok {
		return &models.NotFoundError{Resource: "sql generation", ID: g.ID}
	}
	r.generations[g.ID] = *g
	return nil
}

func (r *memoryGenerations) FindByID(_ context.Context, id string) (*models.SQLGeneration, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.generations[id]
	if !ok {
		return nil, &models.NotFoundError{Resource: "sql generation", ID: id}
	}
	return &g, nil
}

func (r *memoryGenerations) FindBy(_ context.Context, filter GenerationFilter) ([]*models.SQLGeneration, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*models.SQLGeneration
	for _, id := range r.order {
		g := r.generations[id]
		if filter.PromptID != "" && g.PromptID != filter.PromptID {
			continue
		}
		if filter.Status != "" && g.Status != filter.Status {
			continue
		}
		copied := g
		out = append(out, &copied)
	}
	return out, nil
}

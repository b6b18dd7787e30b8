// Package service hosts the SQL generation orchestrator: prompt and
// connection lookup, agent selection, validation, optional confidence
// evaluation, and the record lifecycle from pending to terminal.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/sqlforge/sqlforge/internal/engine"
	"github.com/sqlforge/sqlforge/internal/evaluator"
	"github.com/sqlforge/sqlforge/internal/generator"
	"github.com/sqlforge/sqlforge/internal/metrics"
	"github.com/sqlforge/sqlforge/internal/models"
	"github.com/sqlforge/sqlforge/internal/repository"
	"github.com/sqlforge/sqlforge/internal/security"
)

// AgentFactory returns the generation agent for a request: the fine-tuned
// variant when a finetuning reference is supplied, the standard reasoning
// agent otherwise.
type AgentFactory func(finetuningID string) generator.GenerationAgent

// EngineResolver yields the execution engine serving a connection.
// *engine.Resolver satisfies it.
type EngineResolver interface {
	ForConnection(conn *models.DatabaseConnection) (engine.Engine, error)
}

// SQLGenerationService owns the lifecycle of a SQLGeneration record for the
// duration of one request.
type SQLGenerationService struct {
	prompts     repository.PromptRepository
	connections repository.ConnectionRepository
	generations repository.SQLGenerationRepository
	engines     EngineResolver
	validator   *generator.QueryValidator
	evaluator   evaluator.Evaluator
	agents      AgentFactory
	audit       *security.AuditLogger
}

func NewSQLGenerationService(
	prompts repository.PromptRepository,
	connections repository.ConnectionRepository,
	generations repository.SQLGenerationRepository,
	engines EngineResolver,
	validator *generator.QueryValidator,
	eval evaluator.Evaluator,
	agents AgentFactory,
	audit *security.AuditLogger,
) *SQLGenerationService {
	return &SQLGenerationService{
		prompts:     prompts,
		connections: connections,
		generations: generations,
		engines:     engines,
		validator:   validator,
		evaluator:   eval,
		agents:      agents,
		audit:       audit,
	}
}

// Create runs one synchronous generation. A pending record is inserted
// before any other work so a partial-failure record always exists; every
// exit path leaves it persisted in a terminal state.
func (s *SQLGenerationService) Create(ctx context.Context, promptID string, req *models.SQLGenerationRequest) (*models.SQLGeneration, error) {
	start := time.Now()

	initial := &models.SQLGeneration{
		ID:           uuid.NewString(),
		PromptID:     promptID,
		FinetuningID: req.FinetuningID,
		Status:       models.StatusNone,
		Evaluate:     req.Evaluate,
		Metadata:     req.Metadata,
		CreatedAt:    time.Now(),
	}
	if err := s.generations.Insert(ctx, initial); err != nil {
		return nil, fmt.Errorf("insert pending generation: %w", err)
	}

	prompt, err := s.prompts.FindByID(ctx, promptID)
	if err != nil {
		return initial, s.finalizeFailure(ctx, initial, err)
	}
	conn, err := s.connections.FindByID(ctx, prompt.ConnectionID)
	if err != nil {
		return initial, s.finalizeFailure(ctx, initial, err)
	}
	eng, err := s.engines.ForConnection(conn)
	if err != nil {
		return initial, s.finalizeFailure(ctx, initial, err)
	}

	var result *models.SQLGeneration
	if req.SQL != "" {
		// Direct passthrough: the caller supplied the SQL, the agent is
		// never invoked.
		result = &models.SQLGeneration{PromptID: promptID, TokensUsed: 0}
		if vErr := s.validator.Validate(ctx, eng, conn, req.SQL, result); vErr != nil {
			s.finalizeFrom(ctx, initial, result, start, prompt)
			return initial, vErr
		}
	} else {
		if s.agents == nil {
			genErr := &models.SQLGenerationError{Err: fmt.Errorf("no generation agent configured")}
			return initial, s.finalizeFailure(ctx, initial, genErr)
		}
		agent := s.agents(req.FinetuningID)
		result, err = agent.GenerateResponse(ctx, prompt, conn)
		if err != nil {
			if models.IsFatalGeneration(err) {
				return initial, s.finalizeFailure(ctx, initial, err)
			}
			genErr := &models.SQLGenerationError{Err: err}
			return initial, s.finalizeFailure(ctx, initial, genErr)
		}
		if result.SQL == "" {
			result.Status = models.StatusInvalid
			result.Error = "no SQL query generated"
		} else if vErr := s.validator.Validate(ctx, eng, conn, result.SQL, result); vErr != nil {
			s.finalizeFrom(ctx, initial, result, start, prompt)
			return initial, vErr
		}
	}

	if req.Evaluate && s.evaluator != nil {
		score, evalErr := s.evaluator.Score(ctx, prompt, result, conn)
		if evalErr != nil {
			log.Warn().Err(evalErr).Str("generation_id", initial.ID).Msg("confidence evaluation failed")
		} else {
			initial.ConfidenceScore = &score
		}
	}

	s.finalizeFrom(ctx, initial, result, start, prompt)
	return initial, nil
}

// StartStreaming runs one streaming generation. The pipeline owns out and
// guarantees a sentinel followed by close, whatever happens.
func (s *SQLGenerationService) StartStreaming(ctx context.Context, promptID string, req *models.SQLGenerationRequest, out chan<- string) error {
	initial := &models.SQLGeneration{
		ID:           uuid.NewString(),
		PromptID:     promptID,
		FinetuningID: req.FinetuningID,
		Status:       models.StatusNone,
		Evaluate:     req.Evaluate,
		Metadata:     req.Metadata,
		CreatedAt:    time.Now(),
	}
	if err := s.generations.Insert(ctx, initial); err != nil {
		close(out)
		return fmt.Errorf("insert pending generation: %w", err)
	}

	prompt, err := s.prompts.FindByID(ctx, promptID)
	if err != nil {
		return s.failStream(ctx, initial, out, err)
	}
	conn, err := s.connections.FindByID(ctx, prompt.ConnectionID)
	if err != nil {
		return s.failStream(ctx, initial, out, err)
	}
	if s.agents == nil {
		return s.failStream(ctx, initial, out, &models.SQLGenerationError{Err: fmt.Errorf("no generation agent configured")})
	}

	agent := s.agents(req.FinetuningID)
	return agent.StreamResponse(ctx, prompt, conn, initial, out)
}

// Get returns generations matching the filter.
func (s *SQLGenerationService) Get(ctx context.Context, filter repository.GenerationFilter) ([]*models.SQLGeneration, error) {
	return s.generations.FindBy(ctx, filter)
}

// FindByID returns one generation.
func (s *SQLGenerationService) FindByID(ctx context.Context, id string) (*models.SQLGeneration, error) {
	return s.generations.FindByID(ctx, id)
}

// Execute replays the stored SQL of a finished generation against its
// connection with a caller-supplied row cap.
func (s *SQLGenerationService) Execute(ctx context.Context, generationID string, maxRows int) (*engine.QueryResult, error) {
	gen, err := s.generations.FindByID(ctx, generationID)
	if err != nil {
		return nil, err
	}
	prompt, err := s.prompts.FindByID(ctx, gen.PromptID)
	if err != nil {
		return nil, err
	}
	conn, err := s.connections.FindByID(ctx, prompt.ConnectionID)
	if err != nil {
		return nil, err
	}
	eng, err := s.engines.ForConnection(conn)
	if err != nil {
		return nil, err
	}

	result, err := eng.RunSQL(ctx, conn, gen.SQL, maxRows)
	if err != nil {
		s.audit.LogExecution(generationID, maxRows, 0, false, err.Error())
		return nil, err
	}
	s.audit.LogExecution(generationID, maxRows, len(result.Rows), true, "")
	return result, nil
}

// UpdateMetadata patches the open key-value metadata of a generation.
// Idempotent on repeated identical input.
func (s *SQLGenerationService) UpdateMetadata(ctx context.Context, generationID string, metadata map[string]interface{}) (*models.SQLGeneration, error) {
	gen, err := s.generations.FindByID(ctx, generationID)
	if err != nil {
		return nil, err
	}
	gen.Metadata = metadata
	if err := s.generations.Update(ctx, gen); err != nil {
		return nil, err
	}
	return gen, nil
}

// finalizeFrom copies the candidate's outcome onto the pending record and
// persists it as terminal.
func (s *SQLGenerationService) finalizeFrom(ctx context.Context, initial, result *models.SQLGeneration, start time.Time, prompt *models.Prompt) {
	initial.SQL = result.SQL
	initial.TokensUsed = result.TokensUsed
	initial.Status = result.Status
	initial.Error = result.Error
	initial.IntermediateSteps = result.IntermediateSteps
	if result.FinetuningID != "" {
		initial.FinetuningID = result.FinetuningID
	}
	initial.MarkCompleted(time.Now())

	metrics.CountGeneration(string(initial.Status))
	metrics.CountTokens(initial.TokensUsed)
	s.audit.LogGeneration(initial.ID, prompt.Text, initial.SQL, string(initial.Status), initial.TokensUsed, time.Since(start).Milliseconds())

	if err := s.generations.Update(ctx, initial); err != nil {
		log.Error().Err(err).Str("generation_id", initial.ID).Msg("failed to persist finalized generation")
	}
}

// finalizeFailure marks the pending record INVALID with the failure message
// and persists it, then hands the original error back for propagation.
func (s *SQLGenerationService) finalizeFailure(ctx context.Context, gen *models.SQLGeneration, cause error) error {
	gen.Status = models.StatusInvalid
	gen.Error = cause.Error()
	gen.MarkCompleted(time.Now())
	metrics.CountGeneration(string(gen.Status))
	if err := s.generations.Update(ctx, gen); err != nil {
		log.Error().Err(err).Str("generation_id", gen.ID).Msg("failed to persist failed generation")
	}
	return cause
}

// failStream finalizes a stream that could not start: the consumer still
// receives the sentinel exactly once.
func (s *SQLGenerationService) failStream(ctx context.Context, gen *models.SQLGeneration, out chan<- string, cause error) error {
	err := s.finalizeFailure(ctx, gen, cause)
	out <- generator.StreamDone
	close(out)
	return err
}

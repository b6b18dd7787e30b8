package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/sqlforge/sqlforge/internal/engine"
	"github.com/sqlforge/sqlforge/internal/evaluator"
	"github.com/sqlforge/sqlforge/internal/generator"
	"github.com/sqlforge/sqlforge/internal/handler"
	"github.com/sqlforge/sqlforge/internal/middleware"
	"github.com/sqlforge/sqlforge/internal/repository"
	"github.com/sqlforge/sqlforge/internal/security"
	"github.com/sqlforge/sqlforge/internal/service"
)

// setupRoutes returns (router, pool, error) so the storage pool can be
// closed on shutdown.
func (s *Server) setupRoutes(ctx context.Context) (http.Handler, *pgxpool.Pool, error) {
	cfg := s.cfg

	// ─── Storage ─────────────────────────────────────────────────────────────
	var (
		pool        *pgxpool.Pool
		prompts     repository.PromptRepository
		connections repository.ConnectionRepository
		generations repository.SQLGenerationRepository
		pinger      handler.Pinger
	)
	if cfg.DatabaseURL != "" {
		var err error
		pool, err = pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		store := repository.NewPostgresStore(pool)
		prompts, connections, generations = store.Prompts(), store.Connections(), store.Generations()
		pinger = pool
	} else {
		log.Warn().Msg("DATABASE_URL not set - using in-memory storage")
		store := repository.NewMemoryStore()
		prompts, connections, generations = store.Prompts(), store.Connections(), store.Generations()
	}

	// ─── Execution pipeline ──────────────────────────────────────────────────
	guard := security.NewSQLGuard()
	auditLogger := security.NewAuditLogger(cfg.EnableAuditLogging)
	engines := engine.NewResolver(guard, time.Duration(cfg.QueryTimeoutMs)*time.Millisecond)
	validator := generator.NewQueryValidator(cfg.UpperLimitQueryReturnRows)
	traces := generator.NewTraceFormatter(cfg.ObservationMaxLength)
	coordinator := generator.NewStreamingCoordinator(validator, generations)

	var agents service.AgentFactory
	var eval evaluator.Evaluator
	if cfg.AnthropicAPIKey != "" {
		agents = func(finetuningID string) generator.GenerationAgent {
			if finetuningID != "" {
				return generator.NewFinetuningAgent(
					cfg.AnthropicAPIKey, cfg.Model, cfg.AnthropicBaseURL, finetuningID,
					cfg.AgentMaxTokens, cfg.AgentMaxIterations,
					engines, traces, coordinator, cfg.UpperLimitQueryReturnRows,
				)
			}
			return generator.NewReasoningAgent(
				cfg.AnthropicAPIKey, cfg.Model, cfg.AnthropicBaseURL,
				cfg.AgentMaxTokens, cfg.AgentMaxIterations,
				engines, traces, coordinator, cfg.UpperLimitQueryReturnRows,
			)
		}
		eval = evaluator.NewConfidenceEvaluator(cfg.AnthropicAPIKey, cfg.Model, cfg.AnthropicBaseURL)
	} else {
		log.Warn().Msg("ANTHROPIC_API_KEY not set - generation agents disabled, only direct SQL passthrough available")
	}

	log.Info().
		Bool("postgres_storage", pool != nil).
		Bool("agents_enabled", agents != nil).
		Bool("auth_enabled", cfg.EnableAuth && len(cfg.APIKeys) > 0).
		Bool("audit_logging", cfg.EnableAuditLogging).
		Int("row_ceiling", cfg.UpperLimitQueryReturnRows).
		Msg("service configuration")

	svc := service.NewSQLGenerationService(
		prompts, connections, generations,
		engines, validator, eval, agents, auditLogger,
	)

	// ─── Handlers ────────────────────────────────────────────────────────────
	healthH := handler.NewHealthHandler(pinger, agents != nil)
	promptH := handler.NewPromptHandler(prompts, connections)
	connH := handler.NewConnectionHandler(connections)
	genH := handler.NewGenerationHandler(svc, cfg.UpperLimitQueryReturnRows)

	// ─── Router ──────────────────────────────────────────────────────────────
	r := chi.NewRouter()

	r.Use(middleware.Recovery)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logging)
	r.Use(chiMiddleware.RealIP)

	r.Get("/", healthH.Health)
	r.Get("/health", healthH.Health)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	apiMiddleware := []func(http.Handler) http.Handler{
		middleware.RateLimit(cfg.RateLimitPerMinute),
	}
	if cfg.EnableAuth && len(cfg.APIKeys) > 0 {
		apiMiddleware = append(apiMiddleware, middleware.Auth(cfg.APIKeys, cfg.APIKeyHeader))
	}

	r.Group(func(r chi.Router) {
		for _, m := range apiMiddleware {
			r.Use(m)
		}

		r.Route(cfg.APIPrefix, func(r chi.Router) {
			r.Post("/connections", connH.Create)
			r.Get("/connections/{connection_id}", connH.Get)

			r.Post("/prompts", promptH.Create)
			r.Get("/prompts/{prompt_id}", promptH.Get)
			r.Post("/prompts/{prompt_id}/sql-generations", genH.Create)
			r.Post("/prompts/{prompt_id}/sql-generations/stream", genH.Stream)

			r.Get("/sql-generations", genH.List)
			r.Get("/sql-generations/{generation_id}", genH.Get)
			r.Post("/sql-generations/{generation_id}/execute", genH.Execute)
			r.Put("/sql-generations/{generation_id}/metadata", genH.UpdateMetadata)
		})
	})

	return r, pool, nil
}

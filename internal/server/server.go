package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/sqlforge/sqlforge/internal/config"
)

type Server struct {
	cfg  *config.Config
	http *http.Server
	pool *pgxpool.Pool // nil when running on the in-memory store
}

func New(ctx context.Context, cfg *config.Config) (*Server, error) {
	s := &Server{cfg: cfg}

	router, pool, err := s.setupRoutes(ctx)
	if err != nil {
		return nil, fmt.Errorf("setup routes: %w", err)
	}
	s.pool = pool

	s.http = &http.Server{
		Addr:        fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		// Streaming generations hold the response open for the whole
		// agent run.
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	return s, nil
}

func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("graceful shutdown initiated")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		err := s.http.Shutdown(shutdownCtx)

		if s.pool != nil {
			s.pool.Close()
			log.Info().Msg("storage pool closed")
		}

		return err
	case err := <-errCh:
		return err
	}
}

package server

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// DefaultShutdownTimeout bounds how long in-flight requests may run
// after a termination signal
const DefaultShutdownTimeout = 30 * time.Second

// ShutdownHook is a cleanup function called during graceful shutdown,
// after the HTTP server has stopped accepting requests
type ShutdownHook func(ctx context.Context) error

// Run starts the server and blocks until SIGINT or SIGTERM, then shuts
// down gracefully and runs the hooks in order. The first error wins.
func (s *Server) Run(ctx context.Context, hooks ...ShutdownHook) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
	defer cancel()

	err := s.Shutdown(shutdownCtx)

	for _, hook := range hooks {
		if hookErr := hook(shutdownCtx); hookErr != nil {
			s.logger.Error("shutdown hook failed", zap.Error(hookErr))
			if err == nil {
				err = hookErr
			}
		}
	}

	if err == nil {
		s.logger.Info("server stopped")
	}
	return err
}

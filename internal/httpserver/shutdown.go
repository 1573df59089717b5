package httpserver

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// ShutdownTimeout controls how long to wait for in-flight requests during
// graceful shutdown.
var ShutdownTimeout = 10 * time.Second

// Run serves until ctx is cancelled, then shuts down gracefully. It returns
// nil on a clean shutdown.
func Run(ctx context.Context, srv *Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

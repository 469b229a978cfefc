package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	coreconfig "github.com/m3rciful/kaoribot/core/config"
	"github.com/m3rciful/kaoribot/core/logger"
)

// Serve exposes the default registry until ctx is cancelled.
// An empty listen address disables the endpoint and returns immediately.
func Serve(ctx context.Context, cfg coreconfig.MetricsConfig) error {
	if cfg.Listen == "" {
		return nil
	}
	path := cfg.Path
	if path == "" {
		path = "/metrics"
	}

	mux := http.NewServeMux()
	mux.Handle(path, promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.HTTP.Info("metrics listening",
			slog.String("event", "http.listen"),
			slog.String("listen", cfg.Listen),
			slog.String("path", path),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.HTTP.Warn("metrics shutdown failed",
			slog.String("event", "http.shutdown"),
			slog.String("err", err.Error()),
		)
		return err
	}
	return nil
}

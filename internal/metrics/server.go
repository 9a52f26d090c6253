package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Router returns the status routes: /healthz and /metrics.
func Router() http.Handler {
	Init()
	r := chi.NewRouter()
	r.Use(instrument)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", Handler())
	return r
}

// Serve runs the status server on addr until ctx is done. An empty addr is a no-op.
func Serve(ctx context.Context, addr string, logger *zap.Logger) {
	if addr == "" {
		return
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("status server shutdown error", zap.Error(err))
		}
	}()
	go func() {
		logger.Info("status server started", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("status server error", zap.Error(err))
		}
	}()
}

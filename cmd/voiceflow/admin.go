package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrWong99/voiceflow/internal/health"
	"github.com/MrWong99/voiceflow/internal/observe"
	"github.com/MrWong99/voiceflow/internal/plugin"
	"github.com/MrWong99/voiceflow/internal/session"
)

// adminHandler serves /metrics, /healthz and /readyz.
func adminHandler(m *observe.Metrics, client *session.Client, plugins *plugin.Registry) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())
	health.New(
		health.Connection(client),
		health.Plugins(plugins),
	).Register(mux)
	return observe.Middleware(m)(mux)
}

// serveAdmin returns a runner that serves h on addr until ctx is done.
func serveAdmin(addr string, h http.Handler) func(context.Context) error {
	return func(ctx context.Context) error {
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return err
		}
		srv := &http.Server{
			Handler:           h,
			ReadHeaderTimeout: 5 * time.Second,
		}
		slog.Info("admin server listening", "addr", ln.Addr().String())

		errc := make(chan error, 1)
		go func() { errc <- srv.Serve(ln) }()

		select {
		case err := <-errc:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		case <-ctx.Done():
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(sctx)
		}
	}
}

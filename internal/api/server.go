package api

import (
	"context"
	"net/http"

	"github.com/Graze/Graze/internal/logbuf"
	"github.com/Graze/Graze/internal/service"
)

const defaultMaxBodyBytes = 1 << 20

// Server wraps the HTTP server and mux for the agent API.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
}

// NewServer creates the API server wired with all routes.
func NewServer(addr string, cp *service.ControlPlane, logs *logbuf.Ring, maxBodyBytes int64) *Server {
	if maxBodyBytes <= 0 {
		maxBodyBytes = defaultMaxBodyBytes
	}
	mux := http.NewServeMux()

	mux.Handle("GET /api", HandleAgentState(cp))
	mux.Handle("GET /api/{$}", HandleAgentState(cp))

	mux.Handle("GET /api/streamers/live", HandleLiveStreamers(cp))
	mux.Handle("GET /api/streamers/{name}", HandleGetStreamer(cp))
	mux.Handle("PUT /api/streamers/mine/{name}", HandleMineStreamer(cp))
	mux.Handle("DELETE /api/streamers/mine/{name}", HandleUnmineStreamer(cp))
	// Some clients send the trailing-slash form.
	mux.Handle("DELETE /api/streamers/mine/{name}/{$}", HandleUnmineStreamer(cp))

	mux.Handle("POST /api/predictions/bet/{name}", HandlePlaceBet(cp))
	mux.Handle("GET /api/predictions/live", HandleLivePredictions(cp))

	mux.Handle("GET /api/config/presets", HandleListPresets(cp))
	mux.Handle("POST /api/config/presets", HandleUpsertPreset(cp))
	mux.Handle("DELETE /api/config/presets/{name}", HandleDeletePreset(cp))
	mux.Handle("POST /api/config/streamer/{name}", HandleSetStreamerConfig(cp))
	mux.Handle("GET /api/config/watch_priority", HandleWatchPriority(cp))
	mux.Handle("POST /api/config/watch_priority", HandleSetWatchPriority(cp))

	mux.Handle("POST /api/analytics/timeline", HandleTimeline(cp))

	if logs != nil {
		mux.Handle("GET /api/logs", HandleLogs(logs))
	}

	srv := &http.Server{
		Addr:    addr,
		Handler: RequestBodyLimitMiddleware(maxBodyBytes, mux),
	}
	return &Server{httpServer: srv, mux: mux}
}

// ListenAndServe starts the HTTP server. It blocks until the server stops.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler returns the underlying http.Handler for testing.
func (s *Server) Handler() http.Handler {
	return s.mux
}

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/scribelabs/scribe-live/internal/batch"
	"github.com/scribelabs/scribe-live/internal/config"
	"github.com/scribelabs/scribe-live/internal/live"
	"github.com/scribelabs/scribe-live/internal/storage/sqlite"
	"github.com/scribelabs/scribe-live/internal/transcript"
	"github.com/scribelabs/scribe-live/internal/websocket"
	"github.com/scribelabs/scribe-live/pkg/logger"
)

// Router wraps the API handlers and builds the HTTP route tree
type Router struct {
	handler  *Handler
	config   *config.Config
	logger   *logger.Logger
	wsServer *websocket.Server
}

// NewRouter creates a new API router
func NewRouter(
	liveManager *live.Manager,
	assembler *transcript.Assembler,
	generator *batch.Generator,
	transcriptStorage *sqlite.TranscriptStorage,
	subtitleStorage *sqlite.SubtitleStorage,
	cfg *config.Config,
	log *logger.Logger,
	wsServer *websocket.Server,
) *Router {
	return &Router{
		handler:  NewHandler(liveManager, assembler, generator, transcriptStorage, subtitleStorage, cfg, log),
		config:   cfg,
		logger:   log.Named("api-router"),
		wsServer: wsServer,
	}
}

// Routes returns the HTTP handler with all routes configured
func (r *Router) Routes() http.Handler {
	mux := chi.NewRouter()

	mux.Use(middleware.RequestID)
	mux.Use(middleware.RealIP)
	mux.Use(middleware.Recoverer)

	mux.Route("/api/v1", func(api chi.Router) {
		api.Route("/live", func(liveRoutes chi.Router) {
			liveRoutes.Post("/start", r.handler.StartLiveSession)
			liveRoutes.Post("/stop", r.handler.StopLiveSession)
		})

		api.Get("/transcripts", r.handler.GetTranscripts)
		api.Delete("/transcripts", r.handler.ClearTranscripts)

		api.Route("/subtitles", func(subRoutes chi.Router) {
			subRoutes.Post("/", r.handler.GenerateSubtitles)
			subRoutes.Get("/", r.handler.GetSubtitles)
			subRoutes.Get("/export", r.handler.ExportSubtitles)
		})

		api.Get("/status", r.handler.GetStatus)
	})

	// WebSocket endpoint for transcript streaming
	mux.Get("/ws", r.wsServer.HandleConnection)

	// Static files for the browser UI
	staticHandler := NewStaticFileHandler(r.config.Server.StaticFilesDir, r.logger)
	mux.NotFound(staticHandler.ServeHTTP)

	return mux
}

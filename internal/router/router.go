package router

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"threadhub/internal/config"
	"threadhub/internal/db"
	"threadhub/internal/handler"
	"threadhub/internal/logging"
	"threadhub/internal/middleware"
	"threadhub/internal/service"
)

const Version = "0.3.0"

// Options carries the optional collaborators of the router. Zero values
// select in-process defaults: a fresh stream hub, no turn cache and no
// archive store.
type Options struct {
	Hub    *service.StreamHub
	Cache  service.TurnCache
	Store  service.ObjectStore
	Logger *slog.Logger
}

// New builds the HTTP router.
func New(cfg *config.Config, d *db.DB, opts Options) http.Handler {
	if opts.Hub == nil {
		opts.Hub = service.NewStreamHub()
	}
	if opts.Cache == nil {
		opts.Cache = service.NopTurnCache{}
	}
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}

	threadSvc := service.NewThreadService(d, opts.Hub)
	messageSvc := service.NewMessageService(d, opts.Hub, opts.Logger)
	turnSvc := service.NewTurnService(messageSvc, opts.Cache, opts.Logger)
	promptSvc := service.NewPromptService(d)
	archiveSvc := service.NewArchiveService(threadSvc, messageSvc, opts.Store, opts.Logger)

	healthH := handler.NewHealthHandler(Version)
	threadH := handler.NewThreadHandler(threadSvc, turnSvc)
	messageH := handler.NewMessageHandler(messageSvc)
	turnH := handler.NewTurnHandler(turnSvc, messageSvc, opts.Hub, opts.Logger)
	promptH := handler.NewPromptHandler(promptSvc)
	archiveH := handler.NewArchiveHandler(archiveSvc)

	requireInternal := middleware.RequireInternalSecret(cfg.InternalSecret)

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(middleware.Trace)
	r.Use(middleware.RequestLog(opts.Logger))
	r.Use(middleware.CORS)

	r.Get("/v1/health", healthH.Health)
	r.Get("/v1/version", healthH.Version)

	// Threads + message stream
	r.Get("/v1/threads", threadH.List)
	r.Post("/v1/threads", threadH.Create)
	r.Get("/v1/threads/{thread_id}", threadH.Get)
	r.Patch("/v1/threads/{thread_id}", threadH.Update)
	r.Delete("/v1/threads/{thread_id}", threadH.Delete)
	r.Get("/v1/threads/{thread_id}/messages", messageH.List)
	r.Post("/v1/threads/{thread_id}/messages", messageH.Append)

	// Reconciled view
	r.Get("/v1/threads/{thread_id}/turns", turnH.Get)
	r.Get("/v1/threads/{thread_id}/turns/ws", turnH.StreamTurns)
	r.Get("/v1/threads/{thread_id}/events", turnH.StreamEvents)
	r.Post("/v1/threads/{thread_id}/archive", archiveH.Archive)

	// Prompt templates
	r.Get("/v1/prompts", promptH.List)
	r.Post("/v1/prompts", promptH.Create)
	r.Get("/v1/prompts/search", promptH.Search)
	r.Get("/v1/prompts/{name}", promptH.Get)
	r.Put("/v1/prompts/{name}", promptH.Update)
	r.Delete("/v1/prompts/{name}", promptH.Delete)
	r.Post("/v1/prompts/{name}/render", promptH.Render)
	r.Get("/v1/prompt-categories", promptH.Categories)

	// Internal (agent server -> hub)
	r.Group(func(r chi.Router) {
		r.Use(requireInternal)
		r.Post("/internal/threads/{thread_id}/messages", messageH.Append)
	})

	return r
}

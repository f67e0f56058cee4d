package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	chathandler "github.com/parleychat/parley-go/internal/handler/chat"
	"github.com/parleychat/parley-go/internal/handler/ws"
	"github.com/parleychat/parley-go/internal/middleware"
	"github.com/parleychat/parley-go/internal/service/backend"
)

// NewRouter wires the devserver's HTTP routes to the in-memory backend.
func NewRouter(svc *backend.Service, acceptedKeys []string, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS)

	chatHandler := chathandler.New(svc)
	hub := ws.NewHub(svc, logger)

	r.Route("/api", func(api chi.Router) {
		// The websocket handshake cannot carry custom headers from browser
		// clients, so only the REST surface enforces the key.
		api.Group(func(rest chi.Router) {
			rest.Use(middleware.RequireKey(acceptedKeys))
			chatHandler.RegisterRoutes(rest)
		})

		hub.RegisterRoutes(api)
	})

	return r
}

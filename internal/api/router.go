package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter creates and configures a new chi router with all the application's routes.
func NewRouter(chatHandler *ChatHandler) *chi.Mux {
	r := chi.NewRouter()

	// --- Global Middleware ---
	// These are applied to every request.
	r.Use(middleware.RequestID) // Injects a unique request ID into the context.
	r.Use(middleware.RealIP)    // Sets the remote address to the real IP from proxy headers.
	r.Use(middleware.Logger)    // Logs the start and end of each request with useful info.
	r.Use(middleware.Recoverer) // Recovers from panics and returns a 500 error.

	// A simple health check endpoint. Crucial for container orchestration systems
	// like Kubernetes to perform liveness and readiness probes.
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// --- API Version 1 Routes ---
	// All primary API endpoints are grouped under the /api/v1 prefix and
	// require a resolved caller identity.
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(identityMiddleware)

		// Group for standard JSON API routes that should have a request timeout
		// to prevent client connections from hanging indefinitely.
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(60 * time.Second))

			// --- Settings ---
			r.Get("/settings", chatHandler.GetSettings)
			r.Post("/settings", chatHandler.UpdateSettings)

			// --- Chats ---
			r.Get("/chats", chatHandler.GetChats)
			r.Get("/chats/{chatID}", chatHandler.GetChat)
			r.Put("/chats/{chatID}/title", chatHandler.UpdateChatTitle)
			r.Delete("/chats/{chatID}", chatHandler.HandleDeleteChat)
		})

		// Group for long-running, streaming endpoints. These routes must NOT have a timeout,
		// as they are designed to hold a connection open for an extended period.
		r.Group(func(r chi.Router) {
			r.Post("/chats/messages", chatHandler.HandleStreamMessage)
		})
	})

	return r
}

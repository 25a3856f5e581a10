package api

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/mtlprog/folio/internal/app"
	"github.com/mtlprog/folio/internal/snapshot"
)

// ServerOptions configures authentication and CORS of the HTTP server.
type ServerOptions struct {
	// AdminAPIKey guards every mutating route when set.
	AdminAPIKey    string
	AllowedOrigins []string
	// Snapshots enables the history routes when set.
	Snapshots *snapshot.Service
}

// NewServer creates an HTTP server with all routes configured.
func NewServer(port string, a *app.App, opts ServerOptions) *http.Server {
	return &http.Server{
		Addr:         ":" + port,
		Handler:      NewRouter(a, opts),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// NewRouter builds the route table.
func NewRouter(a *app.App, opts ServerOptions) http.Handler {
	handler := NewHandler(a)
	handler.snapshots = opts.Snapshots

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(newCORS(opts.AllowedOrigins).Handler)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/summary", handler.GetSummary)
		r.Get("/analytics", handler.GetAnalytics)
		r.Get("/rebalance/{targetID}", handler.GetRebalance)
		r.Get("/rebalance/{targetID}/export.xlsx", handler.ExportRebalance)

		r.Get("/holdings", listItems(a.Holdings))
		r.Get("/targets", listItems(a.Targets))

		if opts.Snapshots != nil {
			r.Get("/snapshots", handler.ListSnapshots)
			r.Get("/snapshots/latest", handler.GetLatestSnapshot)
			r.Get("/snapshots/{date}", handler.GetSnapshotByDate)
		}

		r.Group(func(r chi.Router) {
			if opts.AdminAPIKey != "" {
				r.Use(func(next http.Handler) http.Handler { return requireAuth(opts.AdminAPIKey, next) })
			}
			r.Post("/refresh", handler.Refresh)
			if opts.Snapshots != nil {
				r.Post("/snapshots/generate", handler.GenerateSnapshot)
			}

			r.Post("/holdings", createItem(a.Holdings, handler.stampHolding))
			r.Patch("/holdings/{id}", updateItem(a.Holdings))
			r.Delete("/holdings/{id}", deleteItem(a.Holdings))

			r.Post("/targets", createItem(a.Targets, handler.stampTarget))
			r.Patch("/targets/{id}", updateItem(a.Targets))
			r.Delete("/targets/{id}", deleteItem(a.Targets))
		})
	})

	return r
}

func newCORS(allowedOrigins []string) *cors.Cors {
	return cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		ExposedHeaders:   []string{"Content-Type", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		slog.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()))
	})
}

func requireAuth(apiKey string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		token := strings.TrimPrefix(auth, "Bearer ")
		if !strings.HasPrefix(auth, "Bearer ") || subtle.ConstantTimeCompare([]byte(token), []byte(apiKey)) != 1 {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

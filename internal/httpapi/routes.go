package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

func SetupRoutes(battles Battles, disputes Disputes, ws http.HandlerFunc, log *zap.Logger) http.Handler {
	a := &api{battles: battles, disputes: disputes, log: log.Named("http")}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(a.log))

	// Public routes
	r.Get("/healthz", Healthz)
	r.Get("/ws", ws)
	r.Route("/battles", func(r chi.Router) {
		r.Post("/", a.createBattle)
		r.Get("/{id}", a.getBattle)
		r.Get("/{id}/standing", a.standing)
		r.Post("/{id}/disputes", a.fileDispute)
	})

	// Moderation
	r.Route("/admin/disputes", func(r chi.Router) {
		r.Get("/", a.listPending)
		r.Get("/{id}", a.disputeStatus)
		r.Post("/{id}/actions", a.resolve)
		r.Post("/{id}/revert", a.revert)
	})
	return r
}

func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Debug("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("took", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())))
		})
	}
}

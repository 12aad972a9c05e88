package handler

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type RouterConfig struct {
	AdminSecret   string
	AllowedOrigin string
}

// NewRouter mounts the public API. Family routes exist only when the
// handler was built with a family service.
func NewRouter(h *RestHandler, cfg RouterConfig, logger *slog.Logger) http.Handler {
	router := mux.NewRouter()

	router.HandleFunc("/health", h.Health).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	router.HandleFunc("/reputation", h.GetReputation).Methods(http.MethodGet)
	router.HandleFunc("/report", h.Report).Methods(http.MethodPost)
	router.HandleFunc("/correct", h.Correct).Methods(http.MethodPost)
	router.HandleFunc("/seed-db-manifest", h.SeedManifest).Methods(http.MethodGet)
	router.HandleFunc("/reputation-harden", requireAdmin(cfg.AdminSecret, h.Harden)).Methods(http.MethodPost)

	if h.family != nil {
		router.HandleFunc("/family-pair", h.FamilyPair).Methods(http.MethodPost)
		router.HandleFunc("/family-sync", h.FamilySync).Methods(http.MethodPost)
		router.HandleFunc("/family-renew", h.FamilyRenew).Methods(http.MethodPost)
		router.HandleFunc("/family-revoke", h.FamilyRevoke).Methods(http.MethodPost)
		router.HandleFunc("/family-unpair", h.FamilyUnpair).Methods(http.MethodPost)
	}

	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	router.Use(loggingMiddleware(logger))

	return corsMiddleware(cfg.AllowedOrigin)(recoverMiddleware(logger)(router))
}

package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/fennsaji/call-shield-sub001/internal/core/domain"
	"github.com/fennsaji/call-shield-sub001/internal/reputation"
	"github.com/go-playground/validator/v10"
)

const (
	requestTimeout = 5 * time.Second
	hardenTimeout  = 2 * time.Minute
)

type ReputationService interface {
	SubmitReport(ctx context.Context, hash domain.NumberHash, deviceTokenHash string, category domain.Category) (reputation.ReportResult, error)
	SubmitCorrection(ctx context.Context, hash domain.NumberHash, deviceTokenHash string) (reputation.CorrectionResult, error)
	Lookup(ctx context.Context, hash domain.NumberHash, deviceTokenHash string) (reputation.LookupResult, error)
}

type HardeningRunner interface {
	Run(ctx context.Context) (reputation.HardeningResult, error)
}

type ManifestCatalog interface {
	Latest(ctx context.Context) (*domain.SeedManifest, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type RestHandler struct {
	reputation ReputationService
	hardener   HardeningRunner
	catalog    ManifestCatalog
	family     FamilyService
	db         Pinger
	validator  *validator.Validate
	logger     *slog.Logger
}

// Deps wires the services behind the HTTP surface. Family is optional and
// its routes are only registered when set. Without a catalog the manifest
// endpoint always answers 404.
type Deps struct {
	Reputation ReputationService
	Hardener   HardeningRunner
	Catalog    ManifestCatalog
	Family     FamilyService
	DB         Pinger
}

func NewRestHandler(deps Deps, logger *slog.Logger) *RestHandler {
	return &RestHandler{
		reputation: deps.Reputation,
		hardener:   deps.Hardener,
		catalog:    deps.Catalog,
		family:     deps.Family,
		db:         deps.DB,
		validator:  newValidator(),
		logger:     logger.With("component", "rest_handler"),
	}
}

func (h *RestHandler) Health(w http.ResponseWriter, r *http.Request) {
	status, code := "healthy", http.StatusOK
	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.Ping(ctx); err != nil {
			h.logger.WarnContext(r.Context(), "health check failed", "error", err)
			status, code = "unhealthy", http.StatusServiceUnavailable
		}
	}

	writeJSON(w, code, map[string]any{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"service":   "reputation-api",
	})
}

// GetReputation answers the device's screening-time lookup.
func (h *RestHandler) GetReputation(w http.ResponseWriter, r *http.Request) {
	q := reputationQuery{
		Hash:        r.URL.Query().Get("hash"),
		DeviceToken: r.URL.Query().Get("device_token"),
	}
	if err := h.validate(q); err != nil {
		h.writeError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	res, err := h.reputation.Lookup(ctx, domain.NumberHash(q.Hash), q.DeviceToken)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"confidence_score": res.ConfidenceScore,
		"category":         res.Category,
		"report_count":     res.ReportCount,
		"unique_reporters": res.UniqueReporters,
	})
}

func (h *RestHandler) Report(w http.ResponseWriter, r *http.Request) {
	var req reportRequest
	if !h.bind(w, r, &req) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	res, err := h.reputation.SubmitReport(ctx, domain.NumberHash(req.NumberHash), req.DeviceTokenHash, domain.Category(req.Category))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":          true,
		"confidence_score": res.ConfidenceScore,
		"unique_reporters": res.UniqueReporters,
		"quarantined":      res.Quarantined,
	})
}

func (h *RestHandler) Correct(w http.ResponseWriter, r *http.Request) {
	var req correctRequest
	if !h.bind(w, r, &req) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	res, err := h.reputation.SubmitCorrection(ctx, domain.NumberHash(req.NumberHash), req.DeviceTokenHash)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":          true,
		"confidence_score": res.ConfidenceScore,
	})
}

func (h *RestHandler) SeedManifest(w http.ResponseWriter, r *http.Request) {
	if err := h.validate(manifestRequest{DeviceToken: r.Header.Get("X-Device-Token")}); err != nil {
		h.writeError(w, r, err)
		return
	}

	if h.catalog == nil {
		writeError(w, http.StatusNotFound, "no seed dataset available")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	manifest, err := h.catalog.Latest(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no seed dataset available")
			return
		}
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, manifest)
}

// Harden runs one abuse hardening pass. Callers are authenticated by
// requireAdmin.
func (h *RestHandler) Harden(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), hardenTimeout)
	defer cancel()

	res, err := h.hardener.Run(ctx)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"flagged":  res.Flagged,
		"dampened": res.Dampened,
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeError maps a service error onto its status code. Server errors are
// logged and replaced by a generic message.
func (h *RestHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
		writeError(w, status, http.StatusText(status))
		return
	}
	writeError(w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrInvalidNumber):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrPaymentRequired):
		return http.StatusPaymentRequired
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

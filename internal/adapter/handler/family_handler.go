package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/fennsaji/call-shield-sub001/internal/core/domain"
	"github.com/fennsaji/call-shield-sub001/internal/family"
)

type FamilyService interface {
	Pair(ctx context.Context, parentDeviceHash, childDeviceHash, purchaseToken string) (family.PairResult, error)
	Sync(ctx context.Context, token, deviceHash string, rules *domain.FamilyRules) (family.SyncResult, error)
	Renew(ctx context.Context, token, parentDeviceHash, purchaseToken string) (time.Time, error)
	Revoke(ctx context.Context, token, parentDeviceHash string) error
	Unpair(ctx context.Context, token, deviceHash string) error
}

func (h *RestHandler) FamilyPair(w http.ResponseWriter, r *http.Request) {
	var req familyPairRequest
	if !h.bind(w, r, &req) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	res, err := h.family.Pair(ctx, req.ParentDeviceHash, req.ChildDeviceHash, req.PurchaseToken)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"pair_id":       res.PairID.String(),
		"pairing_token": res.Token,
		"expires_at":    res.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

func (h *RestHandler) FamilySync(w http.ResponseWriter, r *http.Request) {
	var req familySyncRequest
	if !h.bind(w, r, &req) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	res, err := h.family.Sync(ctx, req.PairingToken, req.DeviceHash, req.Rules)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	rules := res.Rules
	if rules.BlockedHashes == nil {
		rules.BlockedHashes = []string{}
	}
	if rules.PrefixRules == nil {
		rules.PrefixRules = []domain.FamilyPrefixRule{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"role":          res.Role,
		"rules":         rules,
		"rules_version": res.RulesVersion,
		"expires_at":    res.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

func (h *RestHandler) FamilyRenew(w http.ResponseWriter, r *http.Request) {
	var req familyRenewRequest
	if !h.bind(w, r, &req) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	expiresAt, err := h.family.Renew(ctx, req.PairingToken, req.ParentDeviceHash, req.PurchaseToken)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"expires_at": expiresAt.UTC().Format(time.RFC3339),
	})
}

func (h *RestHandler) FamilyRevoke(w http.ResponseWriter, r *http.Request) {
	var req familyRevokeRequest
	if !h.bind(w, r, &req) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	if err := h.family.Revoke(ctx, req.PairingToken, req.ParentDeviceHash); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *RestHandler) FamilyUnpair(w http.ResponseWriter, r *http.Request) {
	var req familyUnpairRequest
	if !h.bind(w, r, &req) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	if err := h.family.Unpair(ctx, req.PairingToken, req.DeviceHash); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// bind decodes and validates the request body, writing the error response
// itself when either step fails.
func (h *RestHandler) bind(w http.ResponseWriter, r *http.Request, req any) bool {
	if err := decodeJSON(w, r, req); err != nil {
		h.writeError(w, r, err)
		return false
	}
	if err := h.validate(req); err != nil {
		h.writeError(w, r, err)
		return false
	}
	return true
}

package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/fennsaji/call-shield-sub001/internal/core/domain"
	"github.com/go-playground/validator/v10"
)

const maxBodyBytes = 64 << 10

type reputationQuery struct {
	Hash        string `json:"hash" validate:"required,hash64"`
	DeviceToken string `json:"device_token" validate:"required,hash64"`
}

type reportRequest struct {
	NumberHash      string `json:"number_hash" validate:"required,hash64"`
	DeviceTokenHash string `json:"device_token_hash" validate:"required,hash64"`
	Category        string `json:"category" validate:"required,oneof=telemarketing loan_scam investment_scam impersonation phishing job_scam other"`
}

type correctRequest struct {
	NumberHash      string `json:"number_hash" validate:"required,hash64"`
	DeviceTokenHash string `json:"device_token_hash" validate:"required,hash64"`
}

type manifestRequest struct {
	DeviceToken string `json:"X-Device-Token" validate:"required,hash64"`
}

type familyPairRequest struct {
	ParentDeviceHash string `json:"parent_device_hash" validate:"required,hash64"`
	ChildDeviceHash  string `json:"child_device_hash" validate:"required,hash64,nefield=ParentDeviceHash"`
	PurchaseToken    string `json:"purchase_token" validate:"required,max=4096"`
}

type familySyncRequest struct {
	PairingToken string              `json:"pairing_token" validate:"required"`
	DeviceHash   string              `json:"device_hash" validate:"required,hash64"`
	Rules        *domain.FamilyRules `json:"rules,omitempty"`
}

type familyRenewRequest struct {
	PairingToken     string `json:"pairing_token" validate:"required"`
	ParentDeviceHash string `json:"parent_device_hash" validate:"required,hash64"`
	PurchaseToken    string `json:"purchase_token" validate:"required,max=4096"`
}

type familyRevokeRequest struct {
	PairingToken     string `json:"pairing_token" validate:"required"`
	ParentDeviceHash string `json:"parent_device_hash" validate:"required,hash64"`
}

type familyUnpairRequest struct {
	PairingToken string `json:"pairing_token" validate:"required"`
	DeviceHash   string `json:"device_hash" validate:"required,hash64"`
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	// hash64 accepts exactly 64 lowercase hex characters.
	if err := v.RegisterValidation("hash64", func(fl validator.FieldLevel) bool {
		return domain.IsValidHash(fl.Field().String())
	}); err != nil {
		panic(err)
	}
	return v
}

// validate checks req and returns an ErrValidation carrying a message
// that names the first offending field.
func (h *RestHandler) validate(req any) error {
	err := h.validator.Struct(req)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	fe := verrs[0]
	var msg string
	switch fe.Tag() {
	case "required":
		msg = fmt.Sprintf("%s is required", fe.Field())
	case "hash64":
		msg = fmt.Sprintf("%s must be 64 lowercase hex characters", fe.Field())
	case "oneof":
		msg = fmt.Sprintf("%s must be one of: %s", fe.Field(), fe.Param())
	case "nefield":
		msg = fmt.Sprintf("%s must differ from the parent device", fe.Field())
	default:
		msg = fmt.Sprintf("%s is invalid", fe.Field())
	}
	return fmt.Errorf("%w: %s", domain.ErrValidation, msg)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: request body is empty", domain.ErrValidation)
		}
		return fmt.Errorf("%w: invalid JSON payload", domain.ErrValidation)
	}
	return nil
}

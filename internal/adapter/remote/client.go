// Package remote is the device's HTTP client for the reputation backend.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/fennsaji/call-shield-sub001/internal/adapter/resilient"
	"github.com/fennsaji/call-shield-sub001/internal/core/domain"
	"github.com/fennsaji/call-shield-sub001/internal/core/ports"
)

const deviceTokenHeader = "X-Device-Token"

type Config struct {
	BaseURL         string
	DeviceTokenHash string
	// LookupTimeout bounds screening-time lookups. They are never retried.
	LookupTimeout time.Duration
	API           resilient.Config
	Download      resilient.Config
}

func DefaultConfig(baseURL, deviceTokenHash string) Config {
	download := resilient.DefaultConfig("callshield-seed-download")
	download.Timeout = 10 * time.Minute
	return Config{
		BaseURL:         strings.TrimRight(baseURL, "/"),
		DeviceTokenHash: deviceTokenHash,
		LookupTimeout:   800 * time.Millisecond,
		API:             resilient.DefaultConfig("callshield-api"),
		Download:        download,
	}
}

type ReportResponse struct {
	Success         bool    `json:"success"`
	ConfidenceScore float64 `json:"confidence_score"`
	UniqueReporters int     `json:"unique_reporters"`
	Quarantined     bool    `json:"quarantined"`
}

type CorrectionResponse struct {
	Success         bool    `json:"success"`
	ConfidenceScore float64 `json:"confidence_score"`
}

type Client struct {
	baseURL         string
	deviceTokenHash string
	lookup          *http.Client
	api             *resilient.Client
	download        *resilient.Client
	logger          *slog.Logger
}

var (
	_ ports.ReputationClient = (*Client)(nil)
	_ ports.SeedSource       = (*Client)(nil)
)

func New(cfg Config, logger *slog.Logger) *Client {
	return &Client{
		baseURL:         strings.TrimRight(cfg.BaseURL, "/"),
		deviceTokenHash: cfg.DeviceTokenHash,
		lookup:          &http.Client{Timeout: cfg.LookupTimeout},
		api:             resilient.New(cfg.API, logger),
		download:        resilient.New(cfg.Download, logger),
		logger:          logger.With("component", "remote_client"),
	}
}

// LookupReputation asks the backend for the crowd verdict on hash. It makes
// exactly one attempt so the screening deadline stays in control.
func (c *Client) LookupReputation(ctx context.Context, hash domain.NumberHash) (*ports.RemoteReputation, error) {
	q := url.Values{}
	q.Set("hash", hash.String())
	q.Set("device_token", c.deviceTokenHash)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/reputation?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build reputation request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.lookup.Do(req)
	if err != nil {
		return nil, fmt.Errorf("reputation lookup failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp)
	}

	var rep ports.RemoteReputation
	if err := json.NewDecoder(resp.Body).Decode(&rep); err != nil {
		return nil, fmt.Errorf("failed to decode reputation: %w", err)
	}
	return &rep, nil
}

func (c *Client) SubmitReport(ctx context.Context, hash domain.NumberHash, category domain.Category) (*ReportResponse, error) {
	body := map[string]string{
		"number_hash":       hash.String(),
		"device_token_hash": c.deviceTokenHash,
		"category":          string(category),
	}
	var out ReportResponse
	if err := c.postJSON(ctx, "/report", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) SubmitCorrection(ctx context.Context, hash domain.NumberHash) (*CorrectionResponse, error) {
	body := map[string]string{
		"number_hash":       hash.String(),
		"device_token_hash": c.deviceTokenHash,
	}
	var out CorrectionResponse
	if err := c.postJSON(ctx, "/correct", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) FetchManifest(ctx context.Context, deviceTokenHash string) (*domain.SeedManifest, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/seed-db-manifest", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build manifest request: %w", err)
	}
	req.Header.Set(deviceTokenHeader, deviceTokenHash)
	req.Header.Set("Accept", "application/json")

	resp, err := c.api.Do(req)
	if err != nil {
		return nil, mapError("fetch manifest", err)
	}
	defer resp.Body.Close()

	var manifest domain.SeedManifest
	if err := json.NewDecoder(resp.Body).Decode(&manifest); err != nil {
		return nil, fmt.Errorf("failed to decode manifest: %w", err)
	}
	if manifest.DownloadURL == "" || manifest.SHA256 == "" {
		return nil, fmt.Errorf("%w: incomplete manifest", domain.ErrValidation)
	}
	return &manifest, nil
}

// StreamDownload returns the dataset body. The caller must close it.
func (c *Client) StreamDownload(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build download request: %w", err)
	}

	resp, err := c.download.Do(req)
	if err != nil {
		return nil, mapError("download seed dataset", err)
	}
	return resp.Body, nil
}

func (c *Client) postJSON(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.api.Do(req)
	if err != nil {
		return mapError("POST "+path, err)
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}

type errorBody struct {
	Error string `json:"error"`
}

func statusError(resp *http.Response) error {
	var eb errorBody
	_ = json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&eb)
	msg := eb.Error
	if msg == "" {
		msg = resp.Status
	}
	if sentinel := sentinelFor(resp.StatusCode); sentinel != nil {
		return fmt.Errorf("%w: %s", sentinel, msg)
	}
	return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, msg)
}

func mapError(op string, err error) error {
	var se *resilient.StatusError
	if errors.As(err, &se) {
		if sentinel := sentinelFor(se.Code); sentinel != nil {
			return fmt.Errorf("%s: %w", op, sentinel)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

func sentinelFor(code int) error {
	switch code {
	case http.StatusTooManyRequests:
		return domain.ErrRateLimited
	case http.StatusBadRequest:
		return domain.ErrValidation
	case http.StatusNotFound:
		return domain.ErrNotFound
	case http.StatusUnauthorized:
		return domain.ErrUnauthorized
	default:
		return nil
	}
}

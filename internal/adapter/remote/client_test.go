package remote

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fennsaji/call-shield-sub001/internal/core/domain"
	"github.com/fennsaji/call-shield-sub001/internal/platform/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	numberHash = domain.NumberHash(strings.Repeat("ab", 32))
	deviceHash = strings.Repeat("cd", 32)
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := DefaultConfig(server.URL, deviceHash)
	cfg.API.MaxRetries = 0
	cfg.Download.MaxRetries = 0
	return New(cfg, logger.Discard()), server
}

func TestLookupReputation(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/reputation", r.URL.Path)
		assert.Equal(t, numberHash.String(), r.URL.Query().Get("hash"))
		assert.Equal(t, deviceHash, r.URL.Query().Get("device_token"))
		w.Write([]byte(`{"confidence_score":0.82,"category":"phishing","report_count":14,"unique_reporters":9}`))
	})

	rep, err := client.LookupReputation(context.Background(), numberHash)
	require.NoError(t, err)
	assert.InDelta(t, 0.82, rep.ConfidenceScore, 1e-9)
	assert.Equal(t, "phishing", rep.Category)
	assert.Equal(t, 14, rep.ReportCount)
	assert.Equal(t, 9, rep.UniqueReporters)
}

func TestLookupReputation_ErrorMapping(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusTooManyRequests, domain.ErrRateLimited},
		{http.StatusBadRequest, domain.ErrValidation},
		{http.StatusNotFound, domain.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(`{"error":"nope"}`))
			})

			_, err := client.LookupReputation(context.Background(), numberHash)
			assert.ErrorIs(t, err, tt.want)
			assert.Contains(t, err.Error(), "nope")
		})
	}
}

func TestLookupReputation_SingleAttemptWithinTimeout(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	cfg := DefaultConfig(server.URL, deviceHash)
	cfg.LookupTimeout = 20 * time.Millisecond
	client := New(cfg, logger.Discard())

	_, err := client.LookupReputation(context.Background(), numberHash)
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestSubmitReport(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/report", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, numberHash.String(), body["number_hash"])
		assert.Equal(t, deviceHash, body["device_token_hash"])
		assert.Equal(t, "loan_scam", body["category"])

		w.Write([]byte(`{"success":true,"confidence_score":0.75,"unique_reporters":5,"quarantined":true}`))
	})

	resp, err := client.SubmitReport(context.Background(), numberHash, domain.CategoryLoanScam)
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.True(t, resp.Quarantined)
	assert.Equal(t, 5, resp.UniqueReporters)
}

func TestSubmitReport_RateLimited(t *testing.T) {
	var calls atomic.Int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := client.SubmitReport(context.Background(), numberHash, domain.CategoryOther)
	assert.ErrorIs(t, err, domain.ErrRateLimited)
	assert.Equal(t, int32(1), calls.Load())
}

func TestSubmitCorrection(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/correct", r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		_, hasCategory := body["category"]
		assert.False(t, hasCategory)
		w.Write([]byte(`{"success":true,"confidence_score":0.31}`))
	})

	resp, err := client.SubmitCorrection(context.Background(), numberHash)
	require.NoError(t, err)
	assert.InDelta(t, 0.31, resp.ConfidenceScore, 1e-9)
}

func TestFetchManifestAndDownload(t *testing.T) {
	const dataset = "hash,phishing,0.9"
	var serverURL string
	client, server := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/seed-db-manifest":
			assert.Equal(t, deviceHash, r.Header.Get("X-Device-Token"))
			json.NewEncoder(w).Encode(map[string]any{
				"version":      7,
				"sha256":       "deadbeef",
				"download_url": serverURL + "/seed/v7.csv",
			})
		case "/seed/v7.csv":
			w.Write([]byte(dataset))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	serverURL = server.URL

	manifest, err := client.FetchManifest(context.Background(), deviceHash)
	require.NoError(t, err)
	assert.Equal(t, int64(7), manifest.Version)
	assert.Equal(t, "deadbeef", manifest.SHA256)

	body, err := client.StreamDownload(context.Background(), manifest.DownloadURL)
	require.NoError(t, err)
	defer body.Close()
	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, dataset, string(data))
}

func TestFetchManifest_NoneAvailable(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"no seed dataset available"}`))
	})

	_, err := client.FetchManifest(context.Background(), deviceHash)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestFetchManifest_Incomplete(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"version":3}`))
	})

	_, err := client.FetchManifest(context.Background(), deviceHash)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

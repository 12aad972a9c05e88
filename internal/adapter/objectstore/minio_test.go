package objectstore

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fennsaji/call-shield-sub001/internal/platform/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPublisher(t *testing.T, endpoint string) *MinioPublisher {
	t.Helper()
	p, err := NewMinioPublisher(Config{
		Endpoint:  endpoint,
		AccessKey: "access",
		SecretKey: "secret",
		Bucket:    "callshield-seed",
	}, logger.Discard())
	require.NoError(t, err)
	return p
}

func TestPresignedURL(t *testing.T) {
	p := newPublisher(t, "localhost:9000")

	raw, err := p.PresignedURL(context.Background(), "seed/v3.csv", 15*time.Minute)
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "localhost:9000", u.Host)
	assert.Equal(t, "/callshield-seed/seed/v3.csv", u.Path)
	assert.Equal(t, "900", u.Query().Get("X-Amz-Expires"))
	assert.NotEmpty(t, u.Query().Get("X-Amz-Signature"))
}

func TestPublish(t *testing.T) {
	var (
		mu     sync.Mutex
		method string
		path   string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		mu.Lock()
		method, path = r.Method, r.URL.Path
		mu.Unlock()
		w.Header().Set("ETag", `"d41d8cd98f00b204e9800998ecf8427e"`)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	p := newPublisher(t, strings.TrimPrefix(server.URL, "http://"))
	require.NoError(t, p.Publish(context.Background(), "seed/v1.csv", []byte("a,phishing,0.9")))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, http.MethodPut, method)
	assert.Equal(t, "/callshield-seed/seed/v1.csv", path)
}

func TestPublish_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	p := newPublisher(t, strings.TrimPrefix(server.URL, "http://"))
	err := p.Publish(context.Background(), "seed/v1.csv", []byte("x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "seed/v1.csv")
}

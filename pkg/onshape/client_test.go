package onshape

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/partforge/partforge/pkg/apperr"
)

func setupTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(Config{
		BaseURL:     server.URL,
		Credentials: Credentials{AccessKey: "test-access", SecretKey: "test-secret"},
		Timeout:     5 * time.Second,
		MaxAttempts: 3,
		RetryDelay:  time.Millisecond,
		Logger:      zerolog.Nop(),
	})
	require.NoError(t, err)
	return client, server
}

func TestNewClient(t *testing.T) {
	t.Run("should fail fast without credentials", func(t *testing.T) {
		_, err := NewClient(Config{})
		require.Error(t, err)
		assert.Equal(t, apperr.KindConfiguration, apperr.KindOf(err))
	})

	t.Run("should default base URL and retry bounds", func(t *testing.T) {
		client, err := NewClient(Config{Credentials: Credentials{AccessKey: "a", SecretKey: "s"}})
		require.NoError(t, err)
		assert.Equal(t, DefaultBaseURL, client.baseURL)
		assert.Equal(t, 3, client.maxAttempts)
		assert.Equal(t, time.Second, client.retryDelay)
	})
}

func TestClientSignsEveryRequest(t *testing.T) {
	var seen atomic.Int32
	client, _ := setupTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		seen.Add(1)
		auth := r.Header.Get("Authorization")
		assert.True(t, strings.HasPrefix(auth, "On test-access:HmacSHA256:"), "unexpected auth header %q", auth)
		assert.Len(t, r.Header.Get("On-Nonce"), nonceLength)
		assert.NotEmpty(t, r.Header.Get("Date"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"items":[]}`))
	})

	_, err := client.ListDocuments(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, int32(1), seen.Load())
}

func TestClientDecodesResponse(t *testing.T) {
	client, _ := setupTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v10/documents", r.URL.Path)

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Bracket", body["name"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"doc123","name":"Bracket","defaultWorkspace":{"id":"ws456","name":"Main"}}`))
	})

	doc, err := client.CreateDocument(context.Background(), "Bracket", "")
	require.NoError(t, err)
	assert.Equal(t, "doc123", doc.ID)
	assert.Equal(t, "ws456", doc.DefaultWorkspace.ID)
}

func TestClientPlatformRejection(t *testing.T) {
	var calls atomic.Int32
	client, _ := setupTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"message":"insufficient permissions"}`))
	})

	_, err := client.CreateDocument(context.Background(), "Bracket", "")
	require.Error(t, err)

	var appErr *apperr.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperr.KindPlatform, appErr.Kind)
	assert.Equal(t, http.StatusForbidden, appErr.Status)
	assert.Contains(t, appErr.Body, "insufficient permissions")

	// Rejections are not retried.
	assert.Equal(t, int32(1), calls.Load())
}

func TestClientRetriesTransportFailures(t *testing.T) {
	var calls atomic.Int32
	client, _ := setupTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		hj, ok := w.(http.Hijacker)
		require.True(t, ok)
		conn, _, err := hj.Hijack()
		require.NoError(t, err)
		_ = conn.Close()
	})

	err := client.Ping(context.Background())
	require.Error(t, err)
	assert.Equal(t, apperr.KindTransport, apperr.KindOf(err))
	assert.Equal(t, int32(3), calls.Load())
}

func TestClientRecoversAfterTransientFailure(t *testing.T) {
	var calls atomic.Int32
	client, _ := setupTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			hj, ok := w.(http.Hijacker)
			require.True(t, ok)
			conn, _, err := hj.Hijack()
			require.NoError(t, err)
			_ = conn.Close()
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"items":[{"id":"doc1","name":"First"}]}`))
	})

	docs, err := client.ListDocuments(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "doc1", docs[0].ID)
	assert.Equal(t, int32(2), calls.Load())
}

func TestClientHonorsCancellationBetweenRetries(t *testing.T) {
	client, _ := setupTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hj, ok := w.(http.Hijacker)
		require.True(t, ok)
		conn, _, err := hj.Hijack()
		require.NoError(t, err)
		_ = conn.Close()
	})
	client.retryDelay = time.Minute

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	err := client.Ping(ctx)
	require.Error(t, err)
	assert.Equal(t, apperr.KindTransport, apperr.KindOf(err))
	assert.Less(t, time.Since(start), 5*time.Second)
}

package httpclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoRequest(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/1/metastore/schemas/dataset/items", r.URL.Path)
			assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
			assert.NotEmpty(t, r.Header.Get("X-Request-Id"))
			w.Write([]byte(`[{"identifier":"dataset-123"}]`))
		}))
		defer srv.Close()

		client := NewClient(TestConfig{BaseURL: srv.URL, Token: "test-token"})
		body, _, err := client.DoRequest(context.Background(), RequestOptions{
			Method: http.MethodGet,
			Path:   "api/1/metastore/schemas/dataset/items",
		})
		require.NoError(t, err)
		assert.Contains(t, string(body), "dataset-123")
	})

	t.Run("ServerErrorMessage", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"message":"dataset not found"}`))
		}))
		defer srv.Close()

		client := NewClient(TestConfig{BaseURL: srv.URL})
		_, _, err := client.DoRequest(context.Background(), RequestOptions{
			Method: http.MethodGet,
			Path:   "api/1/metastore/schemas/dataset/items/missing",
		})
		require.Error(t, err)
		httpErr, ok := err.(*HTTPError)
		require.True(t, ok)
		assert.Equal(t, http.StatusNotFound, httpErr.StatusCode)
		assert.Equal(t, "dataset not found", httpErr.Message)
	})

	t.Run("ExpiredTokenOmitted", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Empty(t, r.Header.Get("Authorization"))
			w.Write([]byte(`{}`))
		}))
		defer srv.Close()

		client := NewClient(TestConfig{
			BaseURL:     srv.URL,
			Token:       "stale-token",
			TokenExpiry: time.Now().Add(-time.Hour),
		})
		_, _, err := client.DoRequest(context.Background(), RequestOptions{
			Method: http.MethodGet,
			Path:   "api/1/properties",
		})
		require.NoError(t, err)
	})

	t.Run("NoRetryByDefault", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer srv.Close()

		client := NewClient(TestConfig{BaseURL: srv.URL})
		_, _, err := client.DoRequest(context.Background(), RequestOptions{
			Method: http.MethodGet,
			Path:   "api/1/properties",
		})
		require.Error(t, err)
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("OptInRetry", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) < 3 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			w.Write([]byte(`{}`))
		}))
		defer srv.Close()

		client := NewClientWithOptions(TestConfig{BaseURL: srv.URL}, ClientOptions{
			Retry: RetryPolicy{Attempts: 3, Delay: time.Millisecond},
		})
		_, _, err := client.DoRequest(context.Background(), RequestOptions{
			Method: http.MethodGet,
			Path:   "api/1/properties",
		})
		require.NoError(t, err)
		assert.Equal(t, int32(3), calls.Load())
	})

	t.Run("NoRetryOnClientError", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"message":"bad query"}`))
		}))
		defer srv.Close()

		client := NewClientWithOptions(TestConfig{BaseURL: srv.URL}, ClientOptions{
			Retry: RetryPolicy{Attempts: 3, Delay: time.Millisecond},
		})
		_, _, err := client.DoRequest(context.Background(), RequestOptions{
			Method: http.MethodGet,
			Path:   "api/1/datastore/sql",
		})
		require.Error(t, err)
		assert.Equal(t, int32(1), calls.Load())
	})
}

func TestStreamRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/csv")
		w.Write([]byte("a,b\n1,2\n"))
	}))
	defer srv.Close()

	client := NewClient(TestConfig{BaseURL: srv.URL})
	rc, contentType, err := client.StreamRequest(context.Background(), RequestOptions{
		Method: http.MethodGet,
		Path:   "api/1/datastore/query/abc/download",
		Accept: "text/csv",
	})
	require.NoError(t, err)
	defer rc.Close()
	assert.Equal(t, "text/csv", contentType)
}

package gcs

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

func newTestStore(t *testing.T, handler http.Handler) *BlobStore {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := storage.NewClient(context.Background(),
		option.WithEndpoint(server.URL), option.WithoutAuthentication())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	store, err := New(client, Config{Bucket: "archive"})
	require.NoError(t, err)
	return store
}

func TestNewValidatesInput(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Config{Bucket: "archive"})
	require.Error(t, err)
}

func TestPutObjectUploadsWithPrecondition(t *testing.T) {
	t.Parallel()

	var (
		mu         sync.Mutex
		generation string
		body       string
	)
	store := newTestStore(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		mu.Lock()
		generation = r.URL.Query().Get("ifGenerationMatch")
		body = string(raw)
		mu.Unlock()
		_, _ = io.WriteString(w, `{"name":"raw/t1/abc.html","bucket":"archive"}`)
	}))

	uri, err := store.PutObject(context.Background(), "raw/t1/abc.html", "text/html", []byte("<h1>pricing</h1>"))
	require.NoError(t, err)
	require.Equal(t, "gs://archive/raw/t1/abc.html", uri)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, "0", generation)
	require.True(t, strings.Contains(body, "<h1>pricing</h1>"))
}

func TestPutObjectTreatsExistingObjectAsSuccess(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusPreconditionFailed)
		_, _ = io.WriteString(w, `{"error":{"code":412,"message":"conditionNotMet"}}`)
	}))

	uri, err := store.PutObject(context.Background(), "raw/t1/abc.html", "text/html", []byte("x"))
	require.NoError(t, err)
	require.Equal(t, "gs://archive/raw/t1/abc.html", uri)
}

func TestPutObjectRejectedUpload(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))

	_, err := store.PutObject(context.Background(), "raw/t1/abc.html", "text/html", []byte("x"))
	require.Error(t, err)

	_, err = store.PutObject(context.Background(), " ", "text/html", []byte("x"))
	require.Error(t, err)
}

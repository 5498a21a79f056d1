package gcs

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"github.com/JakeFAU/prodrefs/internal/crawler"
)

func newTestStore(t *testing.T, handler http.Handler) *BlobStore {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := storage.NewClient(context.Background(), option.WithEndpoint(server.URL), option.WithoutAuthentication())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	store, err := New(client, Config{Bucket: "test-bucket", Prefix: "/images/"})
	require.NoError(t, err)
	return store
}

func TestNewValidatesConfig(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Config{Bucket: "b"})
	require.Error(t, err)

	client, err := storage.NewClient(context.Background(), option.WithoutAuthentication())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	_, err = New(client, Config{})
	require.Error(t, err)
}

func TestPutObjectUploadsUnderPrefix(t *testing.T) {
	t.Parallel()

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/upload/storage/v1/b/test-bucket/o")
		assert.Equal(t, "images/kaos/01_kaos_abc.jpg", r.URL.Query().Get("name"))
		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		assert.Contains(t, string(body), "jpeg-bytes")
		assert.Contains(t, string(body), "image/jpeg")
		fmt.Fprintln(w, `{"name":"images/kaos/01_kaos_abc.jpg","bucket":"test-bucket"}`)
	})
	store := newTestStore(t, handler)

	uri, err := store.PutObject(context.Background(), "kaos/01_kaos_abc.jpg", "image/jpeg", bytes.NewReader([]byte("jpeg-bytes")))
	require.NoError(t, err)
	assert.Equal(t, "gs://test-bucket/images/kaos/01_kaos_abc.jpg", uri)

	_, err = store.PutObject(context.Background(), " ", "image/jpeg", bytes.NewReader(nil))
	require.Error(t, err)
}

func TestPutObjectSurfacesServerErrors(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	_, err := store.PutObject(context.Background(), "a.jpg", "image/jpeg", bytes.NewReader([]byte("x")))
	require.Error(t, err)
}

func TestStat(t *testing.T) {
	t.Parallel()

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/present.jpg"):
			assert.Contains(t, r.URL.Path, "/b/test-bucket/o/images/")
			fmt.Fprintln(w, `{"name":"images/present.jpg","bucket":"test-bucket","size":"2048"}`)
		case strings.HasSuffix(r.URL.Path, "/forbidden.jpg"):
			w.WriteHeader(http.StatusForbidden)
			fmt.Fprintln(w, `{"error":{"code":403,"message":"forbidden"}}`)
		default:
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprintln(w, `{"error":{"code":404,"message":"Not Found"}}`)
		}
	})
	store := newTestStore(t, handler)
	ctx := context.Background()

	loc, size, err := store.Stat(ctx, "present.jpg")
	require.NoError(t, err)
	assert.Equal(t, "gs://test-bucket/images/present.jpg", loc)
	assert.Equal(t, int64(2048), size)

	_, _, err = store.Stat(ctx, "absent.jpg")
	require.ErrorIs(t, err, crawler.ErrNotFound)

	_, _, err = store.Stat(ctx, "forbidden.jpg")
	require.Error(t, err)
	assert.NotErrorIs(t, err, crawler.ErrNotFound)
}

func TestCloseOnlyReleasesOwnedClients(t *testing.T) {
	t.Parallel()

	client, err := storage.NewClient(context.Background(), option.WithoutAuthentication())
	require.NoError(t, err)
	store, err := New(client, Config{Bucket: "b"})
	require.NoError(t, err)
	require.NoError(t, store.Close())
	require.NoError(t, client.Close())
}

package platform

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMediaFetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte("pngbytes"))
	}))
	defer server.Close()

	f := NewMediaFetcher()
	data, mimeType, err := f.Fetch(context.Background(), server.URL+"/posts/1.png")
	require.NoError(t, err)

	assert.Equal(t, []byte("pngbytes"), data)
	assert.Equal(t, "image/png", mimeType)
}

func TestMediaFetchMissingObject(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	f := NewMediaFetcher()
	_, _, err := f.Fetch(context.Background(), server.URL+"/posts/missing.png")

	var pe *PublishError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "fetch_media", pe.Step)
	assert.False(t, IsRetryable(err))
}

func TestMediaFetchUnreachableStore(t *testing.T) {
	f := NewMediaFetcher()
	_, _, err := f.Fetch(context.Background(), "http://127.0.0.1:1/posts/1.png")

	require.Error(t, err)
	assert.True(t, IsRetryable(err))
}

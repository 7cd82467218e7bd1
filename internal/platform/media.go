package platform

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// maxMediaBytes bounds how much the worker will pull from the blob store for
// a single publish.
const maxMediaBytes = 100 * 1024 * 1024

// MediaFetcher pulls media bytes from the blob store by URL before a platform
// upload.
type MediaFetcher struct {
	client *http.Client
}

func NewMediaFetcher() *MediaFetcher {
	return &MediaFetcher{
		client: &http.Client{Timeout: 2 * time.Minute},
	}
}

func (f *MediaFetcher) Fetch(ctx context.Context, mediaURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", mediaURL, nil)
	if err != nil {
		slog.Info(err.Error())
		return nil, "", err
	}

	resp, err := f.client.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return nil, "", transportError("blobstore", "fetch_media", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, "", statusError("blobstore", "fetch_media", resp, string(body))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxMediaBytes))
	if err != nil {
		slog.Info(err.Error())
		return nil, "", transportError("blobstore", "fetch_media", err)
	}

	return data, resp.Header.Get("Content-Type"), nil
}

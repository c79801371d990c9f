package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bryanwahyu/rx-ocr/internal/domain/ocr"
)

// HTTPFetcher downloads images with a plain GET. The response status is
// deliberately ignored: whatever body comes back is handed on.
type HTTPFetcher struct {
	client *http.Client
}

// NewHTTPFetcher returns a fetcher; timeout 0 means no timeout.
func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	return &HTTPFetcher{client: &http.Client{Timeout: timeout}}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (ocr.Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return ocr.Image{}, fmt.Errorf("build image request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return ocr.Image{}, fmt.Errorf("fetch image: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return ocr.Image{}, fmt.Errorf("read image body: %w", err)
	}

	return ocr.Image{Data: data, ContentType: resp.Header.Get("Content-Type")}, nil
}

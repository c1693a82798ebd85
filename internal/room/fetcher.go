package room

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-cleanhttp"

	"github.com/nerrad567/deckrelay/internal/button"
)

// maxEventsBody caps how much of a fetchEvents response is read.
const maxEventsBody = 1 << 20

// Fetcher performs the outbound calls requested by fetch and fetchEvents.
type Fetcher interface {
	// Fetch calls url and discards the response.
	Fetch(ctx context.Context, url string) error

	// FetchEvents calls url and decodes a {"events": [...]} body.
	FetchEvents(ctx context.Context, url string) ([]button.EventSpec, error)
}

// HTTPFetcher is a Fetcher backed by a pooled HTTP client.
type HTTPFetcher struct {
	client *http.Client
}

// NewHTTPFetcher creates a fetcher whose calls, body included, give up
// after timeout. Zero means no limit beyond the caller's context.
func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	client := cleanhttp.DefaultPooledClient()
	client.Timeout = timeout
	return &HTTPFetcher{client: client}
}

// Fetch issues a GET to url.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) error {
	resp, err := f.get(ctx, url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxEventsBody)) //nolint:errcheck // Drain for connection reuse
	return nil
}

// FetchEvents issues a GET to url and returns its events. An empty or
// missing events list is not an error.
func (f *HTTPFetcher) FetchEvents(ctx context.Context, url string) ([]button.EventSpec, error) {
	resp, err := f.get(ctx, url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var body struct {
		Events []button.EventSpec `json:"events"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxEventsBody)).Decode(&body); err != nil {
		return nil, fmt.Errorf("decoding events from %s: %w", url, err)
	}
	return body.Events, nil
}

func (f *HTTPFetcher) get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting %s: %w", url, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: %s returned %d", ErrFetchStatus, url, resp.StatusCode)
	}
	return resp, nil
}

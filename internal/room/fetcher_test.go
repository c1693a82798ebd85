package room

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nerrad567/deckrelay/internal/button"
)

func TestHTTPFetcher_FetchEvents(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"events":[{"event":"setTitle","payload":{"title":"42"}},{"event":"showOk","broadcast":true}]}`)) //nolint:errcheck // test
	}))
	defer srv.Close()

	events, err := NewHTTPFetcher(time.Second).FetchEvents(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("FetchEvents() error = %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].Kind != button.KindSetTitle || events[0].Title != "42" {
		t.Errorf("events[0] = %+v", events[0])
	}
	if events[1].Kind != button.KindShowOk || !events[1].Broadcast {
		t.Errorf("events[1] = %+v", events[1])
	}
}

func TestHTTPFetcher_FetchEventsEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{}`)) //nolint:errcheck // test
	}))
	defer srv.Close()

	events, err := NewHTTPFetcher(time.Second).FetchEvents(context.Background(), srv.URL)
	if err != nil || len(events) != 0 {
		t.Errorf("FetchEvents() = %v, %v; want no events and no error", events, err)
	}
}

func TestHTTPFetcher_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{"server error", http.StatusInternalServerError, `{}`, ErrFetchStatus},
		{"not found", http.StatusNotFound, ``, ErrFetchStatus},
		{"malformed body", http.StatusOK, `not json`, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body)) //nolint:errcheck // test
			}))
			defer srv.Close()

			_, err := NewHTTPFetcher(time.Second).FetchEvents(context.Background(), srv.URL)
			if err == nil {
				t.Fatal("FetchEvents() error = nil")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("FetchEvents() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestHTTPFetcher_Fetch(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("method = %s, want GET", r.Method)
		}
		hits.Add(1)
		w.Write([]byte("ignored")) //nolint:errcheck // test
	}))
	defer srv.Close()

	if err := NewHTTPFetcher(time.Second).Fetch(context.Background(), srv.URL); err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if hits.Load() != 1 {
		t.Errorf("server hit %d times, want 1", hits.Load())
	}
}

func TestHTTPFetcher_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	start := time.Now()
	err := NewHTTPFetcher(100*time.Millisecond).Fetch(context.Background(), srv.URL)
	if err == nil {
		t.Fatal("Fetch() error = nil, want timeout")
	}
	if time.Since(start) > 2*time.Second {
		t.Errorf("Fetch() took %v, timeout not applied", time.Since(start))
	}
}

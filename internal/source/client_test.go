package source

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/edgelake/sheetsink/internal/config"
)

func testClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	c := New(config.SourceConfig{
		BaseURL: srv.URL,
		Token:   "test-token",
		Timeout: 5 * time.Second,
	}, zerolog.Nop())
	c.maxElapsed = 3 * time.Second
	return c
}

func TestPullItemsDeltaFollowsPagination(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("Authorization = %q", got)
		}
		switch {
		case r.URL.Path == "/sites/site-a/lists/list-b/items/delta":
			if r.URL.Query().Get("token") != "cursor-1" {
				t.Errorf("token = %q, want cursor-1", r.URL.Query().Get("token"))
			}
			fmt.Fprintf(w, `{"value":[{"id":"101"},{"id":"102"}],"nextLink":"%s/page2"}`, srv.URL)
		case r.URL.Path == "/page2":
			fmt.Fprint(w, `{"value":[{"id":"103"}],"deltaLink":"cursor-2"}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	cursor, ids, err := testClient(t, srv).PullItemsDelta(context.Background(), "site-a", "list-b", "cursor-1")
	if err != nil {
		t.Fatalf("PullItemsDelta: %v", err)
	}
	if cursor != "cursor-2" {
		t.Errorf("cursor = %q, want cursor-2", cursor)
	}
	if len(ids) != 3 || ids[0] != "101" || ids[2] != "103" {
		t.Errorf("ids = %v", ids)
	}
}

func TestPullItemsDeltaExpiredCursor(t *testing.T) {
	tests := []struct {
		name string
		h    http.HandlerFunc
	}{
		{
			name: "410 gone",
			h: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusGone)
			},
		},
		{
			name: "resync error code",
			h: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadRequest)
				fmt.Fprint(w, `{"error":{"code":"resyncRequired","message":"token too old"}}`)
			},
		},
		{
			name: "resync exception marker",
			h: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadRequest)
				fmt.Fprint(w, `{"error":{"code":"badRequest","message":"ResyncApplyDifferences: replay from scratch"}}`)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				tt.h(w, r)
			}))
			defer srv.Close()

			_, _, err := testClient(t, srv).PullItemsDelta(context.Background(), "s", "l", "stale")
			if !errors.Is(err, ErrResyncRequired) {
				t.Fatalf("err = %v, want ErrResyncRequired", err)
			}
			if calls.Load() != 1 {
				t.Errorf("resync demand must not be retried, calls = %d", calls.Load())
			}
		})
	}
}

func TestRetryHonorsRetryAfter(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, `{"value":[],"deltaLink":"fresh"}`)
	}))
	defer srv.Close()

	start := time.Now()
	cursor, _, err := testClient(t, srv).PullItemsDelta(context.Background(), "s", "l", CursorLatest)
	if err != nil {
		t.Fatalf("PullItemsDelta: %v", err)
	}
	if cursor != "fresh" {
		t.Errorf("cursor = %q", cursor)
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}
	if elapsed := time.Since(start); elapsed < 900*time.Millisecond {
		t.Errorf("retry fired after %v, expected ~1s per Retry-After", elapsed)
	}
}

func TestAuthFailureIsUnavailable(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := testClient(t, srv).GetListItem(context.Background(), "s", "l", "1")
	var ue *UnavailableError
	if !errors.As(err, &ue) {
		t.Fatalf("err = %v, want UnavailableError", err)
	}
	if calls.Load() != 1 {
		t.Errorf("auth failure must not be retried, calls = %d", calls.Load())
	}
}

func TestGetDriveItem(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/sites/s/lists/l/items/42/driveItem" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, `{"id":"drv-42","name":"orders.xlsx","parentPath":"drives/d1/root:/Watched","driveId":"d1"}`)
	}))
	defer srv.Close()

	di, err := testClient(t, srv).GetDriveItem(context.Background(), "s", "l", "42")
	if err != nil {
		t.Fatalf("GetDriveItem: %v", err)
	}
	if di.Name != "orders.xlsx" || di.DriveID != "d1" {
		t.Errorf("drive item = %+v", di)
	}
}

func TestDownload(t *testing.T) {
	payload := []byte("workbook bytes")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/drives/d1/items/42/content" {
			http.NotFound(w, r)
			return
		}
		w.Write(payload)
	}))
	defer srv.Close()

	data, err := testClient(t, srv).Download(context.Background(), "d1", "42")
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if string(data) != string(payload) {
		t.Errorf("data = %q", data)
	}
}

func TestProbe(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()
		if err := testClient(t, srv).Probe(context.Background()); err != nil {
			t.Errorf("Probe: %v", err)
		}
	})

	t.Run("server error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer srv.Close()
		var ue *UnavailableError
		if err := testClient(t, srv).Probe(context.Background()); !errors.As(err, &ue) {
			t.Errorf("err = %v, want UnavailableError", err)
		}
	})

	t.Run("unreachable", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		srv.Close() // refuse connections
		var ue *UnavailableError
		if err := testClient(t, srv).Probe(context.Background()); !errors.As(err, &ue) {
			t.Errorf("err = %v, want UnavailableError", err)
		}
	})
}

func TestTransientExhaustionBecomesUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := testClient(t, srv)
	c.maxElapsed = 300 * time.Millisecond

	_, _, err := c.PullItemsDelta(context.Background(), "s", "l", CursorLatest)
	var ue *UnavailableError
	if !errors.As(err, &ue) {
		t.Fatalf("err = %v, want UnavailableError after exhausted retries", err)
	}
}

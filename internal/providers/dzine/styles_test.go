package dzine

import (
	"context"
	"net/http"
	"testing"
	"time"
)

type countingTransport struct {
	calls int
	body  string
	fail  bool
}

func (t *countingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	t.calls++
	if t.fail {
		return (&stubTransport{status: http.StatusInternalServerError, body: `{"msg":"upstream down"}`}).RoundTrip(req)
	}
	return (&stubTransport{body: t.body}).RoundTrip(req)
}

func TestStyleCacheServesFromCacheUntilStale(t *testing.T) {
	transport := &countingTransport{body: `{"code":200,"data":{"list":[{"style_code":"Style-a","name":"Watercolor"}]}}`}
	c := newStubClient2(t, transport)
	cache := NewStyleCache(c, time.Hour)
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		styles, err := cache.List(context.Background())
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if len(styles) != 1 || styles[0].Name != "Watercolor" {
			t.Fatalf("styles = %+v", styles)
		}
	}
	if transport.calls != 1 {
		t.Fatalf("upstream calls = %d, want 1 while fresh", transport.calls)
	}

	now = now.Add(2 * time.Hour)
	if _, err := cache.List(context.Background()); err != nil {
		t.Fatalf("List after expiry: %v", err)
	}
	if transport.calls != 2 {
		t.Fatalf("upstream calls = %d, want refresh after ttl", transport.calls)
	}
}

func TestStyleCacheFallsBackToStaleSnapshot(t *testing.T) {
	transport := &countingTransport{body: `{"code":200,"data":{"list":[{"style_code":"Style-a","name":"Watercolor"}]}}`}
	c := newStubClient2(t, transport)
	cache := NewStyleCache(c, time.Hour)
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }

	if _, err := cache.List(context.Background()); err != nil {
		t.Fatalf("List: %v", err)
	}

	transport.fail = true
	now = now.Add(2 * time.Hour)
	styles, err := cache.List(context.Background())
	if err != nil {
		t.Fatalf("List should fall back to the stale snapshot: %v", err)
	}
	if len(styles) != 1 {
		t.Fatalf("styles = %+v", styles)
	}
}

func TestStyleCacheSurfacesErrorWithoutSnapshot(t *testing.T) {
	transport := &countingTransport{fail: true}
	c := newStubClient2(t, transport)
	cache := NewStyleCache(c, time.Hour)

	if _, err := cache.List(context.Background()); err == nil {
		t.Fatalf("expected error on first fetch failure")
	}
}

func TestStyleCacheByName(t *testing.T) {
	transport := &countingTransport{body: `{"code":200,"data":{"list":[{"style_code":"Style-a","name":"Watercolor"},{"style_code":"Style-b","name":"Cartoon"}]}}`}
	c := newStubClient2(t, transport)
	cache := NewStyleCache(c, time.Hour)

	style, err := cache.ByName(context.Background(), "watercolor")
	if err != nil {
		t.Fatalf("ByName: %v", err)
	}
	if style.Code != "Style-a" {
		t.Fatalf("style = %+v", style)
	}
	if _, err := cache.ByName(context.Background(), "oil painting"); err == nil {
		t.Fatalf("expected not found for unknown style")
	}
}

func newStubClient2(t *testing.T, transport http.RoundTripper) *Client {
	t.Helper()
	c, err := NewClient(Options{
		APIKey:     "test-key",
		BaseURL:    "https://dzine.test/v1",
		HTTPClient: &http.Client{Transport: transport},
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

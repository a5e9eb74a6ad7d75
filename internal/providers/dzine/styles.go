package dzine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"mystorykid/internal/domain"
)

// StyleCache caches the hosted style catalog with a TTL. It is owned by
// whoever constructs it and injected where needed; there is no package-level
// catalog state.
type StyleCache struct {
	client *Client
	ttl    time.Duration
	now    func() time.Time

	mu        sync.Mutex
	styles    []Style
	fetchedAt time.Time
}

// NewStyleCache wraps the client with a catalog cache refreshed every ttl.
func NewStyleCache(client *Client, ttl time.Duration) *StyleCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &StyleCache{client: client, ttl: ttl, now: time.Now}
}

// List returns the cached catalog, refreshing it when stale. A failed refresh
// falls back to the previous snapshot when one exists.
func (c *StyleCache) List(ctx context.Context) ([]Style, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.styles != nil && c.now().Sub(c.fetchedAt) < c.ttl {
		return append([]Style(nil), c.styles...), nil
	}
	styles, err := c.client.ListStyles(ctx)
	if err != nil {
		if c.styles != nil {
			return append([]Style(nil), c.styles...), nil
		}
		return nil, err
	}
	c.styles = styles
	c.fetchedAt = c.now()
	return append([]Style(nil), styles...), nil
}

// ByName finds a style by name, case-insensitively.
func (c *StyleCache) ByName(ctx context.Context, name string) (*Style, error) {
	styles, err := c.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range styles {
		if strings.EqualFold(styles[i].Name, name) {
			return &styles[i], nil
		}
	}
	return nil, fmt.Errorf("%w: style %q", domain.ErrNotFound, name)
}

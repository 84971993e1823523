// Package purge fires cache invalidation triggers after catalog updates.
package purge

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Trigger issues fire-and-forget purge calls keyed by catalog id.
// Delivery failures are logged and never surfaced as pipeline failures.
type Trigger struct {
	endpoint string
	prefix   string
	http     *http.Client
	logger   *slog.Logger
}

// New creates a purge trigger posting to endpoint with keys of the form
// "<prefix>-<catalogId>". An empty endpoint disables purging.
func New(endpoint, prefix string) *Trigger {
	return &Trigger{
		endpoint: endpoint,
		prefix:   prefix,
		http:     &http.Client{Timeout: 10 * time.Second},
		logger:   slog.Default(),
	}
}

// Key returns the purge key for a catalog id.
func (t *Trigger) Key(catalogID uint) string {
	return fmt.Sprintf("%s-%d", t.prefix, catalogID)
}

// Fire sends the purge trigger in the background. The call returns
// immediately; the delivery outcome only reaches the log.
func (t *Trigger) Fire(catalogID uint) {
	if t.endpoint == "" {
		return
	}
	key := t.Key(catalogID)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint+"?key="+key, nil)
		if err != nil {
			t.logger.Warn("purge trigger build failed", "key", key, "error", err)
			return
		}

		resp, err := t.http.Do(req)
		if err != nil {
			t.logger.Warn("purge trigger delivery failed", "key", key, "error", err)
			return
		}
		resp.Body.Close()

		if resp.StatusCode >= 300 {
			t.logger.Warn("purge trigger rejected", "key", key, "status", resp.StatusCode)
		}
	}()
}

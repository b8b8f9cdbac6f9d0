// ABOUTME: Reachability probe used before any call that crosses a service boundary
// ABOUTME: Connection-level failures count as unreachable; HTTP errors do not

package probe

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// DefaultTimeout bounds a single probe request.
const DefaultTimeout = 5 * time.Second

// Prober answers "is this downstream dependency reachable" by issuing a
// lightweight request to the service's ping endpoint. Any HTTP response,
// including 4xx/5xx, means the service is reachable; those statuses are the
// responsibility of the real call that follows.
type Prober struct {
	client *http.Client
	logger *slog.Logger
}

// New creates a prober with the given per-request timeout. A timeout of zero
// selects DefaultTimeout.
func New(timeout time.Duration) *Prober {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Prober{
		client: &http.Client{Timeout: timeout},
		logger: slog.Default().With("component", "probe"),
	}
}

// Check reports whether the service at baseURL is reachable.
func (p *Prober) Check(ctx context.Context, baseURL string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/ping", nil)
	if err != nil {
		p.logger.Warn("probe request invalid", "url", baseURL, "error", err)
		return false
	}

	resp, err := p.client.Do(req)
	if err != nil {
		p.logger.Info("service unreachable", "url", baseURL, "error", err)
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	return true
}

// ABOUTME: HTTP client for the training hub consumed by the serving backend
// ABOUTME: Probes the hub first and fails fast when it cannot be reached

package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/chestscan/modelhub/internal/probe"
	"github.com/chestscan/modelhub/internal/registry"
)

// ErrHubUnavailable means the training hub could not be reached or answered
// with an unexpected status. Callers map this to 503.
var ErrHubUnavailable = errors.New("training hub unavailable")

// clientTimeout bounds every hub call.
const clientTimeout = 10 * time.Second

// Client talks to the training hub API.
type Client struct {
	baseURL string
	client  *http.Client
	prober  *probe.Prober
	logger  *slog.Logger
}

// NewClient creates a hub client for the given base URL.
func NewClient(baseURL string, prober *probe.Prober) *Client {
	return &Client{
		baseURL: baseURL,
		client:  &http.Client{Timeout: clientTimeout},
		prober:  prober,
		logger:  slog.Default().With("component", "hubclient"),
	}
}

// Latest fetches the latest version of the named model. An unknown model is
// registry.ErrModelNotFound; anything network-shaped is ErrHubUnavailable.
func (c *Client) Latest(ctx context.Context, name string) (*ModelVersionResponse, error) {
	if !c.prober.Check(ctx, c.baseURL) {
		c.logger.Warn("hub probe failed, skipping lookup", "url", c.baseURL)
		return nil, ErrHubUnavailable
	}

	resp, err := c.get(ctx, "/models/"+url.PathEscape(name))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var v ModelVersionResponse
		if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
			return nil, fmt.Errorf("%w: decoding model response: %v", ErrHubUnavailable, err)
		}
		return &v, nil
	case http.StatusNotFound:
		return nil, registry.ErrModelNotFound
	default:
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("%w: model endpoint returned %d", ErrHubUnavailable, resp.StatusCode)
	}
}

// List fetches every resolvable model's latest version.
func (c *Client) List(ctx context.Context) ([]ModelVersionResponse, error) {
	if !c.prober.Check(ctx, c.baseURL) {
		c.logger.Warn("hub probe failed, skipping listing", "url", c.baseURL)
		return nil, ErrHubUnavailable
	}

	resp, err := c.get(ctx, "/models")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("%w: models endpoint returned %d", ErrHubUnavailable, resp.StatusCode)
	}

	var list ListModelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("%w: decoding models response: %v", ErrHubUnavailable, err)
	}
	return list.Models, nil
}

func (c *Client) get(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHubUnavailable, err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Warn("hub call failed", "path", path, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrHubUnavailable, err)
	}
	return resp, nil
}

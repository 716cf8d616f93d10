package health

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/matbakh-app/matbakh-visibility-boost-sub012/pkg/contracts"
)

// HTTPProber probes one health endpoint per route.
//
// 2xx is healthy unless the body is JSON with "status": "degraded". 429 is
// degraded. Anything else is unavailable. Transport errors are returned.
type HTTPProber struct {
	client    *http.Client
	endpoints map[contracts.RouteType]string
}

func NewHTTPProber(endpoints map[contracts.RouteType]string, timeout time.Duration) *HTTPProber {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &HTTPProber{
		client:    &http.Client{Timeout: timeout},
		endpoints: endpoints,
	}
}

func (p *HTTPProber) CheckRouteHealth(ctx context.Context, path contracts.RoutingPath) (Status, error) {
	url, ok := p.endpoints[path.RouteType]
	if !ok {
		return StatusHealthy, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return StatusUnavailable, fmt.Errorf("health: build probe for %s: %w", path.RouteType, err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return StatusUnavailable, fmt.Errorf("health: probe %s: %w", path.RouteType, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return StatusDegraded, nil
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		var body struct {
			Status string `json:"status"`
		}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if json.Unmarshal(raw, &body) == nil {
			if st, err := ParseStatus(body.Status); err == nil {
				return st, nil
			}
		}
		return StatusHealthy, nil
	default:
		return StatusUnavailable, nil
	}
}

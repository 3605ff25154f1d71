package safety

import (
	"context"
	"net/http"
	"time"

	"github.com/pkg/errors"

	"github.com/steadystate/havoc/pkg/types"
)

// DependencyProber answers whether one dependency is healthy. A non-nil
// error means unhealthy, probes must respect the deadline on ctx.
type DependencyProber interface {
	Probe(ctx context.Context, check types.DependencyCheck) error
}

// ProberFunc adapts a plain function to the DependencyProber interface.
type ProberFunc func(ctx context.Context, check types.DependencyCheck) error

func (f ProberFunc) Probe(ctx context.Context, check types.DependencyCheck) error {
	return f(ctx, check)
}

// HTTPProber probes dependency health endpoints over HTTP. Any status
// outside 2xx counts as unhealthy.
type HTTPProber struct {
	Client *http.Client
}

func NewHTTPProber() *HTTPProber {
	return &HTTPProber{Client: &http.Client{Timeout: 30 * time.Second}}
}

func (p *HTTPProber) Probe(ctx context.Context, check types.DependencyCheck) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, check.ProbeURL, nil)
	if err != nil {
		return errors.Errorf("unable to build probe request for '%s', err: %v", check.DependencyID, err)
	}
	resp, err := p.Client.Do(req)
	if err != nil {
		return errors.Errorf("probe for '%s' failed, err: %v", check.DependencyID, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errors.Errorf("probe for '%s' answered %d", check.DependencyID, resp.StatusCode)
	}
	return nil
}

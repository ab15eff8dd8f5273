package coordinator

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/halcyon-app/netstate/pkg/types"
)

// Backend describes one monitored backend service.
type Backend struct {
	// ID identifies the backend in health records and events.
	ID string

	// HealthEndpoint is the URL probed by the HTTP probe. Probe functions
	// other than HTTPProbe may ignore it.
	HealthEndpoint string

	// Interval overrides the coordinator's background cache TTL for this
	// backend. Zero means use the default.
	Interval time.Duration

	// Required marks the backend as necessary for Online mode. Optional
	// backends only degrade the mode to Hybrid.
	Required bool

	// Primary marks the backend whose failure drives ServiceOffline.
	// When no backend is marked, the first configured one is primary.
	Primary bool
}

// Validate checks the backend definition.
func (b Backend) Validate() error {
	if b.ID == "" {
		return fmt.Errorf("backend id is required")
	}
	return nil
}

// Probe checks a single backend. A nil return means healthy; any error is
// classified into an OfflineReason and never propagates past the
// coordinator boundary.
type Probe func(ctx context.Context, backend Backend) error

// StatusError is an explicit unhealthy answer from a backend: the service
// responded, but with a non-2xx status or an error payload.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("backend returned status %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("backend returned status %d", e.Code)
}

// ClassifyFailure maps a probe error onto the reason taxonomy: timeouts,
// transport failures and explicit error responses are distinguished so the
// coordinator can report ServiceTimeout vs ServiceUnavailable vs
// ServiceError.
func ClassifyFailure(err error) types.OfflineReason {
	if err == nil {
		return types.ReasonNone
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return types.ReasonServiceError
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return types.ReasonServiceTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return types.ReasonServiceTimeout
	}

	return types.ReasonServiceUnavailable
}

// HTTPProbe builds a Probe that issues a GET against each backend's health
// endpoint. Non-2xx responses become StatusError; transport errors pass
// through for classification. client may be nil.
func HTTPProbe(client *http.Client) Probe {
	if client == nil {
		client = &http.Client{}
	}
	return func(ctx context.Context, backend Backend) error {
		if backend.HealthEndpoint == "" {
			return fmt.Errorf("backend %s has no health endpoint", backend.ID)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, backend.HealthEndpoint, nil)
		if err != nil {
			return err
		}

		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return &StatusError{Code: resp.StatusCode}
		}
		return nil
	}
}

package coordinator

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/halcyon-app/netstate/pkg/types"
)

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

func TestClassifyFailure(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		reason types.OfflineReason
	}{
		{"nil", nil, types.ReasonNone},
		{"deadline", context.DeadlineExceeded, types.ReasonServiceTimeout},
		{"wrapped deadline", fmt.Errorf("probing api: %w", context.DeadlineExceeded), types.ReasonServiceTimeout},
		{"net timeout", timeoutError{}, types.ReasonServiceTimeout},
		{"status error", &StatusError{Code: 500}, types.ReasonServiceError},
		{"wrapped status error", fmt.Errorf("probing api: %w", &StatusError{Code: 503}), types.ReasonServiceError},
		{"refused", fmt.Errorf("dial tcp 10.0.0.1:443: connection refused"), types.ReasonServiceUnavailable},
		{"cancelled", context.Canceled, types.ReasonServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyFailure(tt.err); got != tt.reason {
				t.Fatalf("ClassifyFailure(%v) = %v, want %v", tt.err, got, tt.reason)
			}
		})
	}
}

func TestStatusError_Message(t *testing.T) {
	e := &StatusError{Code: 503}
	if e.Error() != "backend returned status 503" {
		t.Fatalf("unexpected message: %q", e.Error())
	}
	e = &StatusError{Code: 500, Message: "database down"}
	if e.Error() != "backend returned status 500: database down" {
		t.Fatalf("unexpected message: %q", e.Error())
	}
}

func TestHTTPProbe_Healthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	probe := HTTPProbe(nil)
	backend := Backend{ID: "api", HealthEndpoint: srv.URL}

	if err := probe(context.Background(), backend); err != nil {
		t.Fatalf("expected healthy, got %v", err)
	}
}

func TestHTTPProbe_NonOKBecomesStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	probe := HTTPProbe(nil)
	err := probe(context.Background(), Backend{ID: "api", HealthEndpoint: srv.URL})

	if err == nil {
		t.Fatal("expected error for 503")
	}
	if got := ClassifyFailure(err); got != types.ReasonServiceError {
		t.Fatalf("expected service error classification, got %v", got)
	}
}

func TestHTTPProbe_TimeoutClassification(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	probe := HTTPProbe(nil)
	err := probe(ctx, Backend{ID: "api", HealthEndpoint: srv.URL})

	if err == nil {
		t.Fatal("expected timeout error")
	}
	if got := ClassifyFailure(err); got != types.ReasonServiceTimeout {
		t.Fatalf("expected timeout classification, got %v (err %v)", got, err)
	}
}

func TestHTTPProbe_MissingEndpoint(t *testing.T) {
	probe := HTTPProbe(nil)
	err := probe(context.Background(), Backend{ID: "api"})

	if err == nil {
		t.Fatal("expected error for backend without endpoint")
	}
	if got := ClassifyFailure(err); got != types.ReasonServiceUnavailable {
		t.Fatalf("expected unavailable classification, got %v", got)
	}
}

func TestBackend_Validate(t *testing.T) {
	if err := (Backend{}).Validate(); err == nil {
		t.Fatal("expected error for missing id")
	}
	if err := (Backend{ID: "api"}).Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

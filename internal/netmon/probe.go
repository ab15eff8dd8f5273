package netmon

import (
	"context"
	"net"
	"strconv"
	"time"
)

// Prober measures round-trip latency to a host:port. Implementations must
// honor the timeout and return an error on any failure; the monitor converts
// failures into the sentinel latency rather than surfacing them.
type Prober func(ctx context.Context, host string, port int, timeout time.Duration) (time.Duration, error)

// TCPProber measures latency as the time to complete a TCP handshake with
// the target. It is the default prober; a raw connect is cheap, needs no
// elevated privileges and works through almost any middlebox.
func TCPProber(ctx context.Context, host string, port int, timeout time.Duration) (time.Duration, error) {
	dialer := net.Dialer{Timeout: timeout}
	address := net.JoinHostPort(host, strconv.Itoa(port))

	started := time.Now()
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return 0, err
	}
	latency := time.Since(started)
	_ = conn.Close()

	return latency, nil
}

// Package probe answers one question: is the NAS reachable at all. The
// out-of-band check runs before any TCP connect so an unreachable device
// fails fast instead of burning a handshake timeout.
package probe

import (
	"context"
	"time"

	probing "github.com/prometheus-community/pro-bing"
)

// Pinger reports host reachability.
type Pinger interface {
	Reachable(ctx context.Context, host string) (bool, error)
}

// ICMP probes with echo requests. With Privileged unset it uses unprivileged
// UDP echo, which works without raw-socket capabilities on Linux.
type ICMP struct {
	Count      int
	Timeout    time.Duration
	Privileged bool
}

func New(count int, timeout time.Duration) *ICMP {
	if count <= 0 {
		count = 3
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &ICMP{Count: count, Timeout: timeout}
}

// Reachable sends Count echo probes and reports whether any reply arrived.
func (p *ICMP) Reachable(ctx context.Context, host string) (bool, error) {
	pinger, err := probing.NewPinger(host)
	if err != nil {
		return false, err
	}
	pinger.Count = p.Count
	pinger.Timeout = p.Timeout
	pinger.SetPrivileged(p.Privileged)

	if err := pinger.RunWithContext(ctx); err != nil {
		return false, err
	}
	return pinger.Statistics().PacketsRecv > 0, nil
}

package content

import (
	"context"
	"strings"
	"sync"
	"time"
)

// HostLimiter throttles requests per hostname. Requests to the same host are serialized
// and spaced by at least interval. Requests to different hosts don't block each other.
type HostLimiter struct {
	interval time.Duration

	mu    sync.Mutex
	hosts map[string]*hostSlot
}

type hostSlot struct {
	sem  chan struct{}
	last time.Time // guarded by sem
}

// NewHostLimiter makes a limiter with minimal interval between requests to the same host
func NewHostLimiter(interval time.Duration) *HostLimiter {
	return &HostLimiter{interval: interval, hosts: make(map[string]*hostSlot)}
}

// Acquire waits for the host slot and the interval since the previous request to this host.
// The returned release must be called when the request is done.
func (l *HostLimiter) Acquire(ctx context.Context, host string) (release func(), err error) {
	slot := l.slot(strings.ToLower(host))

	select {
	case slot.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if wait := time.Until(slot.last.Add(l.interval)); wait > 0 && !slot.last.IsZero() {
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			<-slot.sem
			return nil, ctx.Err()
		}
	}

	return func() {
		slot.last = time.Now()
		<-slot.sem
	}, nil
}

// Hosts returns the number of hosts seen by the limiter
func (l *HostLimiter) Hosts() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.hosts)
}

func (l *HostLimiter) slot(host string) *hostSlot {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.hosts[host]
	if !ok {
		s = &hostSlot{sem: make(chan struct{}, 1)}
		l.hosts[host] = s
	}
	return s
}

package remote

import (
	"net"
	"sync"
	"time"
)

// Prober checks connectivity with a cheap TCP dial and caches the
// answer so IsOnline stays fast on the edit/save path. A probe only
// happens when the cached answer has expired.
type Prober struct {
	addr    string
	ttl     time.Duration
	timeout time.Duration

	mu        sync.Mutex
	online    bool
	checkedAt time.Time

	// dial is swappable for tests.
	dial func(network, addr string, timeout time.Duration) (net.Conn, error)
}

// ProberConfig configures the connectivity prober.
type ProberConfig struct {
	// Addr is the host:port to dial, typically the API host's port 443.
	Addr string

	// TTL is how long a probe result is trusted (default: 10s).
	TTL time.Duration

	// Timeout bounds each probe dial (default: 2s).
	Timeout time.Duration
}

// NewProber creates a connectivity prober.
func NewProber(config ProberConfig) *Prober {
	if config.TTL == 0 {
		config.TTL = 10 * time.Second
	}
	if config.Timeout == 0 {
		config.Timeout = 2 * time.Second
	}
	return &Prober{
		addr:    config.Addr,
		ttl:     config.TTL,
		timeout: config.Timeout,
		dial:    net.DialTimeout,
	}
}

// IsOnline implements Connectivity. The first call probes; subsequent
// calls within the TTL return the cached answer.
func (p *Prober) IsOnline() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if time.Since(p.checkedAt) < p.ttl && !p.checkedAt.IsZero() {
		return p.online
	}

	conn, err := p.dial("tcp", p.addr, p.timeout)
	if err == nil {
		_ = conn.Close()
	}

	p.online = err == nil
	p.checkedAt = time.Now()
	return p.online
}

// Invalidate drops the cached answer so the next IsOnline re-probes.
// Called by the sync driver after a request fails unexpectedly.
func (p *Prober) Invalidate() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.checkedAt = time.Time{}
}

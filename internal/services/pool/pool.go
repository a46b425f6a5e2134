// Package pool bounds concurrent use of each backend connection. One Pool
// exists per connection name; pools share no state with each other.
package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/adaptive-sql/querygate/internal/models"
	"github.com/adaptive-sql/querygate/internal/services/adapters"

	"github.com/cenkalti/backoff/v4"
	fiberlog "github.com/gofiber/fiber/v2/log"
	"golang.org/x/sync/semaphore"
)

const evictInterval = 30 * time.Second

// Pool wraps one adapter behind a weighted semaphore sized by the
// connection's max_size. The adapter is dialed lazily on first acquire.
type Pool struct {
	cfg     *models.ConnectionConfig
	adapter adapters.Adapter
	sem     *semaphore.Weighted

	mu             sync.Mutex
	opened         bool
	openedAt       time.Time
	lastUsed       time.Time
	pendingDiscard bool

	acquires  uint64
	timeouts  uint64
	discards  uint64
	inUse     int64
	closed    bool
	stopEvict chan struct{}
}

// New builds a pool over an adapter. The background idle eviction loop runs
// until Close.
func New(cfg *models.ConnectionConfig, adapter adapters.Adapter) *Pool {
	p := &Pool{
		cfg:       cfg,
		adapter:   adapter,
		sem:       semaphore.NewWeighted(int64(cfg.Pool.MaxSize)),
		stopEvict: make(chan struct{}),
	}
	go p.evictLoop()
	return p
}

// Handle is one checked-out slot. Release must be called on every path; it
// is idempotent.
type Handle struct {
	pool     *Pool
	adapter  adapters.Adapter
	released bool
	mu       sync.Mutex
}

// Adapter returns the backend adapter for this checkout.
func (h *Handle) Adapter() adapters.Adapter {
	return h.adapter
}

// Release returns the slot. With discard the underlying connection is torn
// down so the next acquire dials fresh. The backend is shared by every
// checked-out handle, so the teardown waits until the last one is back.
func (h *Handle) Release(discard bool) {
	h.mu.Lock()
	if h.released {
		h.mu.Unlock()
		return
	}
	h.released = true
	h.mu.Unlock()

	h.pool.release(discard)
}

// Acquire blocks for a slot up to the connection timeout, then ensures the
// adapter is dialed and healthy. A broken adapter is discarded and redialed
// once before the error surfaces.
func (p *Pool) Acquire(ctx context.Context) (*Handle, error) {
	acquireCtx, cancel := context.WithTimeout(ctx, p.cfg.ConnectTimeout)
	defer cancel()

	if err := p.sem.Acquire(acquireCtx, 1); err != nil {
		p.mu.Lock()
		p.timeouts++
		p.mu.Unlock()
		if errors.Is(acquireCtx.Err(), context.DeadlineExceeded) {
			return nil, models.NewTimeoutError(
				fmt.Sprintf("acquiring connection %q", p.cfg.Name), err)
		}
		return nil, models.NewInternalError("acquire interrupted", err)
	}

	if err := p.checkout(ctx); err != nil {
		p.sem.Release(1)
		return nil, err
	}

	return &Handle{pool: p, adapter: p.adapter}, nil
}

// checkout makes sure the adapter is connected and responsive, recycling
// backends past their lifetime. The in-use count is taken under the same lock
// so a concurrent release cannot tear the backend down between the health
// check and the handle being handed out.
func (p *Pool) checkout(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return models.NewInternalError(fmt.Sprintf("pool %q is closed", p.cfg.Name), nil)
	}

	if p.opened && p.cfg.Pool.Recycle > 0 && time.Since(p.openedAt) > p.cfg.Pool.Recycle {
		if p.inUse == 0 {
			p.teardownLocked("recycle")
		} else {
			// aged backend is still referenced; recycle once it drains
			p.pendingDiscard = true
		}
	}

	if !p.opened {
		if err := p.dial(ctx); err != nil {
			return err
		}
		p.bookLocked()
		return nil
	}

	if err := p.adapter.Ping(ctx); err != nil {
		p.discards++
		if p.inUse > 0 {
			// other handles still hold the backend; closing it here would
			// pull it out from under them
			p.pendingDiscard = true
			return err
		}
		p.teardownLocked("broken backend")
		if err := p.dial(ctx); err != nil {
			return err
		}
	}
	p.bookLocked()
	return nil
}

// bookLocked records a successful checkout. Callers hold mu.
func (p *Pool) bookLocked() {
	p.acquires++
	p.inUse++
	p.lastUsed = time.Now()
}

// teardownLocked closes the backend. Callers hold mu and must ensure no
// handle is checked out.
func (p *Pool) teardownLocked(reason string) {
	if err := p.adapter.Close(); err != nil {
		fiberlog.Debugf("pool %s: close on %s: %v", p.cfg.Name, reason, err)
	}
	p.opened = false
	p.pendingDiscard = false
}

// dial connects the adapter, retrying transient failures with exponential
// backoff inside the connect timeout. Authentication and configuration
// errors fail immediately.
func (p *Pool) dial(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, p.cfg.ConnectTimeout)
	defer cancel()

	policy := backoff.WithContext(backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(100*time.Millisecond),
		backoff.WithMaxInterval(2*time.Second),
	), dialCtx)

	operation := func() error {
		err := p.adapter.Connect(dialCtx)
		if err == nil {
			return nil
		}
		var ge *models.GatewayError
		if errors.As(err, &ge) && !ge.Retryable {
			return backoff.Permanent(err)
		}
		return err
	}

	if err := backoff.Retry(operation, policy); err != nil {
		var ge *models.GatewayError
		if errors.As(err, &ge) {
			return ge
		}
		return models.NewConnectivityError(
			fmt.Sprintf("failed to connect to %q", p.cfg.Name), err)
	}

	p.opened = true
	p.openedAt = time.Now()
	return nil
}

func (p *Pool) release(discard bool) {
	p.mu.Lock()
	p.inUse--
	p.lastUsed = time.Now()
	if discard && p.opened && !p.pendingDiscard {
		p.pendingDiscard = true
		p.discards++
	}
	if p.pendingDiscard && p.opened && p.inUse == 0 {
		p.teardownLocked("discard")
	}
	p.mu.Unlock()

	p.sem.Release(1)
}

// evictLoop closes the backend when the pool has been idle past the
// configured idle timeout.
func (p *Pool) evictLoop() {
	ticker := time.NewTicker(evictInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopEvict:
			return
		case <-ticker.C:
			p.mu.Lock()
			idle := p.opened && p.inUse == 0 &&
				time.Since(p.lastUsed) > p.cfg.Pool.IdleTimeout
			if idle {
				p.teardownLocked("idle")
				fiberlog.Debugf("pool %s: closed idle backend connection", p.cfg.Name)
			}
			p.mu.Unlock()
		}
	}
}

// Stats is a point-in-time snapshot of pool activity.
type Stats struct {
	Connection string `json:"connection"`
	MaxSize    int    `json:"max_size"`
	InUse      int64  `json:"in_use"`
	Connected  bool   `json:"connected"`
	Acquires   uint64 `json:"acquires"`
	Timeouts   uint64 `json:"timeouts"`
	Discards   uint64 `json:"discards"`
}

func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		Connection: p.cfg.Name,
		MaxSize:    p.cfg.Pool.MaxSize,
		InUse:      p.inUse,
		Connected:  p.opened,
		Acquires:   p.acquires,
		Timeouts:   p.timeouts,
		Discards:   p.discards,
	}
}

// Close shuts the pool down. In-flight handles keep working and the backend
// closes when the last of them is released; new acquires fail.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	close(p.stopEvict)

	if !p.opened {
		return nil
	}
	if p.inUse > 0 {
		p.pendingDiscard = true
		return nil
	}
	err := p.adapter.Close()
	p.opened = false
	return err
}

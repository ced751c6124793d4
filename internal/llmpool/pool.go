// Package llmpool provides the bounded connection pool through which every
// completion/embedding call travels. The pool multiplexes a rate-limited
// external service across concurrent conversations: at most max handles ever
// exist, waiters queue with a deadline, and exhaustion is a recoverable
// condition surfaced as a domain error, never a fatal one.
package llmpool

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/puddle/v2"

	"github.com/Remaker-Digital/AGNTCY-muti-agent-deployment-customer-service-sub001/internal/domain"
	"github.com/Remaker-Digital/AGNTCY-muti-agent-deployment-customer-service-sub001/internal/port/llm"
)

// Dial constructs one new handle to the completion service.
type Dial func(ctx context.Context) (llm.Client, error)

// Config tunes the pool.
type Config struct {
	Min            int           // handles warmed at startup
	Max            int           // hard ceiling on outstanding + idle handles
	AcquireTimeout time.Duration // wait bound when all handles are busy
}

// Pool is a bounded pool of completion handles.
type Pool struct {
	inner          *puddle.Pool[llm.Client]
	acquireTimeout time.Duration
}

// New creates the pool and warms Config.Min handles. Warm-up failures are not
// fatal; the pool dials lazily on demand.
func New(ctx context.Context, dial Dial, cfg Config) (*Pool, error) {
	if cfg.Max < 1 {
		return nil, fmt.Errorf("llmpool: max must be >= 1, got %d", cfg.Max)
	}
	if cfg.AcquireTimeout <= 0 {
		cfg.AcquireTimeout = 2 * time.Second
	}

	inner, err := puddle.NewPool(&puddle.Config[llm.Client]{
		Constructor: func(ctx context.Context) (llm.Client, error) {
			return dial(ctx)
		},
		Destructor: func(c llm.Client) {
			_ = c.Close()
		},
		MaxSize: int32(cfg.Max),
	})
	if err != nil {
		return nil, fmt.Errorf("llmpool: %w", err)
	}

	p := &Pool{inner: inner, acquireTimeout: cfg.AcquireTimeout}
	for range cfg.Min {
		if err := inner.CreateResource(ctx); err != nil {
			break
		}
	}
	return p, nil
}

// Handle is an acquired pool resource. Release must be called on every exit
// path; Do is the preferred way to guarantee that.
type Handle struct {
	res *puddle.Resource[llm.Client]
}

// Client returns the underlying completion client.
func (h *Handle) Client() llm.Client {
	return h.res.Value()
}

// Release returns the handle to the pool.
func (h *Handle) Release() {
	h.res.Release()
}

// Acquire returns an idle handle immediately if one is available, dials a new
// one while under max, and otherwise waits until a release or a deadline,
// whichever of the caller's deadline and the pool's acquire timeout comes
// first. Exhaustion maps to domain.RateLimitError wrapping ErrPoolExhausted.
func (p *Pool) Acquire(ctx context.Context) (*Handle, error) {
	actx, cancel := context.WithTimeout(ctx, p.acquireTimeout)
	defer cancel()

	res, err := p.inner.Acquire(actx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			// The pool's own timer fired, not the caller's deadline.
			return nil, &domain.RateLimitError{
				Op:         "llmpool.acquire",
				RetryAfter: p.acquireTimeout,
				Err:        domain.ErrPoolExhausted,
			}
		}
		return nil, &domain.TimeoutError{Op: "llmpool.acquire", Deadline: p.acquireTimeout, Err: err}
	}
	return &Handle{res: res}, nil
}

// Do acquires a handle, runs fn with its client, and releases the handle on
// every exit path, including panics in fn.
func (p *Pool) Do(ctx context.Context, fn func(c llm.Client) error) error {
	h, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	defer h.Release()
	return fn(h.Client())
}

// Stats reports pool occupancy for health checks and tests.
type Stats struct {
	Acquired int32
	Idle     int32
	Total    int32
	Max      int32
}

// Stats returns a snapshot of pool occupancy.
func (p *Pool) Stats() Stats {
	s := p.inner.Stat()
	return Stats{
		Acquired: s.AcquiredResources(),
		Idle:     s.IdleResources(),
		Total:    s.TotalResources(),
		Max:      s.MaxResources(),
	}
}

// Close destroys all idle handles and waits for outstanding ones to be
// released.
func (p *Pool) Close() {
	p.inner.Close()
}

package storefront

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/xenking/kart-storefront/internal/domain/cart"
	"github.com/xenking/kart-storefront/internal/domain/coupon"
	"github.com/xenking/kart-storefront/internal/domain/kv"
	"github.com/xenking/kart-storefront/internal/domain/session"
)

// ErrInvalidSession is returned for an empty or oversized session id.
var ErrInvalidSession = errors.New("invalid session id")

const (
	maxSessionIDLen = 128
	restoreTimeout  = 5 * time.Second
)

// StoreError reports that a session's persisted state could not be read.
// The session is not opened, so a later request retries the restore.
type StoreError struct {
	Session string
	Err     error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("restore session %q: %v", e.Session, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// Options configures a Registry.
type Options struct {
	Catalog *Catalog
	// Store persists carts and logins, scoped per session id.
	Store   kv.Store
	Coupons coupon.Repository
	Policy  session.Policy
	Now     func() time.Time
	Logger  *zap.Logger
	Meter   metric.Meter
}

// Registry owns the live sessions. Sessions are created on first use with
// their persisted cart restored, and dropped by Sweep when idle.
type Registry struct {
	opts    Options
	quoter  *coupon.Quoter
	actions metric.Int64Counter

	opening singleflight.Group

	mu       sync.Mutex
	sessions map[string]*Service
	// closing holds dropped sessions whose last cart write may still be in
	// flight. Reopening the same id waits for it.
	closing map[string]*Service
}

// NewRegistry creates a Registry.
func NewRegistry(opts Options) (*Registry, error) {
	if opts.Catalog == nil {
		return nil, errors.New("catalog is required")
	}
	if opts.Store == nil {
		return nil, errors.New("store is required")
	}
	if opts.Coupons == nil {
		opts.Coupons = coupon.NewStaticRepository()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Meter == nil {
		opts.Meter = noop.NewMeterProvider().Meter("storefront")
	}

	actions, err := opts.Meter.Int64Counter("storefront.cart.actions",
		metric.WithDescription("Cart actions dispatched"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "cart actions counter")
	}

	return &Registry{
		opts:     opts,
		quoter:   coupon.NewQuoter(opts.Coupons, opts.Now),
		actions:  actions,
		sessions: make(map[string]*Service),
		closing:  make(map[string]*Service),
	}, nil
}

// Session returns the session with the given id, restoring it from the store
// on first use. Store I/O happens outside the registry lock, and concurrent
// first uses of one id share a single restore. A failed read returns
// *StoreError and leaves nothing cached.
func (r *Registry) Session(ctx context.Context, id string) (*Service, error) {
	if id == "" || len(id) > maxSessionIDLen {
		return nil, ErrInvalidSession
	}
	if s := r.live(id); s != nil {
		return s, nil
	}

	v, err, _ := r.opening.Do(id, func() (any, error) {
		r.mu.Lock()
		if s, ok := r.sessions[id]; ok {
			r.mu.Unlock()
			return s, nil
		}
		prev := r.closing[id]
		r.mu.Unlock()
		if prev != nil {
			<-prev.closed
		}

		s, err := r.open(ctx, id)
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		r.sessions[id] = s
		r.mu.Unlock()
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	s := v.(*Service)
	s.touch()
	return s, nil
}

func (r *Registry) live(id string) *Service {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil
	}
	s.touch()
	return s
}

func (r *Registry) open(ctx context.Context, id string) (*Service, error) {
	lg := r.opts.Logger.With(zap.String("session", id))
	store := kv.Scoped(r.opts.Store, id)

	// Restores outlive the request that triggered them.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), restoreTimeout)
	defer cancel()

	m := cart.NewMachine()
	p := cart.NewPersister(store, lg)
	restored, err := p.Restore(ctx, m)
	if err != nil {
		return nil, &StoreError{Session: id, Err: err}
	}
	if restored {
		lg.Debug("Restored cart", zap.Int("lines", m.Snapshot().Len()))
	}

	s := &Service{
		id:      id,
		catalog: r.opts.Catalog,
		machine: m,
		tracker: session.NewTracker(store),
		policy:  r.opts.Policy,
		quoter:  r.quoter,
		now:     r.opts.Now,
		lg:      lg,
		actions: r.actions,
		detach:  p.Attach(m),
		closed:  make(chan struct{}),
	}
	s.touch()
	return s, nil
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.sessions)
}

// Sweep drops sessions unused for longer than idle and returns how many were
// dropped. Their state stays in the store and is restored on next use.
func (r *Registry) Sweep(idle time.Duration) int {
	cutoff := r.opts.Now().Add(-idle)

	r.mu.Lock()
	var dropped []*Service
	for id, s := range r.sessions {
		if s.idleSince().Before(cutoff) {
			delete(r.sessions, id)
			r.closing[id] = s
			dropped = append(dropped, s)
		}
	}
	r.mu.Unlock()

	r.finish(dropped)
	return len(dropped)
}

// finish flushes and detaches dropped sessions outside the lock.
func (r *Registry) finish(dropped []*Service) {
	for _, s := range dropped {
		s.close()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range dropped {
		if r.closing[s.id] == s {
			delete(r.closing, s.id)
		}
	}
}

// Run sweeps idle sessions every interval until ctx is done.
func (r *Registry) Run(ctx context.Context, interval, idle time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := r.Sweep(idle); n > 0 {
				r.opts.Logger.Debug("Dropped idle sessions", zap.Int("count", n))
			}
		}
	}
}

// Close detaches every live session, waiting for their pending cart writes.
func (r *Registry) Close() {
	r.mu.Lock()
	dropped := make([]*Service, 0, len(r.sessions))
	for id, s := range r.sessions {
		delete(r.sessions, id)
		r.closing[id] = s
		dropped = append(dropped, s)
	}
	r.mu.Unlock()

	r.finish(dropped)
}

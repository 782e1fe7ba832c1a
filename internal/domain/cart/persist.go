package cart

import (
	"context"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/xenking/kart-storefront/internal/domain/kv"
)

// StorageKey is the key the cart lines are stored under.
const StorageKey = "cart"

// ErrCorrupted is returned by Load when the stored cart cannot be decoded.
var ErrCorrupted = errors.New("persisted cart is corrupted")

// Persister mirrors a Machine into a key/value store.
//
// Persistence never fails a cart operation: corrupted stored state is
// discarded and write errors are logged while the in-memory cart stays
// authoritative. Read failures are returned so that a stored cart is never
// replaced by an empty one.
type Persister struct {
	store   kv.Store
	lg      *zap.Logger
	timeout time.Duration
}

// NewPersister creates a Persister writing to store.
func NewPersister(store kv.Store, lg *zap.Logger) *Persister {
	if lg == nil {
		lg = zap.NewNop()
	}
	return &Persister{store: store, lg: lg, timeout: 5 * time.Second}
}

// Restore loads the persisted cart into m with a single LoadCart and reports
// whether a cart was loaded. A missing or corrupted cart leaves m untouched
// and is not an error.
func (p *Persister) Restore(ctx context.Context, m *Machine) (bool, error) {
	lines, err := p.Load(ctx)
	switch {
	case errors.Is(err, kv.ErrNotFound):
		return false, nil
	case errors.Is(err, ErrCorrupted):
		p.lg.Warn("Discarding persisted cart", zap.Error(err))
		return false, nil
	case err != nil:
		return false, err
	}
	m.Dispatch(LoadCart{Lines: lines})
	return true, nil
}

// Load reads and decodes the persisted lines.
func (p *Persister) Load(ctx context.Context) ([]Line, error) {
	raw, err := p.store.Get(ctx, StorageKey)
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return nil, err
		}
		return nil, errors.Wrap(err, "read cart")
	}
	lines, err := DecodeLines([]byte(raw))
	if err != nil {
		return nil, errors.Wrapf(ErrCorrupted, "parse cart: %v", err)
	}
	return lines, nil
}

// Save writes the cart lines to the store.
func (p *Persister) Save(ctx context.Context, c Cart) error {
	if err := p.store.Set(ctx, StorageKey, string(EncodeLines(c.lines))); err != nil {
		return errors.Wrap(err, "write cart")
	}
	return nil
}

// Attach subscribes the Persister to m. Transitions queue a write of the new
// cart, and a background goroutine writes queued carts in dispatch order; a
// cart still queued when a newer one arrives is replaced by it. The returned
// function unsubscribes, waits for the queued write and stops the goroutine.
func (p *Persister) Attach(m *Machine) (detach func()) {
	w := &writer{p: p, pending: make(chan Cart, 1)}
	unsubscribe := m.Subscribe(w.enqueue)

	var once sync.Once
	return func() {
		once.Do(func() {
			unsubscribe()
			w.stop()
		})
	}
}

// writer has a single producer, the Machine listener, which runs under the
// machine lock.
type writer struct {
	p       *Persister
	started bool
	pending chan Cart
	done    chan struct{}
}

func (w *writer) enqueue(c Cart) {
	if !w.started {
		w.started = true
		w.done = make(chan struct{})
		go w.run()
	}
	select {
	case w.pending <- c:
	default:
		select {
		case <-w.pending:
		default:
		}
		w.pending <- c
	}
}

func (w *writer) run() {
	defer close(w.done)
	for c := range w.pending {
		w.save(c)
	}
}

func (w *writer) save(c Cart) {
	ctx, cancel := context.WithTimeout(context.Background(), w.p.timeout)
	defer cancel()

	if err := w.p.Save(ctx, c); err != nil {
		w.p.lg.Warn("Failed to persist cart", zap.Error(err), zap.Int("lines", c.Len()))
	}
}

// stop must be called after the listener is unsubscribed.
func (w *writer) stop() {
	close(w.pending)
	if w.started {
		<-w.done
	}
}

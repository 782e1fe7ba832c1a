// Package session decides how long a login stays valid and remembers when
// the current login happened.
package session

import (
	"context"
	"strconv"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/kart-storefront/internal/domain/kv"
)

// DefaultWindow is how long a login stays valid.
const DefaultWindow = 30 * time.Minute

// Policy computes session validity from a login timestamp. A nil login
// timestamp is always expired.
type Policy struct {
	Window time.Duration
}

// DefaultPolicy returns a Policy with DefaultWindow.
func DefaultPolicy() Policy {
	return Policy{Window: DefaultWindow}
}

// Remaining returns how much of the window is left at now, never negative.
func (p Policy) Remaining(login *time.Time, now time.Time) time.Duration {
	if login == nil {
		return 0
	}
	window := p.Window
	if window <= 0 {
		window = DefaultWindow
	}
	return max(login.Add(window).Sub(now), 0)
}

// RemainingMinutes returns Remaining in minutes.
func (p Policy) RemainingMinutes(login *time.Time, now time.Time) float64 {
	return p.Remaining(login, now).Minutes()
}

// IsExpired reports whether no time is left in the window.
func (p Policy) IsExpired(login *time.Time, now time.Time) bool {
	return p.RemainingMinutes(login, now) <= 0
}

// LoginSource reports the current login timestamp. ok is false when nobody
// is logged in.
type LoginSource interface {
	CurrentLogin(ctx context.Context) (login time.Time, ok bool, err error)
}

// LoginKey is the key the login timestamp is stored under.
const LoginKey = "session:login"

// Tracker stores the login timestamp in a key/value store as Unix
// milliseconds.
type Tracker struct {
	store kv.Store
}

var _ LoginSource = (*Tracker)(nil)

// NewTracker creates a Tracker backed by store.
func NewTracker(store kv.Store) *Tracker {
	return &Tracker{store: store}
}

// MarkLogin records at as the current login time.
func (t *Tracker) MarkLogin(ctx context.Context, at time.Time) error {
	if err := t.store.Set(ctx, LoginKey, strconv.FormatInt(at.UnixMilli(), 10)); err != nil {
		return errors.Wrap(err, "store login time")
	}
	return nil
}

// CurrentLogin returns the recorded login time. A missing or unparseable
// value means nobody is logged in.
func (t *Tracker) CurrentLogin(ctx context.Context) (time.Time, bool, error) {
	raw, err := t.store.Get(ctx, LoginKey)
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, errors.Wrap(err, "read login time")
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || ms <= 0 {
		return time.Time{}, false, nil
	}
	return time.UnixMilli(ms), true, nil
}

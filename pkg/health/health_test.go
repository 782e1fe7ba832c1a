package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type status struct {
	Status string
	Checks map[string]string
}

func probe(t *testing.T, h http.HandlerFunc) (int, status) {
	t.Helper()

	w := httptest.NewRecorder()
	h(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var s status
	require.NoError(t, jx.DecodeBytes(w.Body.Bytes()).Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "status":
			v, err := d.Str()
			s.Status = v
			return err
		case "checks":
			s.Checks = map[string]string{}
			return d.Obj(func(d *jx.Decoder, name string) error {
				v, err := d.Str()
				s.Checks[name] = v
				return err
			})
		default:
			return d.Skip()
		}
	}))
	return w.Code, s
}

func TestLiveEndpoint(t *testing.T) {
	h := New()
	code, s := probe(t, h.LiveEndpoint)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", s.Status)
	assert.Empty(t, s.Checks)
}

func TestReadyEndpoint_Switch(t *testing.T) {
	h := New()

	code, s := probe(t, h.ReadyEndpoint)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "unhealthy", s.Status)
	assert.Equal(t, "service is not ready", s.Checks["_readiness"])
	assert.False(t, h.IsReady())

	h.SetReady(true)
	code, s = probe(t, h.ReadyEndpoint)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", s.Status)
	assert.True(t, h.IsReady())
}

func TestCheck_Thresholds(t *testing.T) {
	h := New()
	h.SetReady(true)

	var fail bool
	h.Add(Check{
		Name: "redis",
		Kind: Readiness,
		Func: func(context.Context) error {
			if fail {
				return errors.New("connection refused")
			}
			return nil
		},
		FailureThreshold: 2,
		SuccessThreshold: 2,
	})
	c := h.checks[0]
	ctx := context.Background()

	fail = true
	c.run(ctx)
	assert.True(t, h.IsReady(), "one failure is below the threshold")

	c.run(ctx)
	assert.False(t, h.IsReady())
	code, s := probe(t, h.ReadyEndpoint)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, map[string]string{"redis": "connection refused"}, s.Checks)

	// Liveness is unaffected by readiness checks.
	code, _ = probe(t, h.LiveEndpoint)
	assert.Equal(t, http.StatusOK, code)

	fail = false
	c.run(ctx)
	assert.False(t, h.IsReady(), "one success is below the threshold")
	c.run(ctx)
	assert.True(t, h.IsReady())
}

func TestCheck_Timeout(t *testing.T) {
	h := New()
	h.Add(Check{
		Name:             "slow",
		Kind:             Liveness,
		Timeout:          10 * time.Millisecond,
		FailureThreshold: 1,
		Func: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
	})
	h.checks[0].run(context.Background())

	code, s := probe(t, h.LiveEndpoint)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, context.DeadlineExceeded.Error(), s.Checks["slow"])
}

func TestRun(t *testing.T) {
	h := New()
	ran := make(chan struct{}, 1)
	h.AddLivenessCheck("tick", time.Second, func(context.Context) error {
		select {
		case ran <- struct{}{}:
		default:
		}
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.Run(ctx, time.Hour) }()

	select {
	case <-ran:
	case <-time.After(5 * time.Second):
		t.Fatal("check did not run")
	}
	cancel()
	assert.NoError(t, <-done)
}

func TestCheckers(t *testing.T) {
	ctx := context.Background()

	assert.NoError(t, GoroutineCountCheck(1_000_000)(ctx))
	assert.Error(t, GoroutineCountCheck(0)(ctx))
	assert.NoError(t, GCMaxPauseCheck(time.Hour)(ctx))

	loaded := false
	check := ConditionCheck(func() bool { return loaded }, "catalog not loaded")
	assert.EqualError(t, check(ctx), "catalog not loaded")
	loaded = true
	assert.NoError(t, check(ctx))

	assert.EqualError(t, PingCheck(pingFunc(func(context.Context) error {
		return errors.New("down")
	}))(ctx), "down")
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

package cart

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xenking/kart-storefront/internal/domain/kv"
)

type mockStore struct {
	mu     sync.Mutex
	data   map[string]string
	getErr error
	setErr error
	sets   int
	// onSet runs before every Set, outside the lock.
	onSet func()
}

func newMockStore() *mockStore {
	return &mockStore{data: make(map[string]string)}
}

func (m *mockStore) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return "", m.getErr
	}
	v, ok := m.data[key]
	if !ok {
		return "", kv.ErrNotFound
	}
	return v, nil
}

func (m *mockStore) Set(_ context.Context, key, value string) error {
	if m.onSet != nil {
		m.onSet()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sets++
	if m.setErr != nil {
		return m.setErr
	}
	m.data[key] = value
	return nil
}

func TestMachine_DispatchNotifiesInOrder(t *testing.T) {
	m := NewMachine()

	var first, second []int
	unsubFirst := m.Subscribe(func(c Cart) { first = append(first, c.ItemCount()) })
	m.Subscribe(func(c Cart) { second = append(second, c.ItemCount()) })

	m.Dispatch(AddItem{Product: newTestProduct("a", 1)})
	m.Dispatch(AddItem{Product: newTestProduct("a", 1)})
	unsubFirst()
	unsubFirst()
	m.Dispatch(ClearCart{})

	assert.Equal(t, []int{1, 2}, first)
	assert.Equal(t, []int{1, 2, 0}, second)
	assert.True(t, m.Snapshot().IsEmpty())
}

func TestMachine_ConcurrentDispatch(t *testing.T) {
	m := NewMachine()
	p := newTestProduct("a", 3)

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Dispatch(AddItem{Product: p})
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, m.Snapshot().ItemCount())
	assert.True(t, decimal.NewFromInt(150).Equal(m.Snapshot().Total()))
}

func TestCodec_RoundTrip(t *testing.T) {
	lines := []Line{
		{ProductID: "1", Name: "Brownie", Image: "b.png", Price: decimal.RequireFromString("1000.50"), Quantity: 2},
		{ProductID: "x-2", Name: "Alfajor \"doble\"", Price: decimal.RequireFromString("0.1"), Quantity: 1},
	}

	got, err := DecodeLines(EncodeLines(lines))
	require.NoError(t, err)
	require.Len(t, got, 2)
	for i := range lines {
		assert.Equal(t, lines[i].ProductID, got[i].ProductID)
		assert.Equal(t, lines[i].Name, got[i].Name)
		assert.Equal(t, lines[i].Image, got[i].Image)
		assert.True(t, lines[i].Price.Equal(got[i].Price))
		assert.Equal(t, lines[i].Quantity, got[i].Quantity)
	}
}

func TestDecodeLines_NumericFields(t *testing.T) {
	got, err := DecodeLines([]byte(`[{"productId":12,"name":"Pan","price":99.9,"quantity":3,"extra":{"a":[1]}}]`))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "12", got[0].ProductID.String())
	assert.True(t, decimal.RequireFromString("99.9").Equal(got[0].Price))
	assert.Equal(t, 3, got[0].Quantity)
}

func TestDecodeLines_Invalid(t *testing.T) {
	for _, input := range []string{
		``,
		`not json`,
		`{"productId":"1"}`,
		`null`,
		`[{"name":"no id","price":"1","quantity":1}]`,
		`[{"productId":"1","quantity":1}]`,
		`[{"productId":"1","price":"abc","quantity":1}]`,
		`[{"productId":"1","price":"1","quantity":"many"}]`,
	} {
		_, err := DecodeLines([]byte(input))
		assert.Error(t, err, "input %q", input)
	}
}

func TestPersister_RestoreInvalidJSON(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	store := newMockStore()
	store.data[StorageKey] = "{not valid json"

	m := NewMachine()
	dispatched := 0
	m.Subscribe(func(Cart) { dispatched++ })

	p := NewPersister(store, zap.New(core))
	ok, err := p.Restore(context.Background(), m)

	require.NoError(t, err)
	assert.False(t, ok)
	assert.True(t, m.Snapshot().IsEmpty())
	assert.Equal(t, 0, dispatched)
	assert.Equal(t, 1, logs.FilterMessage("Discarding persisted cart").Len())

	_, err = p.Load(context.Background())
	assert.ErrorIs(t, err, ErrCorrupted)
}

func TestPersister_RestoreMissingKey(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	m := NewMachine()

	ok, err := NewPersister(newMockStore(), zap.New(core)).Restore(context.Background(), m)

	require.NoError(t, err)
	assert.False(t, ok)
	assert.True(t, m.Snapshot().IsEmpty())
	assert.Zero(t, logs.Len())
}

func TestPersister_RestoreReadError(t *testing.T) {
	store := newMockStore()
	store.data[StorageKey] = string(EncodeLines([]Line{
		{ProductID: "a", Name: "A", Price: decimal.NewFromInt(10), Quantity: 3},
	}))
	store.getErr = errors.New("connection refused")
	m := NewMachine()

	ok, err := NewPersister(store, nil).Restore(context.Background(), m)

	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrCorrupted)
	assert.False(t, ok)
	assert.True(t, m.Snapshot().IsEmpty())
	assert.Zero(t, store.sets, "stored cart must not be overwritten")
}

func TestPersister_RestoreDispatchesLoadOnce(t *testing.T) {
	store := newMockStore()
	store.data[StorageKey] = string(EncodeLines([]Line{
		{ProductID: "a", Name: "A", Price: decimal.NewFromInt(10), Quantity: 2},
	}))

	m := NewMachine()
	var actions int
	m.Subscribe(func(Cart) { actions++ })

	ok, err := NewPersister(store, nil).Restore(context.Background(), m)

	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, actions)
	assert.Equal(t, 2, m.Snapshot().ItemCount())
	assert.True(t, decimal.NewFromInt(20).Equal(m.Snapshot().Total()))
}

func TestPersister_AttachSavesLatestCart(t *testing.T) {
	store := newMockStore()
	m := NewMachine()
	p := NewPersister(store, nil)
	detach := p.Attach(m)

	m.Dispatch(AddItem{Product: newTestProduct("a", 10)})
	m.Dispatch(AddItem{Product: newTestProduct("b", 5)})
	detach()

	lines, err := p.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, lines, 2)
	sets := store.sets
	assert.GreaterOrEqual(t, sets, 1)

	m.Dispatch(AddItem{Product: newTestProduct("c", 1)})
	detach()
	assert.Equal(t, sets, store.sets)
	lines, err = p.Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, lines, 2)
}

func TestPersister_AttachDoesNotBlockDispatch(t *testing.T) {
	store := newMockStore()
	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	store.onSet = func() {
		select {
		case entered <- struct{}{}:
		default:
		}
		<-release
	}

	m := NewMachine()
	p := NewPersister(store, nil)
	detach := p.Attach(m)

	m.Dispatch(AddItem{Product: newTestProduct("a", 10)})
	select {
	case <-entered:
	case <-time.After(time.Second):
		t.Fatal("write did not start")
	}

	// The first write is stuck in the store; these queue and coalesce.
	m.Dispatch(AddItem{Product: newTestProduct("b", 5)})
	m.Dispatch(AddItem{Product: newTestProduct("c", 1)})
	assert.Equal(t, 3, m.Snapshot().Len())

	close(release)
	detach()

	assert.Equal(t, 2, store.sets)
	lines, err := p.Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, lines, 3)
}

func TestPersister_DetachWithoutTransitions(t *testing.T) {
	store := newMockStore()
	detach := NewPersister(store, nil).Attach(NewMachine())
	detach()
	assert.Zero(t, store.sets)
}

func TestPersister_WriteFailureKeepsState(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	store := newMockStore()
	store.setErr = errors.New("disk full")

	m := NewMachine()
	detach := NewPersister(store, zap.New(core)).Attach(m)

	c := m.Dispatch(AddItem{Product: newTestProduct("a", 10)})
	detach()

	assert.Equal(t, 1, c.ItemCount())
	assert.Equal(t, 1, m.Snapshot().ItemCount())
	assert.Equal(t, 1, logs.FilterMessage("Failed to persist cart").Len())
}

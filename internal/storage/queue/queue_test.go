package queue

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prefstore/prefstore/internal/storage"
)

// ctrlProvider records the sequence of underlying calls and fails the
// test invariant if a call starts while a previous one is unresolved.
type ctrlProvider struct {
	mu       sync.Mutex
	inFlight bool
	overlap  bool
	sequence []string

	// When gate is non-nil every call blocks until it receives a token,
	// letting tests pile up queued operations deterministically.
	gate    chan struct{}
	started chan struct{}

	failSets int
	values   map[string]json.RawMessage
}

func newCtrlProvider() *ctrlProvider {
	return &ctrlProvider{values: make(map[string]json.RawMessage)}
}

func (p *ctrlProvider) Area(name storage.AreaName) (storage.Area, error) {
	if !name.Valid() {
		return nil, storage.ErrAreaUnknown
	}

	return &ctrlArea{provider: p}, nil
}

func (p *ctrlProvider) Close() error { return nil }

func (p *ctrlProvider) begin(label string) {
	p.mu.Lock()
	if p.inFlight {
		p.overlap = true
	}
	p.inFlight = true
	p.sequence = append(p.sequence, label)
	started := p.started
	gate := p.gate
	p.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}

	if gate != nil {
		<-gate
	}
}

func (p *ctrlProvider) end() {
	p.mu.Lock()
	p.inFlight = false
	p.mu.Unlock()
}

func (p *ctrlProvider) calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	return append([]string(nil), p.sequence...)
}

type ctrlArea struct {
	provider *ctrlProvider
}

func (a *ctrlArea) Get(_ context.Context, _ []string) (map[string]json.RawMessage, error) {
	a.provider.begin("get")
	defer a.provider.end()

	out := make(map[string]json.RawMessage)

	a.provider.mu.Lock()
	for k, v := range a.provider.values {
		out[k] = v
	}
	a.provider.mu.Unlock()

	return out, nil
}

func (a *ctrlArea) Set(_ context.Context, values map[string]json.RawMessage) error {
	var label string

	a.provider.mu.Lock()
	for k := range values {
		label = "set:" + k
		break
	}
	a.provider.mu.Unlock()

	a.provider.begin(label)
	defer a.provider.end()

	a.provider.mu.Lock()
	defer a.provider.mu.Unlock()

	if a.provider.failSets > 0 {
		a.provider.failSets--
		return storage.ErrQuotaExceeded
	}

	for k, v := range values {
		a.provider.values[k] = v
	}

	return nil
}

func (a *ctrlArea) Clear(_ context.Context) error {
	a.provider.begin("clear")
	defer a.provider.end()

	a.provider.mu.Lock()
	a.provider.values = make(map[string]json.RawMessage)
	a.provider.mu.Unlock()

	return nil
}

func (a *ctrlArea) BytesInUse(_ context.Context, _ []string) (int64, error) {
	a.provider.begin("getBytesInUse")
	defer a.provider.end()

	return 0, nil
}

func setOp(key string) Operation {
	return Operation{
		Type:   OpSet,
		Area:   storage.AreaLocal,
		Values: map[string]json.RawMessage{key: json.RawMessage(`1`)},
	}
}

func TestNoInterleaving(t *testing.T) {
	p := newCtrlProvider()
	q := New(p)
	defer q.Destroy()

	ctx := context.Background()

	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			_, err := q.Do(ctx, setOp("k"), PriorityNormal)
			assert.NoError(t, err)
		}()
	}

	wg.Wait()

	assert.False(t, p.overlap, "underlying store saw interleaved calls")
	assert.Len(t, p.calls(), 20)
}

func TestSubmissionOrder(t *testing.T) {
	p := newCtrlProvider()
	p.gate = make(chan struct{})
	p.started = make(chan struct{}, 1)

	q := New(p)
	defer q.Destroy()

	ctx := context.Background()
	var wg sync.WaitGroup

	submit := func(key string, priority Priority, queued int) {
		wg.Add(1)

		go func() {
			defer wg.Done()
			_, _ = q.Do(ctx, setOp(key), priority)
		}()

		waitForQueueLen(t, q, queued)
	}

	// Occupy the worker so subsequent submissions stay queued.
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = q.Do(ctx, setOp("first"), PriorityNormal)
	}()
	<-p.started

	submit("second", PriorityNormal, 1)
	submit("third", PriorityNormal, 2)

	// Release everything; the store must see the calls in submission
	// order regardless of which caller goroutine returns first.
	go func() {
		for i := 0; i < 3; i++ {
			p.gate <- struct{}{}

			if i < 2 {
				<-p.started
			}
		}
	}()

	wg.Wait()

	assert.Equal(t, []string{"set:first", "set:second", "set:third"}, p.calls())
}

func TestPriorityPreemption(t *testing.T) {
	p := newCtrlProvider()
	p.gate = make(chan struct{})
	p.started = make(chan struct{}, 1)

	q := New(p)
	defer q.Destroy()

	ctx := context.Background()
	var wg sync.WaitGroup

	submit := func(key string, priority Priority, queued int) {
		wg.Add(1)

		go func() {
			defer wg.Done()
			_, _ = q.Do(ctx, setOp(key), priority)
		}()

		waitForQueueLen(t, q, queued)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = q.Do(ctx, setOp("executing"), PriorityNormal)
	}()
	<-p.started

	submit("queued_a", PriorityNormal, 1)
	submit("queued_b", PriorityNormal, 2)
	submit("urgent", PriorityHigh, 3)

	go func() {
		for i := 0; i < 4; i++ {
			p.gate <- struct{}{}

			if i < 3 {
				<-p.started
			}
		}
	}()

	wg.Wait()

	// The elevated op overtakes queued ops but never the executing one.
	assert.Equal(t,
		[]string{"set:executing", "set:urgent", "set:queued_a", "set:queued_b"},
		p.calls())
}

func TestFailureDoesNotBlockDrain(t *testing.T) {
	p := newCtrlProvider()
	p.failSets = 1

	q := New(p)
	defer q.Destroy()

	ctx := context.Background()

	_, err := q.Do(ctx, setOp("doomed"), PriorityNormal)
	require.Error(t, err)
	require.ErrorIs(t, err, storage.ErrQuotaExceeded)
	assert.Contains(t, err.Error(), "quota-exceeded")

	// The next operation proceeds.
	_, err = q.Do(ctx, setOp("fine"), PriorityNormal)
	require.NoError(t, err)
}

func TestUnknownAreaClassification(t *testing.T) {
	p := newCtrlProvider()

	q := New(p)
	defer q.Destroy()

	_, err := q.Do(context.Background(), Operation{Type: OpGet, Area: "managed"}, PriorityNormal)
	require.ErrorIs(t, err, storage.ErrAreaUnknown)
	assert.Contains(t, err.Error(), "area-unknown")
}

func TestOperationKinds(t *testing.T) {
	p := newCtrlProvider()

	q := New(p)
	defer q.Destroy()

	ctx := context.Background()

	_, err := q.Do(ctx, setOp("k"), PriorityNormal)
	require.NoError(t, err)

	result, err := q.Do(ctx, Operation{Type: OpGet, Area: storage.AreaLocal}, PriorityNormal)
	require.NoError(t, err)
	assert.Len(t, result.Values, 1)

	_, err = q.Do(ctx, Operation{Type: OpGetBytesInUse, Area: storage.AreaLocal}, PriorityNormal)
	require.NoError(t, err)

	_, err = q.Do(ctx, Operation{Type: OpClear, Area: storage.AreaLocal}, PriorityNormal)
	require.NoError(t, err)

	_, err = q.Do(ctx, Operation{Type: "rename", Area: storage.AreaLocal}, PriorityNormal)
	require.ErrorIs(t, err, ErrUnknownOperation)

	assert.Equal(t, []string{"set:k", "get", "getBytesInUse", "clear"}, p.calls())
}

func TestMetrics(t *testing.T) {
	p := newCtrlProvider()
	p.failSets = 1

	q := New(p)
	defer q.Destroy()

	ctx := context.Background()

	_, _ = q.Do(ctx, setOp("a"), PriorityNormal)
	_, _ = q.Do(ctx, setOp("b"), PriorityNormal)
	_, _ = q.Do(ctx, Operation{Type: OpGet, Area: storage.AreaLocal}, PriorityNormal)

	m := q.Metrics()

	assert.Equal(t, uint64(2), m.ByType[OpSet])
	assert.Equal(t, uint64(1), m.ByType[OpGet])
	assert.Equal(t, uint64(2), m.ByOutcome["ok"])
	assert.Equal(t, uint64(1), m.ByOutcome[string(storage.ClassQuotaExceeded)])
}

func TestDestroy(t *testing.T) {
	p := newCtrlProvider()

	q := New(p)
	q.Destroy()

	_, err := q.Do(context.Background(), setOp("late"), PriorityNormal)
	require.ErrorIs(t, err, ErrQueueClosed)

	// Destroying twice is harmless.
	q.Destroy()
}

func waitForQueueLen(t *testing.T, q *Queue, n int) {
	t.Helper()

	deadline := time.Now().Add(time.Second)

	for q.Len() < n {
		if time.Now().After(deadline) {
			t.Fatalf("queue never reached length %d", n)
		}

		time.Sleep(time.Millisecond)
	}
}

// Guard against accidental interface drift.
var _ storage.Provider = (*ctrlProvider)(nil)

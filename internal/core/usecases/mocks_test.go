package usecases_test

import (
	"context"
	"sync"
	"time"

	"github.com/samirrijal/tripcore/internal/core/domain"
)

// --- Mock KVStore ---

type mockKV struct {
	mu     sync.Mutex
	data   map[string][]byte
	getErr error
	setErr error
	sets   int
}

func newMockKV() *mockKV { return &mockKV{data: map[string][]byte{}} }

func (m *mockKV) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	v, ok := m.data[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return v, nil
}

func (m *mockKV) Set(ctx context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sets++
	if m.setErr != nil {
		return m.setErr
	}
	m.data[key] = append([]byte(nil), value...)
	return nil
}

// --- Mock UsageAlerter ---

type mockAlerter struct {
	mu     sync.Mutex
	events []domain.UsageEvent
	err    error
}

func (m *mockAlerter) PublishUsageEvent(ctx context.Context, event domain.UsageEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return m.err
}

func (m *mockAlerter) ofType(t domain.UsageEventType) []domain.UsageEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.UsageEvent
	for _, e := range m.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// --- Mock UsageTracker ---

type mockTracker struct {
	mu    sync.Mutex
	calls map[string]int
}

func (m *mockTracker) TrackRequest(ctx context.Context, category string) domain.UsageSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.calls == nil {
		m.calls = map[string]int{}
	}
	m.calls[category]++
	return domain.UsageSnapshot{Count: m.calls[category]}
}

func (m *mockTracker) count(category string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[category]
}

// --- Fake clock ---

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// --- Mock MapsBackend ---

type mockMaps struct {
	mu           sync.Mutex
	credErr      error
	textSearchFn func(ctx context.Context, q domain.PlaceQuery) ([]domain.Place, error)
	photoFn      func(ctx context.Context, q domain.PhotoQuery) (domain.PlacePhoto, error)
	geocodeFn    func(ctx context.Context, q domain.GeocodeQuery) (*domain.GeocodeResult, error)
	calls        int
}

func (m *mockMaps) CheckCredentials() error { return m.credErr }

func (m *mockMaps) inc() {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
}

func (m *mockMaps) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *mockMaps) TextSearch(ctx context.Context, q domain.PlaceQuery) ([]domain.Place, error) {
	m.inc()
	if m.textSearchFn != nil {
		return m.textSearchFn(ctx, q)
	}
	return nil, nil
}

func (m *mockMaps) ResolvePhoto(ctx context.Context, q domain.PhotoQuery) (domain.PlacePhoto, error) {
	m.inc()
	if m.photoFn != nil {
		return m.photoFn(ctx, q)
	}
	return domain.PlacePhoto{}, nil
}

func (m *mockMaps) Geocode(ctx context.Context, q domain.GeocodeQuery) (*domain.GeocodeResult, error) {
	m.inc()
	if m.geocodeFn != nil {
		return m.geocodeFn(ctx, q)
	}
	return nil, nil
}

// --- Mock EventsBackend ---

type mockEvents struct {
	credErr  error
	searchFn func(ctx context.Context, q domain.EventQuery) ([]domain.Event, error)
	calls    int
}

func (m *mockEvents) CheckCredentials() error { return m.credErr }

func (m *mockEvents) SearchEvents(ctx context.Context, q domain.EventQuery) ([]domain.Event, error) {
	m.calls++
	if m.searchFn != nil {
		return m.searchFn(ctx, q)
	}
	return nil, nil
}

// --- Blocking UsageAlerter ---

// blockingAlerter parks every publish until its context ends.
type blockingAlerter struct {
	entered chan struct{}
	once    sync.Once
}

func newBlockingAlerter() *blockingAlerter {
	return &blockingAlerter{entered: make(chan struct{})}
}

func (b *blockingAlerter) PublishUsageEvent(ctx context.Context, event domain.UsageEvent) error {
	b.once.Do(func() { close(b.entered) })
	<-ctx.Done()
	return ctx.Err()
}

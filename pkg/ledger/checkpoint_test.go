package ledger_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matbakh-app/matbakh-visibility-boost-sub012/pkg/contracts"
	"github.com/matbakh-app/matbakh-visibility-boost-sub012/pkg/ledger"
)

type countingStore struct {
	mu       sync.Mutex
	saves    int
	fail     bool
	last     ledger.Snapshot
	versions []uint64
	gate     chan struct{}
}

func (s *countingStore) Load(context.Context, string) (*ledger.Snapshot, error) { return nil, nil }

func (s *countingStore) Save(_ context.Context, snap ledger.Snapshot) error {
	if s.gate != nil {
		<-s.gate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("store down")
	}
	s.saves++
	s.last = snap
	s.versions = append(s.versions, snap.Version)
	return nil
}

func (s *countingStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

func TestCheckpointer_FlushSkipsUnchanged(t *testing.T) {
	l := newLedger(t, 100, 80, 40)
	store := &countingStore{}
	cp := ledger.NewCheckpointer(l, store, "main", time.Hour)
	ctx := context.Background()

	require.NoError(t, cp.Flush(ctx))
	require.NoError(t, cp.Flush(ctx))
	assert.Equal(t, 1, store.count())

	l.Reserve(path(contracts.RouteDirect, contracts.PriorityHigh), 3)
	require.NoError(t, cp.Flush(ctx))
	assert.Equal(t, 2, store.count())
	assert.Equal(t, contracts.Cents(3), store.last.Combined)
}

func TestCheckpointer_FailureRetriesNextFlush(t *testing.T) {
	l := newLedger(t, 100, 80, 40)
	store := &countingStore{fail: true}
	cp := ledger.NewCheckpointer(l, store, "main", time.Hour)

	assert.Error(t, cp.Flush(context.Background()))
	store.mu.Lock()
	store.fail = false
	store.mu.Unlock()
	assert.NoError(t, cp.Flush(context.Background()))
	assert.Equal(t, 1, store.count())
}

func TestCheckpointer_RunFlushesOnCancel(t *testing.T) {
	l := newLedger(t, 100, 80, 40)
	store := &countingStore{}
	cp := ledger.NewCheckpointer(l, store, "main", time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		cp.Run(ctx)
		close(done)
	}()

	l.Reserve(path(contracts.RouteIntegration, contracts.PriorityLow), 9)
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("checkpointer did not stop")
	}
	assert.Equal(t, 1, store.count())
	assert.Equal(t, contracts.Cents(9), store.last.Combined)
}

func TestCheckpointer_OverlappingFlushesNeverGoBackwards(t *testing.T) {
	l := newLedger(t, 100000, 90000, 80000)
	gate := make(chan struct{})
	store := &countingStore{gate: gate}
	cp := ledger.NewCheckpointer(l, store, "main", time.Hour)
	p := path(contracts.RouteIntegration, contracts.PriorityMedium)
	ctx := context.Background()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		assert.NoError(t, cp.Flush(ctx))
	}()
	time.Sleep(20 * time.Millisecond)
	l.Reserve(p, 3)
	wg.Add(1)
	go func() {
		defer wg.Done()
		assert.NoError(t, cp.Flush(ctx))
	}()
	time.Sleep(20 * time.Millisecond)
	close(gate)
	wg.Wait()

	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			l.Reserve(p, 1)
		}()
		go func() {
			defer wg.Done()
			assert.NoError(t, cp.Flush(ctx))
		}()
	}
	wg.Wait()
	require.NoError(t, cp.Flush(ctx))

	store.mu.Lock()
	defer store.mu.Unlock()
	for i := 1; i < len(store.versions); i++ {
		assert.Greater(t, store.versions[i], store.versions[i-1], "save %d", i)
	}
	assert.Equal(t, l.Snapshot("main").Version, store.last.Version)
	assert.Equal(t, contracts.Cents(23), store.last.Combined)
}

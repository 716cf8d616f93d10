package audit_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matbakh-app/matbakh-visibility-boost-sub012/pkg/audit"
	"github.com/matbakh-app/matbakh-visibility-boost-sub012/pkg/contracts"
)

func sampleEvent(cid string) audit.Event {
	req := contracts.OperationRequest{
		OperationType: contracts.OpEmergency,
		Priority:      contracts.PriorityCritical,
		CorrelationID: cid,
	}
	e := audit.NewEvent(req, time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC))
	e.Outcome = audit.OutcomeAllowed
	e.Path = &contracts.RoutingPath{RouteType: contracts.RouteDirect, Provider: contracts.ProviderBedrock, OperationType: contracts.OpEmergency, Priority: contracts.PriorityCritical}
	e.Cost = &audit.CostInfo{Cost: 5, Combined: 5, Direct: 5}
	return e
}

func TestWriterSink_PrefixAndChain(t *testing.T) {
	var buf bytes.Buffer
	sink := audit.NewWriterSink(&buf)
	ctx := context.Background()

	require.NoError(t, sink.LogEvent(ctx, sampleEvent("a")))
	require.NoError(t, sink.LogEvent(ctx, sampleEvent("b")))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	for _, l := range lines {
		assert.True(t, strings.HasPrefix(l, "AUDIT: "))
	}

	var first, second audit.Event
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(lines[0], "AUDIT: ")), &first))
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(lines[1], "AUDIT: ")), &second))
	assert.Equal(t, "genesis", first.PreviousHash)
	assert.Equal(t, first.Hash, second.PreviousHash)
	assert.Equal(t, second.Hash, sink.Head())

	n, err := audit.VerifyChain(strings.NewReader(buf.String()))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestVerifyChain_DetectsTampering(t *testing.T) {
	var buf bytes.Buffer
	sink := audit.NewWriterSink(&buf)
	for _, cid := range []string{"a", "b", "c"} {
		require.NoError(t, sink.LogEvent(context.Background(), sampleEvent(cid)))
	}

	tampered := strings.Replace(buf.String(), `"correlation_id":"b"`, `"correlation_id":"x"`, 1)
	n, err := audit.VerifyChain(strings.NewReader(tampered))
	assert.ErrorIs(t, err, audit.ErrChainBroken)
	assert.Equal(t, 1, n)
}

func TestOpenFileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	sink, err := audit.OpenFileSink(path)
	require.NoError(t, err)
	require.NoError(t, sink.LogEvent(context.Background(), sampleEvent("f")))
	require.NoError(t, sink.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	n, err := audit.VerifyChain(f)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestOpenFileSink_ContinuesExistingChain(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	for i, cid := range []string{"run-1", "run-2"} {
		sink, err := audit.OpenFileSink(path)
		require.NoError(t, err, "run %d", i)
		require.NoError(t, sink.LogEvent(context.Background(), sampleEvent(cid)))
		require.NoError(t, sink.Close())
	}

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	n, err := audit.VerifyChain(f)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestOpenFileSink_RefusesBrokenChain(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	require.NoError(t, os.WriteFile(path, []byte("AUDIT: {\"previous_hash\":\"forged\"}\n"), 0o600))

	_, err := audit.OpenFileSink(path)
	assert.ErrorIs(t, err, audit.ErrChainBroken)
}

type blockingSink struct {
	release chan struct{}
	mem     *audit.MemorySink
}

func (b *blockingSink) LogEvent(ctx context.Context, e audit.Event) error {
	<-b.release
	return b.mem.LogEvent(ctx, e)
}

func TestAsyncSink_NeverBlocks(t *testing.T) {
	inner := &blockingSink{release: make(chan struct{}), mem: audit.NewMemorySink()}
	sink := audit.NewAsyncSink(inner, 2)

	start := time.Now()
	var dropped int
	for i := 0; i < 10; i++ {
		if errors.Is(sink.LogEvent(context.Background(), sampleEvent("x")), audit.ErrQueueFull) {
			dropped++
		}
	}
	assert.Less(t, time.Since(start), time.Second)
	assert.GreaterOrEqual(t, dropped, 7)
	assert.Equal(t, uint64(dropped), sink.Dropped())

	close(inner.release)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, sink.Close(ctx))
	assert.Equal(t, 10-dropped, inner.mem.Len())
}

func TestAsyncSink_CountsInnerFailures(t *testing.T) {
	sink := audit.NewAsyncSink(audit.SinkFunc(func(context.Context, audit.Event) error {
		return errors.New("disk full")
	}), 4)
	require.NoError(t, sink.LogEvent(context.Background(), sampleEvent("x")))
	require.NoError(t, sink.Close(context.Background()))
	assert.Equal(t, uint64(1), sink.Failed())
}

func TestAsyncSink_LogAfterCloseIsDropped(t *testing.T) {
	mem := audit.NewMemorySink()
	sink := audit.NewAsyncSink(mem, 4)
	require.NoError(t, sink.LogEvent(context.Background(), sampleEvent("before")))
	require.NoError(t, sink.Close(context.Background()))

	assert.NotPanics(t, func() {
		err := sink.LogEvent(context.Background(), sampleEvent("after"))
		assert.ErrorIs(t, err, audit.ErrSinkClosed)
	})
	assert.Equal(t, uint64(1), sink.Dropped())
	assert.Equal(t, 1, mem.Len())
	require.NoError(t, sink.Close(context.Background()), "second close is harmless")
}

func TestAsyncSink_CloseRacesWithWriters(t *testing.T) {
	sink := audit.NewAsyncSink(audit.NewMemorySink(), 8)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = sink.LogEvent(context.Background(), sampleEvent("w"))
			}
		}()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, sink.Close(ctx))
	wg.Wait()
}

func TestMultiSink(t *testing.T) {
	a, b := audit.NewMemorySink(), audit.NewMemorySink()
	failing := audit.SinkFunc(func(context.Context, audit.Event) error { return errors.New("nope") })
	ms := audit.MultiSink{a, failing, b}

	err := ms.LogEvent(context.Background(), sampleEvent("m"))
	assert.Error(t, err)
	assert.Equal(t, 1, a.Len())
	assert.Equal(t, 1, b.Len())
}

func TestMemorySink_Concurrent(t *testing.T) {
	m := audit.NewMemorySink()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = m.LogEvent(context.Background(), sampleEvent("c"))
		}()
	}
	wg.Wait()
	assert.Len(t, m.Events(), 50)
}

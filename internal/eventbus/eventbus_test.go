package eventbus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestMemoryBusFilter(t *testing.T) {
	bus := NewMemoryBus(16)
	defer bus.Close()

	var mu sync.Mutex
	var got []string
	_, err := bus.Subscribe(context.Background(), Filter{Types: []string{TypeNodeAdded}}, func(ctx context.Context, ev *Envelope) {
		var ne NodeEvent
		assert.NoError(t, ev.Decode(&ne))
		mu.Lock()
		got = append(got, ev.EventType)
		mu.Unlock()
	})
	require.NoError(t, err)

	for _, typ := range []string{TypeNodeAdded, TypePeerJoined, TypeNodeAdded} {
		ev, err := NewEnvelope("test", typ, PriorityNormal, NodeEvent{X: 1, Material: 3})
		require.NoError(t, err)
		require.NoError(t, bus.Publish(context.Background(), ev))
	}

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2
	}, time.Second, 5*time.Millisecond)

	st := bus.Metrics()
	assert.Equal(t, uint64(3), st.Published)
	assert.Zero(t, st.Dropped)
}

func TestMemoryBusDropsLowPriorityWhenFull(t *testing.T) {
	bus := NewMemoryBus(1)
	mb := bus.(*memoryBus)

	// Рассылка стоит, пока список подписчиков заблокирован
	mb.mu.Lock()
	for i := 0; i < 20; i++ {
		ev, err := NewEnvelope("test", TypeBlockEmerged, PriorityLow, BlockEvent{Generated: true})
		require.NoError(t, err)
		require.NoError(t, bus.Publish(context.Background(), ev))
	}
	mb.mu.Unlock()

	st := bus.Metrics()
	assert.GreaterOrEqual(t, st.Dropped, uint64(18))
	assert.Equal(t, uint64(20), st.Published+st.Dropped)

	require.NoError(t, bus.Close())
	ev, _ := NewEnvelope("test", TypePeerLeft, PriorityHigh, PeerEvent{PeerID: 2})
	assert.ErrorIs(t, bus.Publish(context.Background(), ev), ErrClosed)
}

func TestMultiBusAndExporter(t *testing.T) {
	primary := NewMemoryBus(8)
	sink := NewMemoryBus(8)
	bus := NewMultiBus(primary, sink)

	ev, err := NewEnvelope("test", TypePeerJoined, PriorityNormal, PeerEvent{PeerID: 2, Name: "a"})
	require.NoError(t, err)
	require.NoError(t, bus.Publish(context.Background(), ev))
	assert.Equal(t, uint64(1), sink.Metrics().Published)

	reg := prometheus.NewRegistry()
	me := NewMetricsExporter(bus, reg)
	me.Start()
	me.Stop()
	assert.Equal(t, float64(1), testutil.ToFloat64(me.published))

	require.NoError(t, bus.Close())
}

func TestSubject(t *testing.T) {
	assert.Equal(t, "events.peer.joined", Subject(TypePeerJoined))
}

package feed

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/internal/model"
	"main/internal/obs"
)

func testConfig() Config {
	return Config{
		Endpoint:     "sim://test",
		TickInterval: 5 * time.Millisecond,
		Seed:         42,
		Generator: GeneratorConfig{
			BasePrices: map[string]float64{"ES": 4485.25, "NQ": 15847.50},
		},
	}
}

func waitForQuote(t *testing.T, f *Feed, symbol string) model.Quote {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if q, ok := f.Latest(symbol); ok {
			return q
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("no quote for %s before deadline", symbol)
	return model.Quote{}
}

func TestConnectPublishesQuotes(t *testing.T) {
	f := New(testConfig())
	require.NoError(t, f.Connect([]string{"ES", "NQ"}))
	defer f.Disconnect()

	require.True(t, f.IsConnected())

	q := waitForQuote(t, f, "ES")
	assert.Equal(t, "ES", q.Symbol)
	assert.Greater(t, q.Price, 0.0)
	assert.Less(t, q.Bid, q.Ask)
	assert.GreaterOrEqual(t, q.Volume, int64(100))
	assert.LessOrEqual(t, q.Volume, int64(1000))

	waitForQuote(t, f, "NQ")
	assert.Len(t, f.All(), 2)
}

func TestConnectTwice(t *testing.T) {
	f := New(testConfig())
	require.NoError(t, f.Connect([]string{"ES"}))
	defer f.Disconnect()

	assert.ErrorIs(t, f.Connect([]string{"ES"}), ErrAlreadyConnected)
}

func TestConnectSkipsUnknownSymbols(t *testing.T) {
	f := New(testConfig())
	require.NoError(t, f.Connect([]string{"ES", "BTC"}))
	defer f.Disconnect()

	waitForQuote(t, f, "ES")
	_, ok := f.Latest("BTC")
	assert.False(t, ok, "symbol without base price should never publish")
}

func TestDisconnectStopsLoop(t *testing.T) {
	f := New(testConfig())
	require.NoError(t, f.Connect([]string{"ES"}))
	waitForQuote(t, f, "ES")

	f.Disconnect()
	require.False(t, f.IsConnected())

	// the last quote survives disconnect, but no new ones arrive
	q1, ok := f.Latest("ES")
	require.True(t, ok)
	time.Sleep(20 * time.Millisecond)
	q2, _ := f.Latest("ES")
	assert.Equal(t, q1.Timestamp, q2.Timestamp)

	// idempotent
	f.Disconnect()
}

func TestObserverReceivesQuotes(t *testing.T) {
	f := New(testConfig())
	var count atomic.Int64
	f.Subscribe(func(q model.Quote) {
		if q.Symbol == "ES" {
			count.Add(1)
		}
	})

	require.NoError(t, f.Connect([]string{"ES"}))
	defer f.Disconnect()

	deadline := time.Now().Add(2 * time.Second)
	for count.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	assert.GreaterOrEqual(t, count.Load(), int64(3))
}

func TestPublishCountsFeedTicks(t *testing.T) {
	metrics := obs.NewMetrics()
	cfg := testConfig()
	cfg.Metrics = metrics
	f := New(cfg)

	require.NoError(t, f.Connect([]string{"ES"}))
	defer f.Disconnect()

	waitForQuote(t, f, "ES")
	assert.Greater(t, metrics.Snapshot().FeedTicks, uint64(0))
}

// A panicking observer must not kill the feed loop or starve the
// observers registered after it.
func TestObserverPanicDoesNotKillLoop(t *testing.T) {
	f := New(testConfig())
	f.Subscribe(func(model.Quote) { panic("bad observer") })
	var count atomic.Int64
	f.Subscribe(func(model.Quote) { count.Add(1) })

	require.NoError(t, f.Connect([]string{"ES"}))
	defer f.Disconnect()

	deadline := time.Now().Add(2 * time.Second)
	for count.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	assert.GreaterOrEqual(t, count.Load(), int64(2))
	assert.True(t, f.IsConnected())
}

// Package feed owns the canonical symbol -> latest quote mapping.
//
// A single background goroutine evolves prices on a fixed cadence and is
// the only writer of the quote map; readers take snapshot copies under a
// shared lock. Observers run synchronously after each publish and must
// never be able to kill the loop.
package feed

import (
	"math/rand"
	"sync"
	"time"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"main/internal/model"
	"main/internal/obs"
)

var ErrAlreadyConnected = errors.New("feed already connected")

// Observer receives every published quote. Called synchronously on the
// feed goroutine; keep it fast.
type Observer func(model.Quote)

// Config controls the feed loop.
type Config struct {
	Endpoint     string
	TickInterval time.Duration
	Generator    GeneratorConfig
	// Seed seeds the price generator. Zero means seed from the clock.
	Seed int64
	// Metrics counts published quotes. Optional.
	Metrics *obs.Metrics
}

func (c Config) withDefaults() Config {
	if c.TickInterval <= 0 {
		c.TickInterval = 100 * time.Millisecond
	}
	if c.Seed == 0 {
		c.Seed = time.Now().UTC().UnixNano()
	}
	return c
}

// Feed simulates a live market data connection.
type Feed struct {
	cfg Config

	mu        sync.RWMutex
	quotes    map[string]model.Quote
	observers []Observer
	connected bool

	stop chan struct{}
	done chan struct{}
}

// New creates a disconnected feed.
func New(cfg Config) *Feed {
	return &Feed{
		cfg:    cfg.withDefaults(),
		quotes: make(map[string]model.Quote),
	}
}

// Connect starts the background update loop for the given symbols.
// Symbols without a configured base price are silently skipped, matching
// an upstream feed that does not carry them.
func (f *Feed) Connect(symbols []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connected {
		return ErrAlreadyConnected
	}

	gen := NewGenerator(f.cfg.Generator, rand.New(rand.NewSource(f.cfg.Seed)))
	tracked := make([]string, 0, len(symbols))
	for _, symbol := range symbols {
		if _, ok := f.cfg.Generator.BasePrices[symbol]; ok {
			tracked = append(tracked, symbol)
		}
	}

	f.connected = true
	f.stop = make(chan struct{})
	f.done = make(chan struct{})
	go f.run(gen, tracked)

	logs.Infof("connected to data feed: %s, symbols: %d", f.cfg.Endpoint, len(tracked))
	return nil
}

// IsConnected reports whether the update loop is running.
func (f *Feed) IsConnected() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.connected
}

// Subscribe registers an observer for every published quote.
func (f *Feed) Subscribe(fn Observer) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.observers = append(f.observers, fn)
}

// Latest returns the most recent quote for symbol.
func (f *Feed) Latest(symbol string) (model.Quote, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	q, ok := f.quotes[symbol]
	return q, ok
}

// All returns a snapshot copy of every tracked quote.
func (f *Feed) All() map[string]model.Quote {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make(map[string]model.Quote, len(f.quotes))
	for symbol, q := range f.quotes {
		out[symbol] = q
	}
	return out
}

// Disconnect stops the update loop and waits for it to exit. The loop
// observes the stop signal within one tick interval. Safe to call on a
// feed that never connected.
func (f *Feed) Disconnect() {
	f.mu.Lock()
	if !f.connected {
		f.mu.Unlock()
		return
	}
	f.connected = false
	close(f.stop)
	done := f.done
	f.mu.Unlock()

	<-done
	logs.Info("disconnected from data feed")
}

func (f *Feed) run(gen *Generator, symbols []string) {
	defer close(f.done)
	ticker := time.NewTicker(f.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-f.stop:
			return
		case now := <-ticker.C:
			for _, symbol := range symbols {
				quote, ok := gen.Next(symbol, now)
				if !ok {
					continue
				}
				f.publish(quote)
			}
		}
	}
}

func (f *Feed) publish(quote model.Quote) {
	f.mu.Lock()
	f.quotes[quote.Symbol] = quote
	observers := f.observers
	f.mu.Unlock()

	f.cfg.Metrics.IncFeedTick()
	for _, fn := range observers {
		f.notify(fn, quote)
	}
}

// notify shields the feed loop from observer panics.
func (f *Feed) notify(fn Observer, quote model.Quote) {
	defer func() {
		if r := recover(); r != nil {
			logs.Errorf("feed observer panic: %v", r)
		}
	}()
	fn(quote)
}

package feed

import (
	"math"
	"math/rand"
	"time"

	"main/internal/model"
)

// GeneratorConfig controls the synthetic price path.
type GeneratorConfig struct {
	// BasePrices seeds the starting price per symbol. Symbols without
	// an entry are skipped by Next.
	BasePrices map[string]float64
	// TrendPeriod is the wall-clock length of one full trend cycle.
	TrendPeriod time.Duration
	// TrendAmplitude bounds the periodic drift per tick.
	TrendAmplitude float64
	// NoiseStdDev is the standard deviation of the zero-mean noise term.
	NoiseStdDev float64
	// SpreadRatio is the full bid/ask spread relative to price.
	SpreadRatio float64
}

func (c GeneratorConfig) withDefaults() GeneratorConfig {
	if c.TrendPeriod <= 0 {
		c.TrendPeriod = time.Hour
	}
	if c.TrendAmplitude == 0 {
		c.TrendAmplitude = 0.001
	}
	if c.NoiseStdDev == 0 {
		c.NoiseStdDev = 0.0005
	}
	if c.SpreadRatio == 0 {
		c.SpreadRatio = 0.0001
	}
	return c
}

// Generator produces synthetic quotes, one symbol at a time.
// The price path is base * (1 + trend + noise) where trend is a bounded
// sine of wall-clock time and noise is seeded gaussian randomness.
// Not safe for concurrent use; the feed loop is its single owner.
type Generator struct {
	cfg    GeneratorConfig
	rng    *rand.Rand
	prices map[string]float64
}

// NewGenerator creates a generator with an injected random source so
// runs are reproducible under a fixed seed.
func NewGenerator(cfg GeneratorConfig, rng *rand.Rand) *Generator {
	cfg = cfg.withDefaults()
	prices := make(map[string]float64, len(cfg.BasePrices))
	for symbol, price := range cfg.BasePrices {
		prices[symbol] = price
	}
	return &Generator{cfg: cfg, rng: rng, prices: prices}
}

// Next evolves the price for symbol and returns the resulting quote.
// Symbols without a seeded base price return ok=false.
func (g *Generator) Next(symbol string, now time.Time) (model.Quote, bool) {
	prev, ok := g.prices[symbol]
	if !ok {
		return model.Quote{}, false
	}

	period := g.cfg.TrendPeriod.Seconds()
	elapsed := math.Mod(float64(now.UnixNano())/float64(time.Second), period)
	trend := math.Sin(elapsed/period*2*math.Pi) * g.cfg.TrendAmplitude
	noise := g.rng.NormFloat64() * g.cfg.NoiseStdDev

	price := prev * (1 + trend + noise)
	g.prices[symbol] = price

	spread := price * g.cfg.SpreadRatio
	return model.Quote{
		Symbol:        symbol,
		Price:         round2(price),
		Bid:           round2(price - spread/2),
		Ask:           round2(price + spread/2),
		Volume:        int64(g.rng.Intn(901) + 100),
		Timestamp:     now,
		Change:        round2(price - prev),
		ChangePercent: round4((price - prev) / prev * 100),
	}, true
}

// Symbols returns the symbols the generator can produce, in no
// particular order.
func (g *Generator) Symbols() []string {
	out := make([]string, 0, len(g.prices))
	for symbol := range g.prices {
		out = append(out, symbol)
	}
	return out
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}

package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"strings"
	"time"

	"main/internal/config"
	"main/internal/feed"
)

// Standalone exerciser for the quote generator: emits one JSON quote
// per line so price paths can be eyeballed or piped into jq.
func main() {
	configPath := flag.String("config", "", "Path to JSON config")
	symbolList := flag.String("symbols", "ES,NQ", "Comma-separated symbols")
	ticks := flag.Int("ticks", 10, "Number of ticks per symbol")
	interval := flag.Duration("interval", 0, "Delay between ticks (0=as fast as possible)")
	seed := flag.Int64("seed", 1, "Generator seed")
	flag.Parse()

	if *ticks <= 0 {
		log.Fatalf("ticks must be > 0")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	symbols := strings.Split(*symbolList, ",")
	for i := range symbols {
		symbols[i] = strings.TrimSpace(symbols[i])
	}

	gen := feed.NewGenerator(
		feed.GeneratorConfig{BasePrices: cfg.BasePrices},
		rand.New(rand.NewSource(*seed)),
	)

	enc := json.NewEncoder(os.Stdout)
	now := time.Now()
	for i := 0; i < *ticks; i++ {
		for _, symbol := range symbols {
			quote, ok := gen.Next(symbol, now)
			if !ok {
				fmt.Fprintf(os.Stderr, "no base price for %s, skipped\n", symbol)
				continue
			}
			if err := enc.Encode(quote); err != nil {
				log.Fatalf("encode quote: %v", err)
			}
		}
		if *interval > 0 {
			time.Sleep(*interval)
			now = time.Now()
		} else {
			now = now.Add(cfg.TickInterval)
		}
	}
}

package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"time"

	pyroscope "github.com/grafana/pyroscope-go"
	"github.com/shopspring/decimal"
	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"

	"main/internal/audit"
	"main/internal/book"
	"main/internal/config"
	"main/internal/emergency"
	"main/internal/engine"
	"main/internal/feed"
	"main/internal/model"
	"main/internal/obs"
	"main/internal/portfolio"
	"main/internal/procctl"
	"main/internal/risk"
)

func main() {
	configPath := flag.String("config", "", "Path to JSON config")
	session := flag.String("session", "console", "Session ref written to audit entries")
	seed := flag.Int64("seed", 0, "Feed generator seed (0=clock)")
	duration := flag.Duration("duration", 0, "Session length (0=run until signal)")
	demoInterval := flag.Duration("demo-interval", 2*time.Second, "Delay between demo orders (0=disable demo flow)")
	summaryInterval := flag.Duration("summary-interval", 10*time.Second, "Delay between portfolio summaries")
	copyScaling := flag.Float64("copy-scaling", 0, "Enable copy trading with this scaling factor (0=disabled)")
	auditDSN := flag.String("audit-pg", "", "Postgres DSN for the database audit sink (optional)")
	pyroscopeAddr := flag.String("pyroscope", "", "Pyroscope server address (optional)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	if *pyroscopeAddr != "" {
		profiler, err := pyroscope.Start(pyroscope.Config{
			ApplicationName: "trading/core",
			ServerAddress:   *pyroscopeAddr,
			Tags:            map[string]string{"session": *session},
			ProfileTypes: []pyroscope.ProfileType{
				pyroscope.ProfileCPU,
				pyroscope.ProfileAllocObjects,
				pyroscope.ProfileInuseSpace,
			},
		})
		if err != nil {
			log.Fatalf("pyroscope start failed: %v", err)
		}
		defer func() { _ = profiler.Stop() }()
	}

	auditWriter, err := audit.NewWriter(audit.WriterConfig{Dir: cfg.AuditDir})
	if err != nil {
		log.Fatalf("audit writer init failed: %v", err)
	}
	if err := auditWriter.Start(); err != nil {
		log.Fatalf("audit writer start failed: %v", err)
	}
	defer func() {
		if err := auditWriter.Close(); err != nil {
			logs.Errorf("audit writer close: %v", err)
		}
	}()

	sinks := []audit.Sink{auditWriter}
	if *auditDSN != "" {
		pgSink, err := audit.NewPostgresSink(audit.PostgresConfig{DSN: *auditDSN})
		if err != nil {
			log.Fatalf("postgres audit sink init failed: %v", err)
		}
		defer func() { _ = pgSink.Close() }()
		sinks = append(sinks, pgSink)
	}

	metrics := obs.NewMetrics()
	marketFeed := feed.New(feed.Config{
		Endpoint:     cfg.DataFeedURL,
		TickInterval: cfg.TickInterval,
		Seed:         *seed,
		Generator:    feed.GeneratorConfig{BasePrices: cfg.BasePrices},
		Metrics:      metrics,
	})
	if err := marketFeed.Connect(cfg.AllowedSymbols); err != nil {
		log.Fatalf("feed connect failed: %v", err)
	}
	defer marketFeed.Disconnect()

	manager := portfolio.NewManager()
	masterID, err := manager.AddAccount(portfolio.Type50KCombine, decimal.NewFromInt(50_000), "master")
	if err != nil {
		log.Fatalf("master account init failed: %v", err)
	}
	master, _ := manager.Account(masterID)

	positions := book.New()
	trader := engine.New(engine.Config{
		Quotes: marketFeed,
		Book:   positions,
		Limits: risk.Limits{
			AllowedSymbols:         cfg.AllowedSymbols,
			MaxPositionSize:        cfg.MaxPositionSize,
			MaxConcurrentPositions: cfg.MaxConcurrentPositions,
		},
		Ledger:  master,
		Metrics: metrics,
	})

	if *copyScaling > 0 {
		for i := 0; i < 2; i++ {
			if _, err := manager.AddAccount(portfolio.Type150KCombine, decimal.NewFromInt(150_000), ""); err != nil {
				log.Fatalf("slave account init failed: %v", err)
			}
		}
		if err := manager.EnableCopyTrading(masterID, *copyScaling); err != nil {
			log.Fatalf("copy trading init failed: %v", err)
		}
	}
	trader.SetFillObserver(func(rec model.ExecutionRecord) {
		if _, err := manager.ReplicateFill(rec); err != nil && !errors.Is(err, portfolio.ErrCopyDisabled) {
			logs.Warnf("fill replication: %v", err)
		}
	})
	trader.SetCloseObserver(func(positionID string, realized float64) {
		manager.ReplicateClose(positionID, realized)
	})

	controls := emergency.New(emergency.Config{
		Engine:          trader,
		Book:            positions,
		Ledger:          master,
		Sinks:           sinks,
		ReportDir:       cfg.ReportDir,
		ProcStop:        procctl.NewKiller(cfg.StopProcesses),
		ProcStopTimeout: cfg.ProcStopTimeout,
		Session:         *session,
		Health: func() map[string]bool {
			return map[string]bool{
				"market_feed":  marketFeed.IsConnected(),
				"audit_writer": auditWriter.Err() == nil,
			}
		},
		Metrics: metrics,
		Cleared: func(positionID string, realized float64) {
			manager.ReplicateClose(positionID, realized)
		},
	})
	controls.Arm()

	logs.Infof("trading core up, session=%s symbols=%d", *session, len(cfg.AllowedSymbols))
	run(cfg, trader, controls, *duration, *demoInterval, *summaryInterval, *seed)

	summary := trader.PortfolioSummary()
	snap := metrics.Snapshot()
	logs.Infof("session done: positions=%d realized=%.2f submitted=%d filled=%d",
		summary.TotalPositions, summary.RealizedPnL, snap.OrdersSubmitted, snap.OrdersFilled)
}

// run drives the demo order flow until the duration elapses or a
// shutdown signal arrives, then flattens the book through the kill
// switch so the session always ends flat.
func run(cfg config.Config, trader *engine.Engine, controls *emergency.Controls,
	duration, demoInterval, summaryInterval time.Duration, seed int64,
) {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	var demo <-chan time.Time
	if demoInterval > 0 {
		ticker := time.NewTicker(demoInterval)
		defer ticker.Stop()
		demo = ticker.C
	}
	summaries := time.NewTicker(summaryInterval)
	defer summaries.Stop()

	var deadline <-chan time.Time
	if duration > 0 {
		timer := time.NewTimer(duration)
		defer timer.Stop()
		deadline = timer.C
	}

	for {
		select {
		case <-sys.Shutdown():
			logs.Warnf("shutdown signal received")
			shutdown(controls)
			return
		case <-deadline:
			logs.Infof("session duration elapsed")
			shutdown(controls)
			return
		case <-demo:
			submitDemoOrder(cfg, trader, rng)
		case <-summaries.C:
			printSummary(trader)
		}
	}
}

func shutdown(controls *emergency.Controls) {
	if err := controls.ExecuteKillSwitch(); err != nil {
		logs.Errorf("kill switch: %v", err)
	}
}

func submitDemoOrder(cfg config.Config, trader *engine.Engine, rng *rand.Rand) {
	symbol := cfg.AllowedSymbols[rng.Intn(len(cfg.AllowedSymbols))]
	side := model.SideBuy
	if rng.Intn(2) == 1 {
		side = model.SideSell
	}

	order, err := trader.SubmitOrder(engine.OrderRequest{
		Symbol:   symbol,
		Side:     side,
		Quantity: float64(rng.Intn(3) + 1),
		Type:     model.OrderTypeMarket,
		AgentID:  "demo_flow",
	})
	if err != nil {
		logs.Warnf("demo order %s %s: %v", symbol, side, err)
		return
	}
	logs.Infof("demo order filled: %s %s %v @ %v", order.Symbol, order.Side, order.Quantity, order.FilledPrice)
}

func printSummary(trader *engine.Engine) {
	s := trader.PortfolioSummary()
	fmt.Printf("positions=%d value=%.2f unrealized=%.2f realized=%.2f locked=%v\n",
		s.TotalPositions, s.TotalValue, s.UnrealizedPnL, s.RealizedPnL, s.TradingLocked)
}

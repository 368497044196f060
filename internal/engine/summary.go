package engine

import (
	"time"

	"main/internal/model"
)

const recentExecutionWindow = 10

// PortfolioSummary is a read-only aggregate of the engine state.
type PortfolioSummary struct {
	TotalPositions   int                     `json:"total_positions"`
	TotalValue       float64                 `json:"total_value"`
	UnrealizedPnL    float64                 `json:"unrealized_pnl"`
	RealizedPnL      float64                 `json:"realized_pnl"`
	TradingLocked    bool                    `json:"trading_locked"`
	Positions        []model.Position        `json:"positions"`
	RecentExecutions []model.ExecutionRecord `json:"recent_executions"`
	AgentStatus      map[string]AgentStatus  `json:"agent_status"`
	GeneratedAt      time.Time               `json:"generated_at"`
}

// PortfolioSummary refreshes prices and returns the current aggregate
// view: open positions, a bounded execution window and agent liveness.
func (e *Engine) PortfolioSummary() PortfolioSummary {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.book.RefreshPrices(e.quotes)
	positions := e.book.List()

	totalValue := 0.0
	unrealized := 0.0
	for _, p := range positions {
		totalValue += p.Quantity * p.CurrentPrice
		unrealized += p.UnrealizedPnL
	}

	recent := e.executions
	if len(recent) > recentExecutionWindow {
		recent = recent[len(recent)-recentExecutionWindow:]
	}
	executions := make([]model.ExecutionRecord, len(recent))
	copy(executions, recent)

	agents := make(map[string]AgentStatus, len(e.agents))
	for id, status := range e.agents {
		agents[id] = status
	}

	return PortfolioSummary{
		TotalPositions:   len(positions),
		TotalValue:       totalValue,
		UnrealizedPnL:    unrealized,
		RealizedPnL:      e.realizedPnL,
		TradingLocked:    e.tradingLocked,
		Positions:        positions,
		RecentExecutions: executions,
		AgentStatus:      agents,
		GeneratedAt:      time.Now().UTC(),
	}
}

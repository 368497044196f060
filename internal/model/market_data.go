package model

import "time"

// Quote is a single point-in-time price observation for a symbol.
// Quotes are immutable once published; the feed supersedes them whole.
type Quote struct {
	Symbol        string    `json:"symbol"`
	Price         float64   `json:"price"`
	Bid           float64   `json:"bid"`
	Ask           float64   `json:"ask"`
	Volume        int64     `json:"volume"`
	Timestamp     time.Time `json:"timestamp"`
	Change        float64   `json:"change"`
	ChangePercent float64   `json:"change_percent"`
}

// Position is an open directional holding in one symbol.
// Quantity is signed: positive is long, negative is short.
type Position struct {
	ID            string    `json:"position_id"`
	Symbol        string    `json:"symbol"`
	Quantity      float64   `json:"quantity"`
	EntryPrice    float64   `json:"entry_price"`
	CurrentPrice  float64   `json:"current_price"`
	UnrealizedPnL float64   `json:"unrealized_pnl"`
	OpenedAt      time.Time `json:"opened_at"`
}

// Notional returns the absolute exposure of the position at its current price.
func (p Position) Notional() float64 {
	n := p.Quantity * p.CurrentPrice
	if n < 0 {
		return -n
	}
	return n
}

// ExecutionRecord captures one fill for the execution log.
type ExecutionRecord struct {
	Timestamp  time.Time `json:"timestamp"`
	OrderID    string    `json:"order_id"`
	Symbol     string    `json:"symbol"`
	Side       Side      `json:"side"`
	Quantity   float64   `json:"quantity"`
	FillPrice  float64   `json:"fill_price"`
	PositionID string    `json:"position_id"`
	AgentID    string    `json:"agent_id,omitempty"`
}

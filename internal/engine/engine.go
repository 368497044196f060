// Package engine orchestrates the order lifecycle: submission, risk
// evaluation, fill, position creation and closure. It owns every order
// it creates and the trading-locked flag.
package engine

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"main/internal/book"
	"main/internal/model"
	"main/internal/obs"
	"main/internal/risk"
)

var (
	ErrValidation       = errors.New("invalid order parameters")
	ErrNoMarketData     = errors.New("no market data")
	ErrRiskRejected     = errors.New("order rejected by risk management")
	ErrPositionNotFound = errors.New("position not found")
	ErrUnknownOrder     = errors.New("order not found")
	ErrNotCancellable   = errors.New("order not cancellable")
)

// Ledger receives realized P&L when a position is closed.
type Ledger interface {
	Realize(pnl float64)
}

// FillObserver is invoked after every opening fill, outside the engine
// lock. Used to replicate master fills onto other accounts.
type FillObserver func(model.ExecutionRecord)

// CloseObserver is invoked after a position is closed, outside the
// engine lock. Used to settle replicated positions.
type CloseObserver func(positionID string, realized float64)

// Config wires the engine's collaborators and limits.
type Config struct {
	Quotes  book.QuoteSource
	Book    *book.Book
	Limits  risk.Limits
	Ledger  Ledger
	Metrics *obs.Metrics
}

// OrderRequest describes a proposed order.
type OrderRequest struct {
	Symbol     string
	Side       model.Side
	Quantity   float64
	Type       model.OrderType
	LimitPrice float64
	StopPrice  float64
	AgentID    string

	reduceOnly        bool
	closingPositionID string
}

// Engine is the trading core's order orchestrator.
type Engine struct {
	mu sync.Mutex

	quotes  book.QuoteSource
	book    *book.Book
	gate    *risk.Gate
	ledger  Ledger
	metrics *obs.Metrics

	orders        map[string]*model.Order
	executions    []model.ExecutionRecord
	agents        map[string]AgentStatus
	tradingLocked bool
	realizedPnL   float64

	fillObserver  FillObserver
	closeObserver CloseObserver
}

// AgentStatus tracks liveness of one automated agent.
type AgentStatus struct {
	Active     bool      `json:"active"`
	LastUpdate time.Time `json:"last_update"`
}

var defaultAgents = []string{
	"master_risk_controller",
	"strategic_allocator",
	"performance_monitor",
	"equity_agent",
	"fixed_income_agent",
	"fx_agent",
}

// New creates an engine with the default agent registry.
func New(cfg Config) *Engine {
	agents := make(map[string]AgentStatus, len(defaultAgents))
	now := time.Now().UTC()
	for _, id := range defaultAgents {
		agents[id] = AgentStatus{Active: true, LastUpdate: now}
	}
	return &Engine{
		quotes:  cfg.Quotes,
		book:    cfg.Book,
		gate:    risk.NewGate(cfg.Limits),
		ledger:  cfg.Ledger,
		metrics: cfg.Metrics,
		orders:  make(map[string]*model.Order),
		agents:  agents,
	}
}

// SetFillObserver registers the opening-fill callback. Must be called
// before trading starts.
func (e *Engine) SetFillObserver(fn FillObserver) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.fillObserver = fn
}

// SetCloseObserver registers the position-close callback. Must be
// called before trading starts.
func (e *Engine) SetCloseObserver(fn CloseObserver) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closeObserver = fn
}

// SubmitOrder runs the full order lifecycle for one request. The
// returned order reflects the terminal (or pending) status; on risk
// rejection the order is retained for audit and an error is returned
// alongside it.
func (e *Engine) SubmitOrder(req OrderRequest) (model.Order, error) {
	started := time.Now()
	defer func() { e.metrics.ObserveSubmit(time.Since(started)) }()

	if err := validate(req); err != nil {
		return model.Order{}, err
	}

	e.mu.Lock()
	order, record, err := e.submitLocked(req)
	e.mu.Unlock()

	if record != nil && e.fillObserver != nil {
		e.fillObserver(*record)
	}
	return order, err
}

// submitLocked runs risk evaluation and, for market orders, the fill.
// Caller holds e.mu. The returned record is non-nil for opening fills.
func (e *Engine) submitLocked(req OrderRequest) (model.Order, *model.ExecutionRecord, error) {
	order := &model.Order{
		ID:         uuid.NewString(),
		Symbol:     req.Symbol,
		Side:       req.Side,
		Quantity:   req.Quantity,
		Type:       req.Type,
		LimitPrice: req.LimitPrice,
		StopPrice:  req.StopPrice,
		Status:     model.OrderStatusPending,
		CreatedAt:  time.Now().UTC(),
		AgentID:    req.AgentID,
		ReduceOnly: req.reduceOnly,
	}
	e.orders[order.ID] = order
	e.metrics.IncSubmitted()

	// Risk reads must reflect current prices.
	e.book.RefreshPrices(e.quotes)
	refPrice := e.referencePrice(req.Symbol, req.Side)
	view := risk.BookView{
		OpenPositions:  e.book.Len(),
		TotalExposure:  e.book.TotalExposure(),
		ReferencePrice: refPrice,
		TradingLocked:  e.tradingLocked,
	}
	decision := e.gate.Evaluate(*order, view)
	if !decision.Approved {
		order.Status = model.OrderStatusRejected
		order.Reason = decision.Reason.String()
		e.metrics.IncRejected(decision.Reason)
		logs.Warnf("order rejected: %s %s %v, reason: %s",
			order.Symbol, order.Side, order.Quantity, order.Reason)
		return *order, nil, errors.Wrap(ErrRiskRejected, order.Reason)
	}

	if order.Type != model.OrderTypeMarket {
		// Non-market orders rest as pending until cancelled.
		return *order, nil, nil
	}

	if refPrice <= 0 {
		order.Status = model.OrderStatusRejected
		order.Reason = ErrNoMarketData.Error()
		logs.Errorf("order rejected: no market data for %s", order.Symbol)
		return *order, nil, ErrNoMarketData
	}

	order.Status = model.OrderStatusFilled
	order.FilledAt = time.Now().UTC()
	order.FilledPrice = refPrice
	e.metrics.IncFilled()

	record := model.ExecutionRecord{
		Timestamp: order.FilledAt,
		OrderID:   order.ID,
		Symbol:    order.Symbol,
		Side:      order.Side,
		Quantity:  order.Quantity,
		FillPrice: order.FilledPrice,
		AgentID:   order.AgentID,
	}

	if req.reduceOnly {
		record.PositionID = req.closingPositionID
		e.executions = append(e.executions, record)
		return *order, nil, nil
	}

	quantity := order.Quantity
	if order.Side == model.SideSell {
		quantity = -quantity
	}
	position := model.Position{
		ID:           uuid.NewString(),
		Symbol:       order.Symbol,
		Quantity:     quantity,
		EntryPrice:   order.FilledPrice,
		CurrentPrice: order.FilledPrice,
		OpenedAt:     time.Now().UTC(),
	}
	e.book.Add(position)
	record.PositionID = position.ID
	e.executions = append(e.executions, record)

	logs.Infof("order filled: %s %s %v @ %v", order.Symbol, order.Side, order.Quantity, order.FilledPrice)
	return *order, &record, nil
}

// referencePrice returns the fill-side price: ask for buys, bid for
// sells. Zero when no quote exists.
func (e *Engine) referencePrice(symbol string, side model.Side) float64 {
	quote, ok := e.quotes.Latest(symbol)
	if !ok {
		return 0
	}
	if side == model.SideBuy {
		return quote.Ask
	}
	return quote.Bid
}

func validate(req OrderRequest) error {
	if req.Quantity <= 0 {
		return errors.Wrap(ErrValidation, "quantity must be > 0")
	}
	if req.Symbol == "" {
		return errors.Wrap(ErrValidation, "symbol is empty")
	}
	if !req.Side.Valid() {
		return errors.Wrap(ErrValidation, "unknown side")
	}
	if !req.Type.Valid() {
		return errors.Wrap(ErrValidation, "unknown order type")
	}
	if req.Type == model.OrderTypeLimit && req.LimitPrice <= 0 {
		return errors.Wrap(ErrValidation, "limit price must be > 0")
	}
	return nil
}

// Order returns a copy of the order with the given id.
func (e *Engine) Order(id string) (model.Order, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	order, ok := e.orders[id]
	if !ok {
		return model.Order{}, false
	}
	return *order, true
}

// CancelOrder cancels a pending non-market order. Terminal orders never
// change status.
func (e *Engine) CancelOrder(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	order, ok := e.orders[id]
	if !ok {
		return ErrUnknownOrder
	}
	if order.Status != model.OrderStatusPending {
		return ErrNotCancellable
	}
	order.Status = model.OrderStatusCancelled
	e.metrics.IncCancelled()
	return nil
}

// ClosePosition flattens one position by submitting the opposite-side
// market order for its full quantity, then realizes its P&L exactly
// once.
func (e *Engine) ClosePosition(positionID, agentID string) error {
	e.mu.Lock()
	realized, err := e.closePositionLocked(positionID, agentID)
	observer := e.closeObserver
	e.mu.Unlock()

	if err == nil && observer != nil {
		observer(positionID, realized)
	}
	return err
}

func (e *Engine) closePositionLocked(positionID, agentID string) (float64, error) {
	position, ok := e.book.Get(positionID)
	if !ok {
		return 0, ErrPositionNotFound
	}

	quantity := position.Quantity
	if quantity < 0 {
		quantity = -quantity
	}
	side := model.SideSell
	if position.Quantity < 0 {
		side = model.SideBuy
	}

	order, _, err := e.submitLocked(OrderRequest{
		Symbol:            position.Symbol,
		Side:              side,
		Quantity:          quantity,
		Type:              model.OrderTypeMarket,
		AgentID:           agentID,
		reduceOnly:        true,
		closingPositionID: positionID,
	})
	if err != nil {
		return 0, err
	}

	e.book.Close(positionID)
	realized := (order.FilledPrice - position.EntryPrice) * position.Quantity
	e.realizedPnL += realized
	if e.ledger != nil {
		e.ledger.Realize(realized)
	}
	logs.Infof("position closed: %s %v, realized: %v", position.Symbol, position.Quantity, realized)
	return realized, nil
}

// EmergencyCloseAll closes every open position from a point-in-time
// snapshot, reporting the outcome per position. One failure never
// aborts the rest of the batch.
func (e *Engine) EmergencyCloseAll() map[string]error {
	logs.Warnf("emergency: closing all positions")

	type closedPosition struct {
		id       string
		realized float64
	}

	e.mu.Lock()
	results := make(map[string]error)
	var closed []closedPosition
	for _, position := range e.book.List() {
		realized, err := e.closePositionLocked(position.ID, "emergency_system")
		results[position.ID] = err
		if err == nil {
			closed = append(closed, closedPosition{id: position.ID, realized: realized})
		}
	}
	observer := e.closeObserver
	e.mu.Unlock()

	if observer != nil {
		for _, c := range closed {
			observer(c.id, c.realized)
		}
	}
	return results
}

// EnableTradingLock blocks new opening submissions. Idempotent and
// observable by the next submission.
func (e *Engine) EnableTradingLock() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.tradingLocked {
		logs.Warnf("trading lock enabled: no new positions allowed")
	}
	e.tradingLocked = true
}

// DisableTradingLock re-allows opening submissions. Idempotent.
func (e *Engine) DisableTradingLock() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.tradingLocked {
		logs.Info("trading lock disabled")
	}
	e.tradingLocked = false
}

// TradingLocked reports the current lock state.
func (e *Engine) TradingLocked() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tradingLocked
}

// RealizedPnL returns the engine's accumulated realized P&L.
func (e *Engine) RealizedPnL() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.realizedPnL
}

// UpdateAgentStatus records agent liveness.
func (e *Engine) UpdateAgentStatus(agentID string, active bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.agents[agentID]; !ok {
		return
	}
	e.agents[agentID] = AgentStatus{Active: active, LastUpdate: time.Now().UTC()}
}

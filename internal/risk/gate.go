// Package risk evaluates proposed orders against static limits and a
// point-in-time view of the book. Evaluation has no side effects and is
// safe to call from any goroutine.
package risk

import "main/internal/model"

// Reason identifies why an order was denied. The zero value means the
// order passed every check.
type Reason uint16

const (
	ReasonNone Reason = iota
	ReasonSymbolNotAllowed
	ReasonPositionLimit
	ReasonExposureLimit
	ReasonTradingLocked
)

// String returns the rejection reason in its reporting form.
func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return ""
	case ReasonSymbolNotAllowed:
		return "symbol not allowed"
	case ReasonPositionLimit:
		return "position limit"
	case ReasonExposureLimit:
		return "exposure limit"
	case ReasonTradingLocked:
		return "trading locked"
	default:
		return "unknown"
	}
}

// MaxReason is the highest defined reason value, for counter sizing.
const MaxReason = ReasonTradingLocked

// Limits defines the static risk limits read from configuration.
type Limits struct {
	AllowedSymbols         []string
	MaxPositionSize        float64
	MaxConcurrentPositions int
}

// BookView is the immutable snapshot the gate evaluates against.
type BookView struct {
	OpenPositions int
	TotalExposure float64
	// ReferencePrice is the fill-side price of the proposed order:
	// ask for buys, bid for sells. Zero when no quote exists.
	ReferencePrice float64
	TradingLocked  bool
}

// Decision is the outcome of one evaluation.
type Decision struct {
	Approved bool
	Reason   Reason
}

// Gate evaluates orders against fixed limits.
type Gate struct {
	limits  Limits
	allowed map[string]struct{}
}

// NewGate creates a gate with static limits.
func NewGate(limits Limits) *Gate {
	allowed := make(map[string]struct{}, len(limits.AllowedSymbols))
	for _, s := range limits.AllowedSymbols {
		allowed[s] = struct{}{}
	}
	return &Gate{limits: limits, allowed: allowed}
}

// Evaluate applies the checks in a fixed order so the first failing
// check always wins: symbol allowlist, position count, projected
// exposure, trading lock. Reduce-only orders shrink exposure, so only
// the allowlist check applies to them.
func (g *Gate) Evaluate(order model.Order, view BookView) Decision {
	if _, ok := g.allowed[order.Symbol]; !ok {
		return Decision{Reason: ReasonSymbolNotAllowed}
	}
	if order.ReduceOnly {
		return Decision{Approved: true}
	}

	if g.limits.MaxConcurrentPositions > 0 && view.OpenPositions >= g.limits.MaxConcurrentPositions {
		return Decision{Reason: ReasonPositionLimit}
	}

	notional := order.Quantity * view.ReferencePrice
	if notional < 0 {
		notional = -notional
	}
	if g.limits.MaxPositionSize > 0 && view.TotalExposure+notional > g.limits.MaxPositionSize {
		return Decision{Reason: ReasonExposureLimit}
	}

	if view.TradingLocked {
		return Decision{Reason: ReasonTradingLocked}
	}

	return Decision{Approved: true}
}

// Package portfolio tracks multiple evaluation and funded accounts,
// replicates fills across them and projects profit withdrawals.
package portfolio

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"main/internal/model"
)

// AccountType determines the profit target and daily loss limit.
type AccountType string

const (
	Type50KCombine  AccountType = "50K_COMBINE"
	Type100KCombine AccountType = "100K_COMBINE"
	Type150KCombine AccountType = "150K_COMBINE"
	TypeFunded      AccountType = "FUNDED"
	TypePrivate     AccountType = "PRIVATE"
)

// Valid reports whether t is a known account type.
func (t AccountType) Valid() bool {
	switch t {
	case Type50KCombine, Type100KCombine, Type150KCombine, TypeFunded, TypePrivate:
		return true
	}
	return false
}

// AccountStatus is the account lifecycle state. Accounts are never
// deleted, they move to Inactive or Failed instead.
type AccountStatus string

const (
	StatusActive   AccountStatus = "Active"
	StatusInactive AccountStatus = "Inactive"
	StatusFunded   AccountStatus = "Funded"
	StatusFailed   AccountStatus = "Failed"
)

const maxPositionsPerAccount = 5

var profitTargets = map[AccountType]decimal.Decimal{
	Type50KCombine:  decimal.NewFromInt(3000),
	Type100KCombine: decimal.NewFromInt(6000),
	Type150KCombine: decimal.NewFromInt(9000),
	TypeFunded:      decimal.Zero,
	TypePrivate:     decimal.Zero,
}

var dailyLossLimits = map[AccountType]decimal.Decimal{
	Type50KCombine:  decimal.NewFromInt(2000),
	Type100KCombine: decimal.NewFromInt(3000),
	Type150KCombine: decimal.NewFromInt(4500),
	TypeFunded:      decimal.NewFromInt(2000),
	TypePrivate:     decimal.NewFromInt(10000),
}

// ProfitTargetFor returns the table-driven profit target for a type.
// Unknown types get zero.
func ProfitTargetFor(t AccountType) decimal.Decimal {
	return profitTargets[t]
}

// DailyLossLimitFor returns the table-driven daily loss limit for a
// type. Unknown types get the conservative 2000 default.
func DailyLossLimitFor(t AccountType) decimal.Decimal {
	if limit, ok := dailyLossLimits[t]; ok {
		return limit
	}
	return decimal.NewFromInt(2000)
}

// Account is one evaluation or funded account. Target and limit are
// fixed at creation and never change.
type Account struct {
	ID             string          `json:"id"`
	Nickname       string          `json:"nickname,omitempty"`
	Type           AccountType     `json:"type"`
	Size           decimal.Decimal `json:"size"`
	ProfitTarget   decimal.Decimal `json:"profit_target"`
	DailyLossLimit decimal.Decimal `json:"daily_loss_limit"`
	CreatedAt      time.Time       `json:"created_at"`

	mu          sync.Mutex
	status      AccountStatus
	balance     decimal.Decimal
	dailyPnL    decimal.Decimal
	totalPnL    decimal.Decimal
	maxDrawdown decimal.Decimal
	positions   map[string]model.Position
	updatedAt   time.Time
}

func newAccount(id string, accountType AccountType, size decimal.Decimal, nickname string) *Account {
	now := time.Now().UTC()
	return &Account{
		ID:             id,
		Nickname:       nickname,
		Type:           accountType,
		Size:           size,
		ProfitTarget:   ProfitTargetFor(accountType),
		DailyLossLimit: DailyLossLimitFor(accountType),
		CreatedAt:      now,
		status:         StatusActive,
		balance:        size,
		positions:      make(map[string]model.Position),
		updatedAt:      now,
	}
}

// Status returns the current lifecycle state.
func (a *Account) Status() AccountStatus {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status
}

// SetStatus overrides the lifecycle state, for administrative moves
// like funding an account after a passed combine.
func (a *Account) SetStatus(status AccountStatus) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.status = status
	a.updatedAt = time.Now().UTC()
}

// Balance returns the current balance.
func (a *Account) Balance() decimal.Decimal {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.balance
}

// DailyPnL returns the running daily P&L.
func (a *Account) DailyPnL() decimal.Decimal {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.dailyPnL
}

// TotalPnL returns the running total P&L.
func (a *Account) TotalPnL() decimal.Decimal {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.totalPnL
}

// Realize settles a closed position's P&L into the account's running
// totals. Satisfies the trading engine's settlement interface.
func (a *Account) Realize(pnl float64) {
	amount := decimal.NewFromFloat(pnl)

	a.mu.Lock()
	defer a.mu.Unlock()
	a.dailyPnL = a.dailyPnL.Add(amount)
	a.totalPnL = a.totalPnL.Add(amount)
	a.balance = a.balance.Add(amount)
	if drawdown := a.Size.Sub(a.balance); drawdown.GreaterThan(a.maxDrawdown) {
		a.maxDrawdown = drawdown
	}
	a.updatedAt = time.Now().UTC()
	a.evaluateStatusLocked()
}

// ResetDaily zeroes the daily P&L at session rollover.
func (a *Account) ResetDaily() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.dailyPnL = decimal.Zero
	a.updatedAt = time.Now().UTC()
}

// CanAccept reports whether the account may take one more position.
func (a *Account) CanAccept() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status == StatusActive && len(a.positions) < maxPositionsPerAccount
}

// AttachPosition records an open position against the account.
func (a *Account) AttachPosition(pos model.Position) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.positions[pos.ID] = pos
	a.updatedAt = time.Now().UTC()
}

// DetachPosition removes a closed position and reports whether it was
// held.
func (a *Account) DetachPosition(positionID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.positions[positionID]; !ok {
		return false
	}
	delete(a.positions, positionID)
	a.updatedAt = time.Now().UTC()
	return true
}

// Positions returns a snapshot copy of the held positions.
func (a *Account) Positions() []model.Position {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]model.Position, 0, len(a.positions))
	for _, pos := range a.positions {
		out = append(out, pos)
	}
	return out
}

// PositionCount returns the number of open positions.
func (a *Account) PositionCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.positions)
}

// UnrealizedPnL sums position-level unrealized P&L.
func (a *Account) UnrealizedPnL() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	total := 0.0
	for _, pos := range a.positions {
		total += pos.UnrealizedPnL
	}
	return total
}

// ProgressPercent is progress toward the profit target in [0,100].
// Accounts without a target (funded, private) report zero.
func (a *Account) ProgressPercent() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.progressPercentLocked()
}

func (a *Account) progressPercentLocked() float64 {
	if a.ProfitTarget.IsZero() {
		return 0
	}
	pct, _ := a.totalPnL.Div(a.ProfitTarget).Mul(decimal.NewFromInt(100)).Float64()
	return clamp(pct, 0, 100)
}

// DailyLossPercent is the share of the daily loss limit consumed, in
// [0,100]. Gains count as zero consumption.
func (a *Account) DailyLossPercent() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.dailyLossPercentLocked()
}

func (a *Account) dailyLossPercentLocked() float64 {
	if a.DailyLossLimit.IsZero() {
		return 0
	}
	if a.dailyPnL.Sign() >= 0 {
		return 0
	}
	pct, _ := a.dailyPnL.Abs().Div(a.DailyLossLimit).Mul(decimal.NewFromInt(100)).Float64()
	return clamp(pct, 0, 100)
}

// RiskScore is a 0 to 100 composite of daily loss usage, position
// load and drawdown. Zero-size accounts score on the other factors
// only.
func (a *Account) RiskScore() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()

	score := a.dailyLossPercentLocked() * 0.4
	score += float64(len(a.positions)) / maxPositionsPerAccount * 25

	if a.Size.Sign() > 0 {
		drawdownPct, _ := a.maxDrawdown.Div(a.Size).Mul(decimal.NewFromInt(100)).Float64()
		score += min(drawdownPct*2, 35)
	}
	return clamp(score, 0, 100)
}

// evaluateStatusLocked moves the account through its lifecycle after
// a settlement. Terminal states are sticky.
func (a *Account) evaluateStatusLocked() {
	if a.status == StatusFailed {
		return
	}
	if a.DailyLossLimit.Sign() > 0 && a.dailyPnL.Neg().GreaterThanOrEqual(a.DailyLossLimit) {
		a.status = StatusFailed
		return
	}
	if a.status == StatusActive && a.ProfitTarget.Sign() > 0 && a.totalPnL.GreaterThanOrEqual(a.ProfitTarget) {
		a.status = StatusFunded
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

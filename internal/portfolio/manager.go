package portfolio

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"
)

var (
	ErrUnknownAccountType = errors.New("unknown account type")
	ErrInvalidSize        = errors.New("account size must be positive")
	ErrAccountNotFound    = errors.New("account not found")
)

// Scaling plan target: five funded 150K accounts.
const (
	scalingTargetAccounts = 5
	scalingTargetSize     = 150_000
)

// Manager aggregates independent accounts into one portfolio view and
// owns the copy-trading and withdrawal state.
type Manager struct {
	mu       sync.RWMutex
	accounts map[string]*Account
	copy     CopySettings
	// replicas maps a master position id to the slave replicas opened
	// for it, so closes can settle and detach them.
	replicas map[string][]replica

	withdrawals   []WithdrawalRecord
	privateTarget decimal.Decimal
}

// NewManager creates a portfolio with the default 100K private
// account goal.
func NewManager() *Manager {
	return &Manager{
		accounts:      make(map[string]*Account),
		replicas:      make(map[string][]replica),
		privateTarget: decimal.NewFromInt(100_000),
	}
}

// AddAccount registers a new account. The id embeds the type so it
// stays readable in logs and reports.
func (m *Manager) AddAccount(accountType AccountType, size decimal.Decimal, nickname string) (string, error) {
	if !accountType.Valid() {
		return "", ErrUnknownAccountType
	}
	if size.Sign() <= 0 {
		return "", ErrInvalidSize
	}

	id := string(accountType) + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]

	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[id] = newAccount(id, accountType, size, nickname)
	return id, nil
}

// Account returns the account with the given id.
func (m *Manager) Account(id string) (*Account, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	acct, ok := m.accounts[id]
	return acct, ok
}

// Accounts returns all accounts sorted by id.
func (m *Manager) Accounts() []*Account {
	m.mu.RLock()
	out := make([]*Account, 0, len(m.accounts))
	for _, acct := range m.accounts {
		out = append(out, acct)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Summary is the portfolio-wide aggregate.
type Summary struct {
	TotalAccounts   int             `json:"total_accounts"`
	ActiveAccounts  int             `json:"active_accounts"`
	FundedAccounts  int             `json:"funded_accounts"`
	TotalCapital    decimal.Decimal `json:"total_capital"`
	TotalPnL        decimal.Decimal `json:"total_pnl"`
	DailyPnL        decimal.Decimal `json:"daily_pnl"`
	TotalPositions  int             `json:"total_positions"`
	AvgRiskScore    float64         `json:"avg_risk_score"`
	WithdrawalReady decimal.Decimal `json:"withdrawal_ready"`
	CopyTrading     bool            `json:"copy_trading"`
	GeneratedAt     time.Time       `json:"generated_at"`
}

// Summary computes the portfolio aggregate from a point-in-time
// snapshot of the accounts.
func (m *Manager) Summary() Summary {
	accounts := m.Accounts()

	s := Summary{
		TotalAccounts:   len(accounts),
		TotalCapital:    decimal.Zero,
		TotalPnL:        decimal.Zero,
		DailyPnL:        decimal.Zero,
		WithdrawalReady: decimal.Zero,
		CopyTrading:     m.CopySettings().Enabled,
		GeneratedAt:     time.Now().UTC(),
	}

	riskSum := 0.0
	for _, acct := range accounts {
		status := acct.Status()
		totalPnL := acct.TotalPnL()

		s.TotalCapital = s.TotalCapital.Add(acct.Size)
		s.TotalPnL = s.TotalPnL.Add(totalPnL)
		s.DailyPnL = s.DailyPnL.Add(acct.DailyPnL())
		s.TotalPositions += acct.PositionCount()
		riskSum += acct.RiskScore()

		switch status {
		case StatusActive:
			s.ActiveAccounts++
		case StatusFunded:
			s.FundedAccounts++
			if totalPnL.Sign() > 0 {
				s.WithdrawalReady = s.WithdrawalReady.Add(totalPnL.Mul(withdrawalFraction))
			}
		}
	}
	if len(accounts) > 0 {
		s.AvgRiskScore = riskSum / float64(len(accounts))
	}
	return s
}

// PositionSummary breaks positions down by symbol and by account.
type PositionSummary struct {
	TotalPositions     int                        `json:"total_positions"`
	TotalUnrealizedPnL float64                    `json:"total_unrealized_pnl"`
	SymbolBreakdown    map[string]float64         `json:"symbol_breakdown"`
	AccountExposure    map[string]AccountExposure `json:"account_exposure"`
	MaxRiskAccount     string                     `json:"max_risk_account,omitempty"`
}

// AccountExposure is one account's slice of the position summary.
type AccountExposure struct {
	Positions     int                `json:"positions"`
	UnrealizedPnL float64            `json:"unrealized_pnl"`
	Instruments   map[string]float64 `json:"instruments"`
}

// PositionSummary aggregates open positions across every account.
func (m *Manager) PositionSummary() PositionSummary {
	ps := PositionSummary{
		SymbolBreakdown: make(map[string]float64),
		AccountExposure: make(map[string]AccountExposure),
	}

	maxPositions := -1
	for _, acct := range m.Accounts() {
		exposure := AccountExposure{Instruments: make(map[string]float64)}
		for _, pos := range acct.Positions() {
			qty := pos.Quantity
			if qty < 0 {
				qty = -qty
			}
			exposure.Positions++
			exposure.UnrealizedPnL += pos.UnrealizedPnL
			exposure.Instruments[pos.Symbol] += qty
			ps.SymbolBreakdown[pos.Symbol] += qty
			ps.TotalUnrealizedPnL += pos.UnrealizedPnL
		}
		ps.TotalPositions += exposure.Positions
		ps.AccountExposure[acct.ID] = exposure
		if exposure.Positions > maxPositions {
			maxPositions = exposure.Positions
			ps.MaxRiskAccount = acct.ID
		}
	}
	return ps
}

// ScalingProgress measures the portfolio against the 5x150K plan.
type ScalingProgress struct {
	TargetAccounts  int             `json:"target_accounts"`
	Current150K     int             `json:"current_150k_accounts"`
	TargetCapital   decimal.Decimal `json:"target_capital"`
	CurrentCapital  decimal.Decimal `json:"current_capital"`
	CapitalProgress float64         `json:"capital_progress_percent"`
	FundedAccounts  int             `json:"funded_accounts"`
}

// ScalingProgress reports progress toward the scaling plan.
func (m *Manager) ScalingProgress() ScalingProgress {
	targetSize := decimal.NewFromInt(scalingTargetSize)
	p := ScalingProgress{
		TargetAccounts: scalingTargetAccounts,
		TargetCapital:  targetSize.Mul(decimal.NewFromInt(scalingTargetAccounts)),
		CurrentCapital: decimal.Zero,
	}

	for _, acct := range m.Accounts() {
		p.CurrentCapital = p.CurrentCapital.Add(acct.Size)
		if acct.Size.Equal(targetSize) {
			p.Current150K++
		}
		if acct.Status() == StatusFunded {
			p.FundedAccounts++
		}
	}
	if p.TargetCapital.Sign() > 0 {
		pct, _ := p.CurrentCapital.Div(p.TargetCapital).Mul(decimal.NewFromInt(100)).Float64()
		p.CapitalProgress = clamp(pct, 0, 100)
	}
	return p
}

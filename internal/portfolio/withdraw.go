package portfolio

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
)

// Funded accounts target 6% of account size per month, of which 80%
// is withdrawable to the private account.
var (
	monthlyTargetRate  = decimal.NewFromFloat(0.06)
	withdrawalFraction = decimal.NewFromFloat(0.8)
)

var ErrNoFundedAccounts = errors.New("no funded accounts available for withdrawal")

// Projection is one funded account's monthly withdrawal estimate.
type Projection struct {
	AccountID     string          `json:"account_id"`
	Type          AccountType     `json:"type"`
	MonthlyProfit decimal.Decimal `json:"monthly_profit"`
	Withdrawable  decimal.Decimal `json:"withdrawable"`
}

// WithdrawalRecord is one simulated monthly withdrawal.
type WithdrawalRecord struct {
	Date     time.Time       `json:"date"`
	Amount   decimal.Decimal `json:"amount"`
	Accounts int             `json:"accounts"`
	Kind     string          `json:"type"`
}

// Projections returns per-account withdrawal estimates for every
// funded account and their total.
func (m *Manager) Projections() ([]Projection, decimal.Decimal) {
	var projections []Projection
	total := decimal.Zero

	for _, acct := range m.Accounts() {
		if acct.Status() != StatusFunded {
			continue
		}
		monthly := acct.Size.Mul(monthlyTargetRate)
		withdrawable := monthly.Mul(withdrawalFraction)
		total = total.Add(withdrawable)
		projections = append(projections, Projection{
			AccountID:     acct.ID,
			Type:          acct.Type,
			MonthlyProfit: monthly,
			Withdrawable:  withdrawable,
		})
	}
	return projections, total
}

// MonthsToTarget estimates how many months of withdrawals reach the
// private account goal. ok is false when there is no withdrawal
// income, which callers must report instead of dividing by zero.
func (m *Manager) MonthsToTarget() (months float64, ok bool) {
	_, total := m.Projections()
	if total.Sign() <= 0 {
		return 0, false
	}

	m.mu.RLock()
	remaining := m.privateTarget
	m.mu.RUnlock()
	if remaining.Sign() <= 0 {
		return 0, true
	}
	months, _ = remaining.Div(total).Float64()
	return months, true
}

// PrivateTarget returns the remaining private account goal.
func (m *Manager) PrivateTarget() decimal.Decimal {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.privateTarget
}

// SetPrivateTarget overrides the private account goal.
func (m *Manager) SetPrivateTarget(target decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.privateTarget = target
}

// SimulateMonthlyWithdrawal applies one month of projected
// withdrawals: records the total, reduces the remaining private
// account goal and returns the withdrawn amount.
func (m *Manager) SimulateMonthlyWithdrawal() (decimal.Decimal, error) {
	projections, total := m.Projections()
	if len(projections) == 0 {
		return decimal.Zero, ErrNoFundedAccounts
	}

	record := WithdrawalRecord{
		Date:     time.Now().UTC(),
		Amount:   total,
		Accounts: len(projections),
		Kind:     "monthly_withdrawal",
	}

	m.mu.Lock()
	m.withdrawals = append(m.withdrawals, record)
	m.privateTarget = m.privateTarget.Sub(total)
	m.mu.Unlock()

	logs.Infof("simulated monthly withdrawal of %s across %d accounts", total.StringFixed(2), len(projections))
	return total, nil
}

// Withdrawals returns the withdrawal history, oldest first.
func (m *Manager) Withdrawals() []WithdrawalRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]WithdrawalRecord, len(m.withdrawals))
	copy(out, m.withdrawals)
	return out
}

package portfolio

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/internal/model"
)

func addAccount(t *testing.T, m *Manager, accountType AccountType, size int64) *Account {
	t.Helper()
	id, err := m.AddAccount(accountType, decimal.NewFromInt(size), "")
	require.NoError(t, err)
	acct, ok := m.Account(id)
	require.True(t, ok)
	return acct
}

func fill(symbol string, qty, price float64) model.ExecutionRecord {
	return model.ExecutionRecord{
		Timestamp:  time.Now().UTC(),
		OrderID:    "o1",
		Symbol:     symbol,
		Side:       model.SideBuy,
		Quantity:   qty,
		FillPrice:  price,
		PositionID: "p1",
	}
}

// Targets and limits are fixed functions of the account type.
func TestAccountTargetsByType(t *testing.T) {
	cases := []struct {
		accountType AccountType
		target      int64
		lossLimit   int64
	}{
		{Type50KCombine, 3000, 2000},
		{Type100KCombine, 6000, 3000},
		{Type150KCombine, 9000, 4500},
		{TypeFunded, 0, 2000},
		{TypePrivate, 0, 10000},
	}
	for _, tc := range cases {
		t.Run(string(tc.accountType), func(t *testing.T) {
			assert.True(t, ProfitTargetFor(tc.accountType).Equal(decimal.NewFromInt(tc.target)))
			assert.True(t, DailyLossLimitFor(tc.accountType).Equal(decimal.NewFromInt(tc.lossLimit)))
		})
	}
}

func TestAddAccount(t *testing.T) {
	m := NewManager()
	id, err := m.AddAccount(Type50KCombine, decimal.NewFromInt(50_000), "first combine")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(id, "50K_COMBINE_"))
	assert.Len(t, strings.TrimPrefix(id, "50K_COMBINE_"), 8)

	acct, ok := m.Account(id)
	require.True(t, ok)
	assert.Equal(t, "first combine", acct.Nickname)
	assert.Equal(t, StatusActive, acct.Status())
	assert.True(t, acct.ProfitTarget.Equal(decimal.NewFromInt(3000)))
	assert.True(t, acct.DailyLossLimit.Equal(decimal.NewFromInt(2000)))

	_, err = m.AddAccount("25K_COMBINE", decimal.NewFromInt(25_000), "")
	assert.ErrorIs(t, err, ErrUnknownAccountType)
	_, err = m.AddAccount(Type50KCombine, decimal.Zero, "")
	assert.ErrorIs(t, err, ErrInvalidSize)
}

func TestRealizeMovesLifecycle(t *testing.T) {
	m := NewManager()
	acct := addAccount(t, m, Type50KCombine, 50_000)

	acct.Realize(1200)
	assert.Equal(t, StatusActive, acct.Status())
	assert.InDelta(t, 40.0, acct.ProgressPercent(), 0.001)

	acct.Realize(1800)
	assert.Equal(t, StatusFunded, acct.Status(), "hitting the target funds the account")

	// losses past the daily limit fail the account
	loser := addAccount(t, m, Type50KCombine, 50_000)
	loser.Realize(-2000)
	assert.Equal(t, StatusFailed, loser.Status())
	assert.InDelta(t, 100.0, loser.DailyLossPercent(), 0.001)
}

func TestRiskScoreAlwaysInRange(t *testing.T) {
	m := NewManager()

	// zero-size account with no activity must not divide by zero
	zero := newAccount("z", TypePrivate, decimal.Zero, "")
	assert.GreaterOrEqual(t, zero.RiskScore(), 0.0)
	assert.LessOrEqual(t, zero.RiskScore(), 100.0)

	acct := addAccount(t, m, Type50KCombine, 50_000)
	extremes := []float64{0, -100, -2000, -50_000, 1_000_000, -1_000_000}
	for _, pnl := range extremes {
		acct.Realize(pnl)
		score := acct.RiskScore()
		assert.GreaterOrEqual(t, score, 0.0, "pnl %v", pnl)
		assert.LessOrEqual(t, score, 100.0, "pnl %v", pnl)
	}

	// position load saturates at the per-account cap
	full := addAccount(t, m, Type150KCombine, 150_000)
	for i := 0; i < 10; i++ {
		full.AttachPosition(model.Position{ID: string(rune('a' + i)), Symbol: "ES", Quantity: 1, EntryPrice: 4490})
	}
	score := full.RiskScore()
	assert.GreaterOrEqual(t, score, 0.0)
	assert.LessOrEqual(t, score, 100.0)
}

func TestCanAccept(t *testing.T) {
	m := NewManager()
	acct := addAccount(t, m, Type150KCombine, 150_000)

	for i := 0; i < maxPositionsPerAccount; i++ {
		require.True(t, acct.CanAccept())
		acct.AttachPosition(model.Position{ID: string(rune('a' + i)), Symbol: "ES", Quantity: 1})
	}
	assert.False(t, acct.CanAccept(), "per-account position cap reached")

	acct.SetStatus(StatusInactive)
	acct.DetachPosition("a")
	assert.False(t, acct.CanAccept(), "inactive accounts take no positions")
}

func TestSummary(t *testing.T) {
	m := NewManager()
	a := addAccount(t, m, Type50KCombine, 50_000)
	b := addAccount(t, m, Type150KCombine, 150_000)
	addAccount(t, m, TypePrivate, 250_000)

	a.Realize(3000) // funds the account
	b.Realize(-500)

	s := m.Summary()
	assert.Equal(t, 3, s.TotalAccounts)
	assert.Equal(t, 2, s.ActiveAccounts)
	assert.Equal(t, 1, s.FundedAccounts)
	assert.True(t, s.TotalCapital.Equal(decimal.NewFromInt(450_000)))
	assert.True(t, s.TotalPnL.Equal(decimal.NewFromInt(2500)))
	// 80% of the funded account's 3000 profit
	assert.True(t, s.WithdrawalReady.Equal(decimal.NewFromInt(2400)))
	assert.GreaterOrEqual(t, s.AvgRiskScore, 0.0)
	assert.LessOrEqual(t, s.AvgRiskScore, 100.0)
}

func TestPositionSummary(t *testing.T) {
	m := NewManager()
	a := addAccount(t, m, Type150KCombine, 150_000)
	b := addAccount(t, m, Type150KCombine, 150_000)

	a.AttachPosition(model.Position{ID: "p1", Symbol: "ES", Quantity: 2, UnrealizedPnL: 100})
	a.AttachPosition(model.Position{ID: "p2", Symbol: "NQ", Quantity: -1, UnrealizedPnL: -30})
	b.AttachPosition(model.Position{ID: "p3", Symbol: "ES", Quantity: 1, UnrealizedPnL: 10})

	ps := m.PositionSummary()
	assert.Equal(t, 3, ps.TotalPositions)
	assert.InDelta(t, 80.0, ps.TotalUnrealizedPnL, 0.001)
	assert.Equal(t, 3.0, ps.SymbolBreakdown["ES"])
	assert.Equal(t, 1.0, ps.SymbolBreakdown["NQ"], "breakdown uses absolute quantity")
	assert.Equal(t, a.ID, ps.MaxRiskAccount)
	assert.Equal(t, 2, ps.AccountExposure[a.ID].Positions)
}

func TestScalingProgress(t *testing.T) {
	m := NewManager()
	addAccount(t, m, Type150KCombine, 150_000)
	addAccount(t, m, Type150KCombine, 150_000)
	addAccount(t, m, Type50KCombine, 50_000)

	p := m.ScalingProgress()
	assert.Equal(t, 5, p.TargetAccounts)
	assert.Equal(t, 2, p.Current150K)
	assert.True(t, p.TargetCapital.Equal(decimal.NewFromInt(750_000)))
	assert.InDelta(t, 350_000.0/750_000.0*100, p.CapitalProgress, 0.01)
}

func TestCopyTradingReplication(t *testing.T) {
	m := NewManager()
	master := addAccount(t, m, Type150KCombine, 150_000)
	slave1 := addAccount(t, m, Type150KCombine, 150_000)
	slave2 := addAccount(t, m, Type150KCombine, 150_000)

	require.ErrorIs(t, m.EnableCopyTrading(master.ID, 0), ErrInvalidScaling)
	require.ErrorIs(t, m.EnableCopyTrading(master.ID, 2.5), ErrInvalidScaling)
	require.ErrorIs(t, m.EnableCopyTrading("missing", 1.0), ErrAccountNotFound)
	require.NoError(t, m.EnableCopyTrading(master.ID, 0.5))

	replicated, err := m.ReplicateFill(fill("ES", 4, 4490))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{slave1.ID, slave2.ID}, replicated)

	assert.Equal(t, 1, master.PositionCount())
	require.Equal(t, 1, slave1.PositionCount())
	assert.Equal(t, 2.0, slave1.Positions()[0].Quantity, "quantity scaled by 0.5")
	assert.Equal(t, "ES", slave2.Positions()[0].Symbol)
}

// Quantities are fractional throughout the core; a sub-unit scaled
// quantity replicates instead of being dropped.
func TestCopyTradingFractionalQuantity(t *testing.T) {
	m := NewManager()
	master := addAccount(t, m, Type150KCombine, 150_000)
	slave := addAccount(t, m, Type150KCombine, 150_000)

	require.NoError(t, m.EnableCopyTrading(master.ID, 0.3))

	replicated, err := m.ReplicateFill(fill("ES", 1, 4490))
	require.NoError(t, err)
	assert.Equal(t, []string{slave.ID}, replicated)
	require.Equal(t, 1, slave.PositionCount())
	assert.InDelta(t, 0.3, slave.Positions()[0].Quantity, 1e-9)
}

// Closing the master position detaches every replica and settles each
// slave at the scaled P&L. The master account is settled by the
// engine's ledger, so no P&L lands on it here.
func TestCopyTradingCloseSettlement(t *testing.T) {
	m := NewManager()
	master := addAccount(t, m, Type150KCombine, 150_000)
	slave1 := addAccount(t, m, Type150KCombine, 150_000)
	slave2 := addAccount(t, m, Type150KCombine, 150_000)

	require.NoError(t, m.EnableCopyTrading(master.ID, 0.5))
	_, err := m.ReplicateFill(fill("ES", 4, 4490))
	require.NoError(t, err)

	m.ReplicateClose("p1", 40.0)

	assert.Equal(t, 0, master.PositionCount(), "master replica detached")
	assert.Equal(t, 0, slave1.PositionCount())
	assert.Equal(t, 0, slave2.PositionCount())
	assert.True(t, master.TotalPnL().IsZero(), "master settles through the engine ledger only")
	assert.True(t, slave1.TotalPnL().Equal(decimal.NewFromInt(20)))
	assert.True(t, slave2.TotalPnL().Equal(decimal.NewFromInt(20)))
	assert.True(t, slave1.CanAccept(), "settled slave can take new positions")

	// a second close of the same position settles nothing
	m.ReplicateClose("p1", 40.0)
	assert.True(t, slave1.TotalPnL().Equal(decimal.NewFromInt(20)))
}

// Replicas opened while copy trading was on still unwind after it is
// turned off.
func TestCopyTradingCloseAfterDisable(t *testing.T) {
	m := NewManager()
	master := addAccount(t, m, Type150KCombine, 150_000)
	slave := addAccount(t, m, Type150KCombine, 150_000)

	require.NoError(t, m.EnableCopyTrading(master.ID, 1.0))
	_, err := m.ReplicateFill(fill("NQ", 2, 15800))
	require.NoError(t, err)
	m.DisableCopyTrading()

	m.ReplicateClose("p1", -30.0)

	assert.Equal(t, 0, master.PositionCount())
	assert.Equal(t, 0, slave.PositionCount())
	assert.True(t, slave.TotalPnL().Equal(decimal.NewFromInt(-30)))
}

// A slave that cannot take the position is skipped; the master's fill
// stands.
func TestCopyTradingSlaveRejectionSkips(t *testing.T) {
	m := NewManager()
	master := addAccount(t, m, Type150KCombine, 150_000)
	blocked := addAccount(t, m, Type150KCombine, 150_000)
	blocked.SetStatus(StatusInactive)
	open := addAccount(t, m, Type150KCombine, 150_000)

	require.NoError(t, m.EnableCopyTrading(master.ID, 1.0))

	replicated, err := m.ReplicateFill(fill("NQ", 1, 15800))
	require.NoError(t, err)
	assert.Equal(t, []string{open.ID}, replicated)
	assert.Equal(t, 0, blocked.PositionCount())
	assert.Equal(t, 1, master.PositionCount(), "master fill never rolls back")
}

func TestCopyTradingDisabled(t *testing.T) {
	m := NewManager()
	master := addAccount(t, m, Type150KCombine, 150_000)
	require.NoError(t, m.EnableCopyTrading(master.ID, 1.0))
	m.DisableCopyTrading()

	_, err := m.ReplicateFill(fill("ES", 1, 4490))
	assert.ErrorIs(t, err, ErrCopyDisabled)
}

func TestWithdrawalProjections(t *testing.T) {
	m := NewManager()
	funded := addAccount(t, m, TypeFunded, 150_000)
	funded.SetStatus(StatusFunded)
	addAccount(t, m, Type50KCombine, 50_000) // not funded, excluded

	projections, total := m.Projections()
	require.Len(t, projections, 1)
	// 150000 * 0.06 = 9000 monthly, 80% withdrawable = 7200
	assert.True(t, projections[0].MonthlyProfit.Equal(decimal.NewFromInt(9000)))
	assert.True(t, projections[0].Withdrawable.Equal(decimal.NewFromInt(7200)))
	assert.True(t, total.Equal(decimal.NewFromInt(7200)))
}

// No withdrawal income must be reported explicitly, never divided by.
func TestMonthsToTargetNoIncome(t *testing.T) {
	m := NewManager()
	addAccount(t, m, Type50KCombine, 50_000)

	_, ok := m.MonthsToTarget()
	assert.False(t, ok)
}

func TestMonthsToTarget(t *testing.T) {
	m := NewManager()
	funded := addAccount(t, m, TypeFunded, 150_000)
	funded.SetStatus(StatusFunded)

	months, ok := m.MonthsToTarget()
	require.True(t, ok)
	// 100000 target / 7200 per month
	assert.InDelta(t, 13.888, months, 0.01)
}

func TestSimulateMonthlyWithdrawal(t *testing.T) {
	m := NewManager()

	_, err := m.SimulateMonthlyWithdrawal()
	require.ErrorIs(t, err, ErrNoFundedAccounts)

	funded := addAccount(t, m, TypeFunded, 150_000)
	funded.SetStatus(StatusFunded)

	amount, err := m.SimulateMonthlyWithdrawal()
	require.NoError(t, err)
	assert.True(t, amount.Equal(decimal.NewFromInt(7200)))

	history := m.Withdrawals()
	require.Len(t, history, 1)
	assert.Equal(t, 1, history[0].Accounts)
	assert.Equal(t, "monthly_withdrawal", history[0].Kind)

	// target shrinks by the withdrawn amount
	assert.True(t, m.PrivateTarget().Equal(decimal.NewFromInt(92_800)))
}

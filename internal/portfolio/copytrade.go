package portfolio

import (
	"time"

	"github.com/google/uuid"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"main/internal/model"
)

var (
	ErrInvalidScaling = errors.New("position scaling factor out of range")
	ErrCopyDisabled   = errors.New("copy trading disabled")
)

// replica is one slave copy of a master position, remembering the
// scaling in force when it was opened.
type replica struct {
	accountID  string
	positionID string
	scale      float64
}

// CopySettings is the master/slave replication configuration. Every
// account other than the master is a slave.
type CopySettings struct {
	Enabled         bool    `json:"enabled"`
	MasterAccountID string  `json:"master_account_id,omitempty"`
	PositionScaling float64 `json:"position_scaling"`
}

// EnableCopyTrading designates a master account. The scaling factor
// must be in (0, 2].
func (m *Manager) EnableCopyTrading(masterID string, scaling float64) error {
	if scaling <= 0 || scaling > 2.0 {
		return ErrInvalidScaling
	}
	if _, ok := m.Account(masterID); !ok {
		return ErrAccountNotFound
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.copy = CopySettings{Enabled: true, MasterAccountID: masterID, PositionScaling: scaling}
	logs.Infof("copy trading enabled, master=%s scaling=%.2f", masterID, scaling)
	return nil
}

// DisableCopyTrading turns replication off, keeping the last master
// and scaling for display.
func (m *Manager) DisableCopyTrading() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.copy.Enabled {
		m.copy.Enabled = false
		logs.Info("copy trading disabled")
	}
}

// CopySettings returns the current replication configuration.
func (m *Manager) CopySettings() CopySettings {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.copy
}

// SlaveAccounts returns every account except the master, sorted by
// id.
func (m *Manager) SlaveAccounts() []*Account {
	settings := m.CopySettings()
	var slaves []*Account
	for _, acct := range m.Accounts() {
		if acct.ID == settings.MasterAccountID {
			continue
		}
		slaves = append(slaves, acct)
	}
	return slaves
}

// ReplicateFill replays a master fill onto every slave account,
// scaled by the configured factor. A slave that cannot accept the
// position is skipped and logged; the master fill is never rolled
// back. Returns the ids of slaves that took the replica.
func (m *Manager) ReplicateFill(rec model.ExecutionRecord) ([]string, error) {
	settings := m.CopySettings()
	if !settings.Enabled {
		return nil, ErrCopyDisabled
	}

	master, ok := m.Account(settings.MasterAccountID)
	if ok {
		master.AttachPosition(replicaPosition(rec, rec.PositionID, rec.Quantity, rec.Side))
	}

	// Quantities are fractional throughout the core, so the scaled
	// quantity is carried as-is rather than rounded to whole contracts.
	qty := rec.Quantity * settings.PositionScaling
	if qty == 0 {
		logs.Warnf("copy trade for %s scales to zero quantity, skipped", rec.Symbol)
		return nil, nil
	}

	var replicated []string
	for _, slave := range m.SlaveAccounts() {
		if !slave.CanAccept() {
			logs.Warnf("copy trade to %s skipped: account cannot accept position", slave.ID)
			continue
		}
		id := "copy_" + uuid.NewString()[:8]
		slave.AttachPosition(replicaPosition(rec, id, qty, rec.Side))
		m.mu.Lock()
		m.replicas[rec.PositionID] = append(m.replicas[rec.PositionID], replica{
			accountID:  slave.ID,
			positionID: id,
			scale:      settings.PositionScaling,
		})
		m.mu.Unlock()
		replicated = append(replicated, slave.ID)
	}
	return replicated, nil
}

// ReplicateClose settles a closed master position across the portfolio:
// the master's replica record is detached and every slave replica is
// detached and realized at the master's P&L scaled by the replica's
// factor. The master account itself is settled by the engine's ledger,
// never here. Runs even after copy trading is disabled so open
// replicas always unwind.
func (m *Manager) ReplicateClose(positionID string, pnl float64) {
	settings := m.CopySettings()
	if master, ok := m.Account(settings.MasterAccountID); ok {
		master.DetachPosition(positionID)
	}

	m.mu.Lock()
	replicas := m.replicas[positionID]
	delete(m.replicas, positionID)
	m.mu.Unlock()

	for _, rep := range replicas {
		slave, ok := m.Account(rep.accountID)
		if !ok {
			continue
		}
		if slave.DetachPosition(rep.positionID) {
			slave.Realize(pnl * rep.scale)
		}
	}
}

func replicaPosition(rec model.ExecutionRecord, id string, qty float64, side model.Side) model.Position {
	if side == model.SideSell {
		qty = -qty
	}
	return model.Position{
		ID:           id,
		Symbol:       rec.Symbol,
		Quantity:     qty,
		EntryPrice:   rec.FillPrice,
		CurrentPrice: rec.FillPrice,
		OpenedAt:     time.Now().UTC(),
	}
}

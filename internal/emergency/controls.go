// Package emergency implements the operator-facing kill switch and
// trading lock. The kill switch is fail safe: once the stop flag is
// raised it is never rolled back, even when a later step fails.
package emergency

import (
	"context"
	"sync"
	"time"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"main/internal/audit"
	"main/internal/book"
	"main/internal/engine"
	"main/internal/obs"
)

var ErrNotArmed = errors.New("kill switch not armed")

const defaultAuditCap = 50

// ProcessStopper signals external automated trading processes.
type ProcessStopper interface {
	Stop(ctx context.Context) []string
}

// Config wires the control system's collaborators.
type Config struct {
	Engine *engine.Engine
	Book   *book.Book
	// Ledger receives last-known P&L of positions force-cleared when
	// an individual close failed during the kill switch.
	Ledger engine.Ledger
	// Sinks receive every audit action; at least one durable sink is
	// expected in production.
	Sinks     []audit.Sink
	ReportDir string
	ProcStop  ProcessStopper
	// ProcStopTimeout bounds the best-effort process sweep.
	ProcStopTimeout time.Duration
	Session         string
	// AuditCap bounds the in-memory action window; the durable sinks
	// keep full history.
	AuditCap int
	// Health supplies subsystem indicators for incident reports.
	Health  func() map[string]bool
	Metrics *obs.Metrics
	// Cleared is notified for positions force-cleared by the kill
	// switch, mirroring the engine's close observer so replicated
	// positions unwind on this path too. Optional.
	Cleared engine.CloseObserver
}

// State is the externally visible flag set.
type State struct {
	EmergencyStopActive bool `json:"emergency_stop_active"`
	TradingLocked       bool `json:"trading_locked"`
	KillSwitchArmed     bool `json:"kill_switch_armed"`
}

// Controls is the emergency control system.
type Controls struct {
	cfg Config

	mu         sync.Mutex
	stopActive bool
	armed      bool
	actions    []audit.Action
}

// New creates the control system.
func New(cfg Config) *Controls {
	if cfg.AuditCap <= 0 {
		cfg.AuditCap = defaultAuditCap
	}
	if cfg.ProcStopTimeout <= 0 {
		cfg.ProcStopTimeout = 10 * time.Second
	}
	return &Controls{cfg: cfg}
}

// State returns the current flag set. The trading lock is read from
// the engine, which owns it.
func (c *Controls) State() State {
	c.mu.Lock()
	stopActive, armed := c.stopActive, c.armed
	c.mu.Unlock()
	return State{
		EmergencyStopActive: stopActive,
		TradingLocked:       c.cfg.Engine.TradingLocked(),
		KillSwitchArmed:     armed,
	}
}

// Arm enables the kill switch. Arming is a confirmation gate, not
// itself a risk action.
func (c *Controls) Arm() {
	c.mu.Lock()
	changed := !c.armed
	c.armed = true
	c.mu.Unlock()
	if changed {
		c.logAction(audit.ActionArm, "kill switch armed", nil)
	}
}

// Disarm disables the kill switch.
func (c *Controls) Disarm() {
	c.mu.Lock()
	changed := c.armed
	c.armed = false
	c.mu.Unlock()
	if changed {
		c.logAction(audit.ActionDisarm, "kill switch disarmed", nil)
	}
}

// ExecuteKillSwitch halts trading: raises the stop flag, force-closes
// every position, realizes their P&L, locks trading, signals external
// processes and persists an incident report. Errors along the way are
// surfaced to the caller but never unwind the stop flag.
func (c *Controls) ExecuteKillSwitch() error {
	c.mu.Lock()
	if !c.armed {
		c.mu.Unlock()
		return ErrNotArmed
	}
	c.stopActive = true
	c.mu.Unlock()

	logs.Warnf("emergency kill switch activated")
	positionsAtStop := c.cfg.Book.Len()

	var firstErr error
	results := c.cfg.Engine.EmergencyCloseAll()
	closeResults := make(map[string]string, len(results))
	for id, err := range results {
		if err != nil {
			closeResults[id] = err.Error()
			if firstErr == nil {
				firstErr = errors.Wrap(err, "close position "+id)
			}
			continue
		}
		closeResults[id] = "closed"
	}

	// Positions whose close failed are force-cleared at their
	// last-known P&L so the book ends empty.
	for _, leftover := range c.cfg.Book.Drain() {
		if c.cfg.Ledger != nil {
			c.cfg.Ledger.Realize(leftover.UnrealizedPnL)
		}
		if c.cfg.Cleared != nil {
			c.cfg.Cleared(leftover.ID, leftover.UnrealizedPnL)
		}
		logs.Warnf("force-cleared position %s at last known pnl %v", leftover.ID, leftover.UnrealizedPnL)
	}

	c.cfg.Engine.EnableTradingLock()

	var stopped []string
	if c.cfg.ProcStop != nil {
		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.ProcStopTimeout)
		stopped = c.cfg.ProcStop.Stop(ctx)
		cancel()
	}

	c.logAction(audit.ActionKillSwitch, "emergency kill switch activated", map[string]any{
		"positions_closed": positionsAtStop,
	})

	report := Report{
		Timestamp:     time.Now().UTC(),
		EmergencyType: "KILL_SWITCH_ACTIVATION",
		SystemState: ReportState{
			PositionsAtEmergency: positionsAtStop,
			RealizedPnL:          c.cfg.Engine.RealizedPnL(),
			TradingLocked:        true,
			EmergencyStopActive:  true,
		},
		CloseResults:     closeResults,
		StoppedProcesses: stopped,
		RecentActions:    c.RecentActions(10),
		SystemHealth:     c.health(),
	}
	if path, err := WriteReport(c.cfg.ReportDir, report); err != nil {
		logs.Errorf("incident report persist failed: %v", err)
		if firstErr == nil {
			firstErr = errors.Wrap(err, "persist incident report")
		}
	} else {
		logs.Infof("incident report saved: %s", path)
	}

	return firstErr
}

// ToggleTradingLock flips the engine's trading lock independently of
// the kill switch and returns the new state. Existing positions stay
// open and keep accruing P&L.
func (c *Controls) ToggleTradingLock() bool {
	locked := c.cfg.Engine.TradingLocked()
	if locked {
		c.cfg.Engine.DisableTradingLock()
	} else {
		c.cfg.Engine.EnableTradingLock()
	}
	locked = !locked

	description := "trading UNLOCKED"
	if locked {
		description = "trading LOCKED"
	}
	c.logAction(audit.ActionTradingLock, description, map[string]any{"locked": locked})
	return locked
}

// ClosePosition flattens a single position through the engine and
// audits the close. The engine error is returned as-is; nothing is
// audited for a close that never happened.
func (c *Controls) ClosePosition(positionID string) error {
	if err := c.cfg.Engine.ClosePosition(positionID, "emergency_system"); err != nil {
		return err
	}
	c.logAction(audit.ActionClose, "closed position "+positionID, map[string]any{
		"position_id": positionID,
	})
	return nil
}

// CloseAllPositions flattens the book without engaging the kill
// switch. Per-position failures are reported, not fatal.
func (c *Controls) CloseAllPositions() map[string]error {
	results := c.cfg.Engine.EmergencyCloseAll()
	closed := 0
	for _, err := range results {
		if err == nil {
			closed++
		}
	}
	c.logAction(audit.ActionCloseAll, "closed all positions", map[string]any{
		"position_count": closed,
		"failures":       len(results) - closed,
	})
	return results
}

// Reset clears the stop flag, the arm flag and the trading lock. An
// administrative operation, itself audited.
func (c *Controls) Reset() {
	c.mu.Lock()
	c.stopActive = false
	c.armed = false
	c.mu.Unlock()
	c.cfg.Engine.DisableTradingLock()
	c.logAction(audit.ActionReset, "emergency state manually reset", nil)
}

// Actions returns a copy of the in-memory audit window, oldest first.
func (c *Controls) Actions() []audit.Action {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]audit.Action, len(c.actions))
	copy(out, c.actions)
	return out
}

// RecentActions returns up to n of the newest audit entries.
func (c *Controls) RecentActions(n int) []audit.Action {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n > len(c.actions) {
		n = len(c.actions)
	}
	out := make([]audit.Action, n)
	copy(out, c.actions[len(c.actions)-n:])
	return out
}

// logAction appends to the capped in-memory window, then to every
// durable sink. Sink failures are logged, never propagated; the sinks
// are called outside the controls lock.
func (c *Controls) logAction(actionType, description string, data map[string]any) {
	action := audit.Action{
		Timestamp:   time.Now().UTC(),
		Type:        actionType,
		Description: description,
		Data:        data,
		Session:     c.cfg.Session,
	}

	c.mu.Lock()
	c.actions = append(c.actions, action)
	if len(c.actions) > c.cfg.AuditCap {
		c.actions = c.actions[len(c.actions)-c.cfg.AuditCap:]
	}
	c.mu.Unlock()

	c.cfg.Metrics.IncEmergencyAction()
	for _, sink := range c.cfg.Sinks {
		if err := sink.Append(action); err != nil {
			c.cfg.Metrics.IncAuditDrop()
			logs.Errorf("audit sink append failed: %v", err)
		}
	}
	logs.Infof("emergency action: %s - %s", actionType, description)
}

func (c *Controls) health() map[string]bool {
	health := map[string]bool{"engine": true}
	if c.cfg.Health != nil {
		for k, v := range c.cfg.Health() {
			health[k] = v
		}
	}
	return health
}

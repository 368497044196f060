// Package audit persists emergency actions to durable sinks: an
// append-only JSONL file and, optionally, a Postgres table. History is
// capped nowhere at this layer; in-memory capping is the caller's job.
package audit

import "time"

// Action types written by the emergency control system.
const (
	ActionKillSwitch  = "KILL_SWITCH"
	ActionTradingLock = "TRADING_LOCK"
	ActionCloseAll    = "CLOSE_ALL_POSITIONS"
	ActionClose       = "CLOSE_POSITION"
	ActionReset       = "RESET_EMERGENCY"
	ActionArm         = "ARM_KILL_SWITCH"
	ActionDisarm      = "DISARM_KILL_SWITCH"
)

// Action is one append-only audit entry. Immutable once written.
type Action struct {
	Timestamp   time.Time      `json:"timestamp"`
	Type        string         `json:"action_type"`
	Description string         `json:"description"`
	Data        map[string]any `json:"data,omitempty"`
	Session     string         `json:"user_session,omitempty"`
}

// Sink receives audit actions.
type Sink interface {
	Append(Action) error
	Close() error
}

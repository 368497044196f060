package emergency

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"main/internal/audit"
)

// Report is the incident snapshot persisted on every kill-switch
// execution, one JSON file per activation named by timestamp.
type Report struct {
	Timestamp        time.Time         `json:"timestamp"`
	EmergencyType    string            `json:"emergency_type"`
	SystemState      ReportState       `json:"system_state"`
	CloseResults     map[string]string `json:"close_results,omitempty"`
	StoppedProcesses []string          `json:"stopped_processes,omitempty"`
	RecentActions    []audit.Action    `json:"recent_actions"`
	SystemHealth     map[string]bool   `json:"system_health"`
}

// ReportState captures the core flags and totals at emergency time.
type ReportState struct {
	PositionsAtEmergency int     `json:"positions_at_emergency"`
	RealizedPnL          float64 `json:"realized_pnl"`
	TradingLocked        bool    `json:"trading_locked"`
	EmergencyStopActive  bool    `json:"emergency_stop_active"`
}

// WriteReport persists the report and returns the file path.
func WriteReport(dir string, report Report) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", err
	}
	name := fmt.Sprintf("emergency_report_%s.json", report.Timestamp.Format("20060102_150405"))
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

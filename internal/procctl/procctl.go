// Package procctl sends best-effort stop signals to co-located
// automated trading processes. Nothing here is ever fatal: every
// failure is logged and swallowed.
package procctl

import (
	"context"
	"os/exec"

	"github.com/yanun0323/logs"
)

// Killer signals external processes by name pattern.
type Killer struct {
	patterns []string
}

// NewKiller creates a killer for the given pkill -f patterns.
func NewKiller(patterns []string) *Killer {
	return &Killer{patterns: patterns}
}

// Stop signals every configured pattern and returns the ones that
// matched a running process. The context bounds the whole sweep; a
// nil receiver is a no-op.
func (k *Killer) Stop(ctx context.Context) []string {
	if k == nil {
		return nil
	}
	var stopped []string
	for _, pattern := range k.patterns {
		if ctx.Err() != nil {
			logs.Warnf("process stop aborted: %v", ctx.Err())
			return stopped
		}
		cmd := exec.CommandContext(ctx, "pkill", "-f", pattern)
		if err := cmd.Run(); err != nil {
			// pkill exits non-zero when nothing matched; either
			// way the kill switch proceeds.
			logs.Infof("process stop %q: %v", pattern, err)
			continue
		}
		stopped = append(stopped, pattern)
	}
	if len(stopped) > 0 {
		logs.Warnf("stopped processes: %v", stopped)
	}
	return stopped
}

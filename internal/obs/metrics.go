package obs

import (
	"sync/atomic"
	"time"

	"main/internal/risk"
)

const maxRejectReason = int(risk.MaxReason)

// Metrics collects lightweight counters and latency stats for the
// trading core. All methods are nil-safe so components can run without
// instrumentation.
type Metrics struct {
	ordersSubmitted  uint64
	ordersFilled     uint64
	ordersCancelled  uint64
	rejectReasons    [maxRejectReason + 1]uint64
	feedTicks        uint64
	emergencyActions uint64
	auditDrops       uint64

	submitLatency LatencyStats
}

// LatencyStats aggregates duration samples in nanoseconds.
type LatencyStats struct {
	count uint64
	sum   uint64
	min   uint64
	max   uint64
}

// LatencySnapshot is a point-in-time view of latency stats.
type LatencySnapshot struct {
	Count uint64
	Min   time.Duration
	Max   time.Duration
	Avg   time.Duration
}

// Snapshot captures the current metrics values.
type Snapshot struct {
	OrdersSubmitted  uint64
	OrdersFilled     uint64
	OrdersCancelled  uint64
	RejectReasons    map[risk.Reason]uint64
	FeedTicks        uint64
	EmergencyActions uint64
	AuditDrops       uint64
	SubmitLatency    LatencySnapshot
}

// NewMetrics allocates a metrics container.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// IncSubmitted records an order submission.
func (m *Metrics) IncSubmitted() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.ordersSubmitted, 1)
}

// IncFilled records an order fill.
func (m *Metrics) IncFilled() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.ordersFilled, 1)
}

// IncCancelled records an order cancellation.
func (m *Metrics) IncCancelled() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.ordersCancelled, 1)
}

// IncRejected counts a rejection by its risk reason.
func (m *Metrics) IncRejected(reason risk.Reason) {
	if m == nil {
		return
	}
	idx := int(reason)
	if idx >= 0 && idx < len(m.rejectReasons) {
		atomic.AddUint64(&m.rejectReasons[idx], 1)
	}
}

// IncFeedTick records one published quote.
func (m *Metrics) IncFeedTick() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.feedTicks, 1)
}

// IncEmergencyAction records one audit-logged emergency action.
func (m *Metrics) IncEmergencyAction() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.emergencyActions, 1)
}

// IncAuditDrop records a dropped durable-audit append.
func (m *Metrics) IncAuditDrop() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.auditDrops, 1)
}

// ObserveSubmit measures one submit call end to end.
func (m *Metrics) ObserveSubmit(d time.Duration) {
	if m == nil {
		return
	}
	m.submitLatency.Observe(d)
}

// Snapshot returns a copy of the current metrics values.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	reasons := make(map[risk.Reason]uint64)
	for i := range m.rejectReasons {
		if v := atomic.LoadUint64(&m.rejectReasons[i]); v > 0 {
			reasons[risk.Reason(i)] = v
		}
	}
	return Snapshot{
		OrdersSubmitted:  atomic.LoadUint64(&m.ordersSubmitted),
		OrdersFilled:     atomic.LoadUint64(&m.ordersFilled),
		OrdersCancelled:  atomic.LoadUint64(&m.ordersCancelled),
		RejectReasons:    reasons,
		FeedTicks:        atomic.LoadUint64(&m.feedTicks),
		EmergencyActions: atomic.LoadUint64(&m.emergencyActions),
		AuditDrops:       atomic.LoadUint64(&m.auditDrops),
		SubmitLatency:    m.submitLatency.Snapshot(),
	}
}

// Observe records a duration sample.
func (l *LatencyStats) Observe(d time.Duration) {
	if d < 0 {
		return
	}
	nanos := uint64(d)
	atomic.AddUint64(&l.count, 1)
	atomic.AddUint64(&l.sum, nanos)

	for {
		min := atomic.LoadUint64(&l.min)
		if min != 0 && nanos >= min {
			break
		}
		if atomic.CompareAndSwapUint64(&l.min, min, nanos) {
			break
		}
	}

	for {
		max := atomic.LoadUint64(&l.max)
		if nanos <= max {
			break
		}
		if atomic.CompareAndSwapUint64(&l.max, max, nanos) {
			break
		}
	}
}

// Snapshot returns the aggregated latency stats.
func (l *LatencyStats) Snapshot() LatencySnapshot {
	count := atomic.LoadUint64(&l.count)
	if count == 0 {
		return LatencySnapshot{}
	}
	sum := atomic.LoadUint64(&l.sum)
	min := atomic.LoadUint64(&l.min)
	max := atomic.LoadUint64(&l.max)
	return LatencySnapshot{
		Count: count,
		Min:   time.Duration(min),
		Max:   time.Duration(max),
		Avg:   time.Duration(sum / count),
	}
}

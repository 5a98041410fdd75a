package platform

import (
	"sync/atomic"
	"time"
)

// LatencyBuckets defines the dispatch-latency histogram buckets in
// nanoseconds, covering 1us to 10s with logarithmic spacing.
var LatencyBuckets = []uint64{
	1_000,
	10_000,
	100_000,
	1_000_000,
	10_000_000,
	100_000_000,
	1_000_000_000,
	10_000_000_000,
}

const numLatencyBuckets = 8

// Metrics tracks operational statistics for a running Platform.
type Metrics struct {
	WorkersDeployed   atomic.Uint64
	WorkersTerminated atomic.Uint64
	WorkersRejected   atomic.Uint64 // deploy attempts that failed validation or table-full

	MessagesRouted   atomic.Uint64
	MessagesBuffered atomic.Uint64
	MessagesFlushed  atomic.Uint64
	MessagesDropped  atomic.Uint64 // buffer overflow, queue push failure, validation failure
	MessagesSent     atomic.Uint64 // wire router frames transmitted
	MessagesReceived atomic.Uint64 // wire router frames accepted

	TimersArmed     atomic.Uint64
	TimersFired     atomic.Uint64
	TimersSkipped   atomic.Uint64 // events discarded via SkipEvents reconciliation
	TimersDestroyed atomic.Uint64

	TotalLatencyNs atomic.Uint64
	OpCount        atomic.Uint64
	LatencyBuckets [numLatencyBuckets]atomic.Uint64

	StartTime atomic.Int64
	StopTime  atomic.Int64
}

// NewMetrics creates a new metrics instance with StartTime set to now.
func NewMetrics() *Metrics {
	m := &Metrics{}
	m.StartTime.Store(time.Now().UnixNano())
	return m
}

// RecordDispatchLatency records the time from a message entering the
// local router to its handler being invoked.
func (m *Metrics) RecordDispatchLatency(latencyNs uint64) {
	m.TotalLatencyNs.Add(latencyNs)
	m.OpCount.Add(1)
	for i, bucket := range LatencyBuckets {
		if latencyNs <= bucket {
			m.LatencyBuckets[i].Add(1)
		}
	}
}

// Stop marks the platform as stopped.
func (m *Metrics) Stop() {
	m.StopTime.Store(time.Now().UnixNano())
}

// MetricsSnapshot is a point-in-time copy of Metrics suitable for
// logging or exposing to an external collector.
type MetricsSnapshot struct {
	WorkersDeployed   uint64
	WorkersTerminated uint64
	WorkersRejected   uint64

	MessagesRouted   uint64
	MessagesBuffered uint64
	MessagesFlushed  uint64
	MessagesDropped  uint64
	MessagesSent     uint64
	MessagesReceived uint64

	TimersArmed     uint64
	TimersFired     uint64
	TimersSkipped   uint64
	TimersDestroyed uint64

	AvgLatencyNs uint64
	UptimeNs     uint64

	LatencyP50Ns uint64
	LatencyP99Ns uint64

	LatencyHistogram [numLatencyBuckets]uint64
}

// Snapshot copies all counters into a MetricsSnapshot.
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{
		WorkersDeployed:   m.WorkersDeployed.Load(),
		WorkersTerminated: m.WorkersTerminated.Load(),
		WorkersRejected:   m.WorkersRejected.Load(),
		MessagesRouted:    m.MessagesRouted.Load(),
		MessagesBuffered:  m.MessagesBuffered.Load(),
		MessagesFlushed:   m.MessagesFlushed.Load(),
		MessagesDropped:   m.MessagesDropped.Load(),
		MessagesSent:      m.MessagesSent.Load(),
		MessagesReceived:  m.MessagesReceived.Load(),
		TimersArmed:       m.TimersArmed.Load(),
		TimersFired:       m.TimersFired.Load(),
		TimersSkipped:     m.TimersSkipped.Load(),
		TimersDestroyed:   m.TimersDestroyed.Load(),
	}

	opCount := m.OpCount.Load()
	if opCount > 0 {
		snap.AvgLatencyNs = m.TotalLatencyNs.Load() / opCount
		snap.LatencyP50Ns = m.calculatePercentile(0.50)
		snap.LatencyP99Ns = m.calculatePercentile(0.99)
	}

	start := m.StartTime.Load()
	stop := m.StopTime.Load()
	if stop > 0 {
		snap.UptimeNs = uint64(stop - start)
	} else {
		snap.UptimeNs = uint64(time.Now().UnixNano() - start)
	}

	for i := 0; i < numLatencyBuckets; i++ {
		snap.LatencyHistogram[i] = m.LatencyBuckets[i].Load()
	}

	return snap
}

func (m *Metrics) calculatePercentile(percentile float64) uint64 {
	totalOps := m.OpCount.Load()
	if totalOps == 0 {
		return 0
	}
	targetCount := uint64(float64(totalOps) * percentile)

	prevBucket := uint64(0)
	for i, bucket := range LatencyBuckets {
		bucketCount := m.LatencyBuckets[i].Load()
		if bucketCount >= targetCount {
			prevCount := uint64(0)
			if i > 0 {
				prevCount = m.LatencyBuckets[i-1].Load()
			}
			if bucketCount == prevCount {
				return bucket
			}
			fraction := float64(targetCount-prevCount) / float64(bucketCount-prevCount)
			return prevBucket + uint64(fraction*float64(bucket-prevBucket))
		}
		prevBucket = bucket
	}
	return LatencyBuckets[numLatencyBuckets-1]
}

// Observer allows pluggable metrics collection, mirrored by internal
// components that do not import the root package directly (they accept
// a narrower per-concern observer interface and the root Platform
// forwards into this one).
type Observer interface {
	ObserveWorkerDeployed()
	ObserveWorkerTerminated()
	ObserveWorkerRejected()
	ObserveMessageRouted()
	ObserveMessageBuffered()
	ObserveMessageFlushed()
	ObserveMessageDropped()
	ObserveTimerArmed()
	ObserveTimerFired()
	ObserveTimerSkipped()
	ObserveDispatchLatency(latencyNs uint64)
}

// NoOpObserver discards every observation.
type NoOpObserver struct{}

func (NoOpObserver) ObserveWorkerDeployed()        {}
func (NoOpObserver) ObserveWorkerTerminated()      {}
func (NoOpObserver) ObserveWorkerRejected()        {}
func (NoOpObserver) ObserveMessageRouted()         {}
func (NoOpObserver) ObserveMessageBuffered()       {}
func (NoOpObserver) ObserveMessageFlushed()        {}
func (NoOpObserver) ObserveMessageDropped()        {}
func (NoOpObserver) ObserveTimerArmed()            {}
func (NoOpObserver) ObserveTimerFired()            {}
func (NoOpObserver) ObserveTimerSkipped()          {}
func (NoOpObserver) ObserveDispatchLatency(uint64) {}

// MetricsObserver implements Observer by recording into a Metrics instance.
type MetricsObserver struct {
	metrics *Metrics
}

// NewMetricsObserver wraps m as an Observer.
func NewMetricsObserver(m *Metrics) *MetricsObserver {
	return &MetricsObserver{metrics: m}
}

func (o *MetricsObserver) ObserveWorkerDeployed()   { o.metrics.WorkersDeployed.Add(1) }
func (o *MetricsObserver) ObserveWorkerTerminated() { o.metrics.WorkersTerminated.Add(1) }
func (o *MetricsObserver) ObserveWorkerRejected()   { o.metrics.WorkersRejected.Add(1) }
func (o *MetricsObserver) ObserveMessageRouted()    { o.metrics.MessagesRouted.Add(1) }
func (o *MetricsObserver) ObserveMessageBuffered()  { o.metrics.MessagesBuffered.Add(1) }
func (o *MetricsObserver) ObserveMessageFlushed()   { o.metrics.MessagesFlushed.Add(1) }
func (o *MetricsObserver) ObserveMessageDropped()   { o.metrics.MessagesDropped.Add(1) }
func (o *MetricsObserver) ObserveTimerArmed()       { o.metrics.TimersArmed.Add(1) }
func (o *MetricsObserver) ObserveTimerFired()       { o.metrics.TimersFired.Add(1) }
func (o *MetricsObserver) ObserveTimerSkipped()     { o.metrics.TimersSkipped.Add(1) }
func (o *MetricsObserver) ObserveDispatchLatency(latencyNs uint64) {
	o.metrics.RecordDispatchLatency(latencyNs)
}

var (
	_ Observer = (*MetricsObserver)(nil)
	_ Observer = NoOpObserver{}
)

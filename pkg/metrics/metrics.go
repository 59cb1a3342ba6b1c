package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// acquire outcome labels
const (
	StatusAcquired  = "acquired"
	StatusContended = "contended"
	StatusClock     = "clock_unavailable"
	StatusStale     = "stale_ticket"
	StatusWait      = "wait_failed"
	StatusReleased  = "released"
	StatusRefreshed = "refreshed"
)

// wait outcome labels
const (
	WaitOK     = "ok"
	WaitFailed = "failed"
)

var (
	// lock acquisition latency - histogram to track p50/p90/p99
	// covers the whole blocking acquire, waits included
	// labels: lock_name
	LockAcquireDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tslock_acquire_duration_seconds",
			Help:    "time taken by a blocking acquire",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10), // 100us to ~26s
		},
		[]string{"lock_name"},
	)

	// try-acquire outcomes - acquired vs contended vs clock failure
	// contention ratio = contended / (acquired + contended)
	// labels: lock_name, status
	LockAcquireTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tslock_acquire_total",
			Help: "total number of acquire attempts by outcome",
		},
		[]string{"lock_name", "status"},
	)

	// acquires that found an expired lease instead of an unlocked word
	// every increment is a holder that never released
	CrashRecoveredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tslock_crash_recovered_total",
			Help: "total number of acquires that took over an expired lease",
		},
		[]string{"lock_name"},
	)

	// times a blocked acquirer slept on the word
	// labels: lock_name, outcome (ok/failed)
	LockWaitTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tslock_wait_total",
			Help: "total number of waits on a held lock",
		},
		[]string{"lock_name", "outcome"},
	)

	// release outcomes - released vs stale_ticket vs wait_failed
	// stale releases mean the lease ran out inside the critical section
	LockReleaseTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tslock_release_total",
			Help: "total number of releases by outcome",
		},
		[]string{"lock_name", "status"},
	)

	// refresh outcomes - refreshed vs stale_ticket vs clock_unavailable
	LockRefreshTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tslock_refresh_total",
			Help: "total number of lease refreshes by outcome",
		},
		[]string{"lock_name", "status"},
	)

	// slots currently held in the served lease table, sampled on scrape
	SlotsHeld = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tslock_slots_held",
			Help: "number of lease table slots holding an unexpired lease",
		},
	)

	// service uptime - always 1 when running
	Up = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tslock_up",
			Help: "whether the service is up (always 1 when running)",
		},
	)
)

func init() {
	Up.Set(1)
}

// counters for one named lock, curried once so hot paths skip label lookups
type Lock struct {
	Acquired   prometheus.Counter
	Contended  prometheus.Counter
	ClockFail  prometheus.Counter
	Crashes    prometheus.Counter
	WaitOK     prometheus.Counter
	WaitFailed prometheus.Counter
	AcquireDur prometheus.Observer

	Released     prometheus.Counter
	ReleaseStale prometheus.Counter
	ReleaseWait  prometheus.Counter

	Refreshed    prometheus.Counter
	RefreshStale prometheus.Counter
	RefreshClock prometheus.Counter
}

func ForLock(name string) *Lock {
	return &Lock{
		Acquired:   LockAcquireTotal.WithLabelValues(name, StatusAcquired),
		Contended:  LockAcquireTotal.WithLabelValues(name, StatusContended),
		ClockFail:  LockAcquireTotal.WithLabelValues(name, StatusClock),
		Crashes:    CrashRecoveredTotal.WithLabelValues(name),
		WaitOK:     LockWaitTotal.WithLabelValues(name, WaitOK),
		WaitFailed: LockWaitTotal.WithLabelValues(name, WaitFailed),
		AcquireDur: LockAcquireDuration.WithLabelValues(name),

		Released:     LockReleaseTotal.WithLabelValues(name, StatusReleased),
		ReleaseStale: LockReleaseTotal.WithLabelValues(name, StatusStale),
		ReleaseWait:  LockReleaseTotal.WithLabelValues(name, StatusWait),

		Refreshed:    LockRefreshTotal.WithLabelValues(name, StatusRefreshed),
		RefreshStale: LockRefreshTotal.WithLabelValues(name, StatusStale),
		RefreshClock: LockRefreshTotal.WithLabelValues(name, StatusClock),
	}
}

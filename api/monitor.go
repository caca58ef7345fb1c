/*
monitor.go - Background check of the catalog's period columns

PURPOSE:
  Analyze fails with period_column_missing from the first day of a month
  whose column has not been added to the catalog yet. The monitor checks
  the catalog on an interval so operations notice before the
  representatives do.

DESIGN:
  - Runs a background goroutine with a configurable check interval
  - Checks once immediately on Start
  - Logs transitions between ready and not ready, not every tick
  - Publishes the last result to /api/health and the
    orders_catalog_period_ready gauge

USAGE:
  monitor := NewPeriodMonitor(catalog, metrics)
  monitor.Start()
  // ... later
  monitor.Stop()

SEE ALSO:
  - engine/period.go: ActivePair, the check itself
*/
package api

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/warp/order-engine/engine"
)

// PeriodStatus is the result of the last catalog check.
type PeriodStatus struct {
	Ready      bool      `json:"ready"`
	Current    string    `json:"current,omitempty"`
	Comparison string    `json:"comparison,omitempty"`
	Error      string    `json:"error,omitempty"`
	CheckedAt  time.Time `json:"checked_at"`
}

// PeriodMonitor periodically resolves the active period pair.
type PeriodMonitor struct {
	Catalog       *engine.Catalog
	Metrics       *Metrics
	CheckInterval time.Duration
	Clock         engine.Clock

	ticker  *time.Ticker
	stop    chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	statMu  sync.RWMutex
	status  *PeriodStatus
	started bool
}

// NewPeriodMonitor creates a monitor that checks hourly.
func NewPeriodMonitor(catalog *engine.Catalog, metrics *Metrics) *PeriodMonitor {
	return &PeriodMonitor{
		Catalog:       catalog,
		Metrics:       metrics,
		CheckInterval: time.Hour,
	}
}

// Start begins checking in the background.
func (pm *PeriodMonitor) Start() {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	if pm.started {
		return
	}
	pm.started = true
	pm.stop = make(chan struct{})
	pm.ticker = time.NewTicker(pm.CheckInterval)
	pm.wg.Add(1)

	go pm.run()

	log.Printf("[Monitor] Started with check interval: %v", pm.CheckInterval)
}

// Stop halts the monitor and waits for a running check to finish.
func (pm *PeriodMonitor) Stop() {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	if !pm.started {
		return
	}
	pm.ticker.Stop()
	close(pm.stop)
	pm.wg.Wait()
	pm.started = false
	log.Println("[Monitor] Stopped")
}

func (pm *PeriodMonitor) run() {
	defer pm.wg.Done()

	pm.Check(context.Background())

	for {
		select {
		case <-pm.ticker.C:
			pm.Check(context.Background())
		case <-pm.stop:
			return
		}
	}
}

// Check loads the catalog once and records whether the current month's
// period pair resolves.
func (pm *PeriodMonitor) Check(ctx context.Context) PeriodStatus {
	now := time.Now()
	if pm.Clock != nil {
		now = pm.Clock()
	}
	st := PeriodStatus{CheckedAt: now.UTC()}

	view, err := pm.Catalog.Load(ctx)
	if err == nil {
		var pair engine.ActivePair
		pair, err = pm.Catalog.Periods.ActivePair(now, view.Columns(), view.Table)
		if err == nil {
			st.Ready = true
			st.Current, st.Comparison = pair.CurrentColumn, pair.ComparisonColumn
		}
	}
	if err != nil {
		st.Error = err.Error()
	}

	pm.statMu.Lock()
	prev := pm.status
	pm.status = &st
	pm.statMu.Unlock()

	if prev == nil || prev.Ready != st.Ready {
		if st.Ready {
			log.Printf("[Monitor] Catalog ready: %s vs %s", st.Current, st.Comparison)
		} else {
			log.Printf("[Monitor] Catalog NOT ready: %s", st.Error)
		}
	}
	pm.Metrics.setPeriodReady(st.Ready)
	return st
}

// Status returns the last check result, or nil before the first check.
func (pm *PeriodMonitor) Status() *PeriodStatus {
	if pm == nil {
		return nil
	}
	pm.statMu.RLock()
	defer pm.statMu.RUnlock()
	if pm.status == nil {
		return nil
	}
	st := *pm.status
	return &st
}

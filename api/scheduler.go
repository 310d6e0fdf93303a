/*
scheduler.go - Automated expiry sweep scheduler

PURPOSE:
  Periodically runs the expiry sweep so reservations whose grace window
  has lapsed without a scan are voided and their seats returned to the
  slot ledger, even when no gate traffic touches them.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Each tick runs one full sweep pass in bounded batches
  - A sweep racing a gate scan or a cancellation reclaims each
    reservation at most once (the store transition is conditional)

CONFIGURATION:
  - CheckInterval: How often to sweep (default: 1 minute)
  - Enabled: Whether scheduler is active (default: true)

USAGE:
  scheduler := NewSweepScheduler(sweeper)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: TriggerSweep endpoint (manual sweep)
  - schedule/sweeper.go: ExpirySweeper
*/
package api

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/warp/darshan-engine/schedule"
)

// SweepScheduler runs the expiry sweep on a fixed interval.
type SweepScheduler struct {
	Sweeper       *schedule.ExpirySweeper
	CheckInterval time.Duration
	Enabled       bool

	ticker *time.Ticker
	stop   chan bool
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewSweepScheduler creates a new scheduler.
func NewSweepScheduler(sweeper *schedule.ExpirySweeper) *SweepScheduler {
	return &SweepScheduler{
		Sweeper:       sweeper,
		CheckInterval: 1 * time.Minute,
		Enabled:       true,
		stop:          make(chan bool),
	}
}

// Start begins the scheduler.
func (ss *SweepScheduler) Start() {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	if !ss.Enabled {
		log.Println("[Sweeper] Disabled, not starting")
		return
	}

	ss.ticker = time.NewTicker(ss.CheckInterval)
	ss.wg.Add(1)

	go ss.run()

	log.Printf("[Sweeper] Started with check interval: %v", ss.CheckInterval)
}

// Stop stops the scheduler.
func (ss *SweepScheduler) Stop() {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	if ss.ticker != nil {
		ss.ticker.Stop()
		close(ss.stop)
		ss.wg.Wait()
		log.Println("[Sweeper] Stopped")
	}
}

func (ss *SweepScheduler) run() {
	defer ss.wg.Done()

	// Run immediately on start
	ss.sweep()

	for {
		select {
		case <-ss.ticker.C:
			ss.sweep()
		case <-ss.stop:
			return
		}
	}
}

func (ss *SweepScheduler) sweep() {
	ctx := context.Background()

	expired, err := ss.Sweeper.Sweep(ctx)
	if err != nil {
		log.Printf("[Sweeper] Sweep error: %v", err)
		return
	}
	if expired > 0 {
		log.Printf("[Sweeper] Expired %d reservations", expired)
	}
}

// RunNow triggers an immediate sweep (for testing/admin).
func (ss *SweepScheduler) RunNow() {
	ss.sweep()
}

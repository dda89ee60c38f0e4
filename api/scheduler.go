/*
scheduler.go - Automated overdue sweep scheduler

PURPOSE:
  Periodically scans the ledger for open loans past their due dates and
  records a sweep report (loan count, total accrued fines) for audit
  and UI display.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Reads overdue loans through the engine as of today
  - Never mutates loans; fines accrue lazily from the due date, so the
    sweep is pure reporting
  - Keeps the last report in memory for inspection

CONFIGURATION:
  - CheckInterval: How often to sweep (default: 1 hour)
  - Enabled: Whether the sweeper is active (default: true)

USAGE:
  sweeper := NewOverdueSweeper(handler)
  sweeper.Start()
  // ... later
  sweeper.Stop()

SEE ALSO:
  - handlers.go: ListOverdueLoans (on-demand view of the same data)
  - cmd/server/main.go: Sweeper startup
*/
package api

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/circulation-engine/library"
)

// SweepReport summarizes one overdue sweep.
type SweepReport struct {
	RanAt        time.Time       `json:"ran_at"`
	AsOf         string          `json:"as_of"`
	OverdueLoans int             `json:"overdue_loans"`
	TotalFines   decimal.Decimal `json:"total_fines"`
}

// OverdueSweeper periodically reports on overdue loans.
type OverdueSweeper struct {
	Handler       *Handler
	CheckInterval time.Duration
	Enabled       bool

	ticker *time.Ticker
	stop   chan bool
	wg     sync.WaitGroup
	mu     sync.Mutex

	// reportMu guards lastReport separately so a sweep in flight cannot
	// deadlock against Stop, which holds mu across wg.Wait.
	reportMu   sync.Mutex
	lastReport *SweepReport
}

// NewOverdueSweeper creates a new sweeper over the handler's engine.
func NewOverdueSweeper(handler *Handler) *OverdueSweeper {
	return &OverdueSweeper{
		Handler:       handler,
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
		stop:          make(chan bool),
	}
}

// Start begins the sweeper.
func (sw *OverdueSweeper) Start() {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	if !sw.Enabled {
		log.Println("[Sweeper] Disabled, not starting")
		return
	}

	sw.ticker = time.NewTicker(sw.CheckInterval)
	sw.wg.Add(1)

	go sw.run()

	log.Printf("[Sweeper] Started with check interval: %v", sw.CheckInterval)
}

// Stop stops the sweeper.
func (sw *OverdueSweeper) Stop() {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	if sw.ticker != nil {
		sw.ticker.Stop()
		close(sw.stop)
		sw.wg.Wait()
		log.Println("[Sweeper] Stopped")
	}
}

func (sw *OverdueSweeper) run() {
	defer sw.wg.Done()

	// Run immediately on start
	sw.sweep()

	for {
		select {
		case <-sw.ticker.C:
			sw.sweep()
		case <-sw.stop:
			return
		}
	}
}

func (sw *OverdueSweeper) sweep() {
	ctx := context.Background()
	asOf := library.Today()

	loans, err := sw.Handler.Engine.ListOverdueLoans(ctx, asOf)
	if err != nil {
		log.Printf("[Sweeper] Error listing overdue loans: %v", err)
		return
	}

	total := decimal.Zero
	for _, l := range loans {
		total = total.Add(sw.Handler.Fines.Accrued(l, asOf))
	}

	report := SweepReport{
		RanAt:        time.Now().UTC(),
		AsOf:         asOf.String(),
		OverdueLoans: len(loans),
		TotalFines:   total,
	}

	sw.reportMu.Lock()
	sw.lastReport = &report
	sw.reportMu.Unlock()

	if len(loans) > 0 {
		log.Printf("[Sweeper] %d overdue loans as of %s, %s in fines accrued",
			report.OverdueLoans, report.AsOf, total.StringFixed(2))
	}
}

// RunNow triggers an immediate sweep (for testing/admin).
func (sw *OverdueSweeper) RunNow() {
	sw.sweep()
}

// LastReport returns the most recent sweep report, or nil if none ran.
func (sw *OverdueSweeper) LastReport() *SweepReport {
	sw.reportMu.Lock()
	defer sw.reportMu.Unlock()
	return sw.lastReport
}

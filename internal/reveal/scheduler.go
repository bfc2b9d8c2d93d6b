package reveal

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Scheduler reveals the cells of one question's image on a fixed
// cadence. The host's session controller runs exactly one Scheduler per
// question; everyone else just observes the reveal state it publishes.
type Scheduler struct {
	clock    clockwork.Clock
	order    []int
	duration time.Duration

	mu       sync.Mutex
	revealed int
	held     bool

	onReveal   func(cells []int, percent int)
	onComplete func()
}

// NewScheduler builds a scheduler for a single question. questionTime
// is the full per-question timer; the post-initial reveals are spread
// evenly across it. onReveal receives the currently revealed cells and
// the reveal percentage after every batch; onComplete fires once when
// the whole grid is visible.
func NewScheduler(clock clockwork.Clock, seed int64, questionTime time.Duration, onReveal func(cells []int, percent int), onComplete func()) *Scheduler {
	return &Scheduler{
		clock:      clock,
		order:      Order(seed, GridCells),
		duration:   questionTime,
		onReveal:   onReveal,
		onComplete: onComplete,
	}
}

// Hold latches the scheduler into a no-reveal state. Set while the host
// is tearing down the current question so a late tick cannot race the
// question-transition cleanup. A held scheduler never completes.
func (s *Scheduler) Hold() {
	s.mu.Lock()
	s.held = true
	s.mu.Unlock()
}

// Percent returns the current reveal percentage.
func (s *Scheduler) Percent() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.revealed * 100 / GridCells
}

// Run reveals the initial batch immediately, then one cell per interval
// tick until the grid is fully revealed, the scheduler is held, or ctx
// is cancelled. Blocks until done; callers run it in a goroutine.
func (s *Scheduler) Run(ctx context.Context) {
	s.revealBatch(InitialCells)

	interval := s.duration / time.Duration(GridCells-InitialCells)
	ticker := s.clock.NewTicker(interval)
	defer ticker.Stop()

	log.Debug().
		Dur("interval", interval).
		Int("initial_cells", InitialCells).
		Msg("reveal scheduler started")

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			if done := s.revealBatch(1); done {
				return
			}
		}
	}
}

// revealBatch reveals up to n further cells and reports whether the
// grid is complete. Returns without revealing when held.
func (s *Scheduler) revealBatch(n int) bool {
	s.mu.Lock()
	if s.held {
		s.mu.Unlock()
		return false
	}
	if s.revealed+n > GridCells {
		n = GridCells - s.revealed
	}
	s.revealed += n
	cells := make([]int, s.revealed)
	copy(cells, s.order[:s.revealed])
	percent := s.revealed * 100 / GridCells
	complete := s.revealed == GridCells
	s.mu.Unlock()

	if s.onReveal != nil {
		s.onReveal(cells, percent)
	}
	if complete && s.onComplete != nil {
		s.onComplete()
	}
	return complete
}

package usecase

import (
	"math"
	"sync"
	"sync/atomic"
	"time"
)

const defaultSimulatorSteps = 20

// CancelFunc stops a running simulation. Calling it more than once, or after the
// simulation finished on its own, does nothing.
type CancelFunc func()

// ProgressSimulator interpolates progress between two bounds for phases where the
// backend reports nothing.
type ProgressSimulator struct {
	Steps int
}

func NewProgressSimulator(steps int) ProgressSimulator {
	return ProgressSimulator{Steps: steps}
}

// Start ticks onTick Steps times, moving linearly from lower to upper over duration.
// Ticks run on their own goroutine; the last tick reports exactly upper.
func (s ProgressSimulator) Start(onTick func(progress int), lower, upper int, duration time.Duration) CancelFunc {
	steps := s.Steps
	if steps <= 0 {
		steps = defaultSimulatorSteps
	}
	increment := float64(upper-lower) / float64(steps)
	interval := duration / time.Duration(steps)
	if interval <= 0 {
		interval = time.Millisecond
	}

	var stopped atomic.Bool
	stop := make(chan struct{})
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			stopped.Store(true)
			close(stop)
		})
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		current := float64(lower)
		for step := 1; ; step++ {
			select {
			case <-stop:
				return
			case <-ticker.C:
			}

			current += increment
			done := step >= steps || current >= float64(upper)
			if done {
				current = float64(upper)
			}
			if stopped.Load() {
				return
			}
			if onTick != nil {
				onTick(int(math.Round(current)))
			}
			if done {
				cancel()
				return
			}
		}
	}()

	return cancel
}

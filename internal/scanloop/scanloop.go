// Package scanloop runs the periodic cycles (liveness polling, bonus
// claiming) on a fixed cadence.
package scanloop

import (
	"time"
)

// Run executes fn every interval until stopCh is closed. The timer is reset
// after fn returns, so a slow cycle delays the next one rather than
// overlapping it.
func Run(stopCh <-chan struct{}, interval time.Duration, fn func()) {
	if interval <= 0 {
		interval = time.Second
	}

	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-timer.C:
		}
		fn()
		timer.Reset(interval)
	}
}

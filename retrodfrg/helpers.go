package retrodfrg

import (
	"time"
)

// WaitWithStop holds the final screen for d, or until the user presses a
// stop key. It returns ErrInterrupted in the latter case.
func WaitWithStop(u *UI, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-u.stopChan:
		return ErrInterrupted
	case <-timer.C:
		return nil
	}
}

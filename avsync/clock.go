package avsync

import "time"

// clockInfo is the per-stream extrapolation state from §3: pts_ms,
// the system time it was captured at, and a slow drift correction.
// The extrapolation contract is current = pts_ms + (now - system_time)
// + drift.
type clockInfo struct {
	ptsMS      float64
	systemTime time.Time
	drift      float64
}

// current evaluates the extrapolation contract at now.
func (c clockInfo) current(now time.Time) float64 {
	return c.ptsMS + now.Sub(c.systemTime).Seconds()*1000 + c.drift
}

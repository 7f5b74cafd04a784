package actuator

import "sync/atomic"

// Reachability is the last known result of the liveness probe. It starts up.
type Reachability struct {
	down atomic.Bool
}

func NewReachability() *Reachability {
	return &Reachability{}
}

func (r *Reachability) Up() bool {
	return !r.down.Load()
}

// Set records the probe result and reports whether it changed.
func (r *Reachability) Set(up bool) bool {
	return r.down.Swap(!up) == up
}

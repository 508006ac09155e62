package cgroup

// ResourceLimits is an immutable snapshot of the limits configured for the
// calling process's cgroup. Fields are nil when the platform does not expose
// a value ("max", missing file, v1 hierarchy without the controller, ...).
// Snapshots are re-read on demand and never cached across a run.
type ResourceLimits struct {
	MemoryLimitBytes *int64
	CPUQuotaMicros   *int64
	CPUPeriodMicros  *int64
}

// EffectiveCPUs returns quota/period when both are known.
func (l ResourceLimits) EffectiveCPUs() (float64, bool) {
	if l.CPUQuotaMicros == nil || l.CPUPeriodMicros == nil || *l.CPUPeriodMicros == 0 {
		return 0, false
	}
	return float64(*l.CPUQuotaMicros) / float64(*l.CPUPeriodMicros), true
}

// UsageSample is a point-in-time observation of cgroup memory and CPU
// accounting. Deltas are computed by subtracting two samples taken at
// different times; the counters themselves are cumulative.
type UsageSample struct {
	CurrentBytes *int64
	PeakBytes    *int64
	SelfRSSBytes *int64
	Events       map[string]int64
	CPUStat      map[string]int64
}

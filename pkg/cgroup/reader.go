// Package cgroup reads resource-limit and usage telemetry for the calling
// process's own cgroup. Every read is best-effort: the unified (v2)
// hierarchy files are tried first, then the legacy (v1) per-controller
// paths, and anything missing or unparsable yields an absent value. Absence
// is a normal outcome on hosts without limits configured, never an error
// the caller has to handle.
package cgroup

import (
	"bufio"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/container-tools/cgpress/pkg/logging"
)

const (
	defaultCgroupRoot = "/sys/fs/cgroup"
	defaultProcRoot   = "/proc"
)

// Reader resolves telemetry under a cgroup filesystem root and a procfs
// root. Both default to the system locations; tests point them at fixture
// directories.
type Reader struct {
	cgroupRoot string
	procRoot   string
	logger     logging.Logger
}

type ReaderOption func(*Reader)

// WithRoots overrides the cgroup and procfs mount points.
func WithRoots(cgroupRoot, procRoot string) ReaderOption {
	return func(r *Reader) {
		r.cgroupRoot = cgroupRoot
		r.procRoot = procRoot
	}
}

func NewReader(logger logging.Logger, opts ...ReaderOption) *Reader {
	r := &Reader{
		cgroupRoot: defaultCgroupRoot,
		procRoot:   defaultProcRoot,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// readInt64 reads a single integer value from a pseudo-file.
func (r *Reader) readInt64(relPath string) *int64 {
	data, err := os.ReadFile(filepath.Join(r.cgroupRoot, relPath))
	if err != nil {
		return nil
	}
	value, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		r.logger.Debugf("unparsable value in %s: %v", relPath, err)
		return nil
	}
	return &value
}

// firstInt64 returns the first path that yields a value.
func (r *Reader) firstInt64(relPaths ...string) *int64 {
	for _, p := range relPaths {
		if v := r.readInt64(p); v != nil {
			return v
		}
	}
	return nil
}

// readCounters parses "name value" lines into a map. Returns nil when the
// file is absent, an empty-or-partial map otherwise.
func (r *Reader) readCounters(relPath string) map[string]int64 {
	file, err := os.Open(filepath.Join(r.cgroupRoot, relPath))
	if err != nil {
		return nil
	}
	defer file.Close()

	counters := make(map[string]int64)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) != 2 {
			continue
		}
		value, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			continue
		}
		counters[fields[0]] = value
	}
	return counters
}

// ReadLimits resolves the memory limit and CPU quota/period, unified
// hierarchy first. A v2 value of "max" means unlimited and stays absent.
func (r *Reader) ReadLimits() ResourceLimits {
	var limits ResourceLimits

	if data, err := os.ReadFile(filepath.Join(r.cgroupRoot, "memory.max")); err == nil {
		raw := strings.TrimSpace(string(data))
		if raw != "max" {
			if value, err := strconv.ParseInt(raw, 10, 64); err == nil {
				limits.MemoryLimitBytes = &value
			}
		}
	}
	if limits.MemoryLimitBytes == nil {
		limits.MemoryLimitBytes = r.firstInt64(
			"memory/memory.limit_in_bytes",
			"memory.limit_in_bytes",
		)
	}

	if data, err := os.ReadFile(filepath.Join(r.cgroupRoot, "cpu.max")); err == nil {
		fields := strings.Fields(string(data))
		if len(fields) == 2 && fields[0] != "max" {
			quota, qErr := strconv.ParseInt(fields[0], 10, 64)
			period, pErr := strconv.ParseInt(fields[1], 10, 64)
			if qErr == nil && pErr == nil {
				limits.CPUQuotaMicros = &quota
				limits.CPUPeriodMicros = &period
			}
		}
	}
	if limits.CPUQuotaMicros == nil || limits.CPUPeriodMicros == nil {
		quota := r.readInt64("cpu/cpu.cfs_quota_us")
		period := r.readInt64("cpu/cpu.cfs_period_us")
		// v1 reports -1 for unlimited
		if quota != nil && period != nil && *quota > 0 {
			limits.CPUQuotaMicros = quota
			limits.CPUPeriodMicros = period
		}
	}

	return limits
}

// ReadCurrentUsage returns the cgroup's current memory usage in bytes.
func (r *Reader) ReadCurrentUsage() *int64 {
	return r.firstInt64(
		"memory.current",
		"memory/memory.usage_in_bytes",
		"memory.usage_in_bytes",
	)
}

// ReadPeakUsage returns the high-water memory usage in bytes.
func (r *Reader) ReadPeakUsage() *int64 {
	return r.firstInt64(
		"memory.peak",
		"memory/memory.max_usage_in_bytes",
		"memory.max_usage_in_bytes",
	)
}

// ReadMemoryEvents returns cumulative memory event counters (low, high,
// max, oom, oom_kill) when the platform provides them. The local variant is
// preferred because it excludes descendant cgroups.
func (r *Reader) ReadMemoryEvents() map[string]int64 {
	for _, name := range []string{"memory.events.local", "memory.events"} {
		if counters := r.readCounters(name); counters != nil {
			return counters
		}
	}
	return nil
}

// ReadCPUAccounting returns cumulative CPU accounting counters, notably
// nr_periods, nr_throttled and throttled_usec on v2 (throttled_time on v1).
func (r *Reader) ReadCPUAccounting() map[string]int64 {
	for _, name := range []string{"cpu.stat", "cpu/cpu.stat"} {
		if counters := r.readCounters(name); counters != nil {
			return counters
		}
	}
	return nil
}

// ReadSelfRSS returns the calling process's resident set size from the
// platform's process-status interface.
func (r *Reader) ReadSelfRSS() *int64 {
	file, err := os.Open(filepath.Join(r.procRoot, "self", "status"))
	if err != nil {
		return nil
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "VmRSS:") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			return nil
		}
		kb, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return nil
		}
		bytes := kb * 1024
		return &bytes
	}
	return nil
}

// Sample takes one combined point-in-time observation.
func (r *Reader) Sample() UsageSample {
	return UsageSample{
		CurrentBytes: r.ReadCurrentUsage(),
		PeakBytes:    r.ReadPeakUsage(),
		SelfRSSBytes: r.ReadSelfRSS(),
		Events:       r.ReadMemoryEvents(),
		CPUStat:      r.ReadCPUAccounting(),
	}
}

package cgroup

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// CgroupMockLogger is a no-op Logger for tests.
type CgroupMockLogger struct{}

func (m *CgroupMockLogger) Debugf(format string, args ...interface{}) {}
func (m *CgroupMockLogger) Infof(format string, args ...interface{})  {}
func (m *CgroupMockLogger) Warnf(format string, args ...interface{})  {}
func (m *CgroupMockLogger) Errorf(format string, args ...interface{}) {}

func newTestReader(t *testing.T) (*Reader, string, string) {
	t.Helper()
	cgroupRoot := t.TempDir()
	procRoot := t.TempDir()
	reader := NewReader(&CgroupMockLogger{}, WithRoots(cgroupRoot, procRoot))
	return reader, cgroupRoot, procRoot
}

func writeFile(t *testing.T, root, relPath, content string) {
	t.Helper()
	path := filepath.Join(root, relPath)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestReadLimits_V2(t *testing.T) {
	reader, root, _ := newTestReader(t)
	writeFile(t, root, "memory.max", "209715200\n")
	writeFile(t, root, "cpu.max", "200000 1000000\n")

	limits := reader.ReadLimits()

	require.NotNil(t, limits.MemoryLimitBytes)
	assert.Equal(t, int64(209715200), *limits.MemoryLimitBytes)
	require.NotNil(t, limits.CPUQuotaMicros)
	assert.Equal(t, int64(200000), *limits.CPUQuotaMicros)
	require.NotNil(t, limits.CPUPeriodMicros)
	assert.Equal(t, int64(1000000), *limits.CPUPeriodMicros)

	cpus, ok := limits.EffectiveCPUs()
	require.True(t, ok)
	assert.InDelta(t, 0.2, cpus, 0.0001)
}

func TestReadLimits_V2Unlimited(t *testing.T) {
	reader, root, _ := newTestReader(t)
	writeFile(t, root, "memory.max", "max\n")
	writeFile(t, root, "cpu.max", "max 100000\n")

	limits := reader.ReadLimits()

	assert.Nil(t, limits.MemoryLimitBytes)
	assert.Nil(t, limits.CPUQuotaMicros)
	assert.Nil(t, limits.CPUPeriodMicros)
}

func TestReadLimits_V1Fallback(t *testing.T) {
	reader, root, _ := newTestReader(t)
	writeFile(t, root, "memory/memory.limit_in_bytes", "104857600\n")
	writeFile(t, root, "cpu/cpu.cfs_quota_us", "50000\n")
	writeFile(t, root, "cpu/cpu.cfs_period_us", "100000\n")

	limits := reader.ReadLimits()

	require.NotNil(t, limits.MemoryLimitBytes)
	assert.Equal(t, int64(104857600), *limits.MemoryLimitBytes)
	require.NotNil(t, limits.CPUQuotaMicros)
	assert.Equal(t, int64(50000), *limits.CPUQuotaMicros)
}

func TestReadLimits_V1UnlimitedQuota(t *testing.T) {
	reader, root, _ := newTestReader(t)
	writeFile(t, root, "cpu/cpu.cfs_quota_us", "-1\n")
	writeFile(t, root, "cpu/cpu.cfs_period_us", "100000\n")

	limits := reader.ReadLimits()

	assert.Nil(t, limits.CPUQuotaMicros)
	assert.Nil(t, limits.CPUPeriodMicros)
}

func TestReadLimits_V2PreferredOverV1(t *testing.T) {
	reader, root, _ := newTestReader(t)
	writeFile(t, root, "memory.max", "209715200\n")
	writeFile(t, root, "memory/memory.limit_in_bytes", "104857600\n")

	limits := reader.ReadLimits()

	require.NotNil(t, limits.MemoryLimitBytes)
	assert.Equal(t, int64(209715200), *limits.MemoryLimitBytes)
}

func TestReadLimits_NothingAvailable(t *testing.T) {
	reader, _, _ := newTestReader(t)

	limits := reader.ReadLimits()

	assert.Nil(t, limits.MemoryLimitBytes)
	assert.Nil(t, limits.CPUQuotaMicros)
	_, ok := limits.EffectiveCPUs()
	assert.False(t, ok)
}

func TestReadCurrentUsage_FallbackOrder(t *testing.T) {
	reader, root, _ := newTestReader(t)
	assert.Nil(t, reader.ReadCurrentUsage())

	writeFile(t, root, "memory/memory.usage_in_bytes", "1111\n")
	require.NotNil(t, reader.ReadCurrentUsage())
	assert.Equal(t, int64(1111), *reader.ReadCurrentUsage())

	writeFile(t, root, "memory.current", "2222\n")
	assert.Equal(t, int64(2222), *reader.ReadCurrentUsage())
}

func TestReadPeakUsage(t *testing.T) {
	reader, root, _ := newTestReader(t)
	assert.Nil(t, reader.ReadPeakUsage())

	writeFile(t, root, "memory.peak", "333\n")
	require.NotNil(t, reader.ReadPeakUsage())
	assert.Equal(t, int64(333), *reader.ReadPeakUsage())
}

func TestReadCurrentUsage_Unparsable(t *testing.T) {
	reader, root, _ := newTestReader(t)
	writeFile(t, root, "memory.current", "not a number\n")

	assert.Nil(t, reader.ReadCurrentUsage())
}

func TestReadMemoryEvents_PrefersLocal(t *testing.T) {
	reader, root, _ := newTestReader(t)
	assert.Nil(t, reader.ReadMemoryEvents())

	writeFile(t, root, "memory.events", "low 0\nhigh 5\nmax 2\noom 1\noom_kill 0\n")
	events := reader.ReadMemoryEvents()
	require.NotNil(t, events)
	assert.Equal(t, int64(5), events["high"])
	assert.Equal(t, int64(1), events["oom"])

	writeFile(t, root, "memory.events.local", "low 0\nhigh 9\n")
	events = reader.ReadMemoryEvents()
	assert.Equal(t, int64(9), events["high"])
}

func TestReadCPUAccounting(t *testing.T) {
	reader, root, _ := newTestReader(t)
	assert.Nil(t, reader.ReadCPUAccounting())

	writeFile(t, root, "cpu.stat", "usage_usec 123456\nnr_periods 100\nnr_throttled 7\nthrottled_usec 4242\n")
	stat := reader.ReadCPUAccounting()
	require.NotNil(t, stat)
	assert.Equal(t, int64(100), stat["nr_periods"])
	assert.Equal(t, int64(7), stat["nr_throttled"])
	assert.Equal(t, int64(4242), stat["throttled_usec"])
}

func TestReadCPUAccounting_V1Fallback(t *testing.T) {
	reader, root, _ := newTestReader(t)
	writeFile(t, root, "cpu/cpu.stat", "nr_periods 10\nnr_throttled 2\nthrottled_time 999\n")

	stat := reader.ReadCPUAccounting()
	require.NotNil(t, stat)
	assert.Equal(t, int64(999), stat["throttled_time"])
}

func TestReadSelfRSS(t *testing.T) {
	reader, _, procRoot := newTestReader(t)
	assert.Nil(t, reader.ReadSelfRSS())

	writeFile(t, procRoot, "self/status",
		"Name:\tcgpress\nVmPeak:\t  204800 kB\nVmRSS:\t  102400 kB\nThreads:\t4\n")

	rss := reader.ReadSelfRSS()
	require.NotNil(t, rss)
	assert.Equal(t, int64(102400*1024), *rss)
}

func TestSample_CombinesAllReads(t *testing.T) {
	reader, root, procRoot := newTestReader(t)
	writeFile(t, root, "memory.current", "100\n")
	writeFile(t, root, "memory.peak", "200\n")
	writeFile(t, root, "memory.events", "oom 0\n")
	writeFile(t, root, "cpu.stat", "nr_periods 1\n")
	writeFile(t, procRoot, "self/status", "VmRSS:\t4 kB\n")

	sample := reader.Sample()

	require.NotNil(t, sample.CurrentBytes)
	assert.Equal(t, int64(100), *sample.CurrentBytes)
	require.NotNil(t, sample.PeakBytes)
	assert.Equal(t, int64(200), *sample.PeakBytes)
	require.NotNil(t, sample.SelfRSSBytes)
	assert.Equal(t, int64(4096), *sample.SelfRSSBytes)
	assert.Equal(t, int64(0), sample.Events["oom"])
	assert.Equal(t, int64(1), sample.CPUStat["nr_periods"])
}

func TestSample_EmptyEnvironment(t *testing.T) {
	reader, _, _ := newTestReader(t)

	sample := reader.Sample()

	assert.Nil(t, sample.CurrentBytes)
	assert.Nil(t, sample.PeakBytes)
	assert.Nil(t, sample.SelfRSSBytes)
	assert.Nil(t, sample.Events)
	assert.Nil(t, sample.CPUStat)
}

package pressure

import (
	"context"
	"math"
	"runtime"
	"strconv"
	"time"

	"github.com/container-tools/cgpress/pkg/logging"
)

// workerJoinGrace bounds how long the engine waits for a worker past the
// shared deadline before giving up on it.
const workerJoinGrace = time.Second

// busySlice bounds how long a burst worker spins between deadline and
// cancellation checks, so shutdown latency stays at loop granularity.
const busySlice = 100 * time.Millisecond

// CPUConfig configures the CPU pressure engine.
type CPUConfig struct {
	Workers         int
	Duration        time.Duration
	DisableAffinity bool
	Mode            Mode
	RampInterval    time.Duration // between worker spawns, ramp mode only
	DutyOn          time.Duration // busy phase per cycle, ramp mode only
	DutyOff         time.Duration // idle phase per cycle, ramp mode only
}

// worker is one independently scheduled execution unit. Workers share no
// mutable state; each owns its accumulator and observes only the shared
// deadline and the run context.
type worker struct {
	id         int
	pinnedCore *int
	dutyOn     time.Duration
	dutyOff    time.Duration
	deadline   time.Time
	done       chan struct{}
}

// CPUEngine drives a pool of CPU-burning workers under a shared time
// budget, with optional core pinning and optional duty-cycling.
type CPUEngine struct {
	config CPUConfig
	logger logging.Logger
}

func NewCPUEngine(config CPUConfig, logger logging.Logger) *CPUEngine {
	return &CPUEngine{
		config: config,
		logger: logger,
	}
}

// Run spawns the worker pool and blocks until the shared deadline passes
// and the workers have been joined, each with a bounded grace period.
// It returns the number of workers that were started.
func (e *CPUEngine) Run(ctx context.Context) int {
	count := e.config.Workers
	if count < 1 {
		count = 1
	}
	deadline := time.Now().Add(e.config.Duration)

	var cores []int
	if !e.config.DisableAffinity {
		cores = availableCores()
	}

	var workers []*worker
	if e.config.Mode == ModeRamp {
		workers = e.spawnRamped(ctx, count, cores, deadline)
	} else {
		workers = e.spawnAll(ctx, count, cores, deadline)
		e.idleUntil(ctx, deadline)
	}

	e.join(workers, deadline)
	e.logger.Infof("all workers finished, started=%d", len(workers))
	return len(workers)
}

// spawnAll starts the whole pool immediately (burst mode).
func (e *CPUEngine) spawnAll(ctx context.Context, count int, cores []int, deadline time.Time) []*worker {
	workers := make([]*worker, 0, count)
	for i := 0; i < count; i++ {
		w := e.spawn(ctx, i, cores, deadline)
		workers = append(workers, w)
		e.logger.Infof("started worker %d/%d pin=%s", i+1, count, pinLabel(w.pinnedCore))
	}
	return workers
}

// spawnRamped starts one worker per ramp interval until the pool is full or
// the deadline passes, then idles until the deadline (ramp mode).
func (e *CPUEngine) spawnRamped(ctx context.Context, count int, cores []int, deadline time.Time) []*worker {
	var workers []*worker
	for time.Now().Before(deadline) && ctx.Err() == nil {
		if len(workers) < count {
			w := e.spawn(ctx, len(workers), cores, deadline)
			workers = append(workers, w)
			e.logger.Infof("worker started=%d/%d pin=%s duty=%v/%v",
				len(workers), count, pinLabel(w.pinnedCore), e.config.DutyOn, e.config.DutyOff)
			sleepCtx(ctx, boundedBy(e.config.RampInterval, deadline))
		} else {
			sleepCtx(ctx, boundedBy(500*time.Millisecond, deadline))
		}
	}
	return workers
}

func (e *CPUEngine) spawn(ctx context.Context, id int, cores []int, deadline time.Time) *worker {
	w := &worker{
		id:       id,
		dutyOn:   e.config.DutyOn,
		dutyOff:  e.config.DutyOff,
		deadline: deadline,
		done:     make(chan struct{}),
	}
	if e.config.Mode != ModeRamp {
		w.dutyOn = 0
		w.dutyOff = 0
	}
	if len(cores) > 0 {
		core := cores[id%len(cores)]
		w.pinnedCore = &core
	}
	go w.run(ctx, e.logger)
	return w
}

// join waits for every worker, bounded by the shared deadline plus a grace
// period. A worker that overstays is abandoned, never blocked on.
func (e *CPUEngine) join(workers []*worker, deadline time.Time) {
	graceEnd := deadline.Add(workerJoinGrace)
	for _, w := range workers {
		remaining := time.Until(graceEnd)
		if remaining < 0 {
			remaining = 0
		}
		timer := time.NewTimer(remaining)
		select {
		case <-w.done:
			timer.Stop()
		case <-timer.C:
			e.logger.Warnf("worker %d still busy after grace period, abandoning", w.id)
		}
	}
}

func (e *CPUEngine) idleUntil(ctx context.Context, deadline time.Time) {
	for time.Now().Before(deadline) && ctx.Err() == nil {
		sleepCtx(ctx, boundedBy(500*time.Millisecond, deadline))
	}
}

// run is the worker body. The goroutine is locked to its OS thread so the
// affinity mask applies to this worker alone.
func (w *worker) run(ctx context.Context, logger logging.Logger) {
	defer close(w.done)
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if w.pinnedCore != nil {
		if err := pinCurrentThread(*w.pinnedCore); err != nil {
			// Best-effort: keep generating load unpinned.
			logger.Warnf("worker %d: pinning to core %d failed: %v", w.id, *w.pinnedCore, err)
		}
	}

	x := 0.0
	for time.Now().Before(w.deadline) {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if w.dutyOn > 0 {
			x = burn(x, nearestDeadline(w.deadline, w.dutyOn))
			if w.dutyOff > 0 {
				sleepCtx(ctx, w.dutyOff)
			}
		} else {
			x = burn(x, nearestDeadline(w.deadline, busySlice))
		}
	}
}

// burn keeps the floating-point unit busy until the given instant. The
// constants sit slightly above 1 to defeat trivial loop elimination; the
// periodic modulo keeps the accumulator bounded. The clock is consulted
// once per 4096 iterations to keep the hot loop hot.
func burn(x float64, until time.Time) float64 {
	for i := 0; ; i++ {
		x = (x + 1.0000001) * 1.0000002
		if x > 1e12 {
			x = math.Mod(x, 123456.789)
		}
		if i&0xfff == 0 && !time.Now().Before(until) {
			return x
		}
	}
}

func nearestDeadline(deadline time.Time, slice time.Duration) time.Time {
	sliceEnd := time.Now().Add(slice)
	if sliceEnd.After(deadline) {
		return deadline
	}
	return sliceEnd
}

// boundedBy trims a sleep so it never overshoots the deadline.
func boundedBy(d time.Duration, deadline time.Time) time.Duration {
	if remaining := time.Until(deadline); remaining < d {
		return remaining
	}
	return d
}

func pinLabel(core *int) string {
	if core == nil {
		return "none"
	}
	return "cpu" + strconv.Itoa(*core)
}

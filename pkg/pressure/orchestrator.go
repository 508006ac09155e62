package pressure

import (
	"context"
	"sync"

	"github.com/container-tools/cgpress/pkg/cgroup"
	"github.com/container-tools/cgpress/pkg/logging"
	"github.com/container-tools/cgpress/pkg/units"
)

// Config aggregates the engine configurations for one run.
type Config struct {
	Mode   Mode
	Memory MemoryConfig
	CPU    CPUConfig
	IO     IOConfig
}

// Orchestrator composes the engines concurrently: the I/O and CPU engines
// run as independent goroutines while the memory engine runs on the
// orchestrator's own flow. It samples telemetry before and after, computes
// CPU throttling deltas and emits the final summary.
type Orchestrator struct {
	config    Config
	telemetry Telemetry
	logger    logging.Logger
	sink      logging.LogFuncs

	// blocks holds the memory allocated by the run. They are retained
	// until process exit; dropping them earlier would release the
	// pressure the run exists to create.
	blocks [][]byte
}

func NewOrchestrator(config Config, telemetry Telemetry, sink logging.LogFuncs) *Orchestrator {
	return &Orchestrator{
		config:    config,
		telemetry: telemetry,
		logger:    logging.NewLogger("[main] ", sink),
		sink:      sink,
	}
}

// Run executes one full pressure run. It returns normally both on
// completion and on cancellation; a termination signal produces a log
// record and a prompt return, leaving spawned workers to self-terminate on
// their own deadline or with the process.
func (o *Orchestrator) Run(ctx context.Context) {
	limits := o.telemetry.ReadLimits()
	o.logLimitsBanner(limits)
	baseline := o.telemetry.Sample()

	var wg sync.WaitGroup

	if o.config.Mode == ModeBurst {
		ioEngine := NewIOEngine(o.config.IO, logging.NewLogger("[io] ", o.sink))
		wg.Add(1)
		go func() {
			defer wg.Done()
			ioEngine.Run(ctx)
		}()
	}

	cpuEngine := NewCPUEngine(o.config.CPU, logging.NewLogger("[cpu] ", o.sink))
	wg.Add(1)
	go func() {
		defer wg.Done()
		cpuEngine.Run(ctx)
	}()

	memEngine := NewMemoryEngine(o.config.Memory, o.telemetry, logging.NewLogger("[mem] ", o.sink))
	o.blocks = memEngine.Run(ctx)

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		o.logger.Infof("termination requested, exiting")
		return
	}

	o.logSummary(baseline, o.telemetry.Sample())
}

// Blocks exposes the retained memory so the caller can keep it alive until
// process exit.
func (o *Orchestrator) Blocks() [][]byte {
	return o.blocks
}

func (o *Orchestrator) logLimitsBanner(limits cgroup.ResourceLimits) {
	o.logger.Infof("=== cgroup limits ===")
	if limits.MemoryLimitBytes != nil {
		o.logger.Infof("memory.max: %s", units.HumanBytes(*limits.MemoryLimitBytes))
	} else {
		o.logger.Infof("memory.max: unlimited/unknown")
	}
	if cpus, ok := limits.EffectiveCPUs(); ok {
		o.logger.Infof("cpu.max: %d/%d (~%.2f CPUs)", *limits.CPUQuotaMicros, *limits.CPUPeriodMicros, cpus)
	} else {
		o.logger.Infof("cpu.max: unlimited/unknown")
	}
	o.logger.Infof("=====================")
}

func (o *Orchestrator) logSummary(baseline, final cgroup.UsageSample) {
	throttledKey := "throttled_usec" // cgroup v1 reports throttled_time
	if _, ok := final.CPUStat[throttledKey]; !ok {
		if _, ok := final.CPUStat["throttled_time"]; ok {
			throttledKey = "throttled_time"
		}
	}

	if _, ok := final.CPUStat[throttledKey]; ok && baseline.CPUStat != nil {
		o.logger.Infof("final: current=%s peak=%s rss=%s; %s+=%d nr_throttled+=%d periods+=%d",
			units.HumanBytesPtr(final.CurrentBytes),
			units.HumanBytesPtr(final.PeakBytes),
			units.HumanBytesPtr(final.SelfRSSBytes),
			throttledKey,
			final.CPUStat[throttledKey]-baseline.CPUStat[throttledKey],
			final.CPUStat["nr_throttled"]-baseline.CPUStat["nr_throttled"],
			final.CPUStat["nr_periods"]-baseline.CPUStat["nr_periods"])
		return
	}
	o.logger.Infof("final: current=%s peak=%s rss=%s; cpu accounting not available",
		units.HumanBytesPtr(final.CurrentBytes),
		units.HumanBytesPtr(final.PeakBytes),
		units.HumanBytesPtr(final.SelfRSSBytes))
}

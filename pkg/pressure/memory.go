package pressure

import (
	"context"
	"fmt"
	"time"

	"github.com/container-tools/cgpress/pkg/cgroup"
	"github.com/container-tools/cgpress/pkg/errors"
	"github.com/container-tools/cgpress/pkg/logging"
	"github.com/container-tools/cgpress/pkg/units"
)

const pageSize = 4096

// Telemetry is the surface the engines sample between allocations.
// *cgroup.Reader satisfies it; tests substitute deterministic fakes.
type Telemetry interface {
	ReadLimits() cgroup.ResourceLimits
	ReadCurrentUsage() *int64
	Sample() cgroup.UsageSample
}

// MemoryConfig configures the memory pressure engine.
type MemoryConfig struct {
	TargetBytes   int64
	BlockBytes    int64
	HeadroomBytes int64
	Mode          Mode
	PauseInterval time.Duration // between blocks, ramp mode only
}

// MemoryEngine incrementally allocates and physically commits memory up to
// the target, stopping early when live telemetry shows usage inside the
// headroom margin or when the platform refuses an allocation.
type MemoryEngine struct {
	config    MemoryConfig
	telemetry Telemetry
	logger    logging.Logger
}

func NewMemoryEngine(config MemoryConfig, telemetry Telemetry, logger logging.Logger) *MemoryEngine {
	return &MemoryEngine{
		config:    config,
		telemetry: telemetry,
		logger:    logger,
	}
}

// Run allocates blocks until the target is reached, the headroom guard
// trips, an allocation fails, or the context is cancelled. The returned
// blocks must stay referenced for the remainder of the run; releasing them
// early would undo the induced pressure.
//
// The headroom check is a soft, racy guard: the usage sample is stale by
// the time the next allocation completes. It reduces the chance of an
// external kill, it does not prevent one; the authoritative backstop is the
// allocation failure path.
func (e *MemoryEngine) Run(ctx context.Context) [][]byte {
	var blocks [][]byte
	var allocated int64
	start := time.Now()

	e.logger.Infof("target=%s, block=%s, headroom=%s, mode=%s",
		units.HumanBytes(e.config.TargetBytes),
		units.HumanBytes(e.config.BlockBytes),
		units.HumanBytes(e.config.HeadroomBytes),
		e.config.Mode)

	for allocated < e.config.TargetBytes {
		select {
		case <-ctx.Done():
			e.logger.Infof("cancelled at %s", units.HumanBytes(allocated))
			return blocks
		default:
		}

		current := e.telemetry.ReadCurrentUsage()
		limits := e.telemetry.ReadLimits()
		if current != nil && limits.MemoryLimitBytes != nil {
			floor := *limits.MemoryLimitBytes - e.config.HeadroomBytes
			if floor < 0 {
				floor = 0
			}
			if *current >= floor {
				e.logger.Infof("stopping before headroom breach: current=%s / limit=%s",
					units.HumanBytes(*current), units.HumanBytes(*limits.MemoryLimitBytes))
				break
			}
		}

		blockSize := e.config.BlockBytes
		if remaining := e.config.TargetBytes - allocated; remaining < blockSize {
			blockSize = remaining
		}
		e.logger.Infof("plan: +%s next (allocated=%s, current=%s)",
			units.HumanBytes(blockSize), units.HumanBytes(allocated), units.HumanBytesPtr(current))

		block, err := commitBlock(blockSize)
		if err != nil {
			e.logger.Errorf("allocation failed at %s / requested %s: %v",
				units.HumanBytes(allocated), units.HumanBytes(e.config.TargetBytes), err)
			break
		}
		blocks = append(blocks, block)
		allocated += blockSize

		e.logProgress(allocated, len(blocks), limits)

		if e.config.Mode == ModeRamp {
			sleepCtx(ctx, e.config.PauseInterval)
		}
	}

	e.logger.Infof("done: %s in %.2fs, blocks=%d",
		units.HumanBytes(allocated), time.Since(start).Seconds(), len(blocks))
	return blocks
}

func (e *MemoryEngine) logProgress(allocated int64, blockCount int, limits cgroup.ResourceLimits) {
	sample := e.telemetry.Sample()
	ratio := "n/a"
	if sample.CurrentBytes != nil && limits.MemoryLimitBytes != nil && *limits.MemoryLimitBytes > 0 {
		ratio = fmt.Sprintf("%.1f%%", float64(*sample.CurrentBytes)/float64(*limits.MemoryLimitBytes)*100)
	}
	e.logger.Infof("allocated=%s blocks=%d current=%s peak=%s rss=%s limit=%s (%s) events=%v",
		units.HumanBytes(allocated),
		blockCount,
		units.HumanBytesPtr(sample.CurrentBytes),
		units.HumanBytesPtr(sample.PeakBytes),
		units.HumanBytesPtr(sample.SelfRSSBytes),
		units.HumanBytesPtr(limits.MemoryLimitBytes),
		ratio,
		sample.Events)
}

// commitBlock allocates a zero-initialized buffer and writes one byte at
// every page-aligned offset so each page is physically committed; a lazily
// committed buffer would make the pressure illusory. Allocation exhaustion
// surfaces as a recovered panic and becomes an allocation error.
func commitBlock(size int64) (block []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			block = nil
			err = errors.NewAllocationError(fmt.Sprintf("%v", r), nil).WithContext("size", size)
		}
	}()
	block = make([]byte, size)
	for off := int64(0); off < size; off += pageSize {
		block[off] = 1
	}
	return block, nil
}

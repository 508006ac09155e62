// Package pressure contains the adaptive resource-pressure engines: memory
// allocation against a live headroom guard, a pool of CPU-burning workers,
// and a disposable-file I/O burst, composed by an orchestrator. The engines
// share no mutable state; they coordinate only through cgroup telemetry
// reads and the injected log sink.
package pressure

import (
	"context"
	"fmt"
	"time"

	"github.com/container-tools/cgpress/pkg/errors"
)

// Mode selects the pacing of a pressure run. The engines are otherwise
// identical: Burst allocates and spins flat out, Ramp paces allocations,
// staggers worker startup and duty-cycles the busy loops.
type Mode string

const (
	ModeBurst Mode = "burst"
	ModeRamp  Mode = "ramp"
)

// ParseMode accepts the two mode spellings, defaulting empty input to Burst.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeBurst, ModeRamp:
		return Mode(s), nil
	case "":
		return ModeBurst, nil
	default:
		return "", errors.NewValidationError(fmt.Sprintf("unknown mode %q, want burst or ramp", s), nil)
	}
}

// sleepCtx sleeps for d or until the context is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

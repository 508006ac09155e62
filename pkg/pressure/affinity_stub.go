//go:build !linux

package pressure

import (
	"github.com/container-tools/cgpress/pkg/errors"
)

// Scheduling affinity is only available on Linux; elsewhere the engine
// runs unpinned and pinning requests fail softly.

func availableCores() []int {
	return nil
}

func pinCurrentThread(core int) error {
	return errors.NewInternalError("cpu pinning not supported on this platform", nil).WithContext("core", core)
}

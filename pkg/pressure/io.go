package pressure

import (
	"context"
	"os"

	"github.com/container-tools/cgpress/pkg/errors"
	"github.com/container-tools/cgpress/pkg/logging"
	"github.com/container-tools/cgpress/pkg/units"
)

const ioChunkSize = 1 << 20 // 1 MiB

// IOConfig configures the disposable-file I/O burst.
type IOConfig struct {
	SizeBytes int64
	Dir       string
}

// IOEngine writes a zero-filled temporary file of the configured size, syncs
// it durably, then deletes it. A failure aborts only this engine's phase;
// cleanup is attempted unconditionally.
type IOEngine struct {
	config IOConfig
	logger logging.Logger
}

func NewIOEngine(config IOConfig, logger logging.Logger) *IOEngine {
	return &IOEngine{
		config: config,
		logger: logger,
	}
}

// Run performs the full write-sync-remove cycle.
func (e *IOEngine) Run(ctx context.Context) {
	if e.config.SizeBytes <= 0 {
		e.logger.Infof("skipped")
		return
	}

	path, err := e.writeFile(ctx)
	if path != "" {
		defer e.removeFile(path)
	}
	if err != nil {
		e.logger.Errorf("%v", err)
		return
	}
	e.logger.Infof("done")
}

// writeFile creates the temporary file and fills it in fixed-size chunks,
// returning its path (possibly alongside an error, so cleanup can still
// target a partially written file).
func (e *IOEngine) writeFile(ctx context.Context) (string, error) {
	if err := os.MkdirAll(e.config.Dir, 0o755); err != nil {
		return "", errors.NewIOError("creating target directory", err).WithContext("dir", e.config.Dir)
	}
	file, err := os.CreateTemp(e.config.Dir, "cgpress_*.bin")
	if err != nil {
		return "", errors.NewIOError("creating temporary file", err).WithContext("dir", e.config.Dir)
	}
	path := file.Name()
	defer file.Close()

	e.logger.Infof("writing %s to %s", units.HumanBytes(e.config.SizeBytes), path)

	chunk := make([]byte, ioChunkSize)
	remaining := e.config.SizeBytes
	for remaining > 0 {
		select {
		case <-ctx.Done():
			return path, errors.NewCancelledError("write interrupted", ctx.Err()).WithContext("path", path)
		default:
		}
		n := int64(len(chunk))
		if remaining < n {
			n = remaining
		}
		if _, err := file.Write(chunk[:n]); err != nil {
			return path, errors.NewIOError("writing chunk", err).WithContext("path", path)
		}
		remaining -= n
	}

	if err := file.Sync(); err != nil {
		return path, errors.NewIOError("syncing file", err).WithContext("path", path)
	}
	return path, nil
}

// removeFile is the unconditional cleanup step; its own failure is logged
// but never escalated.
func (e *IOEngine) removeFile(path string) {
	if err := os.Remove(path); err != nil {
		e.logger.Warnf("removing temp file failed: %v", err)
		return
	}
	e.logger.Infof("temp file removed")
}

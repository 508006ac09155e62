package logging

import (
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Sink is the durable log destination shared by all engines. Every record is
// appended to the log file and synced before the write returns, and mirrored
// to stderr. Records from concurrent engines interleave; each record is a
// single short line, which the underlying file append keeps intact.
type Sink struct {
	logger *zap.Logger
	sugar  *zap.SugaredLogger
	file   *os.File
}

// syncedFile syncs after every write so records survive an abrupt kill of
// the process, which is a normal outcome for a tool that provokes OOM kills.
type syncedFile struct {
	file *os.File
}

func (s syncedFile) Write(p []byte) (int, error) {
	n, err := s.file.Write(p)
	if err != nil {
		return n, err
	}
	return n, s.file.Sync()
}

func (s syncedFile) Sync() error {
	return s.file.Sync()
}

func sinkEncoder() zapcore.Encoder {
	cfg := zapcore.EncoderConfig{
		TimeKey:          "ts",
		MessageKey:       "msg",
		LineEnding:       zapcore.DefaultLineEnding,
		ConsoleSeparator: " | ",
		EncodeTime: func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
			enc.AppendString(t.Format("2006-01-02 15:04:05"))
		},
	}
	return zapcore.NewConsoleEncoder(cfg)
}

// NewSink opens (or creates) the log file in append mode and emits the start
// banner. The caller owns the sink lifecycle and must call Close on every
// exit path.
func NewSink(path string, verbose bool) (*Sink, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}

	level := zapcore.InfoLevel
	if verbose {
		level = zapcore.DebugLevel
	}

	encoder := sinkEncoder()
	core := zapcore.NewTee(
		zapcore.NewCore(encoder, zapcore.Lock(zapcore.AddSync(syncedFile{file: file})), level),
		zapcore.NewCore(encoder, zapcore.Lock(os.Stderr), level),
	)
	logger := zap.New(core)

	s := &Sink{
		logger: logger,
		sugar:  logger.Sugar(),
		file:   file,
	}
	s.sugar.Infof("=== start pid=%d ===", os.Getpid())
	return s, nil
}

func (s *Sink) Debugf(format string, args ...interface{}) {
	s.sugar.Debugf(format, args...)
}

func (s *Sink) Infof(format string, args ...interface{}) {
	s.sugar.Infof(format, args...)
}

func (s *Sink) Warnf(format string, args ...interface{}) {
	s.sugar.Warnf(format, args...)
}

func (s *Sink) Errorf(format string, args ...interface{}) {
	s.sugar.Errorf(format, args...)
}

// Funcs exposes the sink as LogFuncs for prefixed component loggers.
func (s *Sink) Funcs() LogFuncs {
	return LogFuncs{
		Debugf: s.Debugf,
		Infof:  s.Infof,
		Warnf:  s.Warnf,
		Errorf: s.Errorf,
	}
}

// Close emits the stop trailer, flushes and releases the file.
func (s *Sink) Close() {
	s.sugar.Infof("=== graceful stop ===")
	_ = s.logger.Sync()
	_ = s.file.Close()
}

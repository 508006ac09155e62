// Package config resolves CLI options and an optional YAML profile into the
// typed engine configuration. Flags override profile values; anything still
// unset receives the per-mode defaults.
package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/container-tools/cgpress/pkg/errors"
	"github.com/container-tools/cgpress/pkg/pressure"
	"github.com/container-tools/cgpress/pkg/units"
)

// Profile is the raw, stringly-typed run description. The same structure
// backs the YAML profile file and the command-line flags, so merging is a
// field-by-field overlay.
type Profile struct {
	Mode string `yaml:"mode"`

	MemTarget   string `yaml:"mem_target"`
	MemBlock    string `yaml:"mem_block"`
	MemHeadroom string `yaml:"mem_headroom"`
	MemPause    string `yaml:"mem_pause"` // between blocks, ramp mode

	Workers      int    `yaml:"workers"`
	Duration     string `yaml:"duration"`
	RampInterval string `yaml:"ramp_interval"` // between worker spawns, ramp mode
	DutyOn       string `yaml:"duty_on"`       // ramp mode
	DutyOff      string `yaml:"duty_off"`      // ramp mode
	NoAffinity   bool   `yaml:"no_affinity"`

	IOSize string `yaml:"io_size"`
	IODir  string `yaml:"io_dir"`

	LogFile string `yaml:"log_file"`
}

// RunConfig is the fully resolved configuration.
type RunConfig struct {
	Pressure pressure.Config
	LogFile  string
}

// Defaults per mode, matching the tool's deployment profiles: burst mimics
// a fast startup spike, ramp a slow crawl toward the limit.
func defaultsFor(mode pressure.Mode) Profile {
	if mode == pressure.ModeRamp {
		return Profile{
			MemTarget:    "8Gi",
			MemBlock:     "64Mi",
			MemHeadroom:  "0",
			MemPause:     "2s",
			Workers:      2,
			Duration:     "300s",
			RampInterval: "15s",
			DutyOn:       "700ms",
			DutyOff:      "300ms",
			IOSize:       "0",
			IODir:        "/tmp",
			LogFile:      "./cgpress.log",
		}
	}
	return Profile{
		MemTarget:   "2Gi",
		MemBlock:    "128Mi",
		MemHeadroom: "256Mi",
		MemPause:    "0s",
		Workers:     2,
		Duration:    "30s",
		IOSize:      "128Mi",
		IODir:       "/tmp",
		LogFile:     "./cgpress.log",
	}
}

// LoadProfile reads a YAML profile file.
func LoadProfile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewIOError("failed to read profile file", err).WithContext("path", path)
	}
	var profile Profile
	if err := yaml.Unmarshal(data, &profile); err != nil {
		return nil, errors.NewValidationError("failed to parse profile YAML", err).WithContext("path", path)
	}
	return &profile, nil
}

// Merge overlays non-zero fields of over onto base.
func Merge(base, over Profile) Profile {
	merged := base
	if over.Mode != "" {
		merged.Mode = over.Mode
	}
	if over.MemTarget != "" {
		merged.MemTarget = over.MemTarget
	}
	if over.MemBlock != "" {
		merged.MemBlock = over.MemBlock
	}
	if over.MemHeadroom != "" {
		merged.MemHeadroom = over.MemHeadroom
	}
	if over.MemPause != "" {
		merged.MemPause = over.MemPause
	}
	if over.Workers != 0 {
		merged.Workers = over.Workers
	}
	if over.Duration != "" {
		merged.Duration = over.Duration
	}
	if over.RampInterval != "" {
		merged.RampInterval = over.RampInterval
	}
	if over.DutyOn != "" {
		merged.DutyOn = over.DutyOn
	}
	if over.DutyOff != "" {
		merged.DutyOff = over.DutyOff
	}
	if over.NoAffinity {
		merged.NoAffinity = true
	}
	if over.IOSize != "" {
		merged.IOSize = over.IOSize
	}
	if over.IODir != "" {
		merged.IODir = over.IODir
	}
	if over.LogFile != "" {
		merged.LogFile = over.LogFile
	}
	return merged
}

// Resolve validates a merged profile and produces the typed configuration.
func Resolve(profile Profile) (*RunConfig, error) {
	mode, err := pressure.ParseMode(profile.Mode)
	if err != nil {
		return nil, err
	}
	merged := Merge(defaultsFor(mode), profile)

	memTarget, err := parseSizeField("mem_target", merged.MemTarget)
	if err != nil {
		return nil, err
	}
	memBlock, err := parseSizeField("mem_block", merged.MemBlock)
	if err != nil {
		return nil, err
	}
	memHeadroom, err := parseSizeField("mem_headroom", merged.MemHeadroom)
	if err != nil {
		return nil, err
	}
	ioSize, err := parseSizeField("io_size", merged.IOSize)
	if err != nil {
		return nil, err
	}

	memPause, err := parseDurationField("mem_pause", merged.MemPause)
	if err != nil {
		return nil, err
	}
	duration, err := parseDurationField("duration", merged.Duration)
	if err != nil {
		return nil, err
	}
	rampInterval, err := parseDurationField("ramp_interval", merged.RampInterval)
	if err != nil {
		return nil, err
	}
	dutyOn, err := parseDurationField("duty_on", merged.DutyOn)
	if err != nil {
		return nil, err
	}
	dutyOff, err := parseDurationField("duty_off", merged.DutyOff)
	if err != nil {
		return nil, err
	}

	if memBlock <= 0 {
		return nil, errors.NewValidationError("mem_block must be positive", nil).WithContext("mem_block", merged.MemBlock)
	}
	if memTarget < 0 || memHeadroom < 0 || ioSize < 0 {
		return nil, errors.NewValidationError("sizes must not be negative", nil)
	}

	// Clamps rather than errors: the tool should run with whatever it was
	// given, the way its deployment scripts expect.
	workers := merged.Workers
	if workers < 1 {
		workers = 1
	}
	if duration < time.Second {
		duration = time.Second
	}
	if mode == pressure.ModeRamp {
		if dutyOn < time.Millisecond {
			dutyOn = time.Millisecond
		}
		if dutyOff < 0 {
			dutyOff = 0
		}
	}

	return &RunConfig{
		Pressure: pressure.Config{
			Mode: mode,
			Memory: pressure.MemoryConfig{
				TargetBytes:   memTarget,
				BlockBytes:    memBlock,
				HeadroomBytes: memHeadroom,
				Mode:          mode,
				PauseInterval: memPause,
			},
			CPU: pressure.CPUConfig{
				Workers:         workers,
				Duration:        duration,
				DisableAffinity: merged.NoAffinity,
				Mode:            mode,
				RampInterval:    rampInterval,
				DutyOn:          dutyOn,
				DutyOff:         dutyOff,
			},
			IO: pressure.IOConfig{
				SizeBytes: ioSize,
				Dir:       merged.IODir,
			},
		},
		LogFile: merged.LogFile,
	}, nil
}

func parseSizeField(field, value string) (int64, error) {
	if value == "" {
		return 0, nil
	}
	n, err := units.ParseSize(value)
	if err != nil {
		return 0, errors.NewValidationError("invalid size for "+field, err).WithContext(field, value)
	}
	return n, nil
}

func parseDurationField(field, value string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, errors.NewValidationError("invalid duration for "+field, err).WithContext(field, value)
	}
	return d, nil
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	flags "github.com/jessevdk/go-flags"

	"github.com/container-tools/cgpress/pkg/cgroup"
	"github.com/container-tools/cgpress/pkg/config"
	"github.com/container-tools/cgpress/pkg/logging"
	"github.com/container-tools/cgpress/pkg/pressure"
)

type flagOptions struct {
	Mode    string `long:"mode" description:"pressure mode: burst or ramp (default: burst)"`
	Profile string `long:"profile" description:"YAML profile file; flags override its values"`

	Mem      string `long:"mem" description:"total memory to allocate, e.g. 2Gi"`
	Block    string `long:"block" description:"size of one allocation block, e.g. 128Mi"`
	Headroom string `long:"headroom" description:"stop allocating within this margin of the memory limit"`
	MemPause string `long:"mem-pause" description:"pause between blocks in ramp mode, e.g. 2s"`

	Workers      int    `long:"workers" description:"number of CPU-burning workers"`
	Duration     string `long:"duration" description:"total CPU phase duration, e.g. 30s"`
	RampInterval string `long:"ramp-every" description:"interval between worker spawns in ramp mode"`
	DutyOn       string `long:"duty-on" description:"busy phase per duty cycle in ramp mode, e.g. 700ms"`
	DutyOff      string `long:"duty-off" description:"idle phase per duty cycle in ramp mode, e.g. 300ms"`
	NoAffinity   bool   `long:"no-affinity" description:"do not pin workers to cores"`

	IOSize string `long:"io-size" description:"bytes to write to a disposable temp file, 0 to disable"`
	IODir  string `long:"io-dir" description:"directory for the temp file"`

	LogFile string `long:"logfile" description:"durable log destination"`
	Verbose bool   `long:"verbose" short:"v" description:"log telemetry read failures"`
}

func main() {
	var opts flagOptions
	parser := flags.NewParser(&opts, flags.HelpFlag)
	if _, err := parser.ParseArgs(os.Args[1:]); err != nil {
		fmt.Printf("Command line flags parsing failed: %v\n", err)
		os.Exit(1)
	}

	var base config.Profile
	if opts.Profile != "" {
		loaded, err := config.LoadProfile(opts.Profile)
		if err != nil {
			fmt.Printf("Profile loading failed: %v\n", err)
			os.Exit(1)
		}
		base = *loaded
	}

	runConfig, err := config.Resolve(config.Merge(base, config.Profile{
		Mode:         opts.Mode,
		MemTarget:    opts.Mem,
		MemBlock:     opts.Block,
		MemHeadroom:  opts.Headroom,
		MemPause:     opts.MemPause,
		Workers:      opts.Workers,
		Duration:     opts.Duration,
		RampInterval: opts.RampInterval,
		DutyOn:       opts.DutyOn,
		DutyOff:      opts.DutyOff,
		NoAffinity:   opts.NoAffinity,
		IOSize:       opts.IOSize,
		IODir:        opts.IODir,
		LogFile:      opts.LogFile,
	}))
	if err != nil {
		fmt.Printf("Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	sink, err := logging.NewSink(runConfig.LogFile, opts.Verbose)
	if err != nil {
		fmt.Printf("Failed to open log sink %s: %v\n", runConfig.LogFile, err)
		os.Exit(1)
	}
	defer sink.Close()

	mainLogger := logging.NewLogger("[main] ", sink.Funcs())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-signals
		mainLogger.Infof("received signal %v, exiting", sig)
		cancel()
	}()

	reader := cgroup.NewReader(logging.NewLogger("[cgroup] ", sink.Funcs()))
	orchestrator := pressure.NewOrchestrator(runConfig.Pressure, reader, sink.Funcs())
	orchestrator.Run(ctx)

	// The allocated blocks stay referenced until here; they are released
	// only by process exit.
	runtime.KeepAlive(orchestrator.Blocks())
}

// Command printq runs the shared-memory print spooler.
//
//	printq [flags] [coordinator|producer|consumer|inspect|cleanup]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/srediag/printq/printer"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cfg, err := printer.LoadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	fs := flag.NewFlagSet("printq", flag.ContinueOnError)
	fs.IntVar(&cfg.SegmentKey, "key", cfg.SegmentKey, "System V key of the shared segment")
	fs.IntVar(&cfg.Capacity, "capacity", cfg.Capacity, "queue slots")
	fs.StringVar(&cfg.SemaphorePrefix, "prefix", cfg.SemaphorePrefix, "semaphore name prefix")
	fs.IntVar(&cfg.Producers, "producers", cfg.Producers, "producer processes")
	fs.IntVar(&cfg.Consumers, "consumers", cfg.Consumers, "consumer processes")
	fs.IntVar(&cfg.RequestsPerProducer, "requests", cfg.RequestsPerProducer, "requests issued by each producer")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn or error")
	fs.StringVar(&cfg.AdminAddr, "admin", cfg.AdminAddr, "address for /live, /ready and /metrics")
	inProcess := fs.Bool("inprocess", false, "run workers as goroutines instead of processes")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if err := printer.VerifyConfig(cfg); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	cmd := fs.Arg(0)
	if cmd == "" {
		cmd = string(printer.RoleCoordinator)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case "inspect":
		return exitCode(printer.Inspect(cfg, os.Stdout))
	case "cleanup":
		return exitCode(printer.Cleanup(cfg))
	}

	if cmd == string(printer.RoleCoordinator) && cfg.RunID == "" {
		cfg.RunID = uuid.NewString()
	}
	log, err := printer.NewLogger(cfg, cmd)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	defer func() { _ = log.Sync() }()

	if cmd == string(printer.RoleCoordinator) {
		return runCoordinator(ctx, cfg, log, *inProcess)
	}

	role, err := printer.ParseRole(cmd)
	if err != nil {
		log.Error("unknown command", zap.String("command", cmd))
		return 2
	}
	err = printer.RunWorker(ctx, cfg, role, cfg.ClientID, log, nil)
	switch {
	case err == nil:
		return 0
	case errors.Is(err, context.Canceled):
		log.Warn("interrupted")
		return 1
	case errors.Is(err, printer.ErrAttach):
		log.Error("cannot attach to the shared queue; is the coordinator running?", zap.Error(err))
		return 1
	default:
		log.Error("worker failed", zap.Error(err))
		return 1
	}
}

func runCoordinator(ctx context.Context, cfg *printer.Config, log *zap.Logger, inProcess bool) int {
	reg := prometheus.NewRegistry()
	metrics := printer.NewMetrics(reg)

	var launcher printer.Launcher
	if inProcess {
		launcher = &printer.InProcessLauncher{Config: cfg, Log: log, Metrics: metrics}
	} else {
		l, err := printer.NewExecLauncher(cfg)
		if err != nil {
			log.Error("cannot launch workers", zap.Error(err))
			return 1
		}
		launcher = l
	}

	coord := printer.NewCoordinator(cfg, launcher, log, reg, metrics)
	if err := coord.Run(ctx); err != nil {
		if errors.Is(err, printer.ErrSetup) {
			log.Error("setup failed", zap.Error(err))
		} else {
			log.Error("run finished with errors", zap.Error(err))
		}
		return 1
	}
	return 0
}

func exitCode(err error) int {
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

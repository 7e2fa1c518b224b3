// Command liebert-agent samples host counters and streams them to a
// liebert controller.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"liebert/internal/agent"
	"liebert/internal/bus"
	"liebert/internal/config"
	"liebert/internal/logging"
)

// Set with -ldflags at build time.
var (
	version   = "dev"
	buildDate = "unknown"
	gitCommit = "unknown"
)

func main() {
	var overrides config.Overrides
	configFile := flag.String("config", "", "Path to YAML configuration file")
	flag.Var(&overrides, "set", "Override a configuration key as key=value (repeatable)")
	showVersion := flag.Bool("version", false, "Show version information and exit")
	logOpts := logging.AddFlags(flag.CommandLine)
	flag.Parse()

	if *showVersion {
		fmt.Printf("liebert-agent %s (%s, %s) %s %s/%s\n",
			version, gitCommit, buildDate, runtime.Version(), runtime.GOOS, runtime.GOARCH)
		return
	}

	logger, closer, err := logging.Setup(*logOpts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Logging error: %v\n", err)
		os.Exit(2)
	}
	exit := func(code int) {
		closer.Close()
		os.Exit(code)
	}

	set, err := config.ParseOverrides(overrides)
	if err != nil {
		logger.Error("Invalid -set flag", "error", err)
		exit(2)
	}
	cfg, err := config.Load(*configFile, config.AgentDefaults(), set)
	if err != nil {
		logger.Error("Configuration error", "error", err)
		exit(1)
	}

	a, err := agent.New(cfg, logger, agent.WithAbort(exit))
	if err != nil {
		logger.Error("Failed to create agent", "error", err)
		exit(1)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		sig := <-sigChan
		logger.Info("Received shutdown signal", "signal", sig.String())
		if err := a.Control().TrySend(bus.Shutdown{Reason: "signal " + sig.String()}); err != nil {
			logger.Debug("Agent already stopped")
		}
	}()

	logger.Info("Starting liebert agent", "version", version, "config_file", *configFile)
	if err := a.Run(context.Background()); err != nil {
		logger.Error("Agent failed", "error", err)
		exit(1)
	}
	closer.Close()
}

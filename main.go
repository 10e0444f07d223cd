// Package main provides the Battery Energy Management System (EMS)
// supervisor entry point and CLI interface.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/devskill-org/bess-ems/config"
	"github.com/devskill-org/bess-ems/supervisor"
)

func main() {
	var (
		configFile = flag.String("config", "config.json", "Configuration file path")
		healthPort = flag.Int("health-port", 8080, "HTTP health/status/websocket port (0 disables)")
		once       = flag.Bool("once", false, "Run one optimization cycle per site, then exit")
		help       = flag.Bool("help", false, "Show help message")
	)
	flag.Parse()

	if *help {
		showHelp()
		return
	}

	root, err := config.Load(*configFile)
	if err != nil {
		fmt.Println("Error loading configuration:", err)
		os.Exit(1)
	}

	logger := log.New(os.Stdout, "[EMS] ", log.LstdFlags)

	sup, err := supervisor.New(root, logger)
	if err != nil {
		logger.Printf("Error constructing supervisor: %v", err)
		os.Exit(1)
	}

	if *once {
		runOnce(sup)
		return
	}

	httpServer := supervisor.NewServer(sup, *healthPort)
	if err := httpServer.Start(); err != nil {
		logger.Printf("Error starting HTTP server: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go sup.Run(ctx)

	logger.Printf("EMS supervisor started with %d sites. Press Ctrl+C to stop...", len(sup.ListSiteIDs()))

	<-sigChan
	logger.Printf("Shutdown signal received, stopping...")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Stop(shutdownCtx); err != nil {
		logger.Printf("Error stopping HTTP server: %v", err)
	}

	sup.StopAll()
	logger.Printf("EMS supervisor stopped")
}

// runOnce drives a single tick on every configured site's controller
// directly, for smoke-testing a configuration without running the full
// tick loop.
func runOnce(sup *supervisor.Supervisor) {
	ctx := context.Background()
	for _, id := range sup.ListSiteIDs() {
		ctrl, ok := sup.GetSite(id)
		if !ok {
			continue
		}
		ctrl.Tick(ctx)
		snap := ctrl.Snapshot()
		fmt.Printf("site %d: soc=%.1f%% strategy=%q mode=%s\n", id, snap.SoCPct, snap.ActiveStrategy, snap.Mode)
	}
	sup.StopAll()
}

func showHelp() {
	fmt.Println("Battery Energy Management System (EMS) - dispatch optimization for multi-site BESS installations")
	fmt.Println()
	fmt.Println("DESCRIPTION:")
	fmt.Println("  Polls site Modbus/MQTT telemetry, periodically re-optimizes dispatch via a")
	fmt.Println("  selectable strategy set, applies the DSO/safety precedence layer, and writes")
	fmt.Println("  the resulting setpoints back to the battery system. One Site Controller runs")
	fmt.Println("  per configured site, each with its own history database.")
	fmt.Println()
	fmt.Println("USAGE:")
	fmt.Println("  emsd [OPTIONS]")
	fmt.Println()
	fmt.Println("OPTIONS:")
	flag.PrintDefaults()
	fmt.Println()
	fmt.Println("EXAMPLES:")
	fmt.Println("  # Run with default configuration")
	fmt.Println("  emsd")
	fmt.Println()
	fmt.Println("  # Custom configuration file")
	fmt.Println("  emsd --config=sites.json")
	fmt.Println()
	fmt.Println("  # Run one tick per site and exit, without the HTTP server")
	fmt.Println("  emsd --once")
}

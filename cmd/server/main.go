package main

import (
	"context"
	"devctl/internal/domain"
	"devctl/internal/infrastructure/device"
	"devctl/internal/infrastructure/network"
	"devctl/internal/infrastructure/repository"
	"devctl/internal/usecase"
	"devctl/pkg/config"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"golang.org/x/term"
)

const pulseInterval = 500 * time.Millisecond

func main() {
	cfg, err := config.LoadServer(os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if err := os.MkdirAll(cfg.StateDir, 0755); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	diag := device.NewDiagLog(filepath.Join(cfg.StateDir, "debug.log"), cfg.Debug)
	setupLogging(cfg.LogLevel, diag)

	if err := run(cfg, diag); err != nil {
		log.Crit("Server failed", "err", err)
	}
}

func setupLogging(level string, diag *device.DiagLog) {
	lvl, err := log.LvlFromString(level)
	if err != nil {
		lvl = log.LvlInfo
	}
	color := term.IsTerminal(int(os.Stderr.Fd()))
	console := log.LvlFilterHandler(lvl, log.StreamHandler(os.Stderr, log.TerminalFormat(color)))
	log.Root().SetHandler(log.MultiHandler(console, diag))
	if err != nil {
		log.Warn("Unknown log level, using info", "level", level)
	}
}

func run(cfg *config.ServerConfig, diag *device.DiagLog) error {
	creds := repository.NewCredentialStore(cfg.StateDir)
	initial, err := creds.Init()
	if err != nil {
		return fmt.Errorf("load credentials: %w", err)
	}

	files := repository.NewFileManager(cfg.FilesDir)
	led := device.NewLED(cfg.LEDPath)
	netmon := device.NewNetworkMonitor(cfg.NetInterface)
	health := device.NewHealthSampler(cfg.SensorPath)

	dev := &usecase.Device{
		Files:         files,
		Creds:         creds,
		Transfers:     repository.NewTransferStore(cfg.StateDir),
		Net:           netmon,
		LED:           led,
		Health:        health,
		Geo:           device.NewGeoClient(cfg.GeoURL, cfg.WeatherURL, cfg.HTTPTimeout),
		Diag:          diag,
		PulseInterval: pulseInterval,
	}
	dev.SetCredentials(initial)

	connectCtx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	online := netmon.Connect(connectCtx)
	cancel()
	if !online {
		log.Warn("Network unavailable, running offline")
	}

	connMgr := network.NewTCPConnectionManager(cfg, usecase.NewDeviceHandler(dev), led)
	server := network.NewTCPServer(cfg, connMgr)
	server.SetMonitor(func() {
		snap := health.Snapshot()
		count := -1
		if list, err := files.ListFiles(); err == nil {
			count = len(list)
		}
		ctx := []interface{}{
			"connected", netmon.Status().Connected,
			"cpu_mhz", snap.CPUFreqMHz,
			"mem_free", snap.MemFree,
			"mem_alloc", snap.MemAlloc,
			"files", count,
		}
		if snap.Temperature != nil {
			ctx = append(ctx, "temp", *snap.Temperature)
		}
		if snap.Sensor != nil {
			ctx = append(ctx, "sensor", *snap.Sensor)
		}
		log.Info("Device status", ctx...)
	})

	if err := server.Listen(cfg.Listen); err != nil {
		return err
	}
	log.Info("Device ready", "addr", server.Addr(), "files", cfg.FilesDir, "online", online)
	led.Pulse(3, pulseInterval)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err = server.Serve(ctx)
	if !errors.Is(err, domain.ErrReboot) {
		if err == nil {
			log.Info("Server stopped")
		}
		return err
	}

	server.Stop()
	log.Warn("Restarting", "delay", cfg.RebootDelay)
	time.Sleep(cfg.RebootDelay)
	return device.Restart()
}

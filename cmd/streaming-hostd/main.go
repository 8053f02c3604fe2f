// Copyright 2026 The Foveated Streaming Authors
// SPDX-License-Identifier: Apache-2.0

// Streaming-hostd is the foveated streaming session host. It advertises
// itself over mDNS, supervises the media service child process, and
// speaks the length-prefixed JSON session protocol to a single paired
// client at a time.
//
// On startup:
//  1. Loads configuration from a YAML file (if --config is set) merged
//     with flag overrides.
//  2. Publishes the mDNS advertisement (non-fatal on failure).
//  3. Starts the media service supervisor, its RPC client, the media
//     state poller, and the session protocol listener.
//  4. Runs until SIGINT/SIGTERM, then tears everything down.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/foveated-streaming/hostd/internal/advertiser"
	"github.com/foveated-streaming/hostd/internal/coordinator"
	"github.com/foveated-streaming/hostd/internal/presenter"
	"github.com/foveated-streaming/hostd/internal/session"
	"github.com/foveated-streaming/hostd/lib/config"
	"github.com/foveated-streaming/hostd/lib/process"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var (
		configPath   string
		bundleID     string
		port         uint
		address      string
		forceBarcode bool
		showVersion  bool
	)

	flag.StringVar(&configPath, "config", "", "path to a YAML configuration file")
	flag.StringVar(&bundleID, "bundle-id", "", "opaque application identifier advertised over mDNS (required unless set in --config)")
	flag.UintVar(&port, "port", 0, "TCP port for the session protocol listener (required unless set in --config)")
	flag.StringVar(&address, "address", "", "local IP address to bind and advertise (default: all interfaces)")
	flag.BoolVar(&forceBarcode, "force-barcode", false, "omit CertificateFingerprint from AcknowledgeConnection, forcing a QR scan every time (debug only)")
	flag.BoolVar(&showVersion, "version", false, "print version information and exit")
	flag.Parse()

	if showVersion {
		fmt.Println("streaming-hostd (development build)")
		return nil
	}

	cfg, err := loadConfig(configPath, bundleID, port, address, forceBarcode)
	if err != nil {
		return err
	}

	logSink := presenter.NewRingLogSink(presenter.DefaultLogSinkCapacity)
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mdns := advertiser.NewMDNSAdvertiser(logger)

	co, err := coordinator.New(ctx, cfg, coordinator.Dependencies{
		Presenter:  loggingPresenter{logger: logger},
		Advertiser: mdns,
		LogSink:    logSink,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("starting coordinator: %w", err)
	}

	logger.Info("streaming-hostd started", "bundle_id", cfg.BundleID, "endpoint", fmt.Sprintf("%s:%d", cfg.ResolvedAddress(), cfg.Port))

	<-ctx.Done()
	logger.Info("shutting down")
	return co.Dispose()
}

// loadConfig merges the configured flags over a file's defaults (or
// the package defaults when no file is given). Flags always win over
// the file when their zero value differs from the corresponding
// Config field's zero value — callers only set a flag when they mean
// to override.
func loadConfig(configPath, bundleID string, port uint, address string, forceBarcode bool) (*config.Config, error) {
	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	} else {
		cfg = config.Default()
	}

	if bundleID != "" {
		cfg.BundleID = bundleID
	}
	if port != 0 {
		cfg.Port = uint16(port)
	}
	if address != "" {
		cfg.Address = address
	}
	if forceBarcode {
		cfg.ForceBarcode = true
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loggingPresenter is the default Presenter used when no GUI is
// attached: it logs every notification through the program's slog
// logger so an operator can tail streaming-hostd's decisions on stderr
// without a client. It does not write to the ring log sink.
type loggingPresenter struct {
	logger *slog.Logger
}

func (p loggingPresenter) GenerateBarcode(payload session.BarcodePayload) {
	p.logger.Info("barcode generated", "client_token", payload.ClientToken)
}

func (p loggingPresenter) SessionStatusDidChange(status presenter.Status) {
	p.logger.Info("session status changed", "status", status)
}

func (p loggingPresenter) BarcodePresentationRequested(info session.Information) {
	p.logger.Info("barcode presentation requested", "session_id", info.SessionID)
}

func (p loggingPresenter) ConnectionErrorOccurred(err error) {
	p.logger.Warn("connection error", "error", err)
}

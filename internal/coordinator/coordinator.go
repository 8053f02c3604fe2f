// Copyright 2026 The Foveated Streaming Authors
// SPDX-License-Identifier: Apache-2.0

package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"

	"github.com/foveated-streaming/hostd/internal/advertiser"
	"github.com/foveated-streaming/hostd/internal/identity"
	"github.com/foveated-streaming/hostd/internal/mediapoll"
	"github.com/foveated-streaming/hostd/internal/mediasvc"
	"github.com/foveated-streaming/hostd/internal/presenter"
	"github.com/foveated-streaming/hostd/internal/protocol"
	"github.com/foveated-streaming/hostd/internal/session"
	"github.com/foveated-streaming/hostd/internal/supervisor"
	"github.com/foveated-streaming/hostd/lib/clock"
	"github.com/foveated-streaming/hostd/lib/config"
)

// MediaServiceSocketName is the filename of the Unix domain socket the
// media service's native RPC library listens on, resolved relative to
// the host binary's own directory, alongside the supervised
// executable.
const MediaServiceSocketName = "media-service.sock"

// Dependencies are the collaborators New constructs a Coordinator
// with. Advertiser, Presenter, and LogSink are accepted rather than
// constructed internally so tests can substitute fakes; everything
// else the Coordinator builds itself from Config, in a fixed
// construction order.
type Dependencies struct {
	Presenter  presenter.Presenter
	Advertiser advertiser.Advertiser
	LogSink    presenter.LogSink
	Clock      clock.Clock
	Logger     *slog.Logger

	// MediaServiceBinaryDir overrides the directory the process
	// supervisor and RPC client resolve MediaServiceBinaryName and
	// MediaServiceSocketName against. Defaults to the running host
	// binary's own directory.
	MediaServiceBinaryDir string
}

// Coordinator is the session coordinator: the composition root that
// owns every other subsystem's lifecycle.
type Coordinator struct {
	cfg  *config.Config
	deps Dependencies

	clock  clock.Clock
	logger *slog.Logger

	identityStore *identity.Store
	binaryDir     string
	rootCtx       context.Context

	mu         sync.Mutex
	supervisor *supervisor.Supervisor
	mediaClient mediasvc.Client
	poller      *mediapoll.Poller
	engine      *protocol.Engine
	sessionCtx  context.Context
	sessionStop context.CancelFunc

	restartOnce sync.Mutex // serializes concurrent restart triggers
}

// New validates cfg, publishes the mDNS advertisement (non-fatal on
// failure), and constructs the session-capable subsystems (the process
// supervisor, RPC client, media state poller, and protocol engine) in
// that order. Cancelling ctx stops the media state poller and the
// protocol engine's listener; Dispose tears everything down, including
// the supervised child process and the advertisement.
func New(ctx context.Context, cfg *config.Config, deps Dependencies) (*Coordinator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := deps.Clock
	if c == nil {
		c = clock.Real()
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	binaryDir := deps.MediaServiceBinaryDir
	if binaryDir == "" {
		exe, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("coordinator: resolving host binary path: %w", err)
		}
		binaryDir = filepath.Dir(exe)
	}

	serverIDPath := cfg.ServerIDPath
	if serverIDPath == "" {
		p, err := identity.DefaultPath()
		if err != nil {
			return nil, fmt.Errorf("coordinator: resolving server id path: %w", err)
		}
		serverIDPath = p
	}

	co := &Coordinator{
		cfg:           cfg,
		deps:          deps,
		clock:         c,
		logger:        logger,
		identityStore: identity.New(serverIDPath),
		binaryDir:     binaryDir,
		rootCtx:       ctx,
	}

	if deps.Advertiser != nil {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "foveated-streaming-host"
		}
		ad := advertiser.Advertisement{
			Instance:    hostname,
			ServiceType: advertiser.ServiceType,
			Port:        cfg.Port,
			Addresses:   localAddresses(cfg.ResolvedAddress()),
			TXT:         map[string]string{advertiser.TXTApplicationIdentifierKey: cfg.BundleID},
		}
		if err := deps.Advertiser.Advertise(ctx, ad); err != nil {
			logger.Error("coordinator: mDNS advertisement failed, continuing without it", "error", err)
			if deps.Presenter != nil {
				deps.Presenter.ConnectionErrorOccurred(fmt.Errorf("advertising service: %w", err))
			}
		} else {
			logger.Info("coordinator: mDNS advertisement published", "bonjour_status", presenter.BonjourStatusRunning)
		}
	}

	if err := co.buildSessionSubsystems(ctx); err != nil {
		return nil, err
	}

	return co, nil
}

// localAddresses returns bound's own value when it is not the
// unspecified address, otherwise every non-loopback address on the
// host's interfaces — the advertisement's Addresses list.
func localAddresses(bound net.IP) []net.IP {
	if !bound.IsUnspecified() {
		return []net.IP{bound}
	}
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return nil
	}
	var out []net.IP
	for _, a := range addrs {
		ipNet, ok := a.(*net.IPNet)
		if !ok || ipNet.IP.IsLoopback() {
			continue
		}
		out = append(out, ipNet.IP)
	}
	return out
}

// buildSessionSubsystems constructs the process supervisor, RPC
// client, media state poller, and protocol engine, in that order, and
// starts each. Callers must not hold co.mu.
func (co *Coordinator) buildSessionSubsystems(ctx context.Context) error {
	sessionCtx, stop := context.WithCancel(ctx)

	sup := supervisor.New(supervisor.Config{
		BinaryPath:   filepath.Join(co.binaryDir, co.cfg.MediaServiceBinaryName),
		ReleasesRoot: co.cfg.ReleasesRoot,
		LogSink:      co.deps.LogSink,
		Clock:        co.clock,
		Logger:       co.logger,
	})
	if err := sup.Start(sessionCtx); err != nil {
		stop()
		return fmt.Errorf("coordinator: starting media service supervisor: %w", err)
	}

	mediaClient := mediasvc.NewPipeClient(filepath.Join(co.binaryDir, MediaServiceSocketName))

	poller := mediapoll.New(mediapoll.Config{
		Client:               mediaClient,
		Clock:                co.clock,
		Logger:               co.logger,
		Interval:             co.cfg.StatusPollInterval,
		OnChange:             co.onMediaStateChange,
		StateChangePollDelay: co.cfg.StateChangePollDelay,
	})
	go poller.Run(sessionCtx)

	endpoint := session.Endpoint{Address: co.cfg.ResolvedAddress(), Port: co.cfg.Port}
	engine, err := protocol.New(sessionCtx, protocol.Config{
		Endpoint:                     endpoint,
		ForceBarcode:                 co.cfg.ForceBarcode,
		Identity:                     co.identityStore,
		MediaClient:                  mediaClient,
		Poller:                       poller,
		Presenter:                    co.deps.Presenter,
		MediaServiceVersion:          co.cfg.MediaServiceVersion,
		TeardownDeadline:             co.cfg.TeardownDeadline,
		Clock:                        co.clock,
		Logger:                       co.logger,
		OnSessionStatusDidChange:     co.onSessionStatusDidChange,
		OnSessionDisconnectRequested: co.onSessionDisconnectRequested,
	})
	if err != nil {
		_ = mediaClient.Close()
		_ = sup.Dispose()
		stop()
		return fmt.Errorf("coordinator: starting session protocol engine: %w", err)
	}

	go func() {
		if err := engine.Serve(sessionCtx); err != nil {
			co.logger.Error("coordinator: session protocol engine stopped", "error", err)
		}
	}()

	co.logger.Info("coordinator: listening", "session_management_status", presenter.SessionManagementListening, "endpoint", endpoint.String())

	co.mu.Lock()
	co.supervisor = sup
	co.mediaClient = mediaClient
	co.poller = poller
	co.engine = engine
	co.sessionCtx = sessionCtx
	co.sessionStop = stop
	co.mu.Unlock()

	return nil
}

// onMediaStateChange translates the media poller's observation into a
// coarse Presenter status.
func (co *Coordinator) onMediaStateChange(state session.MediaState) {
	if co.deps.Presenter == nil {
		return
	}
	switch {
	case state.Running():
		co.deps.Presenter.SessionStatusDidChange(presenter.StatusRunning)
	case state.Stopped():
		co.deps.Presenter.SessionStatusDidChange(presenter.StatusStopped)
	default:
		co.deps.Presenter.SessionStatusDidChange(presenter.StatusPaused)
	}
}

// onSessionStatusDidChange is the protocol engine's forwarded
// SessionStatusDidChange callback. Beyond the DISCONNECTED-triggered
// restart (handled separately by onSessionDisconnectRequested), the
// narrow four-method Presenter surface has no slot for the
// client-reported status itself — only for the poller-derived
// Running/Paused/Stopped value onMediaStateChange already reports — so
// the CONNECTING/CONNECTED transitions are surfaced as log lines in
// the same SessionManagementStatus vocabulary as the listening
// announcement, rather than through the Presenter.
func (co *Coordinator) onSessionStatusDidChange(status session.Status) {
	switch status {
	case session.StatusConnecting:
		co.logger.Info("coordinator: session negotiating", "session_management_status", presenter.SessionManagementConnecting)
	case session.StatusConnected:
		co.logger.Info("coordinator: session established", "session_management_status", presenter.SessionManagementConnected)
	default:
		co.logger.Debug("coordinator: session status changed", "status", status)
	}
}

// onSessionDisconnectRequested tears down the session-capable
// subsystems and immediately rebuilds them bound to the same
// endpoint. The advertiser is left untouched — the endpoint and bundle
// id it published are still valid.
func (co *Coordinator) onSessionDisconnectRequested() {
	co.restartOnce.Lock()
	defer co.restartOnce.Unlock()

	if co.rootCtx.Err() != nil {
		return // Coordinator itself is shutting down; do not restart.
	}

	co.teardownSessionSubsystems()

	if err := co.buildSessionSubsystems(co.rootCtx); err != nil {
		co.logger.Error("coordinator: restarting session subsystems after disconnect failed", "error", err)
		if co.deps.Presenter != nil {
			co.deps.Presenter.ConnectionErrorOccurred(fmt.Errorf("coordinator: restart failed: %w", err))
		}
	}
}

// teardownSessionSubsystems disposes the protocol engine, media state
// poller, RPC client, and process supervisor in that reverse-of-
// construction order.
func (co *Coordinator) teardownSessionSubsystems() {
	co.mu.Lock()
	engine := co.engine
	stop := co.sessionStop
	mediaClient := co.mediaClient
	sup := co.supervisor
	co.engine = nil
	co.poller = nil
	co.mediaClient = nil
	co.supervisor = nil
	co.mu.Unlock()

	if engine != nil {
		if err := engine.Dispose(); err != nil {
			co.logger.Warn("coordinator: disposing session protocol engine", "error", err)
		}
	}
	if stop != nil {
		stop() // M1 (poller.Run) observes this and exits its loop.
	}
	if mediaClient != nil {
		if err := mediaClient.Close(); err != nil {
			co.logger.Warn("coordinator: closing media-service client", "error", err)
		}
	}
	if sup != nil {
		if err := sup.Dispose(); err != nil {
			co.logger.Warn("coordinator: disposing process supervisor", "error", err)
		}
	}
}

// Dispose tears the Coordinator down completely, including the
// advertiser.
func (co *Coordinator) Dispose() error {
	co.teardownSessionSubsystems()
	if co.deps.Advertiser != nil {
		return co.deps.Advertiser.Close()
	}
	return nil
}

// Copyright 2026 The Foveated Streaming Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/foveated-streaming/hostd/internal/identity"
	"github.com/foveated-streaming/hostd/internal/mediapoll"
	"github.com/foveated-streaming/hostd/internal/mediasvc"
	"github.com/foveated-streaming/hostd/internal/presenter"
	"github.com/foveated-streaming/hostd/internal/session"
	"github.com/foveated-streaming/hostd/internal/wire"
	"github.com/foveated-streaming/hostd/lib/clock"
	"github.com/foveated-streaming/hostd/lib/netutil"
)

// MediaServiceVersion is the version string the engine passes to the
// RPC client's startService on a WAITING transition, unless Config
// overrides it: the host always calls startService("6.0.0") unless
// told otherwise.
const MediaServiceVersion = "6.0.0"

// ProtocolVersion is the only ProtocolVersion value RequestConnection
// may carry.
const ProtocolVersion = "1"

// DisposeDeadline is the default bound on the best-effort
// RequestSessionDisconnect write that Dispose sends to the active
// session. Dispose does not wait for the accept loop to return.
const DisposeDeadline = 3 * time.Second

// ErrProtocolVersionMismatch reports acceptance rule 4: a
// RequestConnection whose ProtocolVersion isn't "1".
var ErrProtocolVersionMismatch = errors.New("protocol: unsupported ProtocolVersion")

// Config configures an Engine.
type Config struct {
	Endpoint     session.Endpoint
	ForceBarcode bool

	Identity    *identity.Store
	MediaClient mediasvc.Client
	Poller      *mediapoll.Poller
	Presenter   presenter.Presenter

	// MediaServiceVersion overrides MediaServiceVersion for the
	// startService call a WAITING transition issues. Defaults to
	// MediaServiceVersion if empty.
	MediaServiceVersion string

	// TeardownDeadline overrides DisposeDeadline, bounding the
	// best-effort disconnect write Dispose sends to the active session.
	// Defaults to DisposeDeadline if zero.
	TeardownDeadline time.Duration

	Clock  clock.Clock
	Logger *slog.Logger

	// OnSessionStatusDidChange forwards every valid inbound
	// SessionStatusDidChange to the coordinator, which logs it; the
	// engine itself issues the startService call a WAITING status
	// requires. Called without the engine's internal lock held.
	OnSessionStatusDidChange func(status session.Status)

	// OnSessionDisconnectRequested is invoked, without the engine's
	// internal lock held, whenever an inbound SessionStatusDidChange
	// reports DISCONNECTED for the active session. The coordinator
	// uses it to trigger a full teardown and re-listen.
	OnSessionDisconnectRequested func()
}

// Engine is the session protocol engine: one TCP listener, one accept
// loop, and the per-connection state machine that speaks the handshake
// to exactly one client at a time.
type Engine struct {
	config           Config
	listener         *net.TCPListener
	clock            clock.Clock
	logger           *slog.Logger
	teardownDeadline time.Duration

	closing atomic.Bool

	mu        sync.Mutex
	active    *session.Information
	activeFr  *wire.Framer
	activeNet net.Conn
}

// New binds the listener at config.Endpoint. It does not accept
// connections until Serve is called.
func New(ctx context.Context, config Config) (*Engine, error) {
	c := config.Clock
	if c == nil {
		c = clock.Real()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	teardownDeadline := config.TeardownDeadline
	if teardownDeadline <= 0 {
		teardownDeadline = DisposeDeadline
	}

	listener, err := netutil.ListenTCP(ctx, config.Endpoint.String())
	if err != nil {
		return nil, err
	}

	return &Engine{config: config, listener: listener, clock: c, logger: logger, teardownDeadline: teardownDeadline}, nil
}

// Addr returns the listener's bound address.
func (e *Engine) Addr() net.Addr {
	return e.listener.Addr()
}

// Serve runs the accept loop until ctx is canceled or Dispose is
// called. It accepts one connection at a time, processing each to
// completion before accepting the next: the engine owns exactly one
// long-running accept task. The watcher goroutine that closes the
// listener on cancellation and the accept loop itself run under a
// shared errgroup: an accept error cancels the group and so closes the
// listener, while an accept loop ended by Dispose returns nil and Serve
// then returns once ctx is canceled.
func (e *Engine) Serve(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		<-gctx.Done()
		e.closing.Store(true)
		_ = e.listener.Close()
		return nil
	})

	g.Go(func() error {
		for {
			conn, err := e.listener.Accept()
			if err != nil {
				if e.closing.Load() {
					return nil
				}
				return fmt.Errorf("protocol: accept: %w", err)
			}

			tcpConn, ok := conn.(*net.TCPConn)
			if ok {
				if err := netutil.PrepareConn(tcpConn); err != nil {
					e.logger.Warn("protocol: preparing accepted connection", "error", err)
				}
			}

			e.handleConnection(gctx, conn)
		}
	})

	return g.Wait()
}

// Dispose implements disposeAsync: it sends a
// best-effort disconnect for the active session, bounding that write at
// teardownDeadline, then closes the listener so the accept loop
// unwinds. It does not wait for the accept loop to return.
func (e *Engine) Dispose() error {
	e.closing.Store(true)

	ctx, cancel := context.WithTimeout(context.Background(), e.teardownDeadline)
	defer cancel()

	e.mu.Lock()
	active := e.active
	framer := e.activeFr
	e.mu.Unlock()
	if active != nil && framer != nil {
		msg := newRequestSessionDisconnect(active.SessionID)
		if payload, err := json.Marshal(msg); err == nil {
			_ = framer.WriteFrame(ctx, payload)
		}
	}

	e.mu.Lock()
	if e.activeNet != nil {
		_ = e.activeNet.Close()
	}
	e.mu.Unlock()

	return e.listener.Close()
}

// handleConnection runs the full per-connection read loop: acceptance
// rules, dispatch, and response. It returns once the connection is
// closed, by either side.
func (e *Engine) handleConnection(ctx context.Context, conn net.Conn) {
	framer := wire.NewFramer(conn)

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-connCtx.Done()
		_ = conn.Close()
	}()
	defer conn.Close()

	for {
		payload, err := framer.ReadFrame(connCtx)
		if err != nil {
			if netutil.IsExpectedCloseError(err) || errors.Is(err, context.Canceled) {
				e.logger.Debug("protocol: connection closed", "error", err)
			} else {
				e.logger.Warn("protocol: frame read failed", "error", err)
			}
			return
		}

		if len(payload) == 0 {
			// A zero-length frame produces an empty-input JSON parse
			// error, which acceptance rule 1 treats as "ignored,
			// connection open".
			continue
		}

		env, ok := parseEnvelope(payload)
		if !ok {
			continue // acceptance rule 1
		}

		closeConn, err := e.dispatch(connCtx, framer, conn, env, payload)
		if err != nil {
			e.logger.Warn("protocol: dispatch failed", "event", env.Event, "error", err)
			return
		}
		if closeConn {
			return
		}
	}
}

// dispatch applies the acceptance rules and, if they pass, the
// concrete per-Event handling. The returned bool reports whether the
// connection must be closed (only true for a version mismatch).
func (e *Engine) dispatch(ctx context.Context, framer *wire.Framer, conn net.Conn, env inboundEnvelope, raw []byte) (bool, error) {
	e.mu.Lock()
	active := e.active
	e.mu.Unlock()

	// Acceptance rule 2: any non-RequestConnection event carrying a
	// foreign SessionID is rejected with a disconnect for that
	// foreign id, the message is dropped, and the connection stays
	// open.
	if env.Event != eventRequestConnection && (active == nil || env.SessionID != active.SessionID) {
		return false, e.writeDisconnect(ctx, framer, env.SessionID)
	}

	switch env.Event {
	case eventRequestConnection:
		return e.handleRequestConnection(ctx, framer, conn, raw)
	case eventRequestBarcodePresentation:
		return false, e.handleRequestBarcodePresentation(ctx, framer, raw)
	case eventSessionStatusDidChange:
		return false, e.handleSessionStatusDidChange(ctx, framer, raw)
	default:
		// Not one of the client-originated events this engine
		// understands (e.g. a stray S→C event name echoed back);
		// acceptance rule 1's spirit applies: ignore it.
		return false, nil
	}
}

// handleRequestConnection implements acceptance rules 3-4 and the
// RequestConnection handling steps.
func (e *Engine) handleRequestConnection(ctx context.Context, framer *wire.Framer, conn net.Conn, raw []byte) (bool, error) {
	var msg requestConnectionMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return false, nil // malformed: acceptance rule 1
	}

	e.mu.Lock()
	alreadyActive := e.active != nil
	e.mu.Unlock()

	if alreadyActive {
		// Acceptance rule 3: reject the incoming (foreign) session,
		// leave the existing active session untouched.
		return false, e.writeDisconnect(ctx, framer, msg.SessionID)
	}

	if msg.ProtocolVersion != ProtocolVersion {
		// Acceptance rule 4: reply, surface the error, and close.
		if err := e.writeDisconnect(ctx, framer, msg.SessionID); err != nil {
			return true, err
		}
		if e.config.Presenter != nil {
			e.config.Presenter.ConnectionErrorOccurred(fmt.Errorf("%w: got %q", ErrProtocolVersionMismatch, msg.ProtocolVersion))
		}
		return true, nil
	}

	token, err := e.config.MediaClient.IssueClientToken(ctx, msg.ClientID)
	if err != nil {
		return false, fmt.Errorf("issuing client token: %w", err)
	}
	fingerprint, err := e.config.MediaClient.CertificateFingerprint(ctx, mediasvc.AlgorithmSHA256)
	if err != nil {
		return false, fmt.Errorf("fetching certificate fingerprint: %w", err)
	}

	info := session.Information{
		SessionID: msg.SessionID,
		ClientID:  msg.ClientID,
		Barcode: session.BarcodePayload{
			ClientToken:            token,
			CertificateFingerprint: fingerprint,
		},
	}

	e.mu.Lock()
	e.active = &info
	e.activeFr = framer
	e.activeNet = conn
	e.mu.Unlock()

	if e.config.Presenter != nil {
		e.config.Presenter.GenerateBarcode(info.Barcode)
	}

	serverID, err := e.config.Identity.GetOrCreate()
	if err != nil {
		return false, fmt.Errorf("resolving server id: %w", err)
	}

	ack := newAcknowledgeConnection(msg.SessionID, serverID, fingerprint, e.config.ForceBarcode)
	payload, err := json.Marshal(ack)
	if err != nil {
		return false, fmt.Errorf("encoding AcknowledgeConnection: %w", err)
	}
	if err := framer.WriteFrame(ctx, payload); err != nil {
		return false, fmt.Errorf("writing AcknowledgeConnection: %w", err)
	}
	return false, nil
}

func (e *Engine) handleRequestBarcodePresentation(ctx context.Context, framer *wire.Framer, raw []byte) error {
	var msg requestBarcodePresentationMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil
	}

	e.mu.Lock()
	info := e.active
	e.mu.Unlock()
	if info == nil {
		return nil
	}

	if e.config.Presenter != nil {
		e.config.Presenter.BarcodePresentationRequested(*info)
	}

	payload, err := json.Marshal(newAcknowledgeBarcodePresentation(msg.SessionID))
	if err != nil {
		return fmt.Errorf("encoding AcknowledgeBarcodePresentation: %w", err)
	}
	return framer.WriteFrame(ctx, payload)
}

// handleSessionStatusDidChange forwards the status, then applies the
// WAITING and DISCONNECTED special cases.
func (e *Engine) handleSessionStatusDidChange(ctx context.Context, framer *wire.Framer, raw []byte) error {
	var msg sessionStatusDidChangeMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil
	}
	status := session.Status(msg.Status)
	if !status.Valid() {
		return nil
	}

	if e.config.OnSessionStatusDidChange != nil {
		e.config.OnSessionStatusDidChange(status)
	}

	switch status {
	case session.StatusWaiting:
		if err := e.config.MediaClient.StartService(ctx, e.mediaServiceVersion()); err != nil {
			return fmt.Errorf("starting media service: %w", err)
		}
		if e.config.Poller != nil {
			if err := e.config.Poller.AwaitRuntimeMatches(ctx, true); err != nil {
				return fmt.Errorf("awaiting runtime start: %w", err)
			}
		}
		payload, err := json.Marshal(newMediaStreamIsReady(msg.SessionID))
		if err != nil {
			return fmt.Errorf("encoding MediaStreamIsReady: %w", err)
		}
		return framer.WriteFrame(ctx, payload)

	case session.StatusDisconnected:
		e.mu.Lock()
		e.active = nil
		e.activeFr = nil
		e.activeNet = nil
		e.mu.Unlock()

		if e.config.OnSessionDisconnectRequested != nil {
			go e.config.OnSessionDisconnectRequested()
		}
	}

	return nil
}

func (e *Engine) mediaServiceVersion() string {
	if e.config.MediaServiceVersion != "" {
		return e.config.MediaServiceVersion
	}
	return MediaServiceVersion
}

// writeDisconnect sends RequestSessionDisconnect for sessionID. It
// implements sendDisconnect's wire behavior but, unlike the full
// sendDisconnect contract, never clears the active session — callers
// only use it to reject a foreign session, which must leave the real
// active session untouched (acceptance rules 2-4).
func (e *Engine) writeDisconnect(ctx context.Context, framer *wire.Framer, sessionID string) error {
	payload, err := json.Marshal(newRequestSessionDisconnect(sessionID))
	if err != nil {
		return fmt.Errorf("encoding RequestSessionDisconnect: %w", err)
	}
	return framer.WriteFrame(ctx, payload)
}

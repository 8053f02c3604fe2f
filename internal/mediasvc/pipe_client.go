// Copyright 2026 The Foveated Streaming Authors
// SPDX-License-Identifier: Apache-2.0

package mediasvc

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/foveated-streaming/hostd/internal/session"
	"github.com/foveated-streaming/hostd/internal/wire"
)

// dialTimeout bounds how long Connect waits for the media service's
// RPC socket to accept a connection.
const dialTimeout = 5 * time.Second

// request is the envelope sent for every operation. Fields beyond Op
// are operation-specific and marshaled via the embedded map.
type request struct {
	Op string `json:"Op"`
	Fields map[string]any `json:"-"`
}

func (r request) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Fields)+1)
	for k, v := range r.Fields {
		out[k] = v
	}
	out["Op"] = r.Op
	return json.Marshal(out)
}

// response is the envelope every operation returns.
type response struct {
	OK      bool            `json:"Ok"`
	Error   string          `json:"Error"`
	Data    json.RawMessage `json:"-"`
	rawData map[string]json.RawMessage
}

func (r *response) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	if raw, ok := fields["Ok"]; ok {
		if err := json.Unmarshal(raw, &r.OK); err != nil {
			return err
		}
	}
	if raw, ok := fields["Error"]; ok {
		if err := json.Unmarshal(raw, &r.Error); err != nil {
			return err
		}
	}
	delete(fields, "Ok")
	delete(fields, "Error")
	r.rawData = fields
	return nil
}

func (r *response) field(name string, out any) error {
	raw, ok := r.rawData[name]
	if !ok {
		return fmt.Errorf("mediasvc: response missing field %q", name)
	}
	return json.Unmarshal(raw, out)
}

// pipeClient speaks internal/wire's length-prefixed JSON framing over
// a Unix domain socket exposed by the media service. Each exported
// method lazily dials on first use and reuses the connection for
// subsequent calls; Connect itself is idempotent.
type pipeClient struct {
	socketPath string

	mu     sync.Mutex
	conn   net.Conn
	framer *wire.Framer
}

// NewPipeClient returns a Client that dials socketPath on first use.
func NewPipeClient(socketPath string) Client {
	return &pipeClient{socketPath: socketPath}
}

func (c *pipeClient) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectLocked(ctx)
}

func (c *pipeClient) connectLocked(ctx context.Context) error {
	if c.conn != nil {
		return nil
	}
	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		return fmt.Errorf("%w: dialing %s: %v", ErrRPCUnavailable, c.socketPath, err)
	}
	c.conn = conn
	c.framer = wire.NewFramer(conn)
	return nil
}

// call sends req and decodes the response, reconnecting once if the
// existing connection has gone stale (the media service is expected
// to hold the socket open across calls, but a crashed-and-relaunched
// service invalidates the old connection).
func (c *pipeClient) call(ctx context.Context, op string, fields map[string]any) (*response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	resp, err := c.callLocked(ctx, op, fields)
	if err == nil {
		return resp, nil
	}
	c.closeLocked()
	if connErr := c.connectLocked(ctx); connErr != nil {
		return nil, connErr
	}
	return c.callLocked(ctx, op, fields)
}

func (c *pipeClient) callLocked(ctx context.Context, op string, fields map[string]any) (*response, error) {
	if err := c.connectLocked(ctx); err != nil {
		return nil, err
	}

	payload, err := json.Marshal(request{Op: op, Fields: fields})
	if err != nil {
		return nil, fmt.Errorf("mediasvc: encoding %s request: %w", op, err)
	}
	if err := c.framer.WriteFrame(ctx, payload); err != nil {
		return nil, fmt.Errorf("%w: writing %s request: %v", ErrRPCUnavailable, op, err)
	}

	frame, err := c.framer.ReadFrame(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s response: %v", ErrRPCUnavailable, op, err)
	}

	var resp response
	if err := json.Unmarshal(frame, &resp); err != nil {
		return nil, fmt.Errorf("mediasvc: decoding %s response: %w", op, err)
	}
	return &resp, nil
}

func (c *pipeClient) StartService(ctx context.Context, version string) error {
	resp, err := c.call(ctx, "StartService", map[string]any{"Version": version})
	if err != nil {
		return err
	}
	if !resp.OK {
		return &CallError{Op: "StartService", Message: resp.Error}
	}
	return nil
}

func (c *pipeClient) StopService(ctx context.Context) error {
	resp, err := c.call(ctx, "StopService", nil)
	if err != nil {
		return err
	}
	if !resp.OK {
		return &CallError{Op: "StopService", Message: resp.Error}
	}
	return nil
}

func (c *pipeClient) QueryStatus(ctx context.Context) (session.MediaState, bool, error) {
	resp, err := c.call(ctx, "QueryStatus", nil)
	if err != nil {
		return session.MediaState{}, false, err
	}
	if !resp.OK {
		return session.MediaState{}, false, &CallError{Op: "QueryStatus", Message: resp.Error}
	}

	var running bool
	if err := resp.field("Running", &running); err != nil {
		return session.MediaState{}, false, fmt.Errorf("mediasvc: QueryStatus: %w", err)
	}
	if !running {
		return session.MediaState{}, false, nil
	}

	var state session.MediaState
	if err := resp.field("OpenXrRuntimeRunning", &state.OpenXRRuntimeRunning); err != nil {
		return session.MediaState{}, false, fmt.Errorf("mediasvc: QueryStatus: %w", err)
	}
	if err := resp.field("ClientConnected", &state.ClientConnected); err != nil {
		return session.MediaState{}, false, fmt.Errorf("mediasvc: QueryStatus: %w", err)
	}
	if err := resp.field("GameConnected", &state.GameConnected); err != nil {
		return session.MediaState{}, false, fmt.Errorf("mediasvc: QueryStatus: %w", err)
	}
	return state, true, nil
}

func (c *pipeClient) IssueClientToken(ctx context.Context, clientID string) (string, error) {
	resp, err := c.call(ctx, "IssueClientToken", map[string]any{"ClientID": clientID})
	if err != nil {
		return "", err
	}
	if !resp.OK {
		return "", &CallError{Op: "IssueClientToken", Message: resp.Error}
	}
	var token string
	if err := resp.field("Token", &token); err != nil {
		return "", fmt.Errorf("mediasvc: IssueClientToken: %w", err)
	}
	return token, nil
}

func (c *pipeClient) CertificateFingerprint(ctx context.Context, algorithm FingerprintAlgorithm) (string, error) {
	resp, err := c.call(ctx, "CertificateFingerprint", map[string]any{"Algorithm": string(algorithm)})
	if err != nil {
		return "", err
	}
	if !resp.OK {
		return "", &CallError{Op: "CertificateFingerprint", Message: resp.Error}
	}
	var fingerprint string
	if err := resp.field("Fingerprint", &fingerprint); err != nil {
		return "", fmt.Errorf("mediasvc: CertificateFingerprint: %w", err)
	}
	return fingerprint, nil
}

func (c *pipeClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeLocked()
}

func (c *pipeClient) closeLocked() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	c.framer = nil
	return err
}

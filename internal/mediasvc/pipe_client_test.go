// Copyright 2026 The Foveated Streaming Authors
// SPDX-License-Identifier: Apache-2.0

package mediasvc

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/foveated-streaming/hostd/internal/wire"
)

// testServer is a minimal stand-in for the media service's RPC
// listener: it accepts one connection and answers each request with
// whatever handler returns for that Op.
type testServer struct {
	listener net.Listener
	handlers map[string]func(map[string]json.RawMessage) map[string]any
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	socketPath := filepath.Join(t.TempDir(), "media.sock")
	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		t.Fatalf("listening on %s: %v", socketPath, err)
	}
	srv := &testServer{listener: listener, handlers: map[string]func(map[string]json.RawMessage) map[string]any{}}
	t.Cleanup(func() { listener.Close() })
	go srv.serve(t)
	return srv
}

func (s *testServer) socketPath() string {
	return s.listener.Addr().String()
}

func (s *testServer) serve(t *testing.T) {
	conn, err := s.listener.Accept()
	if err != nil {
		return
	}
	defer conn.Close()
	framer := wire.NewFramer(conn)
	ctx := context.Background()
	for {
		frame, err := framer.ReadFrame(ctx)
		if err != nil {
			return
		}
		var req map[string]json.RawMessage
		if err := json.Unmarshal(frame, &req); err != nil {
			return
		}
		var op string
		json.Unmarshal(req["Op"], &op)

		handler, ok := s.handlers[op]
		var body map[string]any
		if !ok {
			body = map[string]any{"Ok": false, "Error": "unknown op " + op}
		} else {
			body = handler(req)
		}
		payload, err := json.Marshal(body)
		if err != nil {
			return
		}
		if err := framer.WriteFrame(ctx, payload); err != nil {
			return
		}
	}
}

func TestPipeClientStartServiceSuccess(t *testing.T) {
	srv := newTestServer(t)
	srv.handlers["StartService"] = func(req map[string]json.RawMessage) map[string]any {
		var version string
		json.Unmarshal(req["Version"], &version)
		if version != "6.0.0" {
			t.Errorf("server received version %q, want 6.0.0", version)
		}
		return map[string]any{"Ok": true}
	}

	client := NewPipeClient(srv.socketPath())
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.StartService(ctx, "6.0.0"); err != nil {
		t.Fatalf("StartService: %v", err)
	}
}

func TestPipeClientStartServiceReportsCallError(t *testing.T) {
	srv := newTestServer(t)
	srv.handlers["StartService"] = func(req map[string]json.RawMessage) map[string]any {
		return map[string]any{"Ok": false, "Error": "binary not found"}
	}

	client := NewPipeClient(srv.socketPath())
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := client.StartService(ctx, "6.0.0")
	var callErr *CallError
	if err == nil {
		t.Fatal("StartService() returned nil error, want *CallError")
	}
	if ce, ok := err.(*CallError); ok {
		callErr = ce
	} else {
		t.Fatalf("StartService() error type = %T, want *CallError", err)
	}
	if callErr.Message != "binary not found" {
		t.Errorf("CallError.Message = %q, want %q", callErr.Message, "binary not found")
	}
}

func TestPipeClientQueryStatusAbsent(t *testing.T) {
	srv := newTestServer(t)
	srv.handlers["QueryStatus"] = func(req map[string]json.RawMessage) map[string]any {
		return map[string]any{"Ok": true, "Running": false}
	}

	client := NewPipeClient(srv.socketPath())
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, ok, err := client.QueryStatus(ctx)
	if err != nil {
		t.Fatalf("QueryStatus: %v", err)
	}
	if ok {
		t.Error("QueryStatus() ok = true, want false when Running is false")
	}
}

func TestPipeClientQueryStatusRunning(t *testing.T) {
	srv := newTestServer(t)
	srv.handlers["QueryStatus"] = func(req map[string]json.RawMessage) map[string]any {
		return map[string]any{
			"Ok":                   true,
			"Running":              true,
			"OpenXrRuntimeRunning": true,
			"ClientConnected":      true,
			"GameConnected":        false,
		}
	}

	client := NewPipeClient(srv.socketPath())
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	state, ok, err := client.QueryStatus(ctx)
	if err != nil {
		t.Fatalf("QueryStatus: %v", err)
	}
	if !ok {
		t.Fatal("QueryStatus() ok = false, want true")
	}
	if !state.OpenXRRuntimeRunning || !state.ClientConnected || state.GameConnected {
		t.Errorf("QueryStatus() state = %+v, unexpected flags", state)
	}
}

func TestPipeClientIssueClientToken(t *testing.T) {
	srv := newTestServer(t)
	srv.handlers["IssueClientToken"] = func(req map[string]json.RawMessage) map[string]any {
		var clientID string
		json.Unmarshal(req["ClientID"], &clientID)
		return map[string]any{"Ok": true, "Token": "tok-" + clientID}
	}

	client := NewPipeClient(srv.socketPath())
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	token, err := client.IssueClientToken(ctx, "C1")
	if err != nil {
		t.Fatalf("IssueClientToken: %v", err)
	}
	if token != "tok-C1" {
		t.Errorf("IssueClientToken() = %q, want %q", token, "tok-C1")
	}
}

func TestPipeClientDialFailureIsRPCUnavailable(t *testing.T) {
	client := NewPipeClient(filepath.Join(t.TempDir(), "does-not-exist.sock"))
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := client.StartService(ctx, "6.0.0")
	if err == nil {
		t.Fatal("StartService() against a missing socket returned nil error")
	}
	if !errors.Is(err, ErrRPCUnavailable) {
		t.Errorf("StartService() error = %v, want one wrapping ErrRPCUnavailable", err)
	}
}

// Copyright 2026 The Foveated Streaming Authors
// SPDX-License-Identifier: Apache-2.0

package mediasvc

import (
	"context"
	"sync"

	"github.com/foveated-streaming/hostd/internal/session"
)

// FakeClient is an in-memory Client test double. Tests drive its
// behavior by setting the exported fields before handing the client to
// the code under test, or by using the convenience setters below, which
// take the client's internal lock; FakeClient itself never talks to a
// real media service.
type FakeClient struct {
	mu sync.Mutex

	connected bool
	running   bool
	state     session.MediaState
	closed    bool

	// StartServiceErr, if set, is returned by StartService instead of
	// starting the fake service.
	StartServiceErr error
	// QueryStatusErr, if set, is returned by QueryStatus.
	QueryStatusErr error
	// TokenByClientID maps a ClientID to the token IssueClientToken
	// returns for it. A missing entry returns a deterministic
	// "token-<clientID>" value.
	TokenByClientID map[string]string
	// Fingerprint is returned by CertificateFingerprint.
	Fingerprint string

	// StartServiceCalls records every StartService invocation's
	// version argument, in call order.
	StartServiceCalls []string
	// StopServiceCalls counts StopService invocations.
	StopServiceCalls int
}

// NewFakeClient returns a FakeClient with Fingerprint pre-populated so
// tests that don't care about its exact value still get a usable one.
func NewFakeClient() *FakeClient {
	return &FakeClient{Fingerprint: "fakefingerprint0123456789abcdef0123456789abcdef0123456789abcdef"}
}

func (f *FakeClient) Connect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = true
	return nil
}

func (f *FakeClient) StartService(ctx context.Context, version string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = true
	f.StartServiceCalls = append(f.StartServiceCalls, version)
	if f.StartServiceErr != nil {
		return f.StartServiceErr
	}
	f.running = true
	return nil
}

func (f *FakeClient) StopService(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.StopServiceCalls++
	f.running = false
	f.state = session.MediaState{}
	return nil
}

func (f *FakeClient) QueryStatus(ctx context.Context) (session.MediaState, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.QueryStatusErr != nil {
		return session.MediaState{}, false, f.QueryStatusErr
	}
	if !f.running {
		return session.MediaState{}, false, nil
	}
	return f.state, true, nil
}

func (f *FakeClient) IssueClientToken(ctx context.Context, clientID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if token, ok := f.TokenByClientID[clientID]; ok {
		return token, nil
	}
	return "token-" + clientID, nil
}

func (f *FakeClient) CertificateFingerprint(ctx context.Context, algorithm FingerprintAlgorithm) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Fingerprint, nil
}

func (f *FakeClient) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// SetState replaces the currently-reported MediaState. A test calls
// this to simulate the media service's runtime/client/game flags
// flipping on, independent of StartService/StopService.
func (f *FakeClient) SetState(state session.MediaState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = state
}

// Running reports whether StartService has succeeded without a
// matching StopService.
func (f *FakeClient) Running() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

// Closed reports whether Close has been called.
func (f *FakeClient) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

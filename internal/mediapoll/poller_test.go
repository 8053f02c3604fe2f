// Copyright 2026 The Foveated Streaming Authors
// SPDX-License-Identifier: Apache-2.0

package mediapoll

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/foveated-streaming/hostd/internal/mediasvc"
	"github.com/foveated-streaming/hostd/internal/session"
	"github.com/foveated-streaming/hostd/lib/clock"
)

func TestPollOnceInvokesOnChangeOnFirstObservation(t *testing.T) {
	client := mediasvc.NewFakeClient()
	client.SetState(session.MediaState{OpenXRRuntimeRunning: true})
	_ = client.StartService(context.Background(), "6.0.0")

	var mu sync.Mutex
	var changes []session.MediaState
	p := New(Config{
		Client: client,
		Clock:  clock.Fake(time.Unix(0, 0)),
		OnChange: func(state session.MediaState) {
			mu.Lock()
			defer mu.Unlock()
			changes = append(changes, state)
		},
	})

	p.pollOnce(context.Background())

	mu.Lock()
	defer mu.Unlock()
	if len(changes) != 1 {
		t.Fatalf("got %d OnChange calls, want 1", len(changes))
	}
	if !changes[0].OpenXRRuntimeRunning {
		t.Errorf("OnChange state = %+v, want OpenXRRuntimeRunning=true", changes[0])
	}
}

func TestPollOnceSkipsOnChangeWhenUnchanged(t *testing.T) {
	client := mediasvc.NewFakeClient()
	_ = client.StartService(context.Background(), "6.0.0")
	client.SetState(session.MediaState{OpenXRRuntimeRunning: true})

	calls := 0
	p := New(Config{
		Client:   client,
		Clock:    clock.Fake(time.Unix(0, 0)),
		OnChange: func(session.MediaState) { calls++ },
	})

	p.pollOnce(context.Background())
	p.pollOnce(context.Background())

	if calls != 1 {
		t.Errorf("got %d OnChange calls across two identical polls, want 1", calls)
	}
}

func TestPollOnceTreatsAbsentAsAllFalse(t *testing.T) {
	client := mediasvc.NewFakeClient() // never started: QueryStatus reports absent

	p := New(Config{Client: client, Clock: clock.Fake(time.Unix(0, 0))})
	p.pollOnce(context.Background())

	last := p.Last()
	if last.OpenXRRuntimeRunning || last.ClientConnected || last.GameConnected {
		t.Errorf("Last() = %+v, want all false when the service is absent", last)
	}
}

func TestAwaitRuntimeMatchesReturnsImmediatelyWhenAlreadyMatched(t *testing.T) {
	p := New(Config{Client: mediasvc.NewFakeClient(), Clock: clock.Fake(time.Unix(0, 0))})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if err := p.AwaitRuntimeMatches(ctx, false); err != nil {
		t.Fatalf("AwaitRuntimeMatches: %v", err)
	}
}

func TestAwaitRuntimeMatchesWaitsForPollToObserveChange(t *testing.T) {
	client := mediasvc.NewFakeClient()
	fakeClock := clock.Fake(time.Unix(0, 0))
	p := New(Config{Client: client, Clock: fakeClock})

	awaitDone := make(chan error, 1)
	go func() { awaitDone <- p.AwaitRuntimeMatches(context.Background(), true) }()
	fakeClock.WaitForTimers(1)

	// The runtime isn't "running" from M1's perspective until a poll
	// observes it; drive the fake client state and run one poll cycle
	// directly, independent of AwaitRuntimeMatches's own 50ms ticking.
	_ = client.StartService(context.Background(), "6.0.0")
	client.SetState(session.MediaState{OpenXRRuntimeRunning: true, ClientConnected: true, GameConnected: true})
	p.pollOnce(context.Background())

	fakeClock.Advance(StateChangePollDelay)

	select {
	case err := <-awaitDone:
		if err != nil {
			t.Fatalf("AwaitRuntimeMatches: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for AwaitRuntimeMatches")
	}
}

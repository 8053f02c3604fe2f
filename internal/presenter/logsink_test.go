// Copyright 2026 The Foveated Streaming Authors
// SPDX-License-Identifier: Apache-2.0

package presenter

import (
	"testing"
	"time"
)

func TestRingLogSinkBacklogOrderedOldestFirst(t *testing.T) {
	sink := NewRingLogSink(3)
	sink.Append("info", "first")
	sink.Append("info", "second")
	sink.Append("info", "third")

	_, backlog, unsubscribe := sink.Subscribe()
	defer unsubscribe()

	if len(backlog) != 3 {
		t.Fatalf("backlog length = %d, want 3", len(backlog))
	}
	want := []string{"first", "second", "third"}
	for i, line := range backlog {
		if line.Msg != want[i] {
			t.Errorf("backlog[%d].Msg = %q, want %q", i, line.Msg, want[i])
		}
	}
}

func TestRingLogSinkOverwritesOldest(t *testing.T) {
	sink := NewRingLogSink(2)
	sink.Append("info", "first")
	sink.Append("info", "second")
	sink.Append("info", "third")

	_, backlog, unsubscribe := sink.Subscribe()
	defer unsubscribe()

	if len(backlog) != 2 {
		t.Fatalf("backlog length = %d, want 2", len(backlog))
	}
	if backlog[0].Msg != "second" || backlog[1].Msg != "third" {
		t.Errorf("backlog = %v, want [second third]", backlog)
	}
}

func TestRingLogSinkDeliversLiveAppends(t *testing.T) {
	sink := NewRingLogSink(8)
	lines, _, unsubscribe := sink.Subscribe()
	defer unsubscribe()

	sink.Append("warn", "live line")

	select {
	case line := <-lines:
		if line.Msg != "live line" || line.Level != "warn" {
			t.Errorf("got %+v, want msg=%q level=%q", line, "live line", "warn")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for live append")
	}
}

func TestRingLogSinkUnsubscribeStopsDelivery(t *testing.T) {
	sink := NewRingLogSink(8)
	lines, _, unsubscribe := sink.Subscribe()
	unsubscribe()

	sink.Append("info", "after unsubscribe")

	select {
	case line, ok := <-lines:
		if ok {
			t.Errorf("received %+v after unsubscribe", line)
		}
	case <-time.After(50 * time.Millisecond):
		// No delivery is the expected outcome; the channel is simply
		// never closed since Append only ranges over current
		// subscribers.
	}
}

// Copyright 2026 The Foveated Streaming Authors
// SPDX-License-Identifier: Apache-2.0

package supervisor

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/foveated-streaming/hostd/internal/presenter"
	"github.com/foveated-streaming/hostd/lib/clock"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFindRuntimeConfigPicksLexicographicallyFirst(t *testing.T) {
	root := t.TempDir()
	for _, dir := range []string{"6.1.0", "6.0.0", "6.2.0-beta"} {
		path := filepath.Join(root, dir)
		if err := os.MkdirAll(path, 0o755); err != nil {
			t.Fatalf("MkdirAll: %v", err)
		}
		if err := os.WriteFile(filepath.Join(path, RuntimeConfigFilename), []byte("{}"), 0o644); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
	}

	got, err := findRuntimeConfig(root, discardLogger())
	if err != nil {
		t.Fatalf("findRuntimeConfig: %v", err)
	}
	want := filepath.Join(root, "6.0.0", RuntimeConfigFilename)
	if got != want {
		t.Errorf("findRuntimeConfig() = %q, want %q", got, want)
	}
}

func TestFindRuntimeConfigErrorsWhenAbsent(t *testing.T) {
	root := t.TempDir()
	if _, err := findRuntimeConfig(root, discardLogger()); err == nil {
		t.Fatal("findRuntimeConfig() returned nil error for an empty releases root")
	}
}

func TestIsNoisyLineFiltersDocumentedPrefixes(t *testing.T) {
	cases := []struct {
		line string
		want bool
	}{
		{"[heartbeat] tick 42", true},
		{"[codec-negotiation] candidate h264", true},
		{"[rtp] keepalive sent", true},
		{"fatal: could not bind socket", false},
		{"", false},
	}
	for _, c := range cases {
		if got := isNoisyLine(c.line); got != c.want {
			t.Errorf("isNoisyLine(%q) = %v, want %v", c.line, got, c.want)
		}
	}
}

// fakeLogSink records Append calls without the full RingLogSink
// machinery, so tests can assert exactly which lines a supervisor
// forwarded.
type fakeLogSink struct {
	lines []string
}

func (f *fakeLogSink) Append(level, msg string, attrs ...any) {
	f.lines = append(f.lines, msg)
}

func (f *fakeLogSink) Subscribe() (<-chan presenter.LogLine, []presenter.LogLine, func()) {
	ch := make(chan presenter.LogLine)
	return ch, nil, func() {}
}

func TestStartAndDisposeLaunchesAndTerminatesChild(t *testing.T) {
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("requires /bin/sh")
	}

	releasesRoot := t.TempDir()
	versionDir := filepath.Join(releasesRoot, "6.0.0")
	if err := os.MkdirAll(versionDir, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(filepath.Join(versionDir, RuntimeConfigFilename), []byte("{}"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	scriptPath := filepath.Join(t.TempDir(), "fake-media-service")
	script := "#!/bin/sh\necho started\nwhile true; do sleep 1; done\n"
	if err := os.WriteFile(scriptPath, []byte(script), 0o755); err != nil {
		t.Fatalf("WriteFile script: %v", err)
	}

	sink := &fakeLogSink{}
	s := New(Config{
		BinaryPath:   scriptPath,
		ReleasesRoot: releasesRoot,
		LogSink:      sink,
		Logger:       discardLogger(),
	})

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if err := s.Dispose(); err != nil {
		t.Fatalf("Dispose: %v", err)
	}
}

func TestRestartBackoffWindowPrunesOldEntries(t *testing.T) {
	fake := clock.Fake(time.Unix(0, 0))
	s := New(Config{Logger: discardLogger(), Clock: fake})

	s.restartTimes = []time.Time{fake.Now().Add(-restartBackoffWindow - time.Second)}
	s.recordRestartLocked()

	if s.shouldBackoffLocked() {
		t.Error("shouldBackoffLocked() = true after pruning a stale entry, want false")
	}
}

func TestRestartBackoffTriggersOnSecondConsecutiveExit(t *testing.T) {
	fake := clock.Fake(time.Unix(0, 0))
	s := New(Config{Logger: discardLogger(), Clock: fake})

	s.recordRestartLocked()
	if s.shouldBackoffLocked() {
		t.Error("shouldBackoffLocked() = true after the first restart, want false")
	}

	s.recordRestartLocked()
	if !s.shouldBackoffLocked() {
		t.Error("shouldBackoffLocked() = false after a second consecutive restart, want true")
	}
}

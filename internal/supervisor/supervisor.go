// Copyright 2026 The Foveated Streaming Authors
// SPDX-License-Identifier: Apache-2.0

package supervisor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/foveated-streaming/hostd/internal/presenter"
	"github.com/foveated-streaming/hostd/lib/clock"
)

// RuntimeConfigEnvVar is the environment variable the supervisor sets
// on the media-service child pointing it at its runtime configuration
// file.
const RuntimeConfigEnvVar = "FOVEATED_MEDIA_RUNTIME_CONFIG"

// RuntimeConfigFilename is the filename findRuntimeConfig searches
// for under the releases root.
const RuntimeConfigFilename = "runtime-config.json"

// killPriorInstanceGracePeriod is how long killPriorInstance waits
// after SIGTERM before escalating to SIGKILL.
const killPriorInstanceGracePeriod = 2 * time.Second

// restartBackoffWindow is the span within which a second or later
// unplanned exit triggers a backoff rather than an immediate
// relaunch (recorded as a supplement in DESIGN.md).
const restartBackoffWindow = 30 * time.Second

// restartBackoff is the delay applied to the second and later
// consecutive unplanned exits within restartBackoffWindow.
const restartBackoff = time.Second

// noisyLinePrefixes lists stdout/stderr line prefixes the supervisor
// drops rather than forwarding to the LogSink: heartbeat and codec
// negotiation chatter the media service emits on a tight interval.
var noisyLinePrefixes = []string{
	"[heartbeat]",
	"[codec-negotiation] candidate",
	"[rtp] keepalive",
}

// Config configures a Supervisor.
type Config struct {
	// BinaryPath is the absolute path to the media-service executable.
	BinaryPath string

	// ReleasesRoot is the directory findRuntimeConfig walks looking
	// for RuntimeConfigFilename.
	ReleasesRoot string

	// LogSink receives filtered stdout/stderr lines and supervisor
	// status lines.
	LogSink presenter.LogSink

	// Clock provides the restart-backoff delay. Defaults to
	// clock.Real() if nil.
	Clock clock.Clock

	// Logger receives structured supervisor events. Defaults to
	// slog.Default() if nil.
	Logger *slog.Logger
}

// Supervisor launches, monitors, and restarts the media-service child
// process.
type Supervisor struct {
	config Config
	clock  clock.Clock
	logger *slog.Logger

	mu           sync.Mutex
	cmd          *exec.Cmd
	torndown     atomic.Bool
	exitReaper   sync.WaitGroup
	restartTimes []time.Time
}

// New returns a Supervisor. It does not launch anything until Start
// is called.
func New(config Config) *Supervisor {
	c := config.Clock
	if c == nil {
		c = clock.Real()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{config: config, clock: c, logger: logger}
}

// Start kills any prior instance of the media service, locates its
// runtime configuration, and launches it with a process group and
// captured stdio. The returned error is from the initial launch only;
// subsequent unplanned exits are handled internally by relaunching.
func (s *Supervisor) Start(ctx context.Context) error {
	if err := s.killPriorInstance(); err != nil {
		s.logger.Warn("killing prior media-service instance", "error", err)
	}

	runtimeConfigPath, err := findRuntimeConfig(s.config.ReleasesRoot, s.logger)
	if err != nil {
		return fmt.Errorf("supervisor: locating runtime configuration: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.launchLocked(runtimeConfigPath)
}

// launchLocked starts the child process and its exit-reaper goroutine.
// Callers must hold s.mu.
func (s *Supervisor) launchLocked(runtimeConfigPath string) error {
	cmd := exec.Command(s.config.BinaryPath)
	cmd.Env = append(os.Environ(), RuntimeConfigEnvVar+"="+runtimeConfigPath)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("supervisor: attaching stdout: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("supervisor: attaching stderr: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("supervisor: starting %s: %w", s.config.BinaryPath, err)
	}
	s.cmd = cmd

	go captureStdio(stdout, "stdout", s.config.LogSink)
	go captureStdio(stderr, "stderr", s.config.LogSink)

	s.exitReaper.Add(1)
	go s.reapAndRestart(cmd)

	s.logger.Info("media service started", "pid", cmd.Process.Pid, "runtime_config", runtimeConfigPath)
	return nil
}

// reapAndRestart waits for cmd to exit and, unless the supervisor is
// tearing down, relaunches it.
func (s *Supervisor) reapAndRestart(cmd *exec.Cmd) {
	defer s.exitReaper.Done()

	waitErr := cmd.Wait()

	if s.torndown.Load() {
		return
	}

	exitCode := -1
	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		exitCode = exitErr.ExitCode()
	}
	s.logger.Warn("media service exited unexpectedly, relaunching", "exit_code", exitCode)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.torndown.Load() {
		return
	}

	s.recordRestartLocked()
	if s.shouldBackoffLocked() {
		s.clock.Sleep(restartBackoff)
	}

	runtimeConfigPath, err := findRuntimeConfig(s.config.ReleasesRoot, s.logger)
	if err != nil {
		s.logger.Error("supervisor: relaunch aborted, cannot locate runtime configuration", "error", err)
		return
	}
	if err := s.launchLocked(runtimeConfigPath); err != nil {
		s.logger.Error("supervisor: relaunch failed", "error", err)
	}
}

// recordRestartLocked appends the current time to the restart history
// and prunes entries outside restartBackoffWindow, so
// shouldBackoffLocked only ever sees recent consecutive restarts.
func (s *Supervisor) recordRestartLocked() {
	now := s.clock.Now()
	s.restartTimes = append(s.restartTimes, now)

	cutoff := now.Add(-restartBackoffWindow)
	kept := s.restartTimes[:0]
	for _, t := range s.restartTimes {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	s.restartTimes = kept
}

func (s *Supervisor) shouldBackoffLocked() bool {
	return len(s.restartTimes) > 1
}

// Dispose tears the supervisor down: sets the teardown flag first so
// the exit reaper does not relaunch, force-kills the child's process
// group if still running, then waits for the reaper to finish.
func (s *Supervisor) Dispose() error {
	s.torndown.Store(true)

	s.mu.Lock()
	cmd := s.cmd
	s.mu.Unlock()

	if cmd != nil && cmd.Process != nil {
		if err := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
			s.logger.Warn("supervisor: killing media-service process group", "error", err)
		}
	}

	s.exitReaper.Wait()
	return nil
}

// captureStdio copies lines from r into sink, dropping any line
// matching noisyLinePrefixes.
func captureStdio(r io.Reader, streamName string, sink presenter.LogSink) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if isNoisyLine(line) {
			continue
		}
		if sink != nil {
			sink.Append("info", line, "stream", streamName)
		}
	}
}

func isNoisyLine(line string) bool {
	for _, prefix := range noisyLinePrefixes {
		if strings.HasPrefix(line, prefix) {
			return true
		}
	}
	return false
}

// killPriorInstance looks for any running process whose executable
// resolves to s.config.BinaryPath and sends it SIGTERM, escalating to
// SIGKILL after killPriorInstanceGracePeriod if it has not exited:
// recovery from a previous crash that left the media service running.
func (s *Supervisor) killPriorInstance() error {
	entries, err := os.ReadDir("/proc")
	if err != nil {
		return fmt.Errorf("listing /proc: %w", err)
	}

	var found []int
	for _, entry := range entries {
		pid, err := strconv.Atoi(entry.Name())
		if err != nil {
			continue
		}
		exe, err := os.Readlink(filepath.Join("/proc", entry.Name(), "exe"))
		if err != nil {
			continue
		}
		if exe == s.config.BinaryPath {
			found = append(found, pid)
		}
	}

	if len(found) == 0 {
		return nil
	}

	for _, pid := range found {
		s.logger.Info("terminating prior media-service instance", "pid", pid)
		_ = syscall.Kill(pid, syscall.SIGTERM)
	}

	deadline := s.clock.Now().Add(killPriorInstanceGracePeriod)
	for s.clock.Now().Before(deadline) {
		allGone := true
		for _, pid := range found {
			if err := syscall.Kill(pid, 0); err == nil {
				allGone = false
				break
			}
		}
		if allGone {
			return nil
		}
		s.clock.Sleep(50 * time.Millisecond)
	}

	for _, pid := range found {
		_ = syscall.Kill(pid, syscall.SIGKILL)
	}
	return nil
}

// findRuntimeConfig walks releasesRoot looking for files named
// RuntimeConfigFilename, sorts the candidates lexicographically, and
// returns the first (an open question resolved as documented in
// DESIGN.md). Warns via logger when more than one candidate is found.
func findRuntimeConfig(releasesRoot string, logger *slog.Logger) (string, error) {
	var candidates []string
	err := filepath.WalkDir(releasesRoot, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && d.Name() == RuntimeConfigFilename {
			candidates = append(candidates, path)
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("walking %s: %w", releasesRoot, err)
	}
	if len(candidates) == 0 {
		return "", fmt.Errorf("no %s found under %s", RuntimeConfigFilename, releasesRoot)
	}

	sort.Strings(candidates)
	if len(candidates) > 1 {
		logger.Warn("multiple runtime configuration candidates found, using the first lexicographically",
			"chosen", candidates[0], "candidates", candidates)
	}
	return candidates[0], nil
}

// Copyright 2026 The Foveated Streaming Authors
// SPDX-License-Identifier: Apache-2.0

package mediapoll

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/foveated-streaming/hostd/internal/mediasvc"
	"github.com/foveated-streaming/hostd/internal/session"
	"github.com/foveated-streaming/hostd/lib/clock"
)

// StatusPollInterval is the default interval between QueryStatus
// calls.
const StatusPollInterval = 200 * time.Millisecond

// StateChangePollDelay is the default interval AwaitRuntimeMatches
// polls at while waiting for a specific runtime-running state.
const StateChangePollDelay = 50 * time.Millisecond

// OnChangeFunc is invoked with the newly observed state whenever it
// differs from the previously observed state. Poller never calls it
// while holding its internal lock.
type OnChangeFunc func(state session.MediaState)

// Config configures a Poller.
type Config struct {
	Client   mediasvc.Client
	Clock    clock.Clock
	Logger   *slog.Logger
	Interval time.Duration
	OnChange OnChangeFunc

	// StateChangePollDelay overrides StateChangePollDelay for
	// AwaitRuntimeMatches. Defaults to StateChangePollDelay if zero.
	StateChangePollDelay time.Duration
}

// Poller owns the single background task that repeatedly queries the
// media-service RPC client and reports changes in the observed
// MediaServiceState.
type Poller struct {
	client               mediasvc.Client
	clock                clock.Clock
	logger               *slog.Logger
	interval             time.Duration
	onChange             OnChangeFunc
	stateChangePollDelay time.Duration

	mu   sync.Mutex
	last session.MediaState
}

// New returns a Poller. Run must be called to start polling.
func New(config Config) *Poller {
	c := config.Clock
	if c == nil {
		c = clock.Real()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	interval := config.Interval
	if interval <= 0 {
		interval = StatusPollInterval
	}
	stateChangePollDelay := config.StateChangePollDelay
	if stateChangePollDelay <= 0 {
		stateChangePollDelay = StateChangePollDelay
	}
	return &Poller{
		client:               config.Client,
		clock:                c,
		logger:               logger,
		interval:             interval,
		onChange:             config.OnChange,
		stateChangePollDelay: stateChangePollDelay,
	}
}

// Run loops until ctx is canceled, querying the media-service client
// once per interval and invoking OnChange whenever the observed state
// changes.
func (p *Poller) Run(ctx context.Context) {
	for {
		p.pollOnce(ctx)

		select {
		case <-ctx.Done():
			return
		case <-p.clock.After(p.interval):
		}
	}
}

// pollOnce performs a single query-diff-notify cycle.
func (p *Poller) pollOnce(ctx context.Context) {
	state, ok, err := p.client.QueryStatus(ctx)
	if err != nil {
		p.logger.Warn("mediapoll: QueryStatus failed, treating as absent", "error", err)
	}
	if !ok {
		state = session.MediaState{}
	}

	p.mu.Lock()
	changed := !state.Equal(p.last)
	p.last = state
	p.mu.Unlock()

	if changed && p.onChange != nil {
		p.onChange(state)
	}
}

// Last returns the most recently observed MediaState without issuing
// a new query.
func (p *Poller) Last() session.MediaState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}

// AwaitRuntimeMatches blocks, polling the cached last-observed state
// every stateChangePollDelay, until OpenXRRuntimeRunning equals
// expected or ctx is canceled. Used by the WAITING transition handler.
func (p *Poller) AwaitRuntimeMatches(ctx context.Context, expected bool) error {
	if p.Last().OpenXRRuntimeRunning == expected {
		return nil
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.clock.After(p.stateChangePollDelay):
		}
		if p.Last().OpenXRRuntimeRunning == expected {
			return nil
		}
	}
}

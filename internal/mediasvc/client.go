// Copyright 2026 The Foveated Streaming Authors
// SPDX-License-Identifier: Apache-2.0

// Package mediasvc provides a typed capability facade over the native
// pipe-backed media-service RPC library. That library itself is out
// of this program's scope; this package defines
// the [Client] interface the rest of the program depends on, a
// concrete [pipeClient] that speaks the same length-prefixed JSON
// framing as internal/wire over a Unix domain socket, and a
// [FakeClient] test double.
package mediasvc

import (
	"context"
	"errors"
	"fmt"

	"github.com/foveated-streaming/hostd/internal/session"
)

// ErrRPCUnavailable is returned when the client cannot reach the
// media service at all — the socket does not exist, or the dial or a
// read/write failed at the transport level.
var ErrRPCUnavailable = errors.New("mediasvc: rpc unavailable")

// CallError wraps a failure reported by the media service itself for a
// specific operation.
type CallError struct {
	Op      string
	Message string
}

func (e *CallError) Error() string {
	return fmt.Sprintf("mediasvc: %s failed: %s", e.Op, e.Message)
}

// FingerprintAlgorithm names the digest algorithm used by
// CertificateFingerprint. SHA256 is the only algorithm currently
// defined.
type FingerprintAlgorithm string

const AlgorithmSHA256 FingerprintAlgorithm = "SHA256"

// Client is the typed capability surface exposed by the media service.
type Client interface {
	// Connect establishes the RPC channel. Idempotent; other methods
	// invoke it lazily, so callers rarely need it directly.
	Connect(ctx context.Context) error

	// StartService launches the named media-service version.
	StartService(ctx context.Context, version string) error

	// StopService stops the currently running media service, if any.
	StopService(ctx context.Context) error

	// QueryStatus returns the current media state. ok is false (with a
	// nil error) when the service is not currently running — this is
	// not itself an error condition.
	QueryStatus(ctx context.Context) (state session.MediaState, ok bool, err error)

	// IssueClientToken mints a session-scoped client token for
	// clientID. Requires the service to be running.
	IssueClientToken(ctx context.Context, clientID string) (token string, err error)

	// CertificateFingerprint returns the hex digest of the media
	// service's streaming certificate. Requires the service to be
	// running.
	CertificateFingerprint(ctx context.Context, algorithm FingerprintAlgorithm) (fingerprint string, err error)

	// Close releases the RPC channel. Idempotent.
	Close() error
}

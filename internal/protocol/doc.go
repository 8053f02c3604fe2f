// Copyright 2026 The Foveated Streaming Authors
// SPDX-License-Identifier: Apache-2.0

// Package protocol implements the session protocol engine: the TCP
// listener and per-connection state machine that speaks the
// length-prefixed JSON handshake to exactly one active client at a
// time, enforces the version/session-id/ordering rules, and drives the
// pairing handshake through the media-service RPC client and poller.
package protocol

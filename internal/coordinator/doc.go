// Copyright 2026 The Foveated Streaming Authors
// SPDX-License-Identifier: Apache-2.0

// Package coordinator implements the session coordinator: the
// top-level composition root. It validates configuration,
// wires the advertiser, process supervisor, RPC client, media-state
// poller, and session protocol engine together, translates the media
// poller's state into a Presenter status, and restarts the
// session-capable subsystems whenever the client disconnects.
package coordinator

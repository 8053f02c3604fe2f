// Copyright 2026 The Foveated Streaming Authors
// SPDX-License-Identifier: Apache-2.0

// Package netutil provides small network I/O helpers for the session
// protocol engine's TCP listener.
package netutil

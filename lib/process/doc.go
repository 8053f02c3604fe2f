// Copyright 2026 The Foveated Streaming Authors
// SPDX-License-Identifier: Apache-2.0

// Package process provides binary entrypoint helpers for the streaming
// host's command-line programs. It centralizes the one raw I/O pattern
// that exists before or after the structured logger is initialized:
// reporting a fatal error from run() to stderr and exiting with a
// non-zero status.
package process

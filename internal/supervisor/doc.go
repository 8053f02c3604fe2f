// Copyright 2026 The Foveated Streaming Authors
// SPDX-License-Identifier: Apache-2.0

// Package supervisor launches and monitors the media-service child
// process: recovering a prior instance left behind by a crash,
// locating the runtime configuration file it needs, capturing its
// stdio into a LogSink, and relaunching it on an unplanned exit.
package supervisor

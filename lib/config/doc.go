// Copyright 2026 The Foveated Streaming Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads and validates the streaming host's
// configuration: the advertised bundle identifier, the TCP endpoint the
// session protocol engine listens on, the debug force-barcode option,
// and the handful of timing and path knobs the rest of the program
// treats as configuration rather than hard-coded constants.
//
// Configuration may be supplied on the command line (see
// cmd/streaming-hostd) or loaded from a YAML file via [LoadFile]; flags
// always take precedence over the file when both are given. There is
// no environment-variable fallback and no auto-discovery — an
// explicit, auditable configuration source is preferred over an
// implicit one.
//
// [Config.Validate] enforces a non-empty bundle identifier, a port in
// 1..65535, and a parseable address. A
// failure is reported as [InvalidConfigurationError], which the
// coordinator returns to its caller without starting any subsystem and
// without notifying the Presenter.
package config

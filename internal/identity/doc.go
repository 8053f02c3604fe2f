// Copyright 2026 The Foveated Streaming Authors
// SPDX-License-Identifier: Apache-2.0

// Package identity persists the host's ServerId: a 32-lowercase-hex
// identifier generated once per host and advertised to clients on
// every AcknowledgeConnection.
//
// The per-user key/value store this calls for is realized here as a
// JSON file under os.UserConfigDir(). The file is written to a synced
// temporary file first and then hard-linked into place, which fails if
// the target already exists, so that two processes racing the first
// creation never observe a partially written file — they observe
// either their own winning UUID or the other process's.
package identity

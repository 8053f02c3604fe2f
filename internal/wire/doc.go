// Copyright 2026 The Foveated Streaming Authors
// SPDX-License-Identifier: Apache-2.0

// Package wire implements the length-prefixed JSON framing used on
// every socket in this program: the session protocol engine's TCP
// connection to the client, and the media-service RPC client's pipe to
// the co-resident media service.
//
// Frame format, both directions:
//
//	0      3 4                   4+N-1
//	+--------+---------------------+
//	| len:u32| UTF-8 JSON payload  |
//	+--------+---------------------+
//
// len is little-endian. The codec does not parse or validate JSON
// schema — callers decode the payload themselves.
package wire

// Copyright 2026 The Foveated Streaming Authors
// SPDX-License-Identifier: Apache-2.0

// Package mediapoll implements the media state poller: a single
// background loop that periodically queries the media-service RPC
// client, diffs the result against the last observation, and notifies
// a registered callback of any change.
package mediapoll

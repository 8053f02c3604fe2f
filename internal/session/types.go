// Copyright 2026 The Foveated Streaming Authors
// SPDX-License-Identifier: Apache-2.0

// Package session defines the data model shared by the session
// protocol engine, the media-service poller, and the coordinator:
// endpoints, identifiers, the barcode payload, and the status enum the
// client drives. None of these types know how to serialize themselves
// onto the wire — that is internal/protocol's job — they exist so the
// rest of the program has one vocabulary for "what is a session."
package session

import (
	"fmt"
	"net"
)

// Endpoint is the TCP address the session protocol engine listens on.
// Immutable for a Coordinator's lifetime.
type Endpoint struct {
	Address net.IP
	Port    uint16
}

// String renders the endpoint in host:port form.
func (e Endpoint) String() string {
	return fmt.Sprintf("%s:%d", e.Address, e.Port)
}

// Status is the client-driven session lifecycle state. The core never
// invents a transition — it only relays what the client
// reports.
type Status string

const (
	StatusWaiting      Status = "WAITING"
	StatusConnecting   Status = "CONNECTING"
	StatusConnected    Status = "CONNECTED"
	StatusPaused       Status = "PAUSED"
	StatusDisconnected Status = "DISCONNECTED"
)

// Valid reports whether s is one of the five statuses the client is
// allowed to report.
func (s Status) Valid() bool {
	switch s {
	case StatusWaiting, StatusConnecting, StatusConnected, StatusPaused, StatusDisconnected:
		return true
	default:
		return false
	}
}

// BarcodePayload is produced by the media-service RPC client from a
// ClientID and carried to the Presenter for QR rendering.
// certificateFingerprint is a hex SHA-256 of the media service's
// streaming certificate.
type BarcodePayload struct {
	ClientToken            string
	CertificateFingerprint string
}

// Information is the single active session the protocol engine owns.
// Created when a RequestConnection is accepted; cleared when the
// session is disconnected. Exclusively owned by the protocol engine,
// read by the coordinator.
type Information struct {
	SessionID string
	ClientID  string
	Barcode   BarcodePayload
}

// MediaState is a snapshot of the co-resident media service, as
// reported by the RPC client's queryStatus. Equality is field-wise.
type MediaState struct {
	OpenXRRuntimeRunning bool
	ClientConnected      bool
	GameConnected        bool
}

// Equal reports whether two MediaState snapshots carry the same flags.
func (m MediaState) Equal(other MediaState) bool {
	return m == other
}

// Running reports whether all three flags are set — the coordinator's
// "Running" status translation.
func (m MediaState) Running() bool {
	return m.OpenXRRuntimeRunning && m.ClientConnected && m.GameConnected
}

// Stopped reports whether all three flags are clear.
func (m MediaState) Stopped() bool {
	return !m.OpenXRRuntimeRunning && !m.ClientConnected && !m.GameConnected
}

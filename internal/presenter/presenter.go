// Copyright 2026 The Foveated Streaming Authors
// SPDX-License-Identifier: Apache-2.0

// Package presenter defines the outward-facing notification surface
// that the coordinator drives and that an attached GUI or log window
// — outside this program's scope — would implement.
package presenter

import "github.com/foveated-streaming/hostd/internal/session"

// Status is the high-level session status the coordinator reports,
// derived from the media state poller's observations.
type Status string

const (
	StatusStopped  Status = "Stopped"
	StatusRunning  Status = "Running"
	StatusPaused   Status = "Paused"
)

// BonjourStatus is the advertiser's reported state, surfaced alongside
// the session-management status line.
type BonjourStatus string

const (
	BonjourStatusRunning BonjourStatus = "Running"
	BonjourStatusFailed  BonjourStatus = "Failed"
)

// SessionManagementStatus is the listener's reported lifecycle state.
type SessionManagementStatus string

const (
	SessionManagementListening  SessionManagementStatus = "Stopped (Listening…)"
	SessionManagementConnected  SessionManagementStatus = "Connected"
	SessionManagementConnecting SessionManagementStatus = "Connecting"
)

// Presenter is the four-method notification surface the session
// coordinator drives.
type Presenter interface {
	// GenerateBarcode is invoked by the protocol engine with the fresh
	// BarcodePayload of each accepted RequestConnection.
	GenerateBarcode(payload session.BarcodePayload)

	// SessionStatusDidChange reports a new high-level status for the
	// active (or now-absent) session.
	SessionStatusDidChange(status Status)

	// BarcodePresentationRequested is invoked when the client
	// explicitly asks the host to (re-)present the pairing barcode
	// for the given session.
	BarcodePresentationRequested(info session.Information)

	// ConnectionErrorOccurred reports a non-fatal error the Presenter
	// should surface to the user (advertisement failure, a rejected
	// handshake). Media-service RPC failures are logged and are not
	// reported here.
	ConnectionErrorOccurred(err error)
}

// Copyright 2026 The Foveated Streaming Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"encoding/json"
)

// Event names, exactly as they appear on the wire.
const (
	eventRequestConnection              = "RequestConnection"
	eventAcknowledgeConnection          = "AcknowledgeConnection"
	eventRequestBarcodePresentation     = "RequestBarcodePresentation"
	eventAcknowledgeBarcodePresentation = "AcknowledgeBarcodePresentation"
	eventSessionStatusDidChange         = "SessionStatusDidChange"
	eventMediaStreamIsReady             = "MediaStreamIsReady"
	eventRequestSessionDisconnect       = "RequestSessionDisconnect"
)

// inboundEnvelope is the discriminator struct of the two-step parsing
// strategy: every inbound frame is parsed loosely once to read Event
// and SessionID, dispatched, then parsed a second time into the
// concrete event type the dispatch selected.
type inboundEnvelope struct {
	Event     string
	SessionID string
}

// parseEnvelope performs the first parse. It reports ok=false for
// malformed JSON or a frame missing either the Event or SessionID key
// — acceptance rule 1, which requires the frame to be silently ignored
// rather than treated as a protocol violation.
func parseEnvelope(raw []byte) (env inboundEnvelope, ok bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return inboundEnvelope{}, false
	}

	eventField, present := fields["Event"]
	if !present {
		return inboundEnvelope{}, false
	}
	sessionField, present := fields["SessionID"]
	if !present {
		return inboundEnvelope{}, false
	}

	if err := json.Unmarshal(eventField, &env.Event); err != nil {
		return inboundEnvelope{}, false
	}
	if err := json.Unmarshal(sessionField, &env.SessionID); err != nil {
		return inboundEnvelope{}, false
	}
	return env, true
}

// requestConnectionMessage is the concrete C→S RequestConnection body.
// Event is redundant with the discriminator struct's own parse but is
// kept here so the type also serves as a literal wire fixture in
// tests.
type requestConnectionMessage struct {
	Event                    string `json:"Event"`
	ProtocolVersion          string
	StreamingProvider        string
	StreamingProviderVersion string
	UserInterfaceIdiom       string
	SessionID                string
	ClientID                 string
}

// requestBarcodePresentationMessage is the concrete C→S
// RequestBarcodePresentation body.
type requestBarcodePresentationMessage struct {
	Event     string `json:"Event"`
	SessionID string
}

// sessionStatusDidChangeMessage is the concrete C→S
// SessionStatusDidChange body.
type sessionStatusDidChangeMessage struct {
	Event     string `json:"Event"`
	SessionID string
	Status    string
}

// acknowledgeConnectionMessage is the concrete S→C AcknowledgeConnection
// body. CertificateFingerprint is left as the zero value and omitted
// by the omitempty tag when forceBarcode suppresses it: omitted from
// the frame entirely, never serialized as JSON null.
type acknowledgeConnectionMessage struct {
	Event                  string `json:"Event"`
	SessionID              string `json:"SessionID"`
	ServerID               string `json:"ServerID"`
	CertificateFingerprint string `json:"CertificateFingerprint,omitempty"`
}

// acknowledgeBarcodePresentationMessage is the concrete S→C
// AcknowledgeBarcodePresentation body.
type acknowledgeBarcodePresentationMessage struct {
	Event     string `json:"Event"`
	SessionID string `json:"SessionID"`
}

// mediaStreamIsReadyMessage is the concrete S→C MediaStreamIsReady
// body.
type mediaStreamIsReadyMessage struct {
	Event     string `json:"Event"`
	SessionID string `json:"SessionID"`
}

// requestSessionDisconnectMessage is the concrete disconnect body,
// sent in either direction.
type requestSessionDisconnectMessage struct {
	Event     string `json:"Event"`
	SessionID string `json:"SessionID"`
}

func newAcknowledgeConnection(sessionID, serverID, fingerprint string, forceBarcode bool) acknowledgeConnectionMessage {
	msg := acknowledgeConnectionMessage{
		Event:     eventAcknowledgeConnection,
		SessionID: sessionID,
		ServerID:  serverID,
	}
	if !forceBarcode {
		msg.CertificateFingerprint = fingerprint
	}
	return msg
}

func newAcknowledgeBarcodePresentation(sessionID string) acknowledgeBarcodePresentationMessage {
	return acknowledgeBarcodePresentationMessage{Event: eventAcknowledgeBarcodePresentation, SessionID: sessionID}
}

func newMediaStreamIsReady(sessionID string) mediaStreamIsReadyMessage {
	return mediaStreamIsReadyMessage{Event: eventMediaStreamIsReady, SessionID: sessionID}
}

func newRequestSessionDisconnect(sessionID string) requestSessionDisconnectMessage {
	return requestSessionDisconnectMessage{Event: eventRequestSessionDisconnect, SessionID: sessionID}
}

// Copyright 2026 The Foveated Streaming Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"encoding/json"
	"testing"
)

func TestParseEnvelopeRejectsMalformedOrIncomplete(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"not JSON", `not json at all`},
		{"missing Event", `{"SessionID":"S1"}`},
		{"missing SessionID", `{"Event":"RequestConnection"}`},
		{"Event wrong type", `{"Event":42,"SessionID":"S1"}`},
		{"empty object", `{}`},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if _, ok := parseEnvelope([]byte(c.raw)); ok {
				t.Errorf("parseEnvelope(%q) succeeded, want rejected", c.raw)
			}
		})
	}
}

func TestParseEnvelopeAcceptsWellFormedFrame(t *testing.T) {
	env, ok := parseEnvelope([]byte(`{"Event":"RequestConnection","SessionID":"S1","ClientID":"C1"}`))
	if !ok {
		t.Fatal("parseEnvelope rejected a well-formed frame")
	}
	if env.Event != "RequestConnection" || env.SessionID != "S1" {
		t.Errorf("parseEnvelope() = %+v", env)
	}
}

// Omission fidelity: forceBarcode must omit the key entirely, not
// serialize it as JSON null.
func TestNewAcknowledgeConnectionOmitsFingerprintKeyWhenForced(t *testing.T) {
	msg := newAcknowledgeConnection("S1", "serverid", "fingerprint", true)
	payload, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if _, present := fields["CertificateFingerprint"]; present {
		t.Errorf("forced AcknowledgeConnection carries CertificateFingerprint: %s", payload)
	}
}

func TestNewAcknowledgeConnectionIncludesFingerprintWhenNotForced(t *testing.T) {
	msg := newAcknowledgeConnection("S1", "serverid", "fingerprint", false)
	payload, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	raw, present := fields["CertificateFingerprint"]
	if !present {
		t.Fatalf("unforced AcknowledgeConnection omits CertificateFingerprint: %s", payload)
	}
	var got string
	if err := json.Unmarshal(raw, &got); err != nil || got != "fingerprint" {
		t.Errorf("CertificateFingerprint = %q, want %q", got, "fingerprint")
	}
}

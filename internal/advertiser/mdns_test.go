// Copyright 2026 The Foveated Streaming Authors
// SPDX-License-Identifier: Apache-2.0

package advertiser

import (
	"net"
	"testing"

	"golang.org/x/net/dns/dnsmessage"
)

func TestSanitizeLabel(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"My Host", "my-host"},
		{"already-lower", "already-lower"},
		{"Weird_Name!42", "weird-name-42"},
	}
	for _, c := range cases {
		if got := sanitizeLabel(c.in); got != c.want {
			t.Errorf("sanitizeLabel(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestBuildResponsePTR(t *testing.T) {
	a := &MDNSAdvertiser{
		advertisement: Advertisement{
			Instance:    "my-host",
			ServiceType: ServiceType,
			Port:        7035,
			Addresses:   []net.IP{net.IPv4(192, 168, 1, 10)},
			TXT:         map[string]string{TXTApplicationIdentifierKey: "com.example.app"},
		},
		hostname: "my-host.local.",
	}

	query := dnsmessage.Message{
		Questions: []dnsmessage.Question{
			{Name: mustName(ServiceType + ".local."), Type: dnsmessage.TypePTR, Class: dnsmessage.ClassINET},
		},
	}

	response := a.buildResponse(query)
	if response == nil {
		t.Fatal("buildResponse returned nil for a matching PTR query")
	}
	if len(response.Answers) != 1 {
		t.Fatalf("got %d answers, want 1", len(response.Answers))
	}
	ptr, ok := response.Answers[0].Body.(*dnsmessage.PTRResource)
	if !ok {
		t.Fatalf("answer body is %T, want *dnsmessage.PTRResource", response.Answers[0].Body)
	}
	wantInstance := mustName("my-host." + ServiceType + ".local.")
	if ptr.PTR != wantInstance {
		t.Errorf("PTR target = %v, want %v", ptr.PTR, wantInstance)
	}
}

func TestBuildResponseSRVIncludesTXT(t *testing.T) {
	a := &MDNSAdvertiser{
		advertisement: Advertisement{
			Instance:    "my-host",
			ServiceType: ServiceType,
			Port:        7035,
			Addresses:   []net.IP{net.IPv4(192, 168, 1, 10)},
			TXT:         map[string]string{TXTApplicationIdentifierKey: "com.example.app"},
		},
		hostname: "my-host.local.",
	}

	instanceFQDN := mustName("my-host." + ServiceType + ".local.")
	query := dnsmessage.Message{
		Questions: []dnsmessage.Question{
			{Name: instanceFQDN, Type: dnsmessage.TypeSRV, Class: dnsmessage.ClassINET},
		},
	}

	response := a.buildResponse(query)
	if response == nil {
		t.Fatal("buildResponse returned nil for a matching SRV query")
	}
	var sawSRV, sawTXT bool
	for _, answer := range response.Answers {
		switch body := answer.Body.(type) {
		case *dnsmessage.SRVResource:
			sawSRV = true
			if body.Port != 7035 {
				t.Errorf("SRV port = %d, want 7035", body.Port)
			}
		case *dnsmessage.TXTResource:
			sawTXT = true
		}
	}
	if !sawSRV {
		t.Error("response missing SRV record")
	}
	if !sawTXT {
		t.Error("SRV response missing accompanying TXT record")
	}
}

func TestBuildResponseIgnoresUnrelatedQuery(t *testing.T) {
	a := &MDNSAdvertiser{
		advertisement: Advertisement{
			Instance:    "my-host",
			ServiceType: ServiceType,
			Port:        7035,
			Addresses:   []net.IP{net.IPv4(192, 168, 1, 10)},
		},
		hostname: "my-host.local.",
	}

	query := dnsmessage.Message{
		Questions: []dnsmessage.Question{
			{Name: mustName("something-else.local."), Type: dnsmessage.TypeA, Class: dnsmessage.ClassINET},
		},
	}

	if response := a.buildResponse(query); response != nil {
		t.Errorf("buildResponse() = %+v, want nil for an unrelated query", response)
	}
}

func TestAdvertiseRejectsEmptyInstance(t *testing.T) {
	a := NewMDNSAdvertiser(nil)
	err := a.Advertise(nil, Advertisement{Addresses: []net.IP{net.IPv4(127, 0, 0, 1)}})
	if err == nil {
		t.Fatal("Advertise() with empty instance name returned nil error")
	}
}

func TestAdvertiseRejectsNoAddresses(t *testing.T) {
	a := NewMDNSAdvertiser(nil)
	err := a.Advertise(nil, Advertisement{Instance: "my-host"})
	if err == nil {
		t.Fatal("Advertise() with no addresses returned nil error")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	a := NewMDNSAdvertiser(nil)
	if err := a.Close(); err != nil {
		t.Fatalf("Close() on never-advertised instance: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("second Close(): %v", err)
	}
}

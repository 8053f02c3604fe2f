// Copyright 2026 The Foveated Streaming Authors
// SPDX-License-Identifier: Apache-2.0

// Package advertiser implements the service advertiser: publishing an
// mDNS/DNS-SD record set so a client on the local link can discover
// this host without the client knowing its address in advance.
//
// The core only depends on the narrow Advertiser interface — the
// coordinator treats advertisement failure as non-fatal: a client that
// already has the endpoint by another means can still connect.
package advertiser

import (
	"context"
	"net"
)

// ServiceType is the DNS-SD service type this host advertises under.
const ServiceType = "_apple-foveated-streaming._tcp"

// TXTApplicationIdentifierKey is the TXT record key carrying the
// bundle identifier.
const TXTApplicationIdentifierKey = "Application-Identifier"

// Advertisement is the record set an Advertiser publishes.
type Advertisement struct {
	// Instance is the service instance name, conventionally the host's
	// local hostname.
	Instance string

	// ServiceType is almost always advertiser.ServiceType; kept as a
	// field so tests can substitute a private service type.
	ServiceType string

	// Port is the TCP port clients should connect to.
	Port uint16

	// Addresses are the host's advertised IPv4/IPv6 addresses.
	Addresses []net.IP

	// TXT is the TXT record key/value bundle. The coordinator always
	// sets TXTApplicationIdentifierKey to the configured bundle ID.
	TXT map[string]string
}

// Advertiser publishes and withdraws a service advertisement on the
// local link.
type Advertiser interface {
	// Advertise publishes the record set and begins responding to
	// mDNS queries for it. Returns once the advertisement is live.
	Advertise(ctx context.Context, advertisement Advertisement) error

	// Close withdraws the advertisement and releases the multicast
	// socket. Idempotent.
	Close() error
}

// Copyright 2026 The Foveated Streaming Authors
// SPDX-License-Identifier: Apache-2.0

package advertiser

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/pion/mdns/v2"
	"golang.org/x/net/dns/dnsmessage"
	"golang.org/x/net/ipv4"
)

// mdnsAddr is the IPv4 multicast group and port every mDNS responder
// listens and sends on (RFC 6762).
var mdnsAddr = &net.UDPAddr{IP: net.IPv4(224, 0, 0, 251), Port: 5353}

// MDNSAdvertiser publishes a DNS-SD record set (PTR/SRV/TXT/A) for this
// host over mDNS.
//
// Resolving this host's own bare ".local" hostname (the address half of
// the PTR→SRV→A chain) is delegated to pion/mdns/v2's Conn, which is
// purpose-built for exactly that — answering A-record queries for a
// configured local name. The DNS-SD service-type records this host
// needs to advertise (PTR listing the service type, SRV naming this
// instance, TXT carrying Application-Identifier) are outside what a
// bare hostname responder answers, so MDNSAdvertiser answers those
// itself with a small dnsmessage-based responder sharing the same
// multicast socket.
type MDNSAdvertiser struct {
	logger *slog.Logger

	mu            sync.Mutex
	hostnameConn  *mdns.Conn
	packetConn    *ipv4.PacketConn
	udpConn       *net.UDPConn
	advertisement Advertisement
	hostname      string
	closed        bool
	stopResponder chan struct{}
}

// NewMDNSAdvertiser returns an Advertiser backed by mDNS. logger may be
// nil, in which case slog.Default() is used.
func NewMDNSAdvertiser(logger *slog.Logger) *MDNSAdvertiser {
	if logger == nil {
		logger = slog.Default()
	}
	return &MDNSAdvertiser{logger: logger}
}

// Advertise implements Advertiser.
func (a *MDNSAdvertiser) Advertise(ctx context.Context, advertisement Advertisement) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return fmt.Errorf("advertiser: Advertise called after Close")
	}
	if advertisement.Instance == "" {
		return fmt.Errorf("advertiser: instance name must not be empty")
	}
	if len(advertisement.Addresses) == 0 {
		return fmt.Errorf("advertiser: at least one address is required")
	}

	hostname := sanitizeLabel(advertisement.Instance) + ".local."

	udpConn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero, Port: 5353})
	if err != nil {
		return fmt.Errorf("advertiser: binding mdns socket: %w", err)
	}
	packetConn := ipv4.NewPacketConn(udpConn)
	if err := joinAllMulticastInterfaces(packetConn); err != nil {
		udpConn.Close()
		return fmt.Errorf("advertiser: joining multicast group: %w", err)
	}

	hostnameConn, err := mdns.Server(packetConn, nil, &mdns.Config{
		LocalNames: []string{hostname},
	})
	if err != nil {
		udpConn.Close()
		return fmt.Errorf("advertiser: starting hostname responder: %w", err)
	}

	a.udpConn = udpConn
	a.packetConn = packetConn
	a.hostnameConn = hostnameConn
	a.advertisement = advertisement
	a.hostname = hostname
	a.stopResponder = make(chan struct{})

	go a.serviceResponderLoop(a.stopResponder)

	a.logger.Info("mdns advertisement published",
		"instance", advertisement.Instance,
		"service_type", advertisement.ServiceType,
		"port", advertisement.Port,
	)
	return nil
}

// Close implements Advertiser.
func (a *MDNSAdvertiser) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return nil
	}
	a.closed = true

	if a.stopResponder != nil {
		close(a.stopResponder)
	}
	var firstErr error
	if a.hostnameConn != nil {
		if err := a.hostnameConn.Close(); err != nil {
			firstErr = err
		}
	}
	if a.udpConn != nil {
		if err := a.udpConn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// serviceResponderLoop answers PTR/SRV/TXT queries for the advertised
// service type on the shared multicast socket until stop is closed.
func (a *MDNSAdvertiser) serviceResponderLoop(stop <-chan struct{}) {
	buf := make([]byte, 65536)
	for {
		select {
		case <-stop:
			return
		default:
		}

		a.udpConn.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
		n, _, err := a.udpConn.ReadFromUDP(buf)
		if err != nil {
			continue
		}

		var msg dnsmessage.Message
		if err := msg.Unpack(buf[:n]); err != nil {
			continue
		}
		response := a.buildResponse(msg)
		if response == nil {
			continue
		}
		packed, err := response.Pack()
		if err != nil {
			continue
		}
		a.udpConn.WriteToUDP(packed, mdnsAddr)
	}
}

// buildResponse inspects an incoming query and constructs the matching
// PTR/SRV/TXT/A answer set, or nil if none of the questions concern
// this advertisement.
func (a *MDNSAdvertiser) buildResponse(query dnsmessage.Message) *dnsmessage.Message {
	a.mu.Lock()
	advertisement := a.advertisement
	hostname := a.hostname
	a.mu.Unlock()

	serviceFQDN := mustName(advertisement.ServiceType + ".local.")
	instanceFQDN := mustName(advertisement.Instance + "." + advertisement.ServiceType + ".local.")
	hostFQDN := mustName(hostname)

	var answers []dnsmessage.Resource
	for _, q := range query.Questions {
		switch {
		case q.Name == serviceFQDN && (q.Type == dnsmessage.TypePTR || q.Type == dnsmessage.TypeALL):
			answers = append(answers, dnsmessage.Resource{
				Header: dnsmessage.ResourceHeader{Name: serviceFQDN, Type: dnsmessage.TypePTR, Class: dnsmessage.ClassINET, TTL: 120},
				Body:   &dnsmessage.PTRResource{PTR: instanceFQDN},
			})
		case q.Name == instanceFQDN && (q.Type == dnsmessage.TypeSRV || q.Type == dnsmessage.TypeALL):
			answers = append(answers, dnsmessage.Resource{
				Header: dnsmessage.ResourceHeader{Name: instanceFQDN, Type: dnsmessage.TypeSRV, Class: dnsmessage.ClassINET, TTL: 120},
				Body:   &dnsmessage.SRVResource{Priority: 0, Weight: 0, Port: advertisement.Port, Target: hostFQDN},
			})
			answers = append(answers, txtResource(instanceFQDN, advertisement.TXT))
		case q.Name == instanceFQDN && q.Type == dnsmessage.TypeTXT:
			answers = append(answers, txtResource(instanceFQDN, advertisement.TXT))
		case q.Name == hostFQDN && q.Type == dnsmessage.TypeA:
			for _, ip := range advertisement.Addresses {
				if ip4 := ip.To4(); ip4 != nil {
					var addr [4]byte
					copy(addr[:], ip4)
					answers = append(answers, dnsmessage.Resource{
						Header: dnsmessage.ResourceHeader{Name: hostFQDN, Type: dnsmessage.TypeA, Class: dnsmessage.ClassINET, TTL: 120},
						Body:   &dnsmessage.AResource{A: addr},
					})
				}
			}
		}
	}

	if len(answers) == 0 {
		return nil
	}
	return &dnsmessage.Message{
		Header:  dnsmessage.Header{Response: true, Authoritative: true},
		Answers: answers,
	}
}

func txtResource(name dnsmessage.Name, txt map[string]string) dnsmessage.Resource {
	var txtStrings []string
	for key, value := range txt {
		txtStrings = append(txtStrings, key+"="+value)
	}
	return dnsmessage.Resource{
		Header: dnsmessage.ResourceHeader{Name: name, Type: dnsmessage.TypeTXT, Class: dnsmessage.ClassINET, TTL: 120},
		Body:   &dnsmessage.TXTResource{TXT: txtStrings},
	}
}

func mustName(s string) dnsmessage.Name {
	name, err := dnsmessage.NewName(s)
	if err != nil {
		// s is always derived from validated configuration strings
		// (bundle id / instance / hostname), never from untrusted wire
		// input, so a malformed name here means a programming error.
		panic(fmt.Sprintf("advertiser: invalid dns name %q: %v", s, err))
	}
	return name
}

// sanitizeLabel lower-cases and replaces each character that is not
// valid in a DNS label with '-', so an arbitrary hostname/instance string can be used
// to build an mDNS name.
func sanitizeLabel(s string) string {
	s = strings.ToLower(s)
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	return b.String()
}

// joinAllMulticastInterfaces joins the mDNS multicast group on every
// multicast-capable interface, matching the breadth of coverage a
// conventional mDNS responder needs on a multi-homed host.
func joinAllMulticastInterfaces(packetConn *ipv4.PacketConn) error {
	interfaces, err := net.Interfaces()
	if err != nil {
		return err
	}

	joined := 0
	for i := range interfaces {
		iface := interfaces[i]
		if iface.Flags&net.FlagMulticast == 0 || iface.Flags&net.FlagUp == 0 {
			continue
		}
		if err := packetConn.JoinGroup(&iface, mdnsAddr); err == nil {
			joined++
		}
	}
	if joined == 0 {
		return fmt.Errorf("no multicast-capable interface joined the mdns group")
	}
	return nil
}

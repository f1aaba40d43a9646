// SPDX-FileCopyrightText: 2021 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package network drives the protocol over UDP sockets: per-peer
// Connections with their state machine, the ConnectionManager routing
// datagrams by source Endpoint, and the Server and Client on top.
package network

import (
	"bytes"
	"fmt"
	"net"
)

// Family is an Endpoint's address family.
type Family uint8

const (
	// IPv4 addresses occupy the first four bytes of an Endpoint's address.
	IPv4 Family = iota

	// IPv6 addresses occupy all sixteen bytes.
	IPv6
)

func (f Family) String() string {
	switch f {
	case IPv4:
		return "IPv4"
	case IPv6:
		return "IPv6"
	default:
		return "INVALID"
	}
}

// Endpoint addresses a peer by family, raw address bytes and port. It is a
// comparable value type used as the connection table's key.
type Endpoint struct {
	Family Family
	Addr   [16]byte
	Port   uint16
}

// NewEndpoint creates an Endpoint from an IP and a port. The second return
// value is false for unrepresentable addresses.
func NewEndpoint(ip net.IP, port uint16) (e Endpoint, ok bool) {
	if ip4 := ip.To4(); ip4 != nil {
		e.Family = IPv4
		copy(e.Addr[:4], ip4)
	} else if ip16 := ip.To16(); ip16 != nil {
		e.Family = IPv6
		copy(e.Addr[:], ip16)
	} else {
		return e, false
	}

	e.Port = port
	return e, true
}

// EndpointFromUDPAddr converts a net.UDPAddr into an Endpoint.
func EndpointFromUDPAddr(addr *net.UDPAddr) (Endpoint, bool) {
	return NewEndpoint(addr.IP, uint16(addr.Port))
}

// IP returns the Endpoint's address as a net.IP.
func (e Endpoint) IP() net.IP {
	if e.Family == IPv4 {
		return net.IP(e.Addr[:4])
	}
	return net.IP(e.Addr[:])
}

// UDPAddr converts the Endpoint back into a net.UDPAddr.
func (e Endpoint) UDPAddr() *net.UDPAddr {
	return &net.UDPAddr{IP: e.IP(), Port: int(e.Port)}
}

// IsIPv4 reports whether this Endpoint addresses an IPv4 peer.
func (e Endpoint) IsIPv4() bool {
	return e.Family == IPv4
}

// IsIPv6 reports whether this Endpoint addresses an IPv6 peer.
func (e Endpoint) IsIPv6() bool {
	return e.Family == IPv6
}

// Less imposes a total order on Endpoints: family, then address, then port.
func (e Endpoint) Less(other Endpoint) bool {
	if e.Family != other.Family {
		return e.Family < other.Family
	}
	if cmp := bytes.Compare(e.Addr[:], other.Addr[:]); cmp != 0 {
		return cmp < 0
	}
	return e.Port < other.Port
}

func (e Endpoint) String() string {
	if e.Family == IPv6 {
		return fmt.Sprintf("[%s]:%d", e.IP(), e.Port)
	}
	return fmt.Sprintf("%s:%d", e.IP(), e.Port)
}

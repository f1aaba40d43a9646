// SPDX-FileCopyrightText: 2021 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package network

import (
	"errors"
	"net"
	"time"

	"github.com/dtn7/mgnet-go/wire"
)

// Socket errors. ErrNotReady ends a receive drain loop; the others signal an
// unbound socket, an unrepresentable sender address or a failed socket call
// and are the caller's decision to handle.
var (
	ErrInvalidSocket = errors.New("network: socket is not bound")
	ErrDiscard       = errors.New("network: datagram was discarded")
	ErrCallFailure   = errors.New("network: socket call failed")
	ErrNotReady      = errors.New("network: no datagram is pending")
)

// Packet is one received or outgoing datagram: the remote Endpoint paired
// with the payload bytes.
type Packet struct {
	Remote  Endpoint
	Payload *wire.Buffer
}

// Socket is one UDP endpoint of a single address family. Its Receive is
// non-blocking; drain loops are gated by a Selector.
type Socket struct {
	family Family
	conn   *net.UDPConn
	port   uint16
}

// NewSocket creates an unbound Socket for the given address family.
func NewSocket(family Family) *Socket {
	return &Socket{family: family}
}

// Bind listens on the given UDP port on the wildcard address of the
// Socket's family. A zero port lets the OS pick one; Port tells which.
func (s *Socket) Bind(port uint16) error {
	network, ip := "udp4", net.IPv4zero
	if s.family == IPv6 {
		network, ip = "udp6", net.IPv6unspecified
	}

	conn, err := net.ListenUDP(network, &net.UDPAddr{IP: ip, Port: int(port)})
	if err != nil {
		return err
	}

	s.conn = conn
	s.port = uint16(conn.LocalAddr().(*net.UDPAddr).Port)
	return nil
}

// Port returns the bound UDP port.
func (s *Socket) Port() uint16 {
	return s.port
}

// Receive fetches the next pending datagram. ErrNotReady is returned when
// none is pending; on an idle socket Receive waits at most one millisecond.
func (s *Socket) Receive() (Packet, error) {
	if s.conn == nil {
		return Packet{}, ErrInvalidSocket
	}

	if err := s.conn.SetReadDeadline(time.Now().Add(time.Millisecond)); err != nil {
		return Packet{}, ErrCallFailure
	}

	payload := make([]byte, wire.MaxPacketSize)
	n, addr, err := s.conn.ReadFromUDP(payload)
	if err != nil {
		if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
			return Packet{}, ErrNotReady
		}
		return Packet{}, ErrCallFailure
	}

	remote, ok := EndpointFromUDPAddr(addr)
	if !ok {
		return Packet{}, ErrDiscard
	}

	return Packet{Remote: remote, Payload: wire.NewBufferFrom(payload[:n])}, nil
}

// Send transmits one datagram to the Packet's remote Endpoint.
func (s *Socket) Send(p Packet) error {
	if s.conn == nil {
		return ErrInvalidSocket
	}

	if _, err := s.conn.WriteToUDP(p.Payload.Bytes(), p.Remote.UDPAddr()); err != nil {
		return ErrCallFailure
	}
	return nil
}

// Close releases the bound socket.
func (s *Socket) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

// SPDX-FileCopyrightText: 2021 Alvar Penning
// SPDX-FileCopyrightText: 2021 Markus Sommer
//
// SPDX-License-Identifier: GPL-3.0-or-later

package network

import (
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/hashicorp/go-multierror"

	"github.com/dtn7/mgnet-go/message"
	"github.com/dtn7/mgnet-go/wire"
)

// DefaultCapacity is the connection table size of a Server unless
// configured otherwise.
const DefaultCapacity = 64

// ServerHandler surfaces a Server's events to the embedding application.
// The callbacks are invoked synchronously from within Update.
type ServerHandler interface {
	// OnClientConnected is called once a client finished its handshake.
	OnClientConnected(endpoint Endpoint)

	// OnClientDisconnected is called once for every peer leaving the
	// connection table: disconnect packets, idle timeouts and failed
	// handshakes alike.
	OnClientDisconnected(endpoint Endpoint)

	// OnMessageReceived is called for every completely reassembled Message.
	OnMessageReceived(endpoint Endpoint, msg *message.Message)
}

// Server accepts many peers over one UDP port, serving both address
// families. It is driven by periodic Update calls from the embedding
// application's loop; no internal goroutines exist.
type Server struct {
	handler ServerHandler
	manager *ConnectionManager

	idleTimeout time.Duration

	v4Listener *Socket
	v6Listener *Socket
}

// NewServer creates a Server with the given connection capacity and idle
// timeout; non-positive arguments select DefaultCapacity and
// DefaultIdleTimeout. Start must be called before the first Update.
func NewServer(handler ServerHandler, capacity int, idleTimeout time.Duration) *Server {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}

	return &Server{
		handler:     handler,
		manager:     NewConnectionManager(capacity),
		idleTimeout: idleTimeout,
		v4Listener:  NewSocket(IPv4),
		v6Listener:  NewSocket(IPv6),
	}
}

// Start binds both listeners. The IPv4 listener binds first, a zero port
// lets the OS pick one; the IPv6 listener joins on the resolved port so
// both families share the same port number.
func (s *Server) Start(port uint16) error {
	if err := s.v4Listener.Bind(port); err != nil {
		return err
	}
	if err := s.v6Listener.Bind(s.v4Listener.Port()); err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"port": s.Port(),
	}).Info("Server started listening")
	return nil
}

// Port returns the UDP port shared by both listeners.
func (s *Server) Port() uint16 {
	return s.v4Listener.Port()
}

// Count returns the number of tracked peer Connections.
func (s *Server) Count() int {
	return s.manager.Count()
}

// Update drains both sockets, routing each datagram to its Connection,
// and advances every Connection's state. It returns the count of
// successfully processed datagrams.
func (s *Server) Update(elapsed time.Duration) (processed int) {
	processed = s.work()
	s.manager.Update(elapsed, s.onConnectionEvicted)
	return
}

// work drains the pending datagrams of both listeners.
func (s *Server) work() (processed int) {
	for _, listener := range []*Socket{s.v4Listener, s.v6Listener} {
		for selector := NewSelector(listener); selector.IsReady(); {
			p, err := listener.Receive()
			if err == ErrNotReady {
				break
			} else if err != nil {
				log.WithFields(log.Fields{
					"family": listener.family,
					"error":  err,
				}).Debug("Receiving datagram errored")
				break
			}

			if s.processPacket(p) {
				processed++
			}
		}
	}
	return
}

// processPacket routes one datagram by its source Endpoint, admitting an
// unknown peer if the connection table has room left.
func (s *Server) processPacket(p Packet) bool {
	conn := s.manager.Find(p.Remote)

	if conn == nil {
		if s.manager.IsFull() {
			// A rejected peer retransmits its negotiation and may be
			// admitted once the table has room again.
			return false
		}

		conn, err := NewConnection(s, p.Remote, true, s.idleTimeout)
		if err != nil {
			log.WithFields(log.Fields{
				"remote": p.Remote,
				"error":  err,
			}).Warn("Creating connection errored")
			return false
		}
		if err := s.manager.Add(conn); err != nil {
			return false
		}

		log.WithFields(log.Fields{
			"connection": conn,
		}).Debug("Admitted a new peer")

		_, err = conn.ProcessPacket(p.Payload)
		return err == nil
	}

	switch {
	case conn.IsNegotiating():
		if _, err := conn.ProcessPacket(p.Payload); err != nil {
			return false
		}
		if conn.IsConnected() {
			log.WithFields(log.Fields{
				"connection": conn,
			}).Info("Client connected")

			s.handler.OnClientConnected(p.Remote)
		}
		return true

	case conn.IsConnected():
		packetType, err := conn.ProcessPacket(p.Payload)
		if err != nil {
			return false
		}
		if packetType == wire.PacketPayload {
			for _, m := range conn.ReceiveMessages(p.Payload) {
				s.handler.OnMessageReceived(p.Remote, m)
			}
		}
		return true

	default:
		// A dead connection awaiting eviction accepts no packets.
		return false
	}
}

// onConnectionEvicted forwards an eviction to the handler.
func (s *Server) onConnectionEvicted(endpoint Endpoint) {
	log.WithFields(log.Fields{
		"remote": endpoint,
	}).Info("Client disconnected")

	s.handler.OnClientDisconnected(endpoint)
}

// Send transmits a raw, pre-framed buffer to the given Endpoint over the
// listener of its address family.
func (s *Server) Send(remote Endpoint, buf *wire.Buffer) error {
	p := Packet{Remote: remote, Payload: buf}

	switch remote.Family {
	case IPv4:
		return s.v4Listener.Send(p)
	case IPv6:
		return s.v6Listener.Send(p)
	default:
		return fmt.Errorf("endpoint %v has an unknown family", remote)
	}
}

// SendPayload frames and fragments bytes into a Message for the given
// peer. It fails for unknown and not yet connected peers.
func (s *Server) SendPayload(remote Endpoint, data []byte) error {
	conn := s.manager.Find(remote)
	if conn == nil {
		return fmt.Errorf("no connection for %v exists", remote)
	}
	return conn.SendPayload(data)
}

// Disconnect kills the Connection of the given peer. The eviction fires
// OnClientDisconnected on the next Update.
func (s *Server) Disconnect(remote Endpoint) {
	if conn := s.manager.Find(remote); conn != nil {
		conn.Disconnect()
	}
}

// Close releases both listeners.
func (s *Server) Close() error {
	var errs error
	for _, listener := range []*Socket{s.v4Listener, s.v6Listener} {
		if err := listener.Close(); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	return errs
}

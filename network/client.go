// SPDX-FileCopyrightText: 2021 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package network

import (
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/dtn7/mgnet-go/message"
	"github.com/dtn7/mgnet-go/wire"
)

// ClientHandler surfaces a Client's events to the embedding application.
// The callbacks are invoked synchronously from within Update.
type ClientHandler interface {
	// OnConnected is called once the handshake with the server finished.
	OnConnected(endpoint Endpoint)

	// OnDisconnected is called once when the connection dies: a
	// disconnect packet, a failed handshake or the idle timeout.
	OnDisconnected(endpoint Endpoint)

	// OnMessageReceived is called for every completely reassembled Message.
	OnMessageReceived(endpoint Endpoint, msg *message.Message)
}

// Client connects to a single server Endpoint over one socket of the
// matching address family. Like the Server it is driven by periodic
// Update calls.
type Client struct {
	handler ClientHandler
	remote  Endpoint

	conn   *Connection
	socket *Socket

	downNotified bool
}

// NewClient creates a Client towards the given server Endpoint and binds
// its socket to an OS-picked port. The handshake starts with the first
// Update tick.
func NewClient(handler ClientHandler, remote Endpoint, idleTimeout time.Duration) (*Client, error) {
	c := &Client{
		handler: handler,
		remote:  remote,
		socket:  NewSocket(remote.Family),
	}

	conn, err := NewConnection(c, remote, false, idleTimeout)
	if err != nil {
		return nil, err
	}
	c.conn = conn

	if err := c.socket.Bind(0); err != nil {
		return nil, err
	}

	return c, nil
}

// Remote returns the server's Endpoint.
func (c *Client) Remote() Endpoint {
	return c.remote
}

// LocalPort returns the client socket's bound UDP port.
func (c *Client) LocalPort() uint16 {
	return c.socket.Port()
}

// IsConnected reports whether the handshake with the server finished.
func (c *Client) IsConnected() bool {
	return c.conn.IsConnected()
}

// Update advances the connection's state and drains the socket, routing
// every datagram to the connection. It returns the count of successfully
// processed datagrams.
func (c *Client) Update(elapsed time.Duration) (processed int) {
	c.conn.Update(elapsed)

	for selector := NewSelector(c.socket); selector.IsReady(); {
		p, err := c.socket.Receive()
		if err == ErrNotReady {
			break
		} else if err != nil {
			log.WithFields(log.Fields{
				"remote": c.remote,
				"error":  err,
			}).Debug("Receiving datagram errored")
			break
		}

		if c.processPacket(p) {
			processed++
		}
	}

	if c.conn.State() == StateNone && !c.downNotified {
		c.downNotified = true
		log.WithFields(log.Fields{
			"remote": c.remote,
		}).Info("Connection to server is down")

		c.handler.OnDisconnected(c.remote)
	}

	return
}

// processPacket feeds one datagram into the connection.
func (c *Client) processPacket(p Packet) bool {
	switch {
	case c.conn.IsNegotiating():
		if _, err := c.conn.ProcessPacket(p.Payload); err != nil {
			return false
		}
		if c.conn.IsConnected() {
			log.WithFields(log.Fields{
				"remote": c.remote,
			}).Info("Connected to server")

			c.handler.OnConnected(c.remote)
		}
		return true

	case c.conn.IsConnected():
		packetType, err := c.conn.ProcessPacket(p.Payload)
		if err != nil {
			return false
		}
		if packetType == wire.PacketPayload {
			for _, m := range c.conn.ReceiveMessages(p.Payload) {
				c.handler.OnMessageReceived(c.remote, m)
			}
		}
		return true

	default:
		return false
	}
}

// Send transmits a raw, pre-framed buffer; the Connection uses this as
// its Communication sink.
func (c *Client) Send(remote Endpoint, buf *wire.Buffer) error {
	return c.socket.Send(Packet{Remote: remote, Payload: buf})
}

// SendPayload frames and fragments bytes into a Message for the server.
// It fails while the handshake is unfinished.
func (c *Client) SendPayload(data []byte) error {
	return c.conn.SendPayload(data)
}

// Disconnect announces the disconnect to the server and kills the
// connection.
func (c *Client) Disconnect() {
	c.conn.Disconnect()
}

// Close releases the client's socket.
func (c *Client) Close() error {
	return c.socket.Close()
}

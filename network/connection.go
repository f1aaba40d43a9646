// SPDX-FileCopyrightText: 2021 Alvar Penning
// SPDX-FileCopyrightText: 2021 Markus Sommer
//
// SPDX-License-Identifier: GPL-3.0-or-later

package network

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/dtn7/mgnet-go/crypt"
	"github.com/dtn7/mgnet-go/message"
	"github.com/dtn7/mgnet-go/wire"
)

// State describes a Connection's lifecycle position.
type State int

const (
	// StateNone is a dead Connection: it accepts no packets and will be
	// evicted from its ConnectionManager.
	StateNone State = iota

	// StateNegotiating covers the handshake, retransmitted on every tick.
	StateNegotiating

	// StateConnected allows payload exchange until a disconnect or the
	// idle timeout.
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateNone:
		return "none"
	case StateNegotiating:
		return "negotiating"
	case StateConnected:
		return "connected"
	default:
		return "INVALID"
	}
}

const (
	// DefaultIdleTimeout disconnects a peer after this stretch without any
	// received packet.
	DefaultIdleTimeout = 15 * time.Second

	// maxPendingMessages bounds the reassembly table; fragments of further
	// new messages are dropped until older ones complete or the
	// Connection dies.
	maxPendingMessages = 64

	// payloadChunkCapacity is the count of message payload bytes fitting
	// into one datagram next to the packet and fragment headers.
	payloadChunkCapacity = (wire.MaxPacketSize*8 - wire.HeaderBits - message.HeaderBits) / 8
)

// Communication is a Connection's sink for outgoing datagrams, implemented
// by the Server and Client drivers owning the sockets.
type Communication interface {
	Send(remote Endpoint, buf *wire.Buffer) error
}

// nullCommunication swallows the sends of released Connections.
type nullCommunication struct{}

func (nullCommunication) Send(_ Endpoint, _ *wire.Buffer) error {
	return fmt.Errorf("network: connection is released")
}

// Connection is the per-peer protocol state machine: handshake with
// optional authentication challenge, idle timeout, and the receiving side
// of message reassembly.
type Connection struct {
	communication Communication
	state         State

	remote         Endpoint
	sinceLastEvent time.Duration
	idleTimeout    time.Duration

	filter crypt.Filter

	// needsAuthentication marks the challenging side: a server draws a
	// random authCode and requires it echoed back; a client adopts the
	// server's code from its negotiation packet.
	needsAuthentication bool
	authCode            uint32

	nextSeq uint32
	pending map[uint32]*message.Message
}

// NewConnection creates a Connection in the negotiating state. The first
// negotiation packet leaves on the next Update tick. A non-positive
// idleTimeout selects DefaultIdleTimeout.
func NewConnection(communication Communication, remote Endpoint, needsAuthentication bool, idleTimeout time.Duration) (*Connection, error) {
	filter, err := crypt.NewExchangeFilter()
	if err != nil {
		return nil, err
	}

	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}

	c := &Connection{
		communication:       communication,
		state:               StateNegotiating,
		remote:              remote,
		idleTimeout:         idleTimeout,
		filter:              filter,
		needsAuthentication: needsAuthentication,
		pending:             make(map[uint32]*message.Message),
	}

	if needsAuthentication {
		var codeBytes [4]byte
		for c.authCode == 0 {
			if _, err := rand.Read(codeBytes[:]); err != nil {
				return nil, fmt.Errorf("reading auth code entropy errored: %v", err)
			}
			c.authCode = binary.BigEndian.Uint32(codeBytes[:])
		}
	}

	return c, nil
}

// State returns the Connection's current State.
func (c *Connection) State() State {
	return c.state
}

// IsNegotiating reports whether the handshake is still in progress.
func (c *Connection) IsNegotiating() bool {
	return c.state == StateNegotiating
}

// IsConnected reports whether the handshake completed.
func (c *Connection) IsConnected() bool {
	return c.state == StateConnected
}

// Remote returns the peer's Endpoint.
func (c *Connection) Remote() Endpoint {
	return c.remote
}

// ProcessPacket dispatches one received datagram. Negotiation packets are
// processed regardless of the current state, as the peer may still await a
// confirmation after this side already transitioned. The decoded packet
// type is returned for the driver's further handling.
func (c *Connection) ProcessPacket(buf *wire.Buffer) (wire.PacketType, error) {
	if c.state == StateNone {
		return 0, fmt.Errorf("connection to %v is dead", c.remote)
	}

	r := wire.NewReader(buf)
	h, err := wire.DecodeHeader(r)
	if err != nil {
		return 0, err
	}

	switch h.Type {
	case wire.PacketNegotiation:
		if !c.processNegotiation(h, r) {
			return h.Type, fmt.Errorf("negotiation with %v did not progress", c.remote)
		}

	case wire.PacketDisconnect:
		log.WithFields(log.Fields{
			"connection": c,
		}).Debug("Peer announced a disconnect")

		c.sinceLastEvent = 0
		c.state = StateNone

	default:
		c.sinceLastEvent = 0
	}

	return h.Type, nil
}

// processNegotiation completes the key agreement and handles the
// authentication code exchange, following a decoded negotiation header.
func (c *Connection) processNegotiation(h wire.PacketHeader, r *wire.Reader) bool {
	if !c.filter.ReceiveConnect(r) {
		// Drop the connection if the key is not accepted.
		c.state = StateNone
		return false
	}

	c.sinceLastEvent = 0

	if c.needsAuthentication {
		// We are a server challenging this client.
		if h.Length < 4 {
			// No challenge code was echoed back yet.
			return false
		}

		otherCode, err := c.readAuthCode(r)
		if err != nil {
			return false
		}

		if otherCode != c.authCode {
			// A wrong challenge code drops the connection.
			c.state = StateNone
			return false
		}

		c.state = StateConnected
		return true
	}

	if h.Length >= 4 {
		code, err := c.readAuthCode(r)
		if err != nil || code == 0 {
			return false
		}

		// We are a client, assume to be connected and echo the code back.
		c.authCode = code
		c.state = StateConnected
		c.SendNegotiation()
	}

	return c.state == StateNegotiating || c.state == StateConnected
}

// SendNegotiation emits one negotiation packet: the filter's key material,
// followed by the authentication code once one is known.
func (c *Connection) SendNegotiation() {
	buf := wire.NewBuffer(wire.MaxPacketSize)
	w := wire.NewWriter(buf)

	var length uint16
	if c.authCode != 0 {
		length = 4
	}

	if err := wire.EncodeHeader(w, wire.PacketNegotiation, length); err != nil {
		return
	}
	if err := c.filter.PreConnect(w); err != nil {
		log.WithFields(log.Fields{
			"connection": c,
			"error":      err,
		}).Warn("Writing key material errored")
		return
	}
	if c.authCode != 0 {
		if err := c.writeAuthCode(w); err != nil {
			return
		}
	}

	if err := c.communication.Send(c.remote, buf); err != nil {
		log.WithFields(log.Fields{
			"connection": c,
			"error":      err,
		}).Debug("Sending negotiation packet errored")
	}
}

// Update advances the idle timer and retransmits the negotiation while the
// handshake is unfinished. Crossing the idle timeout kills the Connection.
func (c *Connection) Update(elapsed time.Duration) {
	c.sinceLastEvent += elapsed

	if c.sinceLastEvent > c.idleTimeout {
		if c.state != StateNone {
			log.WithFields(log.Fields{
				"connection": c,
				"timeout":    c.idleTimeout,
			}).Debug("Connection reached its idle timeout")
		}

		c.state = StateNone
		return
	}

	if c.state == StateNegotiating {
		c.SendNegotiation()
	}
}

// Disconnect kills the Connection, announcing the disconnect to a
// connected peer. The ConnectionManager evicts it on its next update.
func (c *Connection) Disconnect() {
	if c.state == StateConnected {
		buf := wire.NewBuffer(wire.MaxPacketSize)
		if err := wire.EncodeHeader(wire.NewWriter(buf), wire.PacketDisconnect, 0); err == nil {
			_ = c.communication.Send(c.remote, buf)
		}
	}

	c.state = StateNone
}

// ReceiveMessages decodes every message fragment of a payload datagram,
// merging them into the reassembly table. Messages completed by this
// datagram are returned for delivery.
func (c *Connection) ReceiveMessages(buf *wire.Buffer) (completed []*message.Message) {
	if c.state != StateConnected {
		return nil
	}

	r := wire.NewReader(buf)
	if h, err := wire.DecodeHeader(r); err != nil || h.Type != wire.PacketPayload {
		return nil
	}

	for r.Remaining() > message.HeaderBytes {
		m, err := c.readMessage(r)
		if err != nil {
			break
		}
		if m != nil {
			completed = append(completed, m)
		}
	}
	return
}

// readMessage consumes one fragment from the Reader and decrypts its
// data. The returned Message is non-nil once a message completed;
// reassembly anomalies drop the fragment without disturbing the
// Connection.
func (c *Connection) readMessage(r *wire.Reader) (*message.Message, error) {
	frag, err := message.DecodeMessage(r)
	if err != nil {
		return nil, err
	}

	frag.TransformData(func(offset int, data []byte) {
		c.filter.Decrypt(frag.Seq(), uint32(offset), data)
	})

	if frag.IsComplete() {
		return frag, nil
	}

	if existing, ok := c.pending[frag.Seq()]; ok {
		merged := message.Merge(existing, frag)
		if merged.IsComplete() {
			delete(c.pending, merged.Seq())
			return merged, nil
		}
		return nil, nil
	}

	if len(c.pending) >= maxPendingMessages {
		log.WithFields(log.Fields{
			"connection": c,
			"seq":        frag.Seq(),
		}).Debug("Reassembly table is full, dropping fragment")
		return nil, nil
	}

	c.pending[frag.Seq()] = frag
	return nil, nil
}

// SendPayload fragments data over as many datagrams as needed. It fails
// while the Connection is not connected and on the first failed send.
func (c *Connection) SendPayload(data []byte) error {
	if c.state != StateConnected {
		return fmt.Errorf("connection to %v is not connected", c.remote)
	}
	if len(data) == 0 || len(data) > message.MaxMessageSize {
		return fmt.Errorf("payload of %d bytes is out of bounds", len(data))
	}

	m := message.NewMessage(c.nextSeq, data)
	c.nextSeq++

	buf := wire.NewBuffer(wire.MaxPacketSize)
	w := wire.NewWriter(buf)

	for offset := 0; offset < m.Len(); {
		for i, body := 0, buf.Bytes(); i < len(body); i++ {
			body[i] = 0
		}
		w.Reset()

		chunk := m.Len() - offset
		if chunk > payloadChunkCapacity {
			chunk = payloadChunkCapacity
		}

		if err := wire.EncodeHeader(w, wire.PacketPayload, uint16(message.HeaderBytes+chunk)); err != nil {
			return err
		}

		// the chunks are disjoint, each one is encrypted exactly once
		c.filter.Encrypt(m.Seq(), uint32(offset), m.Data()[offset:offset+chunk])

		n, err := m.Write(w, offset)
		if err != nil {
			return err
		}

		if err := c.communication.Send(c.remote, buf); err != nil {
			return err
		}
		offset += n
	}

	return nil
}

// release leaves the Connection in a benign dead state: a null sink and a
// null filter, so late method calls are no-ops.
func (c *Connection) release() {
	c.communication = nullCommunication{}
	c.filter = crypt.NullFilter{}
	c.state = StateNone
	c.pending = nil
}

// writeAuthCode appends the authentication code as four raw bytes.
func (c *Connection) writeAuthCode(w *wire.Writer) error {
	var codeBytes [4]byte
	binary.BigEndian.PutUint32(codeBytes[:], c.authCode)
	return w.WriteBytes(codeBytes[:])
}

// readAuthCode reads a peer's authentication code.
func (c *Connection) readAuthCode(r *wire.Reader) (uint32, error) {
	var codeBytes [4]byte
	if err := r.ReadBytes(codeBytes[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(codeBytes[:]), nil
}

func (c *Connection) String() string {
	return fmt.Sprintf("Connection(%v, %v)", c.remote, c.state)
}

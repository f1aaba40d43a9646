// SPDX-FileCopyrightText: 2021 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package crypt provides the pluggable cryptographic transform attached to
// each connection: an opaque key agreement performed over negotiation
// packets, followed by a symmetric stream transform over payload bytes.
package crypt

import (
	"github.com/dtn7/mgnet-go/wire"
)

// Filter is a connection's cryptographic transform. PreConnect and
// ReceiveConnect perform the key agreement over negotiation packets;
// afterwards Encrypt and Decrypt transform a message fragment's data in
// place. The fragment's sequence number and offset travel in the clear
// and bind each transform to a distinct keystream, so a lost or
// reordered datagram never desynchronizes the peers.
//
// A Filter is not required to be deterministic across instantiations. The
// only contract is that a PreConnect output consumed by the peer's
// ReceiveConnect yields matching session keys, making Encrypt on one side
// followed by Decrypt on the other, under the same fragment identifiers,
// the identity.
type Filter interface {
	// PreConnect appends this side's key material to an outgoing
	// negotiation packet. It is idempotent across retransmissions; the
	// material reflects the Filter's current state.
	PreConnect(w *wire.Writer) error

	// ReceiveConnect consumes the peer's key material from an incoming
	// negotiation packet and derives the shared session key. A false
	// return leaves the connection ineligible to progress.
	ReceiveConnect(r *wire.Reader) bool

	// Encrypt transforms an outgoing fragment's data in place.
	Encrypt(seq, offset uint32, p []byte)

	// Decrypt transforms an incoming fragment's data in place.
	Decrypt(seq, offset uint32, p []byte)
}

// NullFilter is the Filter of a dead connection. It refuses every
// handshake and passes payload bytes through unmodified.
type NullFilter struct{}

func (NullFilter) PreConnect(_ *wire.Writer) error { return nil }

func (NullFilter) ReceiveConnect(_ *wire.Reader) bool { return false }

func (NullFilter) Encrypt(_, _ uint32, _ []byte) {}

func (NullFilter) Decrypt(_, _ uint32, _ []byte) {}

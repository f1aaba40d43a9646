// SPDX-FileCopyrightText: 2021 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package crypt

import (
	"bytes"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"golang.org/x/crypto/chacha20"
	"golang.org/x/crypto/curve25519"

	"github.com/dtn7/mgnet-go/wire"
)

// ExchangeFilter is the concrete Filter: an ephemeral X25519 key agreement
// followed by a ChaCha20 stream transform under the derived session key.
//
// Each side writes its 32 byte ephemeral public key into its negotiation
// packets. Receiving the peer's key completes the agreement; the session
// key is the SHA-256 digest of the shared secret, identical on both sides.
//
// Every fragment is transformed under its own nonce, built from the
// fragment's sequence number, its offset and a direction octet telling
// the two keystream spaces of one session apart. The direction follows
// from comparing the public keys, so both sides agree on it without
// further negotiation.
type ExchangeFilter struct {
	privateKey []byte
	publicKey  []byte
	sessionKey []byte

	sendDirection byte
}

// NewExchangeFilter creates an ExchangeFilter with a fresh ephemeral key pair.
func NewExchangeFilter() (*ExchangeFilter, error) {
	privateKey := make([]byte, curve25519.ScalarSize)
	if _, err := rand.Read(privateKey); err != nil {
		return nil, fmt.Errorf("reading private key entropy errored: %v", err)
	}

	publicKey, err := curve25519.X25519(privateKey, curve25519.Basepoint)
	if err != nil {
		return nil, fmt.Errorf("deriving public key errored: %v", err)
	}

	return &ExchangeFilter{
		privateKey: privateKey,
		publicKey:  publicKey,
	}, nil
}

// PreConnect writes this side's ephemeral public key.
func (f *ExchangeFilter) PreConnect(w *wire.Writer) error {
	return w.WriteBytes(f.publicKey)
}

// ReceiveConnect reads the peer's ephemeral public key and derives the
// session key. A rejected key, for instance a low order point, returns false.
func (f *ExchangeFilter) ReceiveConnect(r *wire.Reader) bool {
	peerKey := make([]byte, curve25519.PointSize)
	if err := r.ReadBytes(peerKey); err != nil {
		return false
	}

	sharedSecret, err := curve25519.X25519(f.privateKey, peerKey)
	if err != nil {
		return false
	}

	sessionKey := sha256.Sum256(sharedSecret)
	f.sessionKey = sessionKey[:]

	if bytes.Compare(f.publicKey, peerKey) > 0 {
		f.sendDirection = 1
	} else {
		f.sendDirection = 0
	}

	return true
}

// Encrypt transforms an outgoing fragment's data in place.
func (f *ExchangeFilter) Encrypt(seq, offset uint32, p []byte) {
	f.apply(seq, offset, f.sendDirection, p)
}

// Decrypt transforms an incoming fragment's data in place.
func (f *ExchangeFilter) Decrypt(seq, offset uint32, p []byte) {
	f.apply(seq, offset, 1-f.sendDirection, p)
}

// apply XORs the fragment's ChaCha20 keystream onto p. Before the
// handshake finished there is no session key and the bytes pass through
// unmodified.
func (f *ExchangeFilter) apply(seq, offset uint32, direction byte, p []byte) {
	if f.sessionKey == nil || len(p) == 0 {
		return
	}

	nonce := make([]byte, chacha20.NonceSize)
	binary.BigEndian.PutUint32(nonce[0:], seq)
	binary.BigEndian.PutUint32(nonce[4:], offset)
	nonce[8] = direction

	cipher, err := chacha20.NewUnauthenticatedCipher(f.sessionKey, nonce)
	if err != nil {
		return
	}
	cipher.XORKeyStream(p, p)
}

// SPDX-FileCopyrightText: 2021 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package crypt

import (
	"bytes"
	"testing"

	"github.com/dtn7/mgnet-go/wire"
)

// peerFilters performs the key agreement between two fresh ExchangeFilters.
func peerFilters(t *testing.T) (alice, bob *ExchangeFilter) {
	var err error
	if alice, err = NewExchangeFilter(); err != nil {
		t.Fatal(err)
	}
	if bob, err = NewExchangeFilter(); err != nil {
		t.Fatal(err)
	}

	aliceBuf := wire.NewBuffer(64)
	if err = alice.PreConnect(wire.NewWriter(aliceBuf)); err != nil {
		t.Fatal(err)
	}
	bobBuf := wire.NewBuffer(64)
	if err = bob.PreConnect(wire.NewWriter(bobBuf)); err != nil {
		t.Fatal(err)
	}

	if !bob.ReceiveConnect(wire.NewReader(aliceBuf)) {
		t.Fatal("bob rejected alice's key material")
	}
	if !alice.ReceiveConnect(wire.NewReader(bobBuf)) {
		t.Fatal("alice rejected bob's key material")
	}
	return
}

func TestExchangeFilterRoundtrip(t *testing.T) {
	alice, bob := peerFilters(t)

	plaintext := []byte("the quick brown fox jumps over the lazy dog")

	for _, frag := range []struct {
		seq    uint32
		offset uint32
	}{{0, 0}, {0, 1188}, {1, 0}, {0xFFFFFFFF, 2000}} {
		transferred := make([]byte, len(plaintext))
		copy(transferred, plaintext)

		alice.Encrypt(frag.seq, frag.offset, transferred)
		if bytes.Equal(transferred, plaintext) {
			t.Fatalf("(%d, %d): encryption did not alter the bytes", frag.seq, frag.offset)
		}

		bob.Decrypt(frag.seq, frag.offset, transferred)
		if !bytes.Equal(transferred, plaintext) {
			t.Fatalf("(%d, %d): decryption did not restore the bytes", frag.seq, frag.offset)
		}
	}
}

func TestExchangeFilterDistinctKeystreams(t *testing.T) {
	alice, bob := peerFilters(t)

	plaintext := make([]byte, 64)

	encrypt := func(f *ExchangeFilter, seq, offset uint32) []byte {
		data := make([]byte, len(plaintext))
		copy(data, plaintext)
		f.Encrypt(seq, offset, data)
		return data
	}

	// every fragment and every direction has its own keystream
	keystreams := [][]byte{
		encrypt(alice, 0, 0),
		encrypt(alice, 0, 1188),
		encrypt(alice, 1, 0),
		encrypt(bob, 0, 0),
	}

	for i := 0; i < len(keystreams); i++ {
		for j := i + 1; j < len(keystreams); j++ {
			if bytes.Equal(keystreams[i], keystreams[j]) {
				t.Fatalf("keystreams %d and %d coincide", i, j)
			}
		}
	}

	// while retransmissions of the same fragment reuse theirs
	if !bytes.Equal(encrypt(alice, 0, 0), encrypt(alice, 0, 0)) {
		t.Fatal("a fragment's keystream must be stable")
	}
}

func TestExchangeFilterPreConnectIdempotence(t *testing.T) {
	filter, err := NewExchangeFilter()
	if err != nil {
		t.Fatal(err)
	}

	first := wire.NewBuffer(64)
	second := wire.NewBuffer(64)
	if err := filter.PreConnect(wire.NewWriter(first)); err != nil {
		t.Fatal(err)
	}
	if err := filter.PreConnect(wire.NewWriter(second)); err != nil {
		t.Fatal(err)
	}

	if !bytes.Equal(first.Bytes(), second.Bytes()) {
		t.Fatal("retransmitted key material differs")
	}
}

func TestExchangeFilterRejectsLowOrderPoint(t *testing.T) {
	filter, err := NewExchangeFilter()
	if err != nil {
		t.Fatal(err)
	}

	// the all-zero point yields an all-zero shared secret and is rejected
	if filter.ReceiveConnect(wire.NewReader(wire.NewBuffer(64))) {
		t.Fatal("expected the zero point to be rejected")
	}
}

func TestNullFilter(t *testing.T) {
	var filter NullFilter

	if filter.ReceiveConnect(wire.NewReader(wire.NewBuffer(64))) {
		t.Fatal("NullFilter must refuse every handshake")
	}

	payload := []byte{0x23, 0x42}
	filter.Encrypt(0, 0, payload)
	filter.Decrypt(0, 0, payload)
	if !bytes.Equal(payload, []byte{0x23, 0x42}) {
		t.Fatal("NullFilter must not alter bytes")
	}
}

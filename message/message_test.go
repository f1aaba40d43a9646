// SPDX-FileCopyrightText: 2021 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package message

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/dtn7/mgnet-go/wire"
)

// testPayload creates a reproducible pseudo random payload.
func testPayload(t *testing.T, size int) []byte {
	payload := make([]byte, size)
	if _, err := rand.New(rand.NewSource(int64(size))).Read(payload); err != nil {
		t.Fatal(err)
	}
	return payload
}

// writeFragment writes one fragment of m into a fresh Buffer of bufSize
// bytes and decodes it back into a partial Message view.
func writeFragment(t *testing.T, m *Message, offset, bufSize int) (*Message, int) {
	buf := wire.NewBuffer(bufSize)

	n, err := m.Write(wire.NewWriter(buf), offset)
	if err != nil {
		t.Fatalf("writing fragment at offset %d errored: %v", offset, err)
	}

	frag, err := DecodeMessage(wire.NewReader(buf))
	if err != nil {
		t.Fatalf("decoding fragment at offset %d errored: %v", offset, err)
	}
	return frag, n
}

func TestMessageSingleFragmentRoundtrip(t *testing.T) {
	payload := testPayload(t, 512)
	m := NewMessage(23, payload)

	if !m.IsComplete() {
		t.Fatal("outgoing message is not complete")
	}

	frag, n := writeFragment(t, m, 0, wire.MaxPacketSize)
	if n != len(payload) {
		t.Fatalf("expected %d payload bytes, got %d", len(payload), n)
	}

	if frag.Seq() != 23 || frag.Len() != len(payload) {
		t.Fatalf("decoded %v", frag)
	}
	if !frag.IsComplete() {
		t.Fatalf("expected a complete message, got %v", frag)
	}
	if !bytes.Equal(frag.Data(), payload) {
		t.Fatal("payload mismatches")
	}
}

func TestMessageFragmentationRoundtrip(t *testing.T) {
	for _, size := range []int{1, 100, 1194, 1500, 2000, MaxMessageSize} {
		payload := testPayload(t, size)
		m := NewMessage(42, payload)

		var assembled *Message
		for offset := 0; offset < size; {
			frag, n := writeFragment(t, m, offset, wire.MaxPacketSize)
			offset += n

			if assembled == nil {
				assembled = frag
			} else {
				assembled = Merge(assembled, frag)
			}
		}

		if !assembled.IsComplete() {
			t.Fatalf("size %d: message did not complete: %v", size, assembled)
		}
		if !bytes.Equal(assembled.Data(), payload) {
			t.Fatalf("size %d: payload mismatches", size)
		}
		if err := assembled.CheckValid(); err != nil {
			t.Fatalf("size %d: %v", size, err)
		}
	}
}

func TestMessageTiling(t *testing.T) {
	payload := testPayload(t, 900)
	m := NewMessage(1, payload)

	// 300 data bytes fit next to a fragment header in a 307 byte buffer
	f1, _ := writeFragment(t, m, 0, 307)
	f2, _ := writeFragment(t, m, 300, 307)
	f3, _ := writeFragment(t, m, 600, 307)

	for _, frag := range []*Message{f1, f2, f3} {
		if err := frag.CheckValid(); err != nil {
			t.Fatal(err)
		}
	}

	partial := Merge(f1, f3)
	if err := partial.CheckValid(); err != nil {
		t.Fatal(err)
	}
	if partial.IsComplete() {
		t.Fatal("message with a gap must not be complete")
	}

	full := Merge(partial, f2)
	if err := full.CheckValid(); err != nil {
		t.Fatal(err)
	}
	if !full.IsComplete() {
		t.Fatal("message did not complete")
	}
	if !bytes.Equal(full.Data(), payload) {
		t.Fatal("payload mismatches")
	}
}

func TestMessageWriteRefusal(t *testing.T) {
	m := NewMessage(7, testPayload(t, 64))

	if _, err := m.Write(wire.NewWriter(wire.NewBuffer(HeaderBytes)), 0); err == nil {
		t.Fatal("expected an error for a too small writer")
	}

	buf := wire.NewBuffer(wire.MaxPacketSize)
	frag, err := DecodeMessage(wire.NewReader(buf))
	if err == nil {
		t.Fatalf("expected an error for an empty datagram, got %v", frag)
	}

	incomplete, _ := writeFragment(t, NewMessage(8, testPayload(t, 200)), 0, 107)
	if incomplete.IsComplete() {
		t.Fatal("fragment should be incomplete")
	}
	if _, err := incomplete.Write(wire.NewWriter(wire.NewBuffer(wire.MaxPacketSize)), 0); err == nil {
		t.Fatal("expected an error writing an incomplete message")
	}
}

func TestDecodeMessageBounds(t *testing.T) {
	encode := func(seq uint32, length, offset uint64) *wire.Buffer {
		buf := wire.NewBuffer(64)
		w := wire.NewWriter(buf)

		seqBytes := []byte{byte(seq >> 24), byte(seq >> 16), byte(seq >> 8), byte(seq)}
		if err := w.WriteBytes(seqBytes); err != nil {
			t.Fatal(err)
		}
		if err := w.WriteBits(length, LenBits); err != nil {
			t.Fatal(err)
		}
		if err := w.WriteBits(offset, LenBits); err != nil {
			t.Fatal(err)
		}
		return buf
	}

	tests := []struct {
		name  string
		buf   *wire.Buffer
		valid bool
	}{
		{"zero length", encode(1, 0, 0), false},
		{"offset at length", encode(1, 16, 16), false},
		{"offset past length", encode(1, 16, 100), false},
		{"valid", encode(1, 16, 0), true},
	}

	for _, test := range tests {
		if _, err := DecodeMessage(wire.NewReader(test.buf)); (err == nil) != test.valid {
			t.Fatalf("%s: valid := %t, got %v", test.name, test.valid, err)
		}
	}
}

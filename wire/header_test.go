// SPDX-FileCopyrightText: 2021 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package wire

import (
	"testing"
)

func TestHeaderRoundtrip(t *testing.T) {
	for _, packetType := range []PacketType{PacketNegotiation, PacketPayload, PacketDisconnect} {
		for length := 0; length <= MaxPacketSize; length++ {
			buf := NewBuffer(MaxPacketSize)
			if err := EncodeHeader(NewWriter(buf), packetType, uint16(length)); err != nil {
				t.Fatalf("encoding (%v, %d) errored: %v", packetType, length, err)
			}

			h, err := DecodeHeader(NewReader(buf))
			if err != nil {
				t.Fatalf("decoding (%v, %d) errored: %v", packetType, length, err)
			}

			if h.Version != ProtocolVersion || h.Type != packetType || h.Length != uint16(length) {
				t.Fatalf("expected (%d, %v, %d), got %v", ProtocolVersion, packetType, length, h)
			}
		}
	}
}

func TestHeaderRejection(t *testing.T) {
	encode := func(signature [2]byte, version, packetType, length uint64) *Buffer {
		buf := NewBuffer(MaxPacketSize)
		w := NewWriter(buf)

		if err := w.WriteBytes(signature[:]); err != nil {
			t.Fatal(err)
		}
		for _, field := range []struct {
			value uint64
			bits  uint
		}{{version, 6}, {packetType, 3}, {length, 11}} {
			if err := w.WriteBits(field.value, field.bits); err != nil {
				t.Fatal(err)
			}
		}
		return buf
	}

	tests := []struct {
		name string
		buf  *Buffer
		err  error
	}{
		{"bad signature", encode([2]byte{'X', 'G'}, 1, 0, 0), ErrBadSignature},
		{"bad signature second byte", encode([2]byte{'M', 'X'}, 1, 0, 0), ErrBadSignature},
		{"bad version", encode([2]byte{'M', 'G'}, 2, 0, 0), ErrBadVersion},
		{"bad packet type", encode([2]byte{'M', 'G'}, 1, 3, 0), ErrBadPacketType},
		{"bad packet type upper", encode([2]byte{'M', 'G'}, 1, 7, 0), ErrBadPacketType},
		{"too large", encode([2]byte{'M', 'G'}, 1, 1, 1201), ErrTooLarge},
		{"too large max field", encode([2]byte{'M', 'G'}, 1, 1, 2047), ErrTooLarge},

		// precedence: signature before version, version before type, type before length
		{"signature beats version", encode([2]byte{'X', 'X'}, 3, 0, 0), ErrBadSignature},
		{"version beats type", encode([2]byte{'M', 'G'}, 2, 5, 0), ErrBadVersion},
		{"type beats length", encode([2]byte{'M', 'G'}, 1, 5, 2047), ErrBadPacketType},
	}

	for _, test := range tests {
		if _, err := DecodeHeader(NewReader(test.buf)); err != test.err {
			t.Fatalf("%s: expected %v, got %v", test.name, test.err, err)
		}
	}
}

func TestHeaderShortDatagram(t *testing.T) {
	if _, err := DecodeHeader(NewReader(NewBuffer(1))); err != ErrBufferExhausted {
		t.Fatalf("expected ErrBufferExhausted, got %v", err)
	}
}

// SPDX-FileCopyrightText: 2021 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package message implements the sliced payload entity exchanged between
// peers. A Message may exceed the size of one datagram; it is then written
// as multiple fragments and reassembled at the receiver by merging the
// fragments' slices back into one contiguous payload.
package message

import (
	"encoding/binary"
	"fmt"

	"github.com/hashicorp/go-multierror"

	"github.com/dtn7/mgnet-go/wire"
)

const (
	// LenBits is the bit width of a Message's length and of a fragment's
	// offset on the wire.
	LenBits = 11

	// MaxMessageSize is the maximum byte length of one Message, bounded by
	// the LenBits wide length field.
	MaxMessageSize = 1<<LenBits - 1

	// HeaderBytes bounds a fragment's wire header from above: a 32 bit
	// sequence number followed by two LenBits wide fields, HeaderBits in all,
	// which end within the seventh byte.
	HeaderBytes = 8

	// HeaderBits is the exact bit footprint of a fragment's wire header.
	HeaderBits = 32 + 2*LenBits
)

// slice is a contiguous byte range of a Message: either a data slice
// holding received bytes or an empty slice marking a gap still expected.
type slice struct {
	offset int
	length int
	data   []byte
}

// isEmpty distinguishes gap slices from data slices.
func (s slice) isEmpty() bool {
	return s.data == nil
}

// end returns the offset of the first byte past this slice.
func (s slice) end() int {
	return s.offset + s.length
}

// Message is an ordered collection of non-overlapping slices tiling the
// range from zero to its length. It is complete when a single data slice
// covers the whole range.
type Message struct {
	seq    uint32
	length int
	slices []slice
}

// NewMessage creates an outgoing Message holding a copy of data. Such a
// Message is complete from the start and ready to be written to the wire.
func NewMessage(seq uint32, data []byte) *Message {
	payload := make([]byte, len(data))
	copy(payload, data)

	return &Message{
		seq:    seq,
		length: len(data),
		slices: []slice{{offset: 0, length: len(data), data: payload}},
	}
}

// DecodeMessage reads one fragment from a Reader, creating a partial
// Message view: its data slice framed by empty slices for the bytes still
// missing. The fragment's data is clamped to the Reader's remainder, as a
// datagram may only fit so much.
func DecodeMessage(r *wire.Reader) (*Message, error) {
	var seqBytes [4]byte
	if err := r.ReadBytes(seqBytes[:]); err != nil {
		return nil, err
	}

	length, err := r.ReadBits(LenBits)
	if err != nil {
		return nil, err
	}
	if length == 0 || length > MaxMessageSize {
		return nil, fmt.Errorf("message length %d is out of bounds", length)
	}

	offsetField, err := r.ReadBits(LenBits)
	if err != nil {
		return nil, err
	}
	offset := int(offsetField)
	if offset >= int(length) {
		return nil, fmt.Errorf("fragment offset %d is outside message length %d", offset, length)
	}

	dataLen := r.Remaining()
	if remainder := int(length) - offset; dataLen > remainder {
		dataLen = remainder
	}
	if dataLen <= 0 {
		return nil, fmt.Errorf("fragment carries no data")
	}

	data := make([]byte, dataLen)
	if err := r.ReadBytes(data); err != nil {
		return nil, err
	}

	m := &Message{
		seq:    binary.BigEndian.Uint32(seqBytes[:]),
		length: int(length),
	}

	if offset > 0 {
		m.slices = append(m.slices, slice{offset: 0, length: offset})
	}
	m.slices = append(m.slices, slice{offset: offset, length: dataLen, data: data})
	if end := offset + dataLen; end < m.length {
		m.slices = append(m.slices, slice{offset: end, length: m.length - end})
	}

	return m, nil
}

// Seq returns the Message's sequence number, unique within a connection.
func (m *Message) Seq() uint32 {
	return m.seq
}

// Len returns the Message's total declared byte length.
func (m *Message) Len() int {
	return m.length
}

// IsValid reports whether this Message still holds data. A Message merged
// into another one is invalidated.
func (m *Message) IsValid() bool {
	return m.length > 0 && len(m.slices) > 0
}

// IsComplete reports whether all bytes have arrived, leaving one data
// slice covering the whole Message.
func (m *Message) IsComplete() bool {
	return m.IsValid() && len(m.slices) == 1 && !m.slices[0].isEmpty()
}

// Data returns the payload of a complete Message. It must not be called
// before IsComplete reports true.
func (m *Message) Data() []byte {
	return m.slices[0].data
}

// Write appends one fragment starting at offset to the Writer, preceded by
// the fragment's wire header. It refuses a Writer without enough room for
// the header plus at least one payload byte and returns the number of
// payload bytes written. The caller loops, accumulating the offset, until
// the whole Message has been written.
func (m *Message) Write(w *wire.Writer, offset int) (int, error) {
	if !m.IsComplete() {
		return 0, fmt.Errorf("cannot write an incomplete message")
	}
	if offset < 0 || offset >= m.length {
		return 0, fmt.Errorf("offset %d is outside message length %d", offset, m.length)
	}
	if w.Remaining() <= HeaderBytes {
		return 0, fmt.Errorf("writer has no room for a fragment")
	}

	var seqBytes [4]byte
	binary.BigEndian.PutUint32(seqBytes[:], m.seq)
	if err := w.WriteBytes(seqBytes[:]); err != nil {
		return 0, err
	}
	if err := w.WriteBits(uint64(m.length), LenBits); err != nil {
		return 0, err
	}
	if err := w.WriteBits(uint64(offset), LenBits); err != nil {
		return 0, err
	}

	n := w.Remaining()
	if remainder := m.length - offset; n > remainder {
		n = remainder
	}

	if err := w.WriteBytes(m.slices[0].data[offset : offset+n]); err != nil {
		return 0, err
	}
	return n, nil
}

// CheckValid returns an error describing every violation of the tiling
// invariant: the slices must cover the range from zero to the Message's
// length in order, without gaps or overlaps.
func (m *Message) CheckValid() (errs error) {
	if m.length <= 0 {
		errs = multierror.Append(errs, fmt.Errorf("message length %d is not positive", m.length))
	}
	if len(m.slices) == 0 {
		errs = multierror.Append(errs, fmt.Errorf("message has no slices"))
		return
	}

	expected := 0
	for i, s := range m.slices {
		if s.offset != expected {
			errs = multierror.Append(errs, fmt.Errorf(
				"slice %d starts at offset %d instead of %d", i, s.offset, expected))
		}
		if s.length <= 0 {
			errs = multierror.Append(errs, fmt.Errorf("slice %d has length %d", i, s.length))
		}
		if !s.isEmpty() && len(s.data) != s.length {
			errs = multierror.Append(errs, fmt.Errorf(
				"slice %d holds %d bytes instead of %d", i, len(s.data), s.length))
		}
		expected = s.end()
	}

	if expected != m.length {
		errs = multierror.Append(errs, fmt.Errorf(
			"slices end at offset %d instead of %d", expected, m.length))
	}
	return
}

// TransformData applies f to every data slice, paired with the slice's
// offset. A connection's filter uses this to transform a fragment's data
// in place.
func (m *Message) TransformData(f func(offset int, data []byte)) {
	for _, s := range m.slices {
		if !s.isEmpty() {
			f(s.offset, s.data)
		}
	}
}

// firstValidOffset returns the offset of the first data slice.
func (m *Message) firstValidOffset() int {
	for _, s := range m.slices {
		if !s.isEmpty() {
			return s.offset
		}
	}
	return 0
}

func (m *Message) String() string {
	return fmt.Sprintf("Message(Seq=%d, Len=%d, Slices=%d, Complete=%t)",
		m.seq, m.length, len(m.slices), m.IsComplete())
}

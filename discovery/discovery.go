// SPDX-FileCopyrightText: 2021 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package discovery announces running servers to their local network
// through UDP multicast packets, so clients find a server without
// configuration.
package discovery

import (
	"bytes"
	"fmt"
	"io"

	"github.com/dtn7/cboring"
)

const (
	// Address4 is the multicast IPv4 address used for discovery.
	Address4 = "224.23.23.42"

	// Address6 is the multicast IPv6 address used for discovery.
	Address6 = "ff02::23:42"

	// Port is the multicast UDP port used for discovery.
	Port = 35040
)

// Announcement names a reachable server: a display name paired with the
// UDP port its listeners share. The sender's address is known from the
// multicast packet itself.
type Announcement struct {
	Name string
	Port uint
}

// MarshalCbor writes this Announcement's CBOR representation: an array of
// the name and the port.
func (a *Announcement) MarshalCbor(w io.Writer) error {
	if err := cboring.WriteArrayLength(2, w); err != nil {
		return err
	}
	if err := cboring.WriteTextString(a.Name, w); err != nil {
		return fmt.Errorf("marshalling name failed: %v", err)
	}
	if err := cboring.WriteUInt(uint64(a.Port), w); err != nil {
		return fmt.Errorf("marshalling port failed: %v", err)
	}
	return nil
}

// UnmarshalCbor reads a CBOR representation.
func (a *Announcement) UnmarshalCbor(r io.Reader) error {
	if n, err := cboring.ReadArrayLength(r); err != nil {
		return err
	} else if n != 2 {
		return fmt.Errorf("expected array of length 2, got %d", n)
	}

	if name, err := cboring.ReadTextString(r); err != nil {
		return fmt.Errorf("unmarshalling name failed: %v", err)
	} else {
		a.Name = name
	}

	if port, err := cboring.ReadUInt(r); err != nil {
		return fmt.Errorf("unmarshalling port failed: %v", err)
	} else {
		a.Port = uint(port)
	}

	return nil
}

func (a Announcement) String() string {
	return fmt.Sprintf("Announcement(%s, %d)", a.Name, a.Port)
}

// MarshalAnnouncements returns the CBOR byte string of an array of
// Announcements, the payload of one discovery packet.
func MarshalAnnouncements(announcements []Announcement) ([]byte, error) {
	var buf bytes.Buffer

	if err := cboring.WriteArrayLength(uint64(len(announcements)), &buf); err != nil {
		return nil, err
	}
	for i := range announcements {
		if err := cboring.Marshal(&announcements[i], &buf); err != nil {
			return nil, err
		}
	}

	return buf.Bytes(), nil
}

// UnmarshalAnnouncements parses a discovery packet's payload.
func UnmarshalAnnouncements(data []byte) ([]Announcement, error) {
	buf := bytes.NewBuffer(data)

	n, err := cboring.ReadArrayLength(buf)
	if err != nil {
		return nil, err
	}

	announcements := make([]Announcement, n)
	for i := range announcements {
		if err := cboring.Unmarshal(&announcements[i], buf); err != nil {
			return nil, err
		}
	}

	return announcements, nil
}

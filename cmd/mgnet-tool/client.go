// SPDX-FileCopyrightText: 2021 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"fmt"
	"net"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/dtn7/mgnet-go/message"
	"github.com/dtn7/mgnet-go/network"
)

// updateInterval is the period of the driving update loop.
const updateInterval = 16 * time.Millisecond

// toolClient wraps a network.Client with its tick-driven update loop. The
// handler callbacks run within update, so within the owner's goroutine.
type toolClient struct {
	client *network.Client

	connected    bool
	disconnected bool
	received     []*message.Message
}

func (tc *toolClient) OnConnected(_ network.Endpoint) {
	tc.connected = true
}

func (tc *toolClient) OnDisconnected(_ network.Endpoint) {
	tc.disconnected = true
}

func (tc *toolClient) OnMessageReceived(_ network.Endpoint, msg *message.Message) {
	tc.received = append(tc.received, msg)
}

// resolveEndpoint parses a host:port pair into an Endpoint.
func resolveEndpoint(addr string) (network.Endpoint, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return network.Endpoint{}, err
	}

	endpoint, ok := network.EndpointFromUDPAddr(udpAddr)
	if !ok {
		return network.Endpoint{}, fmt.Errorf("address %s is not representable", addr)
	}
	return endpoint, nil
}

// dialToolClient connects a toolClient and drives it until the handshake
// finished or the timeout passed.
func dialToolClient(addr string, timeout time.Duration) (*toolClient, error) {
	endpoint, err := resolveEndpoint(addr)
	if err != nil {
		return nil, err
	}

	tc := new(toolClient)
	if tc.client, err = network.NewClient(tc, endpoint, 0); err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"remote": endpoint,
	}).Info("Connecting..")

	for deadline := time.Now().Add(timeout); !tc.connected; {
		if time.Now().After(deadline) {
			_ = tc.client.Close()
			return nil, fmt.Errorf("handshake with %v timed out", endpoint)
		}

		tc.update()
	}

	return tc, nil
}

// update drives one tick.
func (tc *toolClient) update() {
	tc.client.Update(updateInterval)
	time.Sleep(updateInterval)
}

// drain returns and clears the received messages.
func (tc *toolClient) drain() []*message.Message {
	received := tc.received
	tc.received = nil
	return received
}

// sendChunked splits data into as many Messages as needed, as one Message
// is bounded by message.MaxMessageSize.
func (tc *toolClient) sendChunked(data []byte) error {
	for len(data) > 0 {
		chunk := len(data)
		if chunk > message.MaxMessageSize {
			chunk = message.MaxMessageSize
		}

		if err := tc.client.SendPayload(data[:chunk]); err != nil {
			return err
		}
		data = data[chunk:]
	}
	return nil
}

// close disconnects from the server, which sends the disconnect packet at
// once, drives one last tick and releases the socket.
func (tc *toolClient) close() {
	tc.client.Disconnect()
	tc.update()
	_ = tc.client.Close()
}

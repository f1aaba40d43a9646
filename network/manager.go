// SPDX-FileCopyrightText: 2021 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package network

import (
	"fmt"
	"time"
)

// ConnectionManager is the fixed-capacity table routing remote Endpoints
// to their Connections. New peers are admitted only below the capacity.
type ConnectionManager struct {
	capacity int
	conns    map[Endpoint]*Connection
}

// NewConnectionManager creates a ConnectionManager admitting up to
// capacity simultaneous Connections.
func NewConnectionManager(capacity int) *ConnectionManager {
	return &ConnectionManager{
		capacity: capacity,
		conns:    make(map[Endpoint]*Connection, capacity),
	}
}

// Find returns the Connection of the given Endpoint, or nil.
func (cm *ConnectionManager) Find(endpoint Endpoint) *Connection {
	return cm.conns[endpoint]
}

// Add inserts a Connection under its remote Endpoint. It fails on a full
// table and on a duplicate key, both without mutating state.
func (cm *ConnectionManager) Add(conn *Connection) error {
	if cm.IsFull() {
		return fmt.Errorf("connection table is full with %d entries", cm.capacity)
	}
	if _, exists := cm.conns[conn.Remote()]; exists {
		return fmt.Errorf("connection for %v does already exist", conn.Remote())
	}

	cm.conns[conn.Remote()] = conn
	return nil
}

// IsFull reports whether the capacity is reached.
func (cm *ConnectionManager) IsFull() bool {
	return len(cm.conns) >= cm.capacity
}

// Count returns the number of stored Connections.
func (cm *ConnectionManager) Count() int {
	return len(cm.conns)
}

// Update advances every Connection and evicts those that died, invoking
// onDisconnect exactly once with each evicted Endpoint. The visitation
// order within one tick is unspecified.
func (cm *ConnectionManager) Update(elapsed time.Duration, onDisconnect func(Endpoint)) {
	for endpoint, conn := range cm.conns {
		conn.Update(elapsed)

		if conn.State() == StateNone {
			delete(cm.conns, endpoint)
			conn.release()

			if onDisconnect != nil {
				onDisconnect(endpoint)
			}
		}
	}
}

// SPDX-FileCopyrightText: 2021 Alvar Penning
// SPDX-FileCopyrightText: 2021 Markus Sommer
//
// SPDX-License-Identifier: GPL-3.0-or-later

// mgnetd is the server daemon: it accepts peers on one UDP port, logs
// their messages and optionally echoes the payloads back.
package main

import (
	"os"
	"os/signal"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/dtn7/mgnet-go/message"
	"github.com/dtn7/mgnet-go/network"
)

// updateInterval is the period of the driving update loop.
const updateInterval = 16 * time.Millisecond

// daemonHandler surfaces the Server's events into the log and keeps the
// counters shown by the status endpoint.
type daemonHandler struct {
	server *network.Server
	echo   bool

	port        uint16
	connections int64
	packets     uint64
	messages    uint64
}

func newDaemonHandler(echo bool) *daemonHandler {
	return &daemonHandler{echo: echo}
}

func (dh *daemonHandler) OnClientConnected(endpoint network.Endpoint) {
	atomic.AddInt64(&dh.connections, 1)
}

func (dh *daemonHandler) OnClientDisconnected(endpoint network.Endpoint) {
	atomic.AddInt64(&dh.connections, -1)
}

func (dh *daemonHandler) OnMessageReceived(endpoint network.Endpoint, msg *message.Message) {
	atomic.AddUint64(&dh.messages, 1)

	log.WithFields(log.Fields{
		"remote":  endpoint,
		"message": msg,
	}).Info("Received message")

	if dh.echo {
		if err := dh.server.SendPayload(endpoint, msg.Data()); err != nil {
			log.WithFields(log.Fields{
				"remote": endpoint,
				"error":  err,
			}).Warn("Echoing message errored")
		}
	}
}

func main() {
	if len(os.Args) != 2 {
		log.Fatalf("Usage: %s configuration.toml", os.Args[0])
	}

	handler, ds, status, err := parseCore(os.Args[1])
	if err != nil {
		log.WithFields(log.Fields{
			"error": err,
		}).Fatal("Failed to parse config")
	}
	server := handler.server

	if status != nil {
		go status.serve()
	}

	signalSyn := make(chan os.Signal, 1)
	signal.Notify(signalSyn, os.Interrupt)

	ticker := time.NewTicker(updateInterval)
	defer ticker.Stop()

	lastTick := time.Now()
	for {
		select {
		case <-signalSyn:
			log.Info("Shutting down..")

			if ds != nil {
				ds.Close()
			}
			if err := server.Close(); err != nil {
				log.WithError(err).Warn("Closing server errored")
			}
			return

		case now := <-ticker.C:
			processed := server.Update(now.Sub(lastTick))
			lastTick = now

			if processed > 0 {
				atomic.AddUint64(&handler.packets, uint64(processed))
			}
		}
	}
}

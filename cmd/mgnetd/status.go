// SPDX-FileCopyrightText: 2021 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"encoding/json"
	"net/http"
	"sync/atomic"

	log "github.com/sirupsen/logrus"

	"github.com/gorilla/mux"
)

// statusAgent serves the daemon's state over a small HTTP endpoint. It
// runs next to the single-threaded update loop, so it only inspects the
// handler's atomic counters.
type statusAgent struct {
	listen  string
	handler *daemonHandler
	router  *mux.Router
}

// statusReport is the JSON document answered on a status request.
type statusReport struct {
	Port        uint16 `json:"port"`
	Connections int64  `json:"connections"`
	Packets     uint64 `json:"packets"`
	Messages    uint64 `json:"messages"`
}

// newStatusAgent creates a statusAgent; serve must be called to bind it.
func newStatusAgent(listen string, handler *daemonHandler) (sa *statusAgent) {
	sa = &statusAgent{
		listen:  listen,
		handler: handler,
		router:  mux.NewRouter(),
	}

	sa.router.HandleFunc("/status", sa.handleStatus).Methods(http.MethodGet)
	return sa
}

// handleStatus processes /status GET requests.
func (sa *statusAgent) handleStatus(w http.ResponseWriter, _ *http.Request) {
	report := statusReport{
		Port:        sa.handler.port,
		Connections: atomic.LoadInt64(&sa.handler.connections),
		Packets:     atomic.LoadUint64(&sa.handler.packets),
		Messages:    atomic.LoadUint64(&sa.handler.messages),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(report); err != nil {
		log.WithError(err).Warn("Failed to write status response")
	}
}

// serve binds the status endpoint; it blocks and should run in its own
// goroutine.
func (sa *statusAgent) serve() {
	log.WithFields(log.Fields{
		"listen": sa.listen,
	}).Info("Status endpoint is up")

	if err := http.ListenAndServe(sa.listen, sa.router); err != nil {
		log.WithError(err).Error("Status endpoint failed")
	}
}

// SPDX-FileCopyrightText: 2021 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"os"
	"os/signal"

	log "github.com/sirupsen/logrus"

	"github.com/dtn7/mgnet-go/discovery"
)

// startDiscover listens for server announcements on the local network and
// logs every discovered server until a SIGINT appears.
func startDiscover(args []string) {
	if len(args) != 0 {
		printUsage()
	}

	notify := func(announcement discovery.Announcement, addr string) {
		log.WithFields(log.Fields{
			"server":  announcement.Name,
			"address": addr,
			"port":    announcement.Port,
		}).Info("Discovered server")
	}

	service, err := discovery.NewService(nil, notify, 10, true, true)
	if err != nil {
		printFatal(err, "Starting discovery errored")
	}
	defer service.Close()

	closeChan := make(chan os.Signal, 1)
	signal.Notify(closeChan, os.Interrupt)
	<-closeChan

	log.Info("Shutting down..")
}

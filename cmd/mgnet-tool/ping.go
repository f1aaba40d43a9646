// SPDX-FileCopyrightText: 2021 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"os"
	"os/signal"
	"time"

	log "github.com/sirupsen/logrus"
)

// startPing connects to a server and sends a small payload every second.
// An echoing server answers with the same bytes; both directions are
// logged. SIGINT ends the ping.
func startPing(args []string) {
	if len(args) != 1 {
		printUsage()
	}

	tc, err := dialToolClient(args[0], 10*time.Second)
	if err != nil {
		printFatal(err, "Connecting errored")
	}
	defer tc.close()

	closeChan := make(chan os.Signal, 1)
	signal.Notify(closeChan, os.Interrupt)

	pingTicker := time.NewTicker(time.Second)
	defer pingTicker.Stop()

	for seq := 0; ; {
		select {
		case <-closeChan:
			return

		case <-pingTicker.C:
			if err := tc.client.SendPayload([]byte("ping")); err != nil {
				log.WithError(err).Error("Cannot send ping")
				return
			}
			seq++
			log.WithField("seq", seq).Info("Sent ping")

		default:
			tc.update()

			for _, msg := range tc.drain() {
				log.WithFields(log.Fields{
					"message": msg,
					"data":    string(msg.Data()),
				}).Info("Received answer")
			}

			if tc.disconnected {
				log.Error("Server disconnected")
				return
			}
		}
	}
}

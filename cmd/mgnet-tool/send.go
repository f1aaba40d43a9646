// SPDX-FileCopyrightText: 2021 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"io/ioutil"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
)

// startSend connects to a server, sends one file or the standard input as
// payload and disconnects afterwards.
func startSend(args []string) {
	if len(args) != 2 {
		printUsage()
	}

	var (
		data []byte
		err  error
	)
	if args[1] == "-" {
		data, err = ioutil.ReadAll(os.Stdin)
	} else {
		data, err = ioutil.ReadFile(args[1])
	}
	if err != nil {
		printFatal(err, "Reading input errored")
	}
	if len(data) == 0 {
		log.Fatal("Refusing to send an empty payload")
	}

	tc, err := dialToolClient(args[0], 10*time.Second)
	if err != nil {
		printFatal(err, "Connecting errored")
	}
	defer tc.close()

	if err := tc.sendChunked(data); err != nil {
		printFatal(err, "Sending errored")
	}

	log.WithFields(log.Fields{
		"bytes": len(data),
	}).Info("Sent payload")
}

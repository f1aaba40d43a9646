// SPDX-FileCopyrightText: 2021 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

// mgnet-tool is a client side swiss army knife: it pings a server, sends
// single payloads, exchanges a directory's files or discovers servers on
// the local network.
package main

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
)

func printUsage() {
	_, _ = fmt.Fprintf(os.Stderr, "Usage of %s:\n\n", os.Args[0])
	_, _ = fmt.Fprintf(os.Stderr, "%s ping host:port\n", os.Args[0])
	_, _ = fmt.Fprintf(os.Stderr, "%s send host:port file|-\n", os.Args[0])
	_, _ = fmt.Fprintf(os.Stderr, "%s exchange host:port directory\n", os.Args[0])
	_, _ = fmt.Fprintf(os.Stderr, "%s discover\n\n", os.Args[0])

	os.Exit(1)
}

// printFatal logs a fatal error with a describing message.
func printFatal(err error, msg string) {
	log.WithError(err).Fatal(msg)
}

func main() {
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "15:04:05.000",
	})

	if len(os.Args) < 2 {
		printUsage()
	}

	switch args := os.Args[2:]; os.Args[1] {
	case "ping":
		startPing(args)

	case "send":
		startSend(args)

	case "exchange":
		startExchange(args)

	case "discover":
		startDiscover(args)

	default:
		printUsage()
	}
}

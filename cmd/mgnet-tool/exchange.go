// SPDX-FileCopyrightText: 2021 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"io/ioutil"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/fsnotify/fsnotify"
)

// exchange sends a directory's files to a server over the filesystem: a
// file created within the watched directory leaves as messages.
type exchange struct {
	directory string
	tc        *toolClient
	watcher   *fsnotify.Watcher

	closeChan chan os.Signal
}

// startExchange watches a directory, sending every created file.
func startExchange(args []string) {
	if len(args) != 2 {
		printUsage()
	}

	ex := &exchange{
		directory: args[1],
		closeChan: make(chan os.Signal, 1),
	}
	signal.Notify(ex.closeChan, os.Interrupt)

	var err error
	if ex.tc, err = dialToolClient(args[0], 10*time.Second); err != nil {
		printFatal(err, "Connecting errored")
	}

	if ex.watcher, err = fsnotify.NewWatcher(); err != nil {
		printFatal(err, "Starting file watcher errored")
	}
	if err = ex.watcher.Add(ex.directory); err != nil {
		printFatal(err, "Adding directory to file watcher errored")
	}

	ex.handler()
}

// sendFile reads one created file and sends its content.
func (ex *exchange) sendFile(name string) {
	rel, err := filepath.Rel(ex.directory, name)
	if err != nil {
		rel = name
	}

	data, err := ioutil.ReadFile(name)
	if err != nil {
		log.WithField("file", rel).WithError(err).Error("Reading file errored")
		return
	}
	if len(data) == 0 {
		log.WithField("file", rel).Warn("Skipping empty file")
		return
	}

	if err := ex.tc.sendChunked(data); err != nil {
		log.WithField("file", rel).WithError(err).Error("Sending file errored")
		return
	}

	log.WithFields(log.Fields{
		"file":  rel,
		"bytes": len(data),
	}).Info("Sent file")
}

// handler reacts on file creations until a SIGINT appears or the
// connection dies.
func (ex *exchange) handler() {
	defer func() {
		_ = ex.watcher.Close()
		ex.tc.close()
	}()

	for {
		select {
		case <-ex.closeChan:
			return

		case event := <-ex.watcher.Events:
			if event.Op&fsnotify.Create == fsnotify.Create {
				ex.sendFile(event.Name)
			}

		case err := <-ex.watcher.Errors:
			log.WithError(err).Error("File watcher errored")
			return

		default:
			ex.tc.update()

			if ex.tc.disconnected {
				log.Error("Server disconnected")
				return
			}
		}
	}
}

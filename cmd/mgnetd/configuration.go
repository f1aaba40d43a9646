// SPDX-FileCopyrightText: 2021 Alvar Penning
// SPDX-FileCopyrightText: 2021 Markus Sommer
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/BurntSushi/toml"

	"github.com/dtn7/mgnet-go/discovery"
	"github.com/dtn7/mgnet-go/network"
)

// tomlConfig describes the TOML-configuration.
type tomlConfig struct {
	Core      coreConf
	Logging   logConf
	Discovery discoveryConf
	Status    statusConf
}

// coreConf describes the Core-configuration block.
type coreConf struct {
	Name        string
	Port        uint16
	Capacity    int
	IdleTimeout string `toml:"idle-timeout"`
	Echo        bool
}

// logConf describes the Logging-configuration block.
type logConf struct {
	Level        string
	ReportCaller bool `toml:"report-caller"`
	Format       string
}

// discoveryConf describes the Discovery-configuration block.
type discoveryConf struct {
	Enable   bool
	IPv4     bool
	IPv6     bool
	Interval uint
}

// statusConf describes the Status-configuration block.
type statusConf struct {
	Listen string
}

// setupLogging configures logrus as requested in the Logging block.
func setupLogging(conf logConf) {
	if conf.Level != "" {
		if lvl, err := log.ParseLevel(conf.Level); err != nil {
			log.WithFields(log.Fields{
				"level":    conf.Level,
				"error":    err,
				"provided": "panic,fatal,error,warn,info,debug,trace",
			}).Warn("Failed to set log level. Please select one of the provided ones")
		} else {
			log.SetLevel(lvl)
		}
	}

	log.SetReportCaller(conf.ReportCaller)

	switch conf.Format {
	case "", "text":
		log.SetFormatter(&log.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "15:04:05.000",
		})

	case "json":
		log.SetFormatter(&log.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
		})

	default:
		log.WithFields(log.Fields{
			"format":   conf.Format,
			"provided": "text,json",
		}).Warn("Failed to set log format. Please select one of the provided ones")
	}
}

// parseCore creates the Server and its handler, and optionally the
// discovery Service and the status agent, from the configuration file's
// path.
func parseCore(filename string) (handler *daemonHandler, ds *discovery.Service, status *statusAgent, err error) {
	var conf tomlConfig
	if _, err = toml.DecodeFile(filename, &conf); err != nil {
		return
	}

	setupLogging(conf.Logging)

	var idleTimeout time.Duration
	if conf.Core.IdleTimeout != "" {
		if idleTimeout, err = time.ParseDuration(conf.Core.IdleTimeout); err != nil {
			err = fmt.Errorf("parsing core.idle-timeout errored: %v", err)
			return
		}
	}

	handler = newDaemonHandler(conf.Core.Echo)
	server := network.NewServer(handler, conf.Core.Capacity, idleTimeout)
	handler.server = server

	if err = server.Start(conf.Core.Port); err != nil {
		return
	}
	handler.port = server.Port()

	if conf.Discovery.Enable {
		name := conf.Core.Name
		if name == "" {
			name = "mgnetd"
		}

		announcement := discovery.Announcement{
			Name: name,
			Port: uint(server.Port()),
		}

		interval := conf.Discovery.Interval
		if interval == 0 {
			interval = 10
		}

		notify := func(announcement discovery.Announcement, addr string) {
			log.WithFields(log.Fields{
				"message": announcement,
				"peer":    addr,
			}).Debug("Discovered another server")
		}

		ds, err = discovery.NewService(
			[]discovery.Announcement{announcement}, notify, interval,
			conf.Discovery.IPv4, conf.Discovery.IPv6)
		if err != nil {
			return
		}
	}

	if conf.Status.Listen != "" {
		status = newStatusAgent(conf.Status.Listen, handler)
	}

	return
}

// SPDX-FileCopyrightText: 2021 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package discovery

import (
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/schollz/peerdiscovery"
)

// Service publishes Announcements and notifies about received ones.
type Service struct {
	notify func(announcement Announcement, addr string)

	stopChan4 chan struct{}
	stopChan6 chan struct{}
}

// notify6 wraps an IPv6 sender address into brackets before notifying.
func (service *Service) notify6(discovered peerdiscovery.Discovered) {
	discovered.Address = fmt.Sprintf("[%s]", discovered.Address)

	service.notifyDiscovered(discovered)
}

func (service *Service) notifyDiscovered(discovered peerdiscovery.Discovered) {
	announcements, err := UnmarshalAnnouncements(discovered.Payload)
	if err != nil {
		log.WithError(err).WithFields(log.Fields{
			"peer": discovered.Address,
		}).Warn("Peer discovery failed to parse an incoming package")

		return
	}

	for _, announcement := range announcements {
		log.WithFields(log.Fields{
			"peer":    discovered.Address,
			"message": announcement,
		}).Debug("Peer discovery received a message")

		service.notify(announcement, discovered.Address)
	}
}

// Close this Service.
func (service *Service) Close() {
	for _, c := range []chan struct{}{service.stopChan4, service.stopChan6} {
		if c != nil {
			c <- struct{}{}
		}
	}
}

// NewService starts announcing over IPv4 and/or IPv6 every intervalSec
// seconds. Received Announcements are passed to notify together with the
// sender's address.
func NewService(announcements []Announcement, notify func(Announcement, string), intervalSec uint, ipv4, ipv6 bool) (*Service, error) {
	log.WithFields(log.Fields{
		"interval": intervalSec,
		"ipv4":     ipv4,
		"ipv6":     ipv6,
		"message":  announcements,
	}).Info("Started discovery service")

	var service = &Service{notify: notify}
	if ipv4 {
		service.stopChan4 = make(chan struct{})
	}
	if ipv6 {
		service.stopChan6 = make(chan struct{})
	}

	msg, err := MarshalAnnouncements(announcements)
	if err != nil {
		return nil, err
	}

	sets := []struct {
		active           bool
		multicastAddress string
		stopChan         chan struct{}
		ipVersion        peerdiscovery.IPVersion
		notify           func(discovered peerdiscovery.Discovered)
	}{
		{ipv4, Address4, service.stopChan4, peerdiscovery.IPv4, service.notifyDiscovered},
		{ipv6, Address6, service.stopChan6, peerdiscovery.IPv6, service.notify6},
	}

	for _, set := range sets {
		if !set.active {
			continue
		}

		settings := peerdiscovery.Settings{
			Limit:            -1,
			Port:             fmt.Sprintf("%d", Port),
			MulticastAddress: set.multicastAddress,
			Payload:          msg,
			Delay:            time.Duration(intervalSec) * time.Second,
			TimeLimit:        -1,
			StopChan:         set.stopChan,
			AllowSelf:        true,
			IPVersion:        set.ipVersion,
			Notify:           set.notify,
		}

		discoverErrChan := make(chan error)
		go func() {
			_, discoverErr := peerdiscovery.Discover(settings)
			discoverErrChan <- discoverErr
		}()

		select {
		case discoverErr := <-discoverErrChan:
			if discoverErr != nil {
				return nil, discoverErr
			}

		case <-time.After(time.Second):
			break
		}
	}

	return service, nil
}

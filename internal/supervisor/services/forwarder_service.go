// Everly - Personal Diary and Travel Journal Backend
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/everly

package services

import (
	"context"

	"github.com/tomtom215/everly/internal/eventbus"
)

// ForwarderService keeps an event forwarder attached to the bus while it
// runs. A restart re-attaches it.
type ForwarderService struct {
	fwd   *eventbus.Forwarder
	bus   *eventbus.Bus
	types []eventbus.EventType
}

// NewForwarderService forwards the given event types, or all of them.
func NewForwarderService(fwd *eventbus.Forwarder, bus *eventbus.Bus, types ...eventbus.EventType) *ForwarderService {
	return &ForwarderService{fwd: fwd, bus: bus, types: types}
}

// Serve implements suture.Service.
func (f *ForwarderService) Serve(ctx context.Context) error {
	f.fwd.Attach(f.bus, f.types...)
	defer f.fwd.Detach()
	<-ctx.Done()
	return ctx.Err()
}

func (f *ForwarderService) String() string { return "event-forwarder" }

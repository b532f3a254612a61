// Everly - Personal Diary and Travel Journal Backend
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/everly

package websocket

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/tomtom215/everly/internal/eventbus"
	"github.com/tomtom215/everly/internal/logging"
)

// Relay feeds events from a watermill subscriber (the in-process channel or
// NATS) into the hub.
type Relay struct {
	sub   message.Subscriber
	hub   *Hub
	types []eventbus.EventType
}

// NewRelay creates a relay for the given event types, or for every known
// type when none is given.
func NewRelay(sub message.Subscriber, hub *Hub, types ...eventbus.EventType) *Relay {
	if len(types) == 0 {
		types = eventbus.AllEventTypes()
	}
	return &Relay{sub: sub, hub: hub, types: types}
}

// String names the service in supervisor logs.
func (r *Relay) String() string { return "websocket-relay" }

// Serve subscribes to every topic and broadcasts decoded events until ctx
// is done. It implements suture.Service.
func (r *Relay) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	merged := make(chan *message.Message)
	for _, t := range r.types {
		ch, err := r.sub.Subscribe(ctx, eventbus.Topic(t))
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", t, err)
		}
		go func() {
			for msg := range ch {
				select {
				case merged <- msg:
				case <-ctx.Done():
					msg.Nack()
					return
				}
			}
		}()
	}

	logging.Info().Int("topics", len(r.types)).Msg("websocket relay started")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-merged:
			e, err := eventbus.DecodeMessage(msg)
			if err != nil {
				// Undecodable messages are dropped rather than redelivered.
				logging.Warn().Err(err).Str("message_id", msg.UUID).Msg("dropping undecodable event message")
				msg.Ack()
				continue
			}
			r.hub.BroadcastEvent(e)
			msg.Ack()
		}
	}
}

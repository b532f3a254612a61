// Everly - Personal Diary and Travel Journal Backend
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/everly

package eventbus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"
	natsgo "github.com/nats-io/nats.go"

	"github.com/tomtom215/everly/internal/metrics"
)

// Message metadata keys set on forwarded events.
const (
	MetadataEventType = "event_type"
	MetadataSource    = "source_module"
)

// TransportConfig selects the message transport events are forwarded to.
type TransportConfig struct {
	// NATSURL switches from the in-process channel to NATS core when set.
	NATSURL string

	// ClientName identifies the connection on the NATS server.
	ClientName string

	// Buffer is the gochannel output buffer per subscriber.
	Buffer int64
}

// Transport bundles a watermill publisher and subscriber pair.
type Transport struct {
	Publisher  message.Publisher
	Subscriber message.Subscriber
	Kind       string
}

// NewTransport builds the configured transport. The in-process gochannel is
// used unless a NATS URL is configured.
func NewTransport(cfg TransportConfig, logger watermill.LoggerAdapter) (*Transport, error) {
	if logger == nil {
		logger = watermill.NopLogger{}
	}

	if cfg.NATSURL == "" {
		buf := cfg.Buffer
		if buf <= 0 {
			buf = 256
		}
		ch := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: buf}, logger)
		return &Transport{Publisher: ch, Subscriber: ch, Kind: "gochannel"}, nil
	}

	name := cfg.ClientName
	if name == "" {
		name = "everly"
	}
	natsOpts := []natsgo.Option{
		natsgo.Name(name),
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(-1),
		natsgo.ReconnectWait(2 * time.Second),
		natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
			if err != nil {
				logger.Error("NATS disconnected", err, nil)
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logger.Info("NATS reconnected", watermill.LogFields{"url": nc.ConnectedUrl()})
		}),
	}

	pub, err := wmNats.NewPublisher(wmNats.PublisherConfig{
		URL:         cfg.NATSURL,
		NatsOptions: natsOpts,
		Marshaler:   &wmNats.NATSMarshaler{},
		JetStream:   wmNats.JetStreamConfig{Disabled: true},
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("create NATS publisher: %w", err)
	}

	sub, err := wmNats.NewSubscriber(wmNats.SubscriberConfig{
		URL:              cfg.NATSURL,
		SubscribersCount: 1,
		CloseTimeout:     10 * time.Second,
		AckWaitTimeout:   30 * time.Second,
		NatsOptions:      natsOpts,
		Unmarshaler:      &wmNats.NATSMarshaler{},
		JetStream:        wmNats.JetStreamConfig{Disabled: true},
	}, logger)
	if err != nil {
		_ = pub.Close()
		return nil, fmt.Errorf("create NATS subscriber: %w", err)
	}

	return &Transport{Publisher: pub, Subscriber: sub, Kind: "nats"}, nil
}

// Close closes both sides. A gochannel transport is closed once.
func (t *Transport) Close() error {
	errPub := t.Publisher.Close()
	if any(t.Publisher) == any(t.Subscriber) {
		return errPub
	}
	return errors.Join(errPub, t.Subscriber.Close())
}

// EncodeMessage turns an event into a watermill message keyed by the event id.
func EncodeMessage(e Event) (*message.Message, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal event %s: %w", e.ID, err)
	}
	msg := message.NewMessage(e.ID, data)
	msg.Metadata.Set(MetadataEventType, string(e.Type))
	msg.Metadata.Set(MetadataSource, e.Source)
	return msg, nil
}

// DecodeMessage is the inverse of EncodeMessage.
func DecodeMessage(msg *message.Message) (Event, error) {
	var e Event
	if err := json.Unmarshal(msg.Payload, &e); err != nil {
		return Event{}, fmt.Errorf("unmarshal message %s: %w", msg.UUID, err)
	}
	return e, nil
}

// Forwarder republishes bus events on a watermill publisher, one topic per
// event type.
type Forwarder struct {
	pub message.Publisher

	mu   sync.Mutex
	bus  *Bus
	subs map[EventType]SubscriptionID
}

// NewForwarder creates a forwarder writing to pub.
func NewForwarder(pub message.Publisher) *Forwarder {
	return &Forwarder{pub: pub, subs: make(map[EventType]SubscriptionID)}
}

// Attach subscribes the forwarder to the given event types on bus, or to
// every known type when none is given. Attaching to a second bus detaches
// from the first.
func (f *Forwarder) Attach(bus *Bus, eventTypes ...EventType) {
	if len(eventTypes) == 0 {
		eventTypes = AllEventTypes()
	}

	f.Detach()

	f.mu.Lock()
	defer f.mu.Unlock()
	f.bus = bus
	for _, t := range eventTypes {
		f.subs[t] = bus.Subscribe(t, f.forward)
	}
}

// Detach removes the forwarder's subscriptions.
func (f *Forwarder) Detach() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.bus == nil {
		return
	}
	for t, id := range f.subs {
		f.bus.Unsubscribe(t, id)
	}
	f.subs = make(map[EventType]SubscriptionID)
	f.bus = nil
}

func (f *Forwarder) forward(_ context.Context, e Event) (any, error) {
	msg, err := EncodeMessage(e)
	if err == nil {
		err = f.pub.Publish(Topic(e.Type), msg)
	}
	metrics.RecordForward(string(e.Type), err)
	if err != nil {
		return nil, fmt.Errorf("forward %s: %w", e.Type, err)
	}
	return nil, nil
}

// Topic is the transport topic (NATS subject) carrying events of type t.
func Topic(t EventType) string {
	return string(t)
}

package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

// NATSBusConfig holds configuration for the JetStream-backed bus.
type NATSBusConfig struct {
	URL           string
	StreamName    string
	SubjectPrefix string // e.g. "room.events"
	MaxAge        time.Duration
	MaxReconnects int
	ReconnectWait time.Duration
}

// DefaultNATSBusConfig returns the default JetStream bus configuration.
func DefaultNATSBusConfig() NATSBusConfig {
	return NATSBusConfig{
		URL:           nats.DefaultURL,
		StreamName:    "ROOM_EVENTS",
		SubjectPrefix: "room.events",
		MaxAge:        time.Hour,
		MaxReconnects: -1, // Infinite
		ReconnectWait: 2 * time.Second,
	}
}

// NATSBus is the production Bus: events are published to a JetStream
// stream with one subject per room, and each subscription is an
// ephemeral consumer filtered to its room's subject.
type NATSBus struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	stream jetstream.Stream
	config NATSBusConfig
}

// NewNATSBus connects to NATS and creates or updates the room-events
// stream.
func NewNATSBus(ctx context.Context, config NATSBusConfig) (*NATSBus, error) {
	opts := []nats.Option{
		nats.MaxReconnects(config.MaxReconnects),
		nats.ReconnectWait(config.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	stream, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     config.StreamName,
		Subjects: []string{config.SubjectPrefix + ".>"},
		MaxAge:   config.MaxAge,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure stream: %w", err)
	}

	log.Info().
		Str("stream", config.StreamName).
		Str("subject_prefix", config.SubjectPrefix).
		Msg("room event stream ready")

	return &NATSBus{nc: nc, js: js, stream: stream, config: config}, nil
}

func (b *NATSBus) subject(roomID string) string {
	return fmt.Sprintf("%s.%s", b.config.SubjectPrefix, roomID)
}

// Publish sends an event to the room's subject.
func (b *NATSBus) Publish(ctx context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if _, err := b.js.Publish(ctx, b.subject(event.RoomID), data); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// Subscribe delivers every event for roomID to fn until the returned
// handle is called.
func (b *NATSBus) Subscribe(roomID uuid.UUID, fn func(Event)) (Unsubscribe, error) {
	consumer, err := b.stream.CreateOrUpdateConsumer(context.Background(), jetstream.ConsumerConfig{
		FilterSubject: b.subject(roomID.String()),
		DeliverPolicy: jetstream.DeliverNewPolicy,
		AckPolicy:     jetstream.AckExplicitPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("create consumer: %w", err)
	}

	consumeCtx, err := consumer.Consume(func(msg jetstream.Msg) {
		var event Event
		if err := json.Unmarshal(msg.Data(), &event); err != nil {
			log.Error().Err(err).Str("subject", msg.Subject()).Msg("failed to unmarshal room event")
			if nakErr := msg.Nak(); nakErr != nil {
				log.Error().Err(nakErr).Msg("failed to NAK message")
			}
			return
		}
		fn(event)
		if ackErr := msg.Ack(); ackErr != nil {
			log.Error().Err(ackErr).Msg("failed to ACK message")
		}
	})
	if err != nil {
		return nil, fmt.Errorf("start consumer: %w", err)
	}

	log.Debug().Str("room_id", roomID.String()).Msg("room subscription started")

	return func() {
		consumeCtx.Stop()
		log.Debug().Str("room_id", roomID.String()).Msg("room subscription stopped")
	}, nil
}

// Close shuts the underlying NATS connection down.
func (b *NATSBus) Close() {
	if b.nc != nil {
		b.nc.Close()
	}
}

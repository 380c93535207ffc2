package relay

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// Config holds NATS connection settings for the relay.
type Config struct {
	URL           string
	MaxReconnects int
	ReconnectWait time.Duration
}

// DefaultConfig returns default relay connection configuration.
func DefaultConfig() Config {
	return Config{
		URL:           nats.DefaultURL,
		MaxReconnects: -1, // Infinite
		ReconnectWait: 2 * time.Second,
	}
}

// Client is a thin wrapper around a NATS connection, publishing named race
// events with a JSON payload on a per-room subject. Core NATS only: the
// relay guarantees neither ordering nor delivery to disconnected
// subscribers, and the race protocol is designed around that.
type Client struct {
	nc *nats.Conn
}

// Connect dials NATS with reconnect handling.
func Connect(cfg Config) (*Client, error) {
	opts := []nats.Option{
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
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

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	return &Client{nc: nc}, nil
}

// SubjectFor returns the relay subject for a room's race events.
func SubjectFor(roomID string) string {
	return "room." + roomID
}

// MatchSubjectFor returns the relay subject carrying matchmaking
// notifications for one participant. Distinct from room channels: a
// waiting searcher has no room to subscribe to yet.
func MatchSubjectFor(participantID string) string {
	return "matchmaking." + participantID
}

// Publish sends an event on the room's channel. Fire-and-forget: the caller
// logs a returned error and advances its local state regardless, because
// the relay offers no acknowledgment to wait for.
func (c *Client) Publish(roomID string, eventType string, payload any) error {
	return c.publishOn(SubjectFor(roomID), roomID, eventType, payload)
}

// PublishMatchFound notifies a waiting searcher on its matchmaking channel
// that it was paired into a room.
func (c *Client) PublishMatchFound(participantID string, payload MatchFoundPayload) error {
	return c.publishOn(MatchSubjectFor(participantID), payload.RoomID, EventMatchFound, payload)
}

func (c *Client) publishOn(subject string, roomID string, eventType string, payload any) error {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", eventType, err)
	}

	envelope := Envelope{
		EventID:   uuid.New().String(),
		EventType: eventType,
		RoomID:    roomID,
		Timestamp: time.Now(),
		Payload:   payloadBytes,
	}

	data, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal %s envelope: %w", eventType, err)
	}

	if err := c.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", eventType, err)
	}

	log.Debug().
		Str("subject", subject).
		Str("event_type", eventType).
		Str("event_id", envelope.EventID).
		Msg("event published")
	return nil
}

// Subscribe dispatches every envelope on the room's channel to handler.
// Returns the subscription so the caller can unsubscribe when it leaves the
// room.
func (c *Client) Subscribe(roomID string, handler func(*Envelope)) (*nats.Subscription, error) {
	return c.subscribeOn(SubjectFor(roomID), handler)
}

// SubscribeMatchFound dispatches matchmaking notifications for one
// participant. A searcher subscribes while waiting and unsubscribes once
// paired or given up.
func (c *Client) SubscribeMatchFound(participantID string, handler func(*Envelope)) (*nats.Subscription, error) {
	return c.subscribeOn(MatchSubjectFor(participantID), handler)
}

func (c *Client) subscribeOn(subject string, handler func(*Envelope)) (*nats.Subscription, error) {
	sub, err := c.nc.Subscribe(subject, func(msg *nats.Msg) {
		var envelope Envelope
		if err := json.Unmarshal(msg.Data, &envelope); err != nil {
			log.Error().Err(err).Str("subject", msg.Subject).Msg("dropping malformed relay message")
			return
		}
		handler(&envelope)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe to %s: %w", subject, err)
	}

	log.Debug().Str("subject", subject).Msg("subscribed to relay channel")
	return sub, nil
}

// Close drains the connection.
func (c *Client) Close() {
	if c.nc != nil {
		c.nc.Close()
	}
}

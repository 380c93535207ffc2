package gateway

import (
	"encoding/json"
	"sync"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/typeracer/go/internal/relay"
)

// ClientFrame is the shape of a message a participant sends over its
// socket: a race event name plus its payload. The gateway wraps it in a
// relay envelope; the relay fans it back out to every socket in the room,
// including the sender's.
type ClientFrame struct {
	EventType string          `json:"eventType"`
	Payload   json.RawMessage `json:"payload"`
}

// EnvelopeObserver sees every envelope delivered on a room the bridge is
// subscribed to. Observers run on the relay's delivery goroutine and must
// not block.
type EnvelopeObserver interface {
	ObserveEnvelope(env *relay.Envelope)
}

// Bridge connects room WebSocket pools to the relay: client frames go out
// as relay events, relay envelopes come back as socket frames. One relay
// subscription per room with at least one open socket.
type Bridge struct {
	relay *relay.Client
	cm    *ConnectionManager

	mu        sync.Mutex
	subs      map[string]*nats.Subscription
	observers []EnvelopeObserver
}

func NewBridge(relayClient *relay.Client, cm *ConnectionManager) *Bridge {
	b := &Bridge{
		relay: relayClient,
		cm:    cm,
		subs:  make(map[string]*nats.Subscription),
	}
	cm.SetInbound(b.handleClientFrame)
	cm.SetOnConnect(func(conn *Connection) {
		if err := b.EnsureRoom(conn.RoomID); err != nil {
			log.Error().Err(err).Str("room_id", conn.RoomID).Msg("failed to subscribe room channel")
		}
	})
	cm.SetOnRoomEmpty(b.ReleaseRoom)
	return b
}

// AddObserver registers an observer for every room's envelopes. Must be
// called before connections arrive.
func (b *Bridge) AddObserver(obs EnvelopeObserver) {
	b.observers = append(b.observers, obs)
}

// EnsureRoom subscribes the bridge to the room's relay channel. Idempotent.
func (b *Bridge) EnsureRoom(roomID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subs[roomID]; ok {
		return nil
	}

	sub, err := b.relay.Subscribe(roomID, func(env *relay.Envelope) {
		b.deliver(roomID, env)
	})
	if err != nil {
		return err
	}
	b.subs[roomID] = sub
	return nil
}

// ReleaseRoom drops the room's relay subscription.
func (b *Bridge) ReleaseRoom(roomID string) {
	b.mu.Lock()
	sub, ok := b.subs[roomID]
	if ok {
		delete(b.subs, roomID)
	}
	b.mu.Unlock()

	if !ok {
		return
	}
	if err := sub.Unsubscribe(); err != nil {
		log.Warn().Err(err).Str("room_id", roomID).Msg("failed to unsubscribe room channel")
	}
	log.Debug().Str("room_id", roomID).Msg("room channel released")
}

// Close drops every room subscription.
func (b *Bridge) Close() {
	b.mu.Lock()
	subs := b.subs
	b.subs = make(map[string]*nats.Subscription)
	b.mu.Unlock()

	for roomID, sub := range subs {
		if err := sub.Unsubscribe(); err != nil {
			log.Warn().Err(err).Str("room_id", roomID).Msg("failed to unsubscribe room channel")
		}
	}
}

func (b *Bridge) deliver(roomID string, env *relay.Envelope) {
	for _, obs := range b.observers {
		obs.ObserveEnvelope(env)
	}

	data, err := json.Marshal(env)
	if err != nil {
		log.Error().Err(err).Str("room_id", roomID).Msg("failed to marshal envelope for broadcast")
		return
	}
	b.cm.BroadcastToRoom(roomID, data)
}

// handleClientFrame publishes a client's race event on its room channel.
// Fire-and-forget: a failed publish is logged and dropped, the client's
// own state machine does not wait on it.
func (b *Bridge) handleClientFrame(conn *Connection, message []byte) {
	var frame ClientFrame
	if err := json.Unmarshal(message, &frame); err != nil {
		log.Warn().
			Err(err).
			Str("connection_id", conn.ID).
			Msg("dropping malformed client frame")
		return
	}
	if frame.EventType == "" {
		log.Warn().Str("connection_id", conn.ID).Msg("dropping client frame without event type")
		return
	}

	if err := b.relay.Publish(conn.RoomID, frame.EventType, frame.Payload); err != nil {
		log.Error().
			Err(err).
			Str("room_id", conn.RoomID).
			Str("event_type", frame.EventType).
			Msg("relay publish failed")
	}
}

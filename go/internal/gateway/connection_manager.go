package gateway

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// ConnectionManager owns the WebSocket connections of race participants,
// pooled by room.
type ConnectionManager struct {
	roomConnections map[string]map[*Connection]bool
	mu              sync.RWMutex

	upgrader websocket.Upgrader
	config   ConnectionConfig

	broadcastCh chan BroadcastMessage

	// inbound receives every message a client sends over its socket.
	inbound InboundFunc
	// onRoomEmpty fires after the last connection of a room unregisters.
	onRoomEmpty func(roomID string)
	// onConnect fires after a connection registers, before its pumps start
	// reading.
	onConnect func(conn *Connection)
}

// InboundFunc handles a raw client frame.
type InboundFunc func(conn *Connection, message []byte)

// Connection is one participant's WebSocket session.
type Connection struct {
	ID            string
	ParticipantID string
	RoomID        string
	Conn          *websocket.Conn
	Send          chan []byte
	Manager       *ConnectionManager

	ConnectedAt time.Time
	LastPing    time.Time

	// done signals shutdown to the pumps. Send is never closed: a broadcast
	// may hold a reference to this connection after it unregistered, and a
	// send on a closed channel would panic the broadcast loop.
	done      chan struct{}
	closeOnce sync.Once
}

// signalClosed marks the connection dead. Idempotent.
func (c *Connection) signalClosed() {
	c.closeOnce.Do(func() { close(c.done) })
}

// ConnectionConfig holds configuration for WebSocket connections.
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	CheckOrigin     func(r *http.Request) bool
}

// BroadcastMessage is a frame to fan out to a room's connections.
type BroadcastMessage struct {
	RoomID string
	Data   []byte
	// ExcludeConnectionID skips one connection, typically the sender.
	ExcludeConnectionID string
}

// DefaultConnectionConfig returns default WebSocket configuration.
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  16 * 1024, // full passage snapshots ride in each frame
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			// Allow all origins in development - restrict in production
			return true
		},
	}
}

// NewConnectionManager creates a new WebSocket connection manager.
func NewConnectionManager(config ConnectionConfig) *ConnectionManager {
	return &ConnectionManager{
		roomConnections: make(map[string]map[*Connection]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		broadcastCh: make(chan BroadcastMessage, 1000),
	}
}

// SetInbound installs the handler for client frames. Must be called before
// any connection is upgraded.
func (cm *ConnectionManager) SetInbound(fn InboundFunc) {
	cm.inbound = fn
}

// SetOnRoomEmpty installs the last-connection-gone hook.
func (cm *ConnectionManager) SetOnRoomEmpty(fn func(roomID string)) {
	cm.onRoomEmpty = fn
}

// SetOnConnect installs the connection-registered hook.
func (cm *ConnectionManager) SetOnConnect(fn func(conn *Connection)) {
	cm.onConnect = fn
}

// Start begins processing broadcast messages.
func (cm *ConnectionManager) Start(ctx context.Context) {
	log.Info().Msg("connection manager started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("connection manager shutting down")
			return
		case message := <-cm.broadcastCh:
			cm.handleBroadcast(message)
		}
	}
}

// UpgradeConnection upgrades an HTTP connection to WebSocket and registers
// it in the room's pool.
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, participantID string, roomID string) error {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("failed to upgrade WebSocket connection")
		return err
	}

	connection := &Connection{
		ID:            uuid.New().String(),
		ParticipantID: participantID,
		RoomID:        roomID,
		Conn:          conn,
		Send:          make(chan []byte, 256),
		Manager:       cm,
		ConnectedAt:   time.Now(),
		LastPing:      time.Now(),
		done:          make(chan struct{}),
	}

	cm.registerConnection(connection)

	if cm.onConnect != nil {
		cm.onConnect(connection)
	}

	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("connection_id", connection.ID).
		Str("participant_id", participantID).
		Str("room_id", roomID).
		Msg("WebSocket connection established")

	return nil
}

func (cm *ConnectionManager) registerConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.roomConnections[conn.RoomID] == nil {
		cm.roomConnections[conn.RoomID] = make(map[*Connection]bool)
	}
	cm.roomConnections[conn.RoomID][conn] = true

	log.Debug().
		Str("connection_id", conn.ID).
		Str("room_id", conn.RoomID).
		Int("total_connections", len(cm.roomConnections[conn.RoomID])).
		Msg("connection registered")
}

func (cm *ConnectionManager) unregisterConnection(conn *Connection) {
	cm.mu.Lock()

	roomEmptied := false
	if connections, exists := cm.roomConnections[conn.RoomID]; exists {
		if _, exists := connections[conn]; exists {
			delete(connections, conn)
			conn.signalClosed()

			if len(connections) == 0 {
				delete(cm.roomConnections, conn.RoomID)
				roomEmptied = true
			}

			log.Info().
				Str("connection_id", conn.ID).
				Str("participant_id", conn.ParticipantID).
				Str("room_id", conn.RoomID).
				Msg("connection unregistered")
		}
	}
	cm.mu.Unlock()

	if roomEmptied && cm.onRoomEmpty != nil {
		cm.onRoomEmpty(conn.RoomID)
	}
}

// BroadcastToRoom queues a frame for every connection in the room.
func (cm *ConnectionManager) BroadcastToRoom(roomID string, data []byte) {
	select {
	case cm.broadcastCh <- BroadcastMessage{RoomID: roomID, Data: data}:
	default:
		log.Warn().Str("room_id", roomID).Msg("broadcast channel full, dropping message")
	}
}

func (cm *ConnectionManager) handleBroadcast(message BroadcastMessage) {
	cm.mu.RLock()
	connections, exists := cm.roomConnections[message.RoomID]
	if !exists {
		cm.mu.RUnlock()
		return
	}

	var targetConnections []*Connection
	for conn := range connections {
		if message.ExcludeConnectionID != "" && conn.ID == message.ExcludeConnectionID {
			continue
		}
		targetConnections = append(targetConnections, conn)
	}
	cm.mu.RUnlock()

	for _, conn := range targetConnections {
		select {
		case <-conn.done:
			// Unregistered between the snapshot and the send.
			continue
		default:
		}
		select {
		case conn.Send <- message.Data:
		default:
			// Connection is slow/dead, close it
			log.Warn().
				Str("connection_id", conn.ID).
				Str("participant_id", conn.ParticipantID).
				Msg("connection send buffer full, closing connection")
			cm.unregisterConnection(conn)
			conn.Conn.Close()
		}
	}

	log.Debug().
		Str("room_id", message.RoomID).
		Int("connections", len(targetConnections)).
		Msg("frame broadcasted")
}

// GetConnectionStats returns statistics about active connections.
func (cm *ConnectionManager) GetConnectionStats() (totalConnections, activeRooms int) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	for _, connections := range cm.roomConnections {
		totalConnections += len(connections)
	}
	return totalConnections, len(cm.roomConnections)
}

// writePump handles sending messages to the WebSocket connection.
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
		c.Manager.unregisterConnection(c)
	}()

	for {
		select {
		case <-c.done:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case message := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to write message to WebSocket")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to send ping")
				return
			}
			c.LastPing = time.Now()
		}
	}
}

// readPump handles reading messages from the WebSocket connection.
func (c *Connection) readPump() {
	defer func() {
		c.Manager.unregisterConnection(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
		c.LastPing = time.Now()
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected WebSocket close error")
			}
			break
		}

		if c.Manager.inbound != nil {
			c.Manager.inbound(c, message)
		}
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	}
}

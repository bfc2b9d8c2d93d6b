// Package gateway is the websocket edge of the coordinator. It owns one
// Connection per browser, one session controller per connection, and
// the per-room fan-out of bus events to connected clients. Guess
// visibility rules are applied here, at the edge, so the bus can carry
// every guess in full.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/Satelliteq/PixelHunt-sub000/internal/models"
	"github.com/Satelliteq/PixelHunt-sub000/internal/realtime"
	"github.com/Satelliteq/PixelHunt-sub000/internal/room"
	"github.com/Satelliteq/PixelHunt-sub000/internal/session"
	"github.com/Satelliteq/PixelHunt-sub000/internal/store"
)

// ConnectionConfig holds websocket tuning for the gateway.
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	DisconnectGrace time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	CheckOrigin     func(r *http.Request) bool
}

// DefaultConnectionConfig returns the default websocket configuration.
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		DisconnectGrace: 30 * time.Second,
		MaxMessageSize:  4096,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			// Allow all origins in development. Restrict in production.
			return true
		},
	}
}

// BroadcastMessage is one bus event queued for fan-out to a room's
// connections.
type BroadcastMessage struct {
	RoomID uuid.UUID
	Event  realtime.Event
}

// ConnectionManager owns the websocket connection pools, one per room,
// and a single bus subscription per active pool.
type ConnectionManager struct {
	engine *room.Engine
	store  session.Store
	bus    realtime.Bus
	clock  clockwork.Clock

	mu            sync.RWMutex
	rooms         map[uuid.UUID]map[*Connection]bool
	roomSubs      map[uuid.UUID]realtime.Unsubscribe
	pendingLeaves map[leaveKey]clockwork.Timer

	upgrader    websocket.Upgrader
	config      ConnectionConfig
	broadcastCh chan BroadcastMessage
}

// leaveKey identifies a membership with a disconnect grace timer armed.
type leaveKey struct {
	roomID   uuid.UUID
	playerID string
}

// Connection is one client's websocket plus its session controller.
type Connection struct {
	ID       string
	PlayerID string
	RoomID   uuid.UUID
	Conn     *websocket.Conn
	Send     chan []byte

	manager    *ConnectionManager
	controller *session.Controller
	cancel     context.CancelFunc

	// sendMu guards Send against a concurrent close from
	// unregisterConnection; every writer must go through queueFrame.
	sendMu     sync.Mutex
	sendClosed bool

	ConnectedAt time.Time
}

// queueFrame queues a frame for the write pump without blocking. Frames
// for a closed connection are dropped; the return value is false only
// when the connection is open and its buffer is full.
func (c *Connection) queueFrame(frame []byte) bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.sendClosed {
		return true
	}
	select {
	case c.Send <- frame:
		return true
	default:
		return false
	}
}

// closeSend closes the send channel exactly once.
func (c *Connection) closeSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.sendClosed {
		return
	}
	c.sendClosed = true
	close(c.Send)
}

// NewConnectionManager creates a gateway connection manager.
func NewConnectionManager(engine *room.Engine, st session.Store, bus realtime.Bus, clock clockwork.Clock, config ConnectionConfig) *ConnectionManager {
	return &ConnectionManager{
		engine:        engine,
		store:         st,
		bus:           bus,
		clock:         clock,
		rooms:         make(map[uuid.UUID]map[*Connection]bool),
		roomSubs:      make(map[uuid.UUID]realtime.Unsubscribe),
		pendingLeaves: make(map[leaveKey]clockwork.Timer),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		broadcastCh: make(chan BroadcastMessage, 1000),
	}
}

// Start processes the broadcast queue until ctx is cancelled.
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

// UpgradeConnection upgrades an HTTP request to a websocket, joins the
// room, and starts the connection's pumps and session loop. A failed
// join is reported to the client before the socket closes.
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, identity room.Identity, roomID uuid.UUID) error {
	ws, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := &Connection{
		ID:          uuid.New().String(),
		PlayerID:    identity.PlayerID,
		RoomID:      roomID,
		Conn:        ws,
		Send:        make(chan []byte, 256),
		manager:     cm,
		ConnectedAt: time.Now(),
	}

	ctx, cancel := context.WithCancel(context.Background())
	connection.cancel = cancel

	notifier := &connNotifier{conn: connection}
	ctrl, err := session.Join(ctx, session.Config{
		Engine:   cm.engine,
		Store:    cm.store,
		Bus:      cm.bus,
		Clock:    cm.clock,
		Notifier: notifier,
	}, roomID, identity)
	if err != nil {
		// Deliver the failure before closing; the notifier already
		// queued the user-facing message but the pumps never start.
		if frame, ferr := NewNoticeFrame(roomID, "error", "could not join the room"); ferr == nil {
			ws.SetWriteDeadline(time.Now().Add(cm.config.WriteTimeout))
			ws.WriteMessage(websocket.TextMessage, frame)
		}
		ws.Close()
		cancel()
		return err
	}
	connection.controller = ctrl

	cm.registerConnection(connection)
	go connection.writePump()
	go connection.readPump()
	go connection.runSession(ctx)

	log.Info().
		Str("connection_id", connection.ID).
		Str("player_id", identity.PlayerID).
		Str("room_id", roomID.String()).
		Msg("websocket connection established")

	return nil
}

// runSession drives the controller loop and closes the socket once the
// session ends (leave, kick, or room deletion).
func (c *Connection) runSession(ctx context.Context) {
	defer c.cancel()
	if err := c.controller.Run(ctx); err != nil && ctx.Err() == nil {
		log.Warn().Err(err).Str("connection_id", c.ID).Msg("session loop ended with error")
	}
	c.manager.unregisterConnection(c)
	c.Conn.Close()
	c.manager.scheduleGraceLeave(c.RoomID, c.PlayerID)
}

func (cm *ConnectionManager) registerConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	key := leaveKey{roomID: conn.RoomID, playerID: conn.PlayerID}
	if timer, ok := cm.pendingLeaves[key]; ok {
		timer.Stop()
		delete(cm.pendingLeaves, key)
		log.Info().
			Str("player_id", conn.PlayerID).
			Str("room_id", conn.RoomID.String()).
			Msg("player reconnected within grace period")
	}

	if cm.rooms[conn.RoomID] == nil {
		cm.rooms[conn.RoomID] = make(map[*Connection]bool)
		unsub, err := cm.bus.Subscribe(conn.RoomID, func(event realtime.Event) {
			select {
			case cm.broadcastCh <- BroadcastMessage{RoomID: conn.RoomID, Event: event}:
			default:
				log.Warn().Str("room_id", conn.RoomID.String()).Msg("broadcast channel full, dropping event")
			}
		})
		if err != nil {
			log.Error().Err(err).Str("room_id", conn.RoomID.String()).Msg("failed to subscribe room pool")
		} else {
			cm.roomSubs[conn.RoomID] = unsub
		}
	}
	cm.rooms[conn.RoomID][conn] = true

	log.Debug().
		Str("connection_id", conn.ID).
		Str("room_id", conn.RoomID.String()).
		Int("pool_size", len(cm.rooms[conn.RoomID])).
		Msg("connection registered")
}

func (cm *ConnectionManager) unregisterConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	connections, exists := cm.rooms[conn.RoomID]
	if !exists {
		return
	}
	if _, exists := connections[conn]; !exists {
		return
	}
	delete(connections, conn)
	conn.closeSend()

	if len(connections) == 0 {
		delete(cm.rooms, conn.RoomID)
		if unsub, ok := cm.roomSubs[conn.RoomID]; ok {
			unsub()
			delete(cm.roomSubs, conn.RoomID)
		}
	}

	log.Info().
		Str("connection_id", conn.ID).
		Str("player_id", conn.PlayerID).
		Str("room_id", conn.RoomID.String()).
		Msg("connection unregistered")
}

// handleBroadcast fans one event out to a room's pool, applying the
// guess visibility rules per viewer:
//   - plain wrong guesses go to everyone in full
//   - close guesses go only to the guesser
//   - correct guesses go to everyone, redacted for all but the guesser
func (cm *ConnectionManager) handleBroadcast(message BroadcastMessage) {
	cm.mu.RLock()
	pool, exists := cm.rooms[message.RoomID]
	if !exists {
		cm.mu.RUnlock()
		return
	}
	targets := make([]*Connection, 0, len(pool))
	for conn := range pool {
		targets = append(targets, conn)
	}
	cm.mu.RUnlock()

	if message.Event.Type == realtime.EventTypeGuessSubmitted {
		cm.broadcastGuess(message, targets)
		return
	}

	frame, err := json.Marshal(message.Event)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal event for broadcast")
		return
	}
	for _, conn := range targets {
		cm.send(conn, frame)
	}
}

func (cm *ConnectionManager) broadcastGuess(message BroadcastMessage, targets []*Connection) {
	var payload realtime.GuessSubmittedPayload
	if err := json.Unmarshal(message.Event.Data, &payload); err != nil {
		log.Warn().Err(err).Msg("ignoring malformed guess event")
		return
	}
	guess := payload.Guess

	fullFrame, err := marshalGuessFrame(message.Event, guess)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal guess frame")
		return
	}

	var redactedFrame []byte
	if guess.IsCorrect {
		redactedFrame, err = marshalGuessFrame(message.Event, redactGuess(guess))
		if err != nil {
			log.Error().Err(err).Msg("failed to marshal redacted guess frame")
			return
		}
	}

	for _, conn := range targets {
		switch {
		case conn.PlayerID == guess.PlayerID:
			cm.send(conn, fullFrame)
		case guess.IsCorrect:
			cm.send(conn, redactedFrame)
		case guess.IsClose:
			// Close guesses stay private to the guesser.
		default:
			cm.send(conn, fullFrame)
		}
	}
}

func marshalGuessFrame(event realtime.Event, guess models.Guess) ([]byte, error) {
	data, err := json.Marshal(realtime.GuessSubmittedPayload{Guess: guess})
	if err != nil {
		return nil, err
	}
	event.Data = data
	return json.Marshal(event)
}

// send queues a frame on a connection, closing connections too slow to
// keep up.
func (cm *ConnectionManager) send(conn *Connection, frame []byte) {
	if !conn.queueFrame(frame) {
		log.Warn().
			Str("connection_id", conn.ID).
			Str("player_id", conn.PlayerID).
			Msg("connection send buffer full, closing connection")
		cm.unregisterConnection(conn)
		conn.cancel()
		conn.Conn.Close()
	}
}

// scheduleGraceLeave arms a delayed leave for a player whose session
// ended while their membership record survived, which happens when the
// socket drops without a leave packet. Reconnecting within the grace
// period disarms the timer; otherwise the engine removes the player, so
// host migration and room cleanup run for silent departures too.
func (cm *ConnectionManager) scheduleGraceLeave(roomID uuid.UUID, playerID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := cm.store.GetPlayer(ctx, roomID, playerID); err != nil {
		// No record left, the player departed cleanly.
		return
	}

	key := leaveKey{roomID: roomID, playerID: playerID}
	cm.mu.Lock()
	defer cm.mu.Unlock()
	if _, exists := cm.pendingLeaves[key]; exists {
		return
	}
	for conn := range cm.rooms[roomID] {
		if conn.PlayerID == playerID {
			// A reconnect raced ahead of us.
			return
		}
	}
	cm.pendingLeaves[key] = cm.clock.AfterFunc(cm.config.DisconnectGrace, func() {
		cm.completeGraceLeave(roomID, playerID)
	})
	log.Info().
		Str("player_id", playerID).
		Str("room_id", roomID.String()).
		Dur("grace", cm.config.DisconnectGrace).
		Msg("socket dropped without leave, grace timer armed")
}

func (cm *ConnectionManager) completeGraceLeave(roomID uuid.UUID, playerID string) {
	key := leaveKey{roomID: roomID, playerID: playerID}
	cm.mu.Lock()
	delete(cm.pendingLeaves, key)
	for conn := range cm.rooms[roomID] {
		if conn.PlayerID == playerID {
			cm.mu.Unlock()
			return
		}
	}
	cm.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := cm.engine.Leave(ctx, roomID, playerID)
	if err != nil {
		if !errors.Is(err, store.ErrPlayerNotFound) && !errors.Is(err, store.ErrRoomNotFound) {
			log.Error().Err(err).
				Str("player_id", playerID).
				Str("room_id", roomID.String()).
				Msg("failed to remove silently departed player")
		}
		return
	}
	log.Info().
		Str("player_id", playerID).
		Str("room_id", roomID.String()).
		Msg("removed silently departed player")
}

// Stats summarizes the active pools.
func (cm *ConnectionManager) Stats() (totalConnections, activeRooms int) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	for _, pool := range cm.rooms {
		totalConnections += len(pool)
	}
	return totalConnections, len(cm.rooms)
}

// writePump sends queued frames and pings until the connection dies.
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.cancel()
		c.Conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.manager.config.WriteTimeout))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				log.Debug().Err(err).Str("connection_id", c.ID).Msg("failed to write frame")
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Debug().Err(err).Str("connection_id", c.ID).Msg("failed to send ping")
				return
			}
		}
	}
}

// readPump reads client packets and routes them to the session
// controller. When the socket drops without an explicit leave, the
// player record stays for the disconnect grace period; rejoining in
// time resumes the same membership, otherwise the player is removed as
// if they had left.
func (c *Connection) readPump() {
	defer func() {
		c.cancel()
		c.manager.unregisterConnection(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.manager.config.ReadTimeout))
		return nil
	})

	for {
		_, raw, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Warn().Err(err).Str("connection_id", c.ID).Msg("unexpected websocket close")
			}
			return
		}
		c.handleClientPacket(raw)
		c.Conn.SetReadDeadline(time.Now().Add(c.manager.config.ReadTimeout))
	}
}

// handleClientPacket dispatches one client packet to the controller.
// Domain rejections come back to the user as Notice frames via the
// controller's notifier; they are not connection errors.
func (c *Connection) handleClientPacket(raw []byte) {
	var packet ClientPacket
	if err := json.Unmarshal(raw, &packet); err != nil {
		log.Debug().Err(err).Str("connection_id", c.ID).Msg("ignoring malformed packet")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var err error
	switch packet.Type {
	case PacketTypeGuess:
		var body TextPayload
		if err = json.Unmarshal(packet.Data, &body); err == nil {
			err = c.controller.SubmitGuess(ctx, body.Text)
		}
	case PacketTypeChat:
		var body TextPayload
		if err = json.Unmarshal(packet.Data, &body); err == nil {
			err = c.controller.SendChat(ctx, body.Text)
		}
	case PacketTypeStart:
		err = c.controller.StartGame(ctx)
	case PacketTypeKick:
		var body TargetPayload
		if err = json.Unmarshal(packet.Data, &body); err == nil {
			err = c.controller.KickPlayer(ctx, body.PlayerID)
		}
	case PacketTypeTransfer:
		var body TargetPayload
		if err = json.Unmarshal(packet.Data, &body); err == nil {
			err = c.controller.TransferHost(ctx, body.PlayerID)
		}
	case PacketTypeSettings:
		var body SettingsPayload
		if err = json.Unmarshal(packet.Data, &body); err == nil {
			err = c.controller.UpdateSettings(ctx, body.Settings)
		}
	case PacketTypeReset:
		err = c.controller.ResetGame(ctx)
	case PacketTypeLeave:
		err = c.controller.Leave(ctx)
	default:
		log.Debug().
			Str("connection_id", c.ID).
			Str("packet_type", packet.Type).
			Msg("ignoring unknown packet type")
		return
	}

	if err != nil {
		log.Debug().
			Err(err).
			Str("connection_id", c.ID).
			Str("packet_type", packet.Type).
			Msg("packet rejected")
	}
}

// connNotifier delivers controller notices as Notice frames on the
// owning connection.
type connNotifier struct {
	conn *Connection
}

func (n *connNotifier) Success(message string) { n.push("success", message) }
func (n *connNotifier) Error(message string)   { n.push("error", message) }

func (n *connNotifier) push(level, message string) {
	frame, err := NewNoticeFrame(n.conn.RoomID, level, message)
	if err != nil {
		log.Error().Err(err).Msg("failed to build notice frame")
		return
	}
	if !n.conn.queueFrame(frame) {
		log.Warn().Str("connection_id", n.conn.ID).Msg("dropping notice, send buffer full")
	}
}

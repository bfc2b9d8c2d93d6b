package gateway

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/Satelliteq/PixelHunt-sub000/internal/models"
	"github.com/Satelliteq/PixelHunt-sub000/internal/room"
	"github.com/Satelliteq/PixelHunt-sub000/internal/store"
)

// Handler exposes the gateway's HTTP surface: room creation, the
// websocket endpoint, leaderboards and connection stats.
type Handler struct {
	engine            *room.Engine
	connectionManager *ConnectionManager
}

// NewHandler creates the gateway HTTP handler.
func NewHandler(engine *room.Engine, cm *ConnectionManager) *Handler {
	return &Handler{
		engine:            engine,
		connectionManager: cm,
	}
}

// CreateRoomRequest is the body of POST /rooms.
type CreateRoomRequest struct {
	Name        string               `json:"name"`
	TestID      string               `json:"test_id"`
	PlayerID    string               `json:"player_id"`
	DisplayName string               `json:"display_name"`
	AvatarURL   string               `json:"avatar_url,omitempty"`
	Settings    *models.RoomSettings `json:"settings,omitempty"`
}

// CreateRoomResponse is the body returned by POST /rooms.
type CreateRoomResponse struct {
	Room *models.Room `json:"room"`
}

// HandleCreateRoom opens a new room with the caller as host. The caller
// then connects to the websocket endpoint; the join there is idempotent
// and returns their host authority.
func (h *Handler) HandleCreateRoom(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req CreateRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Name == "" || req.TestID == "" || req.PlayerID == "" || req.DisplayName == "" {
		http.Error(w, "name, test_id, player_id and display_name are required", http.StatusBadRequest)
		return
	}

	settings := models.DefaultRoomSettings()
	if req.Settings != nil {
		settings = *req.Settings
	}

	created, _, err := h.engine.CreateRoom(r.Context(), req.Name, req.TestID, room.Identity{
		PlayerID:    req.PlayerID,
		DisplayName: req.DisplayName,
		AvatarURL:   req.AvatarURL,
	}, settings)
	if err != nil {
		if errors.Is(err, room.ErrInvalidSettings) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		log.Error().Err(err).Msg("failed to create room")
		http.Error(w, "failed to create room", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, CreateRoomResponse{Room: created})
}

// HandleRoomConnection upgrades to a websocket and joins the player to
// the room identified by the room_id query parameter.
func (h *Handler) HandleRoomConnection(w http.ResponseWriter, r *http.Request) {
	roomIDStr := r.URL.Query().Get("room_id")
	if roomIDStr == "" {
		http.Error(w, "room_id is required", http.StatusBadRequest)
		return
	}
	roomID, err := uuid.Parse(roomIDStr)
	if err != nil {
		http.Error(w, "invalid room_id format", http.StatusBadRequest)
		return
	}

	// Identity comes from the external identity provider; here it is
	// trusted from the query string the same way an upstream proxy
	// would inject it.
	identity := room.Identity{
		PlayerID:    r.URL.Query().Get("player_id"),
		DisplayName: r.URL.Query().Get("display_name"),
		AvatarURL:   r.URL.Query().Get("avatar_url"),
	}
	if identity.PlayerID == "" || identity.DisplayName == "" {
		http.Error(w, "player_id and display_name are required", http.StatusBadRequest)
		return
	}

	if err := h.connectionManager.UpgradeConnection(w, r, identity, roomID); err != nil {
		log.Error().
			Err(err).
			Str("room_id", roomID.String()).
			Str("player_id", identity.PlayerID).
			Msg("failed to establish room connection")
	}
}

// LeaderboardResponse is the body returned by GET /rooms/leaderboard.
type LeaderboardResponse struct {
	Players []models.Player `json:"players"`
}

// HandleLeaderboard returns the room's players sorted by score.
func (h *Handler) HandleLeaderboard(w http.ResponseWriter, r *http.Request) {
	roomIDStr := r.URL.Query().Get("room_id")
	roomID, err := uuid.Parse(roomIDStr)
	if err != nil {
		http.Error(w, "invalid room_id format", http.StatusBadRequest)
		return
	}

	players, err := h.engine.Leaderboard(r.Context(), roomID)
	if err != nil {
		if errors.Is(err, store.ErrRoomNotFound) {
			http.Error(w, "room not found", http.StatusNotFound)
			return
		}
		log.Error().Err(err).Str("room_id", roomID.String()).Msg("failed to load leaderboard")
		http.Error(w, "failed to load leaderboard", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, LeaderboardResponse{Players: players})
}

// HandleConnectionStats reports active connection counts.
func (h *Handler) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	connections, rooms := h.connectionManager.Stats()
	writeJSON(w, http.StatusOK, map[string]int{
		"total_connections": connections,
		"active_rooms":      rooms,
	})
}

// RegisterRoutes attaches the gateway's routes to mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/rooms", h.HandleCreateRoom)
	mux.HandleFunc("/rooms/leaderboard", h.HandleLeaderboard)
	mux.HandleFunc("/ws/room", h.HandleRoomConnection)
	mux.HandleFunc("/ws/stats", h.HandleConnectionStats)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

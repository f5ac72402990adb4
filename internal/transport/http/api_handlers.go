package http

import (
	"errors"
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-relay/internal/core"
	"github.com/vovakirdan/wirechat-relay/internal/store"
)

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// RoomResponse describes one live room.
type RoomResponse struct {
	Name    string   `json:"name"`
	Members int      `json:"members"`
	Users   []string `json:"users,omitempty"`
}

// RoomsResponse lists live rooms.
type RoomsResponse struct {
	Rooms []RoomResponse `json:"rooms"`
}

// MessageResponse is one persisted chat message.
type MessageResponse struct {
	User    string `json:"user"`
	Message string `json:"message"`
	Time    int64  `json:"time"`
}

// HistoryResponse lists the retained history of a room, oldest first.
type HistoryResponse struct {
	Room     string            `json:"room"`
	Messages []MessageResponse `json:"messages"`
}

// RoomHandlers serves the read-only room API.
type RoomHandlers struct {
	registry *core.Registry
	history  store.HistoryStore
	log      *zerolog.Logger
}

// NewRoomHandlers creates room handlers. A nil history store serves empty history.
func NewRoomHandlers(registry *core.Registry, history store.HistoryStore, logger *zerolog.Logger) *RoomHandlers {
	return &RoomHandlers{
		registry: registry,
		history:  history,
		log:      logger,
	}
}

// ListRooms returns every live room with its member count.
// GET /api/rooms
func (h *RoomHandlers) ListRooms(c *gin.Context) {
	infos := h.registry.Rooms()
	resp := RoomsResponse{Rooms: make([]RoomResponse, 0, len(infos))}
	for _, info := range infos {
		resp.Rooms = append(resp.Rooms, RoomResponse{Name: info.Name, Members: info.Members})
	}
	c.JSON(stdhttp.StatusOK, resp)
}

// GetRoom returns the roster of a live room.
// GET /api/rooms/:room
func (h *RoomHandlers) GetRoom(c *gin.Context) {
	room := c.Param("room")
	users := h.registry.Usernames(room)
	if len(users) == 0 {
		c.JSON(stdhttp.StatusNotFound, ErrorResponse{Error: "room not found"})
		return
	}

	c.JSON(stdhttp.StatusOK, RoomResponse{
		Name:    room,
		Members: len(users),
		Users:   users,
	})
}

// GetHistory returns the retained messages of a room.
// GET /api/rooms/:room/history
func (h *RoomHandlers) GetHistory(c *gin.Context) {
	room := c.Param("room")
	resp := HistoryResponse{Room: room, Messages: []MessageResponse{}}

	if h.history == nil {
		c.JSON(stdhttp.StatusOK, resp)
		return
	}

	records, err := h.history.LoadRecent(c.Request.Context(), room)
	if err != nil {
		h.log.Error().Err(err).Str("room", room).Msg("failed to load history")
		c.JSON(stdhttp.StatusInternalServerError, ErrorResponse{Error: "failed to load history"})
		return
	}

	for _, rec := range records {
		resp.Messages = append(resp.Messages, MessageResponse{
			User:    rec.Username,
			Message: rec.Body,
			Time:    rec.SentAt,
		})
	}
	c.JSON(stdhttp.StatusOK, resp)
}

// UserResponse describes a user the relay has seen.
type UserResponse struct {
	Username  string `json:"username"`
	FirstSeen int64  `json:"first_seen"`
	LastSeen  int64  `json:"last_seen"`
	Room      string `json:"room,omitempty"`
}

// UserHandlers serves user lookups.
type UserHandlers struct {
	users    store.UserStore
	registry *core.Registry
	log      *zerolog.Logger
}

// NewUserHandlers creates user handlers. A nil user store reports every user as unknown.
func NewUserHandlers(users store.UserStore, registry *core.Registry, logger *zerolog.Logger) *UserHandlers {
	return &UserHandlers{
		users:    users,
		registry: registry,
		log:      logger,
	}
}

// GetUser returns first and last sighting of a username, plus its live room if any.
// GET /api/users/:username
func (h *UserHandlers) GetUser(c *gin.Context) {
	username := c.Param("username")
	if h.users == nil {
		c.JSON(stdhttp.StatusNotFound, ErrorResponse{Error: "user not found"})
		return
	}

	user, err := h.users.GetUser(c.Request.Context(), username)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			c.JSON(stdhttp.StatusNotFound, ErrorResponse{Error: "user not found"})
			return
		}
		h.log.Error().Err(err).Str("user", username).Msg("failed to load user")
		c.JSON(stdhttp.StatusInternalServerError, ErrorResponse{Error: "failed to load user"})
		return
	}

	c.JSON(stdhttp.StatusOK, UserResponse{
		Username:  user.Username,
		FirstSeen: user.FirstSeen.UnixMilli(),
		LastSeen:  user.LastSeen.UnixMilli(),
		Room:      h.liveRoom(user.Username),
	})
}

// liveRoom returns the room a member named username is in, or "".
func (h *UserHandlers) liveRoom(username string) string {
	for _, info := range h.registry.Rooms() {
		for _, name := range h.registry.Usernames(info.Name) {
			if name == username {
				return info.Name
			}
		}
	}
	return ""
}

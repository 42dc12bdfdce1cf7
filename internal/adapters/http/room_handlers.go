package http

import (
	"fmt"
	"net/http"

	"github.com/dkeye/CodeRoom/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

type createRoomRequest struct {
	Name string `json:"name" binding:"required"`
}

// roomView is a stored room plus how many connections are in it right now.
type roomView struct {
	domain.Room
	ActiveMembers int `json:"activeMembers"`
}

func (h *api) view(r domain.Room) roomView {
	v := roomView{Room: r}
	if live, ok := h.Orch.Rooms.Get(r.ID); ok {
		v.ActiveMembers = live.MemberCount()
	}
	return v
}

func (h *api) createRoom(c *gin.Context) {
	var req createRoomRequest
	if !bindJSON(c, &req) {
		return
	}
	room, err := domain.NewRoom(req.Name, currentUser(c).ID)
	if err != nil {
		writeError(c, err)
		return
	}
	if err := h.Store.CreateRoom(c.Request.Context(), room); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, h.view(*room))
}

func (h *api) listRooms(c *gin.Context) {
	rooms, err := h.Store.ListRoomsByUser(c.Request.Context(), currentUser(c).ID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rooms": lo.Map(rooms, func(r domain.Room, _ int) roomView { return h.view(r) })})
}

func (h *api) getRoom(c *gin.Context) {
	room, err := h.Store.GetRoom(c.Request.Context(), domain.RoomID(c.Param("id")))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.view(*room))
}

func (h *api) roomPresence(c *gin.Context) {
	id := domain.RoomID(c.Param("id"))
	snap := h.Orch.Presence.Snapshot(id)
	c.JSON(http.StatusOK, gin.H{"roomId": id, "members": snap.Members()})
}

func (h *api) liveRooms(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"rooms": h.Orch.Rooms.List()})
}

// evictRoom closes the live channel of a room; only its creator may do so.
func (h *api) evictRoom(c *gin.Context) {
	room, err := h.Store.GetRoom(c.Request.Context(), domain.RoomID(c.Param("id")))
	if err != nil {
		writeError(c, err)
		return
	}
	me := currentUser(c)
	if room.CreatedBy != me.ID {
		writeError(c, fmt.Errorf("%w: only the room creator can close it", errForbidden))
		return
	}
	h.Orch.EvictRoom(room.ID)
	log.Info().Str("module", "adapters.http").Str("room", string(room.ID)).Str("user", string(me.ID)).Msg("room evicted")
	c.Status(http.StatusNoContent)
}

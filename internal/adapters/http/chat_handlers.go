package http

import (
	"net/http"

	"github.com/dkeye/CodeRoom/internal/domain"
	"github.com/gin-gonic/gin"
)

type postChatRequest struct {
	RoomID  string `json:"roomId" binding:"required"`
	Message string `json:"message" binding:"required,max=4000"`
}

// postChat stores a message. Fan-out to the room happens over the socket.
func (h *api) postChat(c *gin.Context) {
	var req postChatRequest
	if !bindJSON(c, &req) {
		return
	}
	ctx := c.Request.Context()
	if _, err := h.Store.GetRoom(ctx, domain.RoomID(req.RoomID)); err != nil {
		writeError(c, err)
		return
	}
	msg, err := domain.NewChatMessage(domain.RoomID(req.RoomID), currentUser(c).ID, req.Message)
	if err != nil {
		writeError(c, err)
		return
	}
	if err := h.Store.CreateChatMessage(ctx, msg); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

func (h *api) listChat(c *gin.Context) {
	msgs, err := h.Store.ListChatMessages(c.Request.Context(), domain.RoomID(c.Param("roomId")))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

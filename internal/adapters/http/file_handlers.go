package http

import (
	"net/http"

	"github.com/dkeye/CodeRoom/internal/domain"
	"github.com/gin-gonic/gin"
)

type createFileRequest struct {
	Name     string `json:"name" binding:"required,max=255"`
	RoomID   string `json:"roomId" binding:"required"`
	Content  string `json:"content"`
	Language string `json:"language" binding:"max=32"`
}

type updateFileRequest struct {
	Content *string `json:"content" binding:"required"`
}

func (h *api) createFile(c *gin.Context) {
	var req createFileRequest
	if !bindJSON(c, &req) {
		return
	}
	ctx := c.Request.Context()
	if _, err := h.Store.GetRoom(ctx, domain.RoomID(req.RoomID)); err != nil {
		writeError(c, err)
		return
	}
	f, err := domain.NewFile(domain.RoomID(req.RoomID), req.Name, req.Content, req.Language)
	if err != nil {
		writeError(c, err)
		return
	}
	if err := h.Store.CreateFile(ctx, f); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, f)
}

func (h *api) listFiles(c *gin.Context) {
	files, err := h.Store.ListFilesByRoom(c.Request.Context(), domain.RoomID(c.Param("roomId")))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"files": files})
}

func (h *api) getFile(c *gin.Context) {
	f, err := h.Store.GetFile(c.Request.Context(), domain.FileID(c.Param("id")))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, f)
}

func (h *api) updateFile(c *gin.Context) {
	var req updateFileRequest
	if !bindJSON(c, &req) {
		return
	}
	f, err := h.Store.UpdateFileContent(c.Request.Context(), domain.FileID(c.Param("id")), *req.Content)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, f)
}

func (h *api) deleteFile(c *gin.Context) {
	if err := h.Store.DeleteFile(c.Request.Context(), domain.FileID(c.Param("id"))); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

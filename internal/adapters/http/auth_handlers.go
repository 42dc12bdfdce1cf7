package http

import (
	"errors"
	"net/http"

	"github.com/dkeye/CodeRoom/internal/auth"
	"github.com/dkeye/CodeRoom/internal/domain"
	"github.com/dkeye/CodeRoom/internal/storage"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const userKey = "user"

func (h *api) requireAuth(c *gin.Context) {
	u, err := h.Gate.ResolveIdentity(c)
	if err != nil {
		writeError(c, err)
		return
	}
	c.Set(userKey, u)
	c.Next()
}

func currentUser(c *gin.Context) *domain.User {
	u, _ := c.MustGet(userKey).(*domain.User)
	return u
}

type registerRequest struct {
	Username string `json:"username" binding:"required,max=36"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6,max=72"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type authResponse struct {
	User  domain.User `json:"user"`
	Token string      `json:"token"`
}

func (h *api) register(c *gin.Context) {
	var req registerRequest
	if !bindJSON(c, &req) {
		return
	}
	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		writeError(c, err)
		return
	}
	u, err := domain.NewUser(req.Username, req.Email, hash)
	if err != nil {
		writeError(c, err)
		return
	}
	if err := h.Store.CreateUser(c.Request.Context(), u); err != nil {
		writeError(c, err)
		return
	}
	log.Info().Str("module", "adapters.http").Str("user", string(u.ID)).Msg("user registered")
	h.startSession(c, http.StatusCreated, u)
}

func (h *api) login(c *gin.Context) {
	var req loginRequest
	if !bindJSON(c, &req) {
		return
	}
	u, err := h.Store.GetUserByEmail(c.Request.Context(), req.Email)
	if errors.Is(err, storage.ErrNotFound) {
		err = auth.ErrInvalidCredentials
	}
	if err == nil {
		err = auth.CheckPassword(u.PasswordHash, req.Password)
	}
	if err != nil {
		writeError(c, err)
		return
	}
	h.startSession(c, http.StatusOK, u)
}

func (h *api) startSession(c *gin.Context, status int, u *domain.User) {
	token, err := h.Tokens.Issue(u.ID)
	if err != nil {
		writeError(c, err)
		return
	}
	if err := auth.StartSession(c, u.ID); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(status, authResponse{User: u.Public(), Token: token})
}

func (h *api) logout(c *gin.Context) {
	if err := auth.EndSession(c); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
}

func (h *api) me(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"user": currentUser(c).Public()})
}

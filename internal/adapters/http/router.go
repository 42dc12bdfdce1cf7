// Package http exposes the REST API, the static UI and the WebSocket
// endpoint on one gin engine.
package http

import (
	"context"

	"github.com/dkeye/CodeRoom/internal/adapters/signal"
	"github.com/dkeye/CodeRoom/internal/app/orch"
	"github.com/dkeye/CodeRoom/internal/auth"
	"github.com/dkeye/CodeRoom/internal/config"
	"github.com/dkeye/CodeRoom/internal/storage"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type Deps struct {
	Orch   *orch.Orchestrator
	Store  storage.Store
	Gate   auth.Gate
	Tokens *auth.TokenIssuer
	Signal *signal.SignalWSController
}

type api struct {
	Deps
}

func SetupRouter(ctx context.Context, cfg *config.Config, deps Deps) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   int(cfg.TokenTTL.Seconds()),
		HttpOnly: true,
		Secure:   cfg.Mode == "release",
	})
	r.Use(sessions.Sessions(auth.SessionName, store))

	if cfg.StaticPath != "" {
		r.Static("/static", cfg.StaticPath)
		r.GET("/", func(c *gin.Context) {
			c.File(cfg.StaticPath + "/index.html")
		})
	}

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")

	h := &api{Deps: deps}
	apiGroup := r.Group("/api")

	apiGroup.GET("/ws", func(c *gin.Context) {
		deps.Signal.HandleSignal(ctx, c)
	})

	authGroup := apiGroup.Group("/auth")
	authGroup.POST("/register", h.register)
	authGroup.POST("/login", h.login)
	authGroup.POST("/logout", h.logout)
	authGroup.GET("/me", h.requireAuth, h.me)

	private := apiGroup.Group("", h.requireAuth)

	private.POST("/rooms", h.createRoom)
	private.GET("/rooms", h.listRooms)
	private.GET("/rooms/:id", h.getRoom)
	private.GET("/rooms/:id/presence", h.roomPresence)

	private.GET("/realtime/rooms", h.liveRooms)
	private.DELETE("/realtime/rooms/:id", h.evictRoom)

	private.POST("/files", h.createFile)
	private.GET("/files/room/:roomId", h.listFiles)
	private.GET("/files/:id", h.getFile)
	private.PUT("/files/:id", h.updateFile)
	private.DELETE("/files/:id", h.deleteFile)

	private.POST("/chat", h.postChat)
	private.GET("/chat/:roomId", h.listChat)

	return r
}

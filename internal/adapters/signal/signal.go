// Package signal is the WebSocket transport: one bounded send queue and a
// read/write pump pair per connection.
package signal

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/dkeye/CodeRoom/internal/app/orch"
	"github.com/dkeye/CodeRoom/internal/auth"
	"github.com/dkeye/CodeRoom/internal/core"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

type Options struct {
	ReadLimit      int64
	PingPeriod     time.Duration
	IdleTimeout    time.Duration
	WriteWait      time.Duration
	SendQueueSize  int
	AllowedOrigins []string
}

func (o Options) withDefaults() Options {
	if o.ReadLimit <= 0 {
		o.ReadLimit = 512 * 1024
	}
	if o.PingPeriod <= 0 {
		o.PingPeriod = 30 * time.Second
	}
	if o.IdleTimeout <= o.PingPeriod {
		o.IdleTimeout = 2 * o.PingPeriod
	}
	if o.WriteWait <= 0 {
		o.WriteWait = 5 * time.Second
	}
	if o.SendQueueSize <= 0 {
		o.SendQueueSize = 64
	}
	return o
}

type SignalWSController struct {
	Orch    *orch.Orchestrator
	Gate    auth.Gate
	Limiter *RateLimiter

	opts     Options
	upgrader websocket.Upgrader
}

// NewSignalWSController builds the handler for the socket endpoint. A nil
// limiter disables rate limiting.
func NewSignalWSController(o *orch.Orchestrator, gate auth.Gate, limiter *RateLimiter, opts Options) *SignalWSController {
	opts = opts.withDefaults()
	return &SignalWSController{
		Orch:    o,
		Gate:    gate,
		Limiter: limiter,
		opts:    opts,
		upgrader: websocket.Upgrader{
			CheckOrigin: originChecker(opts.AllowedOrigins),
		},
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 || lo.Contains(allowed, "*") {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		return lo.ContainsBy(allowed, func(a string) bool { return strings.EqualFold(a, origin) })
	}
}

type wsSignalConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func newWsSignalConn(ws *websocket.Conn, queue int) *wsSignalConn {
	return &wsSignalConn{
		conn: ws,
		send: make(chan core.Frame, queue),
	}
}

// TrySend never blocks. A full queue is reported as ErrBackpressure.
func (c *wsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return core.ErrConnectionClosed
	}
	select {
	case c.send <- f:
		return nil
	default:
		return core.ErrBackpressure
	}
}

// Close stops accepting frames and drops whatever is still queued. The write
// pump then sends a close frame and closes the socket.
func (c *wsSignalConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
drain:
	for {
		select {
		case <-c.send:
		default:
			break drain
		}
	}
	close(c.send)
}

func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	user, err := ctl.Gate.ResolveIdentity(c)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, core.ErrUnauthenticated) {
			status = http.StatusUnauthorized
		}
		log.Warn().Err(err).Str("module", "signal").Str("remote", c.ClientIP()).Msg("ws handshake rejected")
		c.AbortWithStatusJSON(status, gin.H{"code": core.ErrorCode(err), "error": err.Error()})
		return
	}

	ws, err := ctl.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}

	conn := newWsSignalConn(ws, ctl.opts.SendQueueSize)
	id, err := ctl.Orch.Connect(conn, user)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Str("user", string(user.ID)).Msg("connect")
		_ = ws.Close()
		return
	}
	log.Info().Str("module", "signal").Str("conn", string(id)).Str("user", string(user.ID)).Msg("new WS connection")

	ctx, cancel := context.WithCancel(ctx)
	go ctl.writePump(ctx, id, conn)
	go ctl.readPump(ctx, cancel, id, conn)
}

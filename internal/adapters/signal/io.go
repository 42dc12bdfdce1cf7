package signal

import (
	"context"
	"errors"
	"time"

	"github.com/dkeye/CodeRoom/internal/core"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) writePump(ctx context.Context, id core.ConnectionID, c *wsSignalConn) {
	ticker := time.NewTicker(ctl.opts.PingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Str("conn", string(id)).Msg("writePump ctx done")
			return
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(ctl.opts.WriteWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Str("conn", string(id)).Msg("writePump write error")
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(ctl.opts.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().Err(err).Str("module", "signal").Str("conn", string(id)).Msg("writePump ping error")
				return
			}
		}
	}
}

func (ctl *SignalWSController) readPump(ctx context.Context, cancel context.CancelFunc, id core.ConnectionID, c *wsSignalConn) {
	defer func() {
		log.Info().Str("module", "signal").Str("conn", string(id)).Msg("readPump closing")
		ctl.Orch.Disconnect(id)
		if ctl.Limiter != nil {
			ctl.Limiter.Forget(id)
		}
		cancel()
	}()

	c.conn.SetReadLimit(ctl.opts.ReadLimit)
	extend := func() error {
		return c.conn.SetReadDeadline(time.Now().Add(ctl.opts.IdleTimeout))
	}
	_ = extend()
	c.conn.SetPongHandler(func(string) error { return extend() })

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Error().Err(err).Str("module", "signal").Str("conn", string(id)).Msg("readPump read error")
			}
			return
		}
		_ = extend()

		if ctl.Limiter != nil && !ctl.Limiter.Allow(id) {
			log.Warn().Str("module", "signal").Str("conn", string(id)).Msg("rate limited")
			_ = c.TrySend(core.ErrorFrame(core.ErrRateLimited))
			continue
		}
		if err := ctl.Orch.Handle(ctx, id, data); errors.Is(err, core.ErrUnknownConnection) {
			return
		}
	}
}

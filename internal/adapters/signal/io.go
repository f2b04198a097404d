package signal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Duet/internal/core"
	"github.com/dkeye/Duet/internal/domain"
)

func (ctl *FeedController) writePump(ctx context.Context, id domain.CallID, c *WsSignalConn, sub core.Subscription) {
	logger := log.With().Str("module", "adapters.signal").Str("call_id", id.String()).Logger()
	ticker := time.NewTicker(ctl.PingPeriod)
	defer func() {
		ticker.Stop()
		sub.Close()
		c.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("writePump ctx done")
			return
		case rec, ok := <-sub.Snapshots():
			if !ok {
				if err := sub.Err(); err != nil {
					logger.Warn().Err(err).Msg("subscription ended")
					ctl.write(c, Message{Type: MessageError, Error: err.Error()})
				}
				_ = c.conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(writeWait))
				return
			}
			if err := ctl.write(c, Message{Type: MessageSnapshot, Record: &rec}); err != nil {
				logger.Error().Err(err).Msg("writePump write error")
				return
			}
		case data, ok := <-c.send:
			if !ok {
				logger.Warn().Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				logger.Error().Err(err).Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				logger.Error().Err(err).Msg("writePump write error")
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				logger.Error().Err(err).Msg("writePump ping error")
				return
			}
		}
	}
}

func (ctl *FeedController) write(c *WsSignalConn, m Message) error {
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (ctl *FeedController) readPump(ctx context.Context, cancel context.CancelFunc, id domain.CallID, c *WsSignalConn) {
	logger := log.With().Str("module", "adapters.signal").Str("call_id", id.String()).Logger()
	defer func() {
		logger.Info().Msg("readPump closing")
		cancel()
	}()

	pongWait := ctl.PingPeriod * 10 / 9
	c.conn.SetReadLimit(ctl.ReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("readPump ctx done")
			return
		default:
		}
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Error().Err(err).Msg("readPump read error")
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		ctl.handleMessage(c, data)
	}
}

func (ctl *FeedController) handleMessage(c *WsSignalConn, data []byte) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		log.Error().Err(err).Str("module", "adapters.signal").Msg("bad json")
		return
	}

	switch env.Type {
	case MessagePing:
		ctl.sendJSON(c, Message{Type: MessagePong})
	default:
		log.Warn().Str("module", "adapters.signal").Str("type", env.Type).Msg("unknown message")
	}
}

func (ctl *FeedController) sendJSON(c *WsSignalConn, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.signal").Msg("sendJSON marshal")
		return
	}
	_ = c.TrySend(b)
}

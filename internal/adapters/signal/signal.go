// Package signal streams call record snapshots over websockets.
package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Duet/internal/core"
	"github.com/dkeye/Duet/internal/domain"
)

var ErrBackpressure = errors.New("backpressure")

const (
	DefaultReadLimit  = 32768
	DefaultPingPeriod = 54 * time.Second
	writeWait         = 5 * time.Second
)

// FeedController serves one websocket per record subscription.
type FeedController struct {
	Store      core.RecordStore
	ReadLimit  int64
	PingPeriod time.Duration
}

func NewFeedController(store core.RecordStore, readLimit int64, pingPeriod time.Duration) *FeedController {
	if readLimit <= 0 {
		readLimit = DefaultReadLimit
	}
	if pingPeriod <= 0 {
		pingPeriod = DefaultPingPeriod
	}
	return &FeedController{Store: store, ReadLimit: readLimit, PingPeriod: pingPeriod}
}

type WsSignalConn struct {
	conn *websocket.Conn
	send chan []byte

	mu     sync.RWMutex
	closed bool
}

func (c *WsSignalConn) TrySend(f []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleFeed subscribes to the record and upgrades the request. Subscription
// errors are returned before the upgrade so the caller can answer with a
// status code.
func (ctl *FeedController) HandleFeed(ctx context.Context, c *gin.Context, id domain.CallID) error {
	ctx, cancel := context.WithCancel(ctx)
	sub, err := ctl.Store.Subscribe(ctx, id)
	if err != nil {
		cancel()
		return err
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		cancel()
		sub.Close()
		log.Error().Err(err).Str("module", "adapters.signal").Msg("ws upgrade")
		return nil
	}
	log.Info().
		Str("module", "adapters.signal").
		Str("call_id", id.String()).
		Str("client", c.GetString("client_token")).
		Msg("new feed connection")

	conn := &WsSignalConn{
		conn: ws,
		send: make(chan []byte, 8),
	}

	go ctl.writePump(ctx, id, conn, sub)
	go ctl.readPump(ctx, cancel, id, conn)
	return nil
}

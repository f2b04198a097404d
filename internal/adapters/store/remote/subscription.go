package remote

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Duet/internal/adapters/signal"
	"github.com/dkeye/Duet/internal/core"
	"github.com/dkeye/Duet/internal/domain"
)

type subscription struct {
	conn   *websocket.Conn
	ch     chan domain.CallRecord
	logger zerolog.Logger

	mu     sync.Mutex
	err    error
	done   bool
	closed bool
	stop   func() bool
}

// Subscribe opens the record feed. The server answers 404 before the upgrade
// for unknown records.
func (c *Client) Subscribe(ctx context.Context, id domain.CallID) (core.Subscription, error) {
	u := *c.base
	u.Scheme = strings.Replace(u.Scheme, "http", "ws", 1)
	u.Path += callPath(id) + "/ws"

	conn, resp, err := c.dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusSwitchingProtocols {
				return nil, responseError(resp)
			}
		}
		return nil, fmt.Errorf("%w: dial feed: %w", domain.ErrStore, err)
	}

	sub := &subscription{
		conn:   conn,
		ch:     make(chan domain.CallRecord, c.buffer),
		logger: log.With().Str("module", "adapters.store").Str("call_id", id.String()).Logger(),
	}
	sub.stop = context.AfterFunc(ctx, sub.shutdown)
	go sub.readLoop()
	return sub, nil
}

func (s *subscription) Snapshots() <-chan domain.CallRecord { return s.ch }

func (s *subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *subscription) Close() {
	s.stop()
	s.shutdown()
}

// shutdown marks the subscription as ended by its owner and closes the socket,
// which ends readLoop.
func (s *subscription) shutdown() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	_ = s.conn.Close()
}

func (s *subscription) readLoop() {
	for {
		var m signal.Message
		if err := s.conn.ReadJSON(&m); err != nil {
			s.finish(fmt.Errorf("%w: feed read: %w", domain.ErrStore, err))
			return
		}
		switch m.Type {
		case signal.MessageSnapshot:
			if m.Record != nil {
				s.push(*m.Record)
			}
		case signal.MessageError:
			s.finish(fmt.Errorf("%w: %s", domain.ErrStore, m.Error))
			_ = s.conn.Close()
			return
		default:
			s.logger.Debug().Str("type", m.Type).Msg("feed message ignored")
		}
	}
}

// push delivers a snapshot, dropping the oldest queued one when the reader
// is behind.
func (s *subscription) push(rec domain.CallRecord) {
	for {
		select {
		case s.ch <- rec:
			return
		default:
		}
		select {
		case <-s.ch:
		default:
		}
	}
}

// finish closes the channel once. The error is kept only when the feed ended
// on its own.
func (s *subscription) finish(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return
	}
	s.done = true
	if !s.closed {
		s.err = err
		s.logger.Warn().Err(err).Msg("feed ended")
	}
	close(s.ch)
}

package call

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Duet/internal/core"
	"github.com/dkeye/Duet/internal/domain"
)

// Engine is the user-facing surface of one peer. It holds at most one
// session at a time.
type Engine struct {
	Store     core.RecordStore
	Media     core.MediaSource
	Transport core.TransportFactory

	mu       sync.Mutex
	sess     *Session
	onStatus func(domain.Status)
}

func NewEngine(store core.RecordStore, media core.MediaSource, transport core.TransportFactory) *Engine {
	return &Engine{Store: store, Media: media, Transport: transport}
}

// OnStatusChange registers a callback for every status transition. It is
// invoked from whichever goroutine caused the transition.
func (e *Engine) OnStatusChange(fn func(domain.Status)) {
	e.mu.Lock()
	e.onStatus = fn
	e.mu.Unlock()
}

func (e *Engine) notify(st domain.Status) {
	e.mu.Lock()
	fn := e.onStatus
	e.mu.Unlock()
	if fn != nil {
		fn(st)
	}
}

// StartMedia acquires local tracks, builds a transport and attaches the
// tracks to it. The session starts idle.
func (e *Engine) StartMedia(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sess != nil {
		return domain.ErrSessionActive
	}

	tracks, err := e.Media.Acquire(ctx)
	if err != nil {
		if !errors.Is(err, domain.ErrMediaAcquisition) {
			err = fmt.Errorf("%w: %w", domain.ErrMediaAcquisition, err)
		}
		log.Error().Str("module", "app.call").Err(err).Msg("start media")
		return err
	}
	release := func() {
		for _, t := range tracks {
			t.Stop()
		}
	}

	transport, err := e.Transport()
	if err != nil {
		release()
		return fmt.Errorf("new transport: %w", err)
	}
	for _, t := range tracks {
		if err := transport.AddLocalTrack(t.Track()); err != nil {
			_ = transport.Close()
			release()
			return fmt.Errorf("add %s track: %w", t.Kind(), err)
		}
	}

	e.sess = newSession(e.Store, transport, tracks, e.notify)
	log.Info().Str("module", "app.call").Int("tracks", len(tracks)).Msg("media started")
	return nil
}

func (e *Engine) session() (*Session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sess == nil {
		return nil, domain.ErrNoSession
	}
	return e.sess, nil
}

func (e *Engine) CreateCall(ctx context.Context) (domain.CallID, error) {
	s, err := e.session()
	if err != nil {
		return "", err
	}
	return s.CreateCall(ctx)
}

func (e *Engine) JoinCall(ctx context.Context, id domain.CallID) error {
	if id == "" {
		return fmt.Errorf("%w: empty call id", domain.ErrRecordNotFound)
	}
	s, err := e.session()
	if err != nil {
		return err
	}
	return s.JoinCall(ctx, id)
}

func (e *Engine) Answer(ctx context.Context) error {
	s, err := e.session()
	if err != nil {
		return err
	}
	return s.Answer(ctx)
}

func (e *Engine) SetMuted(kind string, muted bool) error {
	s, err := e.session()
	if err != nil {
		return err
	}
	return s.SetMuted(kind, muted)
}

// Hangup tears down the current session, if any. Calling it with no session
// is a no-op.
func (e *Engine) Hangup() {
	e.mu.Lock()
	s := e.sess
	e.sess = nil
	e.mu.Unlock()
	if s != nil {
		s.Hangup()
	}
}

func (e *Engine) Status() domain.Status {
	s, err := e.session()
	if err != nil {
		return domain.StatusIdle
	}
	return s.Status()
}

func (e *Engine) Role() domain.Role {
	s, err := e.session()
	if err != nil {
		return domain.RoleUnset
	}
	return s.Role()
}

func (e *Engine) CallID() domain.CallID {
	s, err := e.session()
	if err != nil {
		return ""
	}
	return s.CallID()
}

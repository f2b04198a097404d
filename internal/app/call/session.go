// Package call drives one peer's side of a call through the shared record.
package call

import (
	"context"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Duet/internal/core"
	"github.com/dkeye/Duet/internal/domain"
)

// Session is the per-peer negotiation state. It owns the transport and the
// local tracks from StartMedia until teardown.
type Session struct {
	store     core.RecordStore
	transport core.Transport
	tracks    []core.LocalTrack
	notify    func(domain.Status)

	ctx    context.Context
	cancel context.CancelFunc

	// step admits one negotiation step at a time.
	step chan struct{}

	mu       sync.Mutex
	logger   zerolog.Logger
	role     domain.Role
	status   domain.Status
	callID   domain.CallID
	sub      core.Subscription
	answered bool
	released bool
	deferred *domain.CallRecord

	applied    map[string]struct{}
	pending    []string
	pendingSet map[string]struct{}
	rejected   map[string]struct{}
}

func newSession(store core.RecordStore, transport core.Transport, tracks []core.LocalTrack, notify func(domain.Status)) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		store:      store,
		transport:  transport,
		tracks:     tracks,
		notify:     notify,
		ctx:        ctx,
		cancel:     cancel,
		step:       make(chan struct{}, 1),
		logger:     log.With().Str("module", "app.call").Logger(),
		status:     domain.StatusIdle,
		applied:    make(map[string]struct{}),
		pendingSet: make(map[string]struct{}),
		rejected:   make(map[string]struct{}),
	}
	transport.OnICECandidate(s.onLocalCandidate)
	transport.OnConnectionStateChange(s.onConnectionState)
	return s
}

func (s *Session) Status() domain.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Session) Role() domain.Role {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.role
}

func (s *Session) CallID() domain.CallID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.callID
}

// CreateCall makes this peer the caller: it creates a record, publishes the
// local offer and starts following the record.
func (s *Session) CreateCall(ctx context.Context) (domain.CallID, error) {
	if err := s.beginStep(ctx); err != nil {
		return "", err
	}
	defer s.endStep()

	if err := s.claimRole(domain.RoleCaller); err != nil {
		return "", err
	}
	s.setStatus(domain.StatusInitializing)

	id, err := s.store.CreateRecord(ctx)
	if err != nil {
		return "", s.storeFailure("create record", err)
	}
	s.setCallID(id)

	offer, err := s.transport.CreateOffer()
	if err != nil {
		return "", s.transportFailure("create offer", err)
	}
	if err := s.transport.SetLocalDescription(offer); err != nil {
		return "", s.transportFailure("set local offer", err)
	}
	if err := s.store.SetOffer(ctx, id, fromPion(offer)); err != nil {
		return "", s.storeFailure("publish offer", err)
	}
	s.setStatus(domain.StatusHaveLocalOffer)

	if err := s.follow(id); err != nil {
		return "", s.storeFailure("subscribe", err)
	}
	s.log().Info().Msg("call created")
	return id, nil
}

// JoinCall makes this peer the answerer for an existing record. The offer is
// applied once a snapshot carrying it arrives.
func (s *Session) JoinCall(ctx context.Context, id domain.CallID) error {
	if err := s.beginStep(ctx); err != nil {
		return err
	}
	defer s.endStep()

	if err := s.claimRole(domain.RoleAnswerer); err != nil {
		return err
	}
	s.setStatus(domain.StatusInitializing)
	s.setCallID(id)

	if err := s.follow(id); err != nil {
		return s.storeFailure("subscribe", err)
	}
	s.log().Info().Msg("joined call")
	return nil
}

// Answer publishes the local answer to the applied remote offer. A second
// call after a successful answer is a no-op.
func (s *Session) Answer(ctx context.Context) error {
	if err := s.beginStep(ctx); err != nil {
		return err
	}
	defer s.endStep()

	s.mu.Lock()
	released, role, answered, id := s.released, s.role, s.answered, s.callID
	s.mu.Unlock()
	switch {
	case released:
		return domain.ErrSessionFailed
	case answered:
		return nil
	case role != domain.RoleAnswerer:
		return domain.ErrNoRemoteOffer
	}
	if s.transport.SignalingState() != webrtc.SignalingStateHaveRemoteOffer {
		return domain.ErrNoRemoteOffer
	}

	answer, err := s.transport.CreateAnswer()
	if err != nil {
		return s.transportFailure("create answer", err)
	}
	if err := s.transport.SetLocalDescription(answer); err != nil {
		if isSignalingState(err) {
			s.log().Debug().Err(err).Msg("local answer skipped")
			return nil
		}
		return s.transportFailure("set local answer", err)
	}
	if err := s.store.SetAnswer(ctx, id, fromPion(answer)); err != nil {
		return s.storeFailure("publish answer", err)
	}

	s.mu.Lock()
	s.answered = true
	s.mu.Unlock()
	s.setStatus(domain.StatusConnected)
	s.log().Info().Msg("answer published")
	return nil
}

// SetMuted mutes or unmutes the local tracks of kind, or every track when kind
// is empty.
func (s *Session) SetMuted(kind string, muted bool) error {
	if s.isReleased() {
		return domain.ErrSessionFailed
	}
	n := 0
	for _, t := range s.tracks {
		if kind == "" || t.Kind() == kind {
			t.SetMuted(muted)
			n++
		}
	}
	if n == 0 {
		return fmt.Errorf("%w: %q", domain.ErrNoTrack, kind)
	}
	s.log().Info().Str("kind", kind).Bool("muted", muted).Msg("local media muted")
	return nil
}

// Hangup releases everything the session holds and resets it to idle.
func (s *Session) Hangup() {
	s.teardown(domain.StatusIdle)
}

func (s *Session) claimRole(role domain.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return domain.ErrSessionFailed
	}
	if s.role != domain.RoleUnset {
		return fmt.Errorf("%w: %s", domain.ErrRoleAlreadySet, s.role)
	}
	s.role = role
	s.logger = s.logger.With().Str("role", role.String()).Logger()
	return nil
}

func (s *Session) setCallID(id domain.CallID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callID = id
	s.logger = s.logger.With().Str("call_id", id.String()).Logger()
}

// follow subscribes to the record for the lifetime of the session.
func (s *Session) follow(id domain.CallID) error {
	sub, err := s.store.Subscribe(s.ctx, id)
	if err != nil {
		return err
	}
	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		sub.Close()
		return domain.ErrSessionFailed
	}
	s.sub = sub
	s.mu.Unlock()

	go s.watch(sub)
	return nil
}

func (s *Session) watch(sub core.Subscription) {
	for rec := range sub.Snapshots() {
		s.HandleSnapshot(rec)
	}
	if err := sub.Err(); err != nil && s.ctx.Err() == nil {
		s.log().Error().Err(err).Msg("record subscription lost")
		s.teardown(domain.StatusFailed)
	}
}

// setStatus records a transition and reports whether it changed anything.
// A released session only changes status through teardown.
func (s *Session) setStatus(st domain.Status) bool {
	s.mu.Lock()
	if s.released || s.status == st {
		s.mu.Unlock()
		return false
	}
	prev := s.status
	s.status = st
	logger := s.logger
	s.mu.Unlock()

	logger.Debug().Stringer("from", prev).Stringer("to", st).Msg("status")
	if s.notify != nil {
		s.notify(st)
	}
	return true
}

func (s *Session) storeFailure(op string, err error) error {
	if s.isReleased() {
		return fmt.Errorf("%s: %w", op, domain.ErrSessionFailed)
	}
	s.log().Error().Err(err).Str("op", op).Msg("record store failure")
	s.teardown(domain.StatusFailed)
	return fmt.Errorf("%s: %w", op, asStoreError(err))
}

func (s *Session) transportFailure(op string, err error) error {
	if s.isReleased() {
		return fmt.Errorf("%s: %w", op, domain.ErrSessionFailed)
	}
	s.log().Error().Err(err).Str("op", op).Msg("transport failure")
	s.teardown(domain.StatusFailed)
	return fmt.Errorf("%s: %w", op, err)
}

// isReleased reports whether teardown already ran. Steps that resume after a
// hangup see their calls fail and must not report that as a new failure.
func (s *Session) isReleased() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.released
}

package call

import (
	"context"
	"errors"
	"fmt"

	"github.com/pion/webrtc/v4"

	"github.com/dkeye/Duet/internal/domain"
)

// beginStep blocks until no other step is running.
func (s *Session) beginStep(ctx context.Context) error {
	select {
	case s.step <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// endStep runs any snapshot that arrived while the step was busy, then
// releases the guard.
func (s *Session) endStep() {
	for {
		s.mu.Lock()
		rec := s.deferred
		s.deferred = nil
		if rec == nil {
			<-s.step
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()
		s.applySnapshot(*rec)
	}
}

// HandleSnapshot processes one delivery of the shared record. When another
// step is running the snapshot is kept and processed once that step ends;
// only the newest kept snapshot matters since records only grow.
func (s *Session) HandleSnapshot(rec domain.CallRecord) {
	s.mu.Lock()
	select {
	case s.step <- struct{}{}:
	default:
		s.deferred = &rec
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	s.applySnapshot(rec)
	s.endStep()
}

func (s *Session) applySnapshot(rec domain.CallRecord) {
	s.mu.Lock()
	released, role, id := s.released, s.role, s.callID
	s.mu.Unlock()
	if released || role == domain.RoleUnset || rec.ID != id {
		return
	}

	s.applyRemoteDescription(role, rec)
	s.syncRemoteCandidates(rec.RemoteCandidates(role))
}

// applyRemoteDescription applies the peer's description when the transport
// is in the state that expects it. Redelivered snapshots fall through the
// state checks without touching the transport.
func (s *Session) applyRemoteDescription(role domain.Role, rec domain.CallRecord) {
	var (
		desc *domain.SessionDescription
		next domain.Status
	)
	switch role {
	case domain.RoleCaller:
		if rec.Answer == nil || s.transport.SignalingState() != webrtc.SignalingStateHaveLocalOffer {
			return
		}
		desc, next = rec.Answer, domain.StatusConnected
	case domain.RoleAnswerer:
		if rec.Offer == nil || s.transport.SignalingState() != webrtc.SignalingStateStable || s.transport.RemoteDescription() != nil {
			return
		}
		desc, next = rec.Offer, domain.StatusHaveRemoteOffer
	default:
		return
	}

	if s.wasRejected(desc.SDP) {
		return
	}
	remote, err := toPion(*desc)
	if err == nil {
		err = s.transport.SetRemoteDescription(remote)
	}
	if err != nil {
		s.markRejected(desc.SDP)
		if isSignalingState(err) {
			s.log().Debug().Err(err).Str("type", desc.Type).Msg("remote description skipped")
		} else {
			s.log().Warn().Err(err).Str("type", desc.Type).Msg("remote description rejected")
		}
		return
	}

	s.log().Info().Str("type", desc.Type).Msg("remote description applied")
	s.setStatus(next)
	s.flushPending()
}

func (s *Session) wasRejected(sdp string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.rejected[sdp]
	return ok
}

func (s *Session) markRejected(sdp string) {
	s.mu.Lock()
	s.rejected[sdp] = struct{}{}
	s.mu.Unlock()
}

func isSignalingState(err error) bool {
	return errors.Is(err, domain.ErrSignalingState)
}

func asStoreError(err error) error {
	if errors.Is(err, domain.ErrStore) {
		return err
	}
	return fmt.Errorf("%w: %w", domain.ErrStore, err)
}

func fromPion(d webrtc.SessionDescription) domain.SessionDescription {
	return domain.SessionDescription{Type: d.Type.String(), SDP: d.SDP}
}

func toPion(d domain.SessionDescription) (webrtc.SessionDescription, error) {
	var t webrtc.SDPType
	switch d.Type {
	case domain.DescriptionTypeOffer:
		t = webrtc.SDPTypeOffer
	case domain.DescriptionTypeAnswer:
		t = webrtc.SDPTypeAnswer
	default:
		return webrtc.SessionDescription{}, fmt.Errorf("%w: type %q", domain.ErrInvalidDescription, d.Type)
	}
	return webrtc.SessionDescription{Type: t, SDP: d.SDP}, nil
}

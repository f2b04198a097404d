package call

import (
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"

	"github.com/dkeye/Duet/internal/domain"
)

var connectionStatus = map[webrtc.PeerConnectionState]domain.Status{
	webrtc.PeerConnectionStateConnecting:   domain.StatusConnecting,
	webrtc.PeerConnectionStateConnected:    domain.StatusConnected,
	webrtc.PeerConnectionStateDisconnected: domain.StatusDisconnected,
	webrtc.PeerConnectionStateFailed:       domain.StatusFailed,
	webrtc.PeerConnectionStateClosed:       domain.StatusClosed,
}

// statusOf maps a transport connection state to a session status. "new" and
// unknown states have no mapping.
func statusOf(state webrtc.PeerConnectionState) (domain.Status, bool) {
	st, ok := connectionStatus[state]
	return st, ok
}

func (s *Session) onConnectionState(state webrtc.PeerConnectionState) {
	st, ok := statusOf(state)
	if !ok {
		return
	}

	s.mu.Lock()
	released, current := s.released, s.status
	logger := s.logger
	s.mu.Unlock()
	if released {
		return
	}
	logger.Info().Stringer("state", state).Msg("connection state")

	switch {
	case st.Terminal():
		s.teardown(st)
	case st == domain.StatusConnecting && current == domain.StatusConnected:
		// negotiation already completed
	default:
		s.setStatus(st)
	}
}

// teardown releases the transport, the tracks and the subscription once, then
// moves the session to final. On a released session only a reset to idle
// changes the status.
func (s *Session) teardown(final domain.Status) {
	s.mu.Lock()
	if s.released && final != domain.StatusIdle {
		s.mu.Unlock()
		return
	}
	first := !s.released
	s.released = true
	sub := s.sub
	s.sub = nil
	s.role = domain.RoleUnset
	s.answered = false
	s.deferred = nil
	s.pending = nil
	clear(s.pendingSet)
	clear(s.applied)
	clear(s.rejected)
	changed := s.status != final
	s.status = final
	logger := s.logger
	s.mu.Unlock()

	if first {
		s.cancel()
		if sub != nil {
			sub.Close()
		}
		if err := s.transport.Close(); err != nil {
			logger.Warn().Err(err).Msg("transport close")
		}
		for _, t := range s.tracks {
			t.Stop()
		}
		logger.Info().Stringer("status", final).Msg("session released")
	}
	if changed && s.notify != nil {
		s.notify(final)
	}
}

func (s *Session) log() *zerolog.Logger {
	s.mu.Lock()
	defer s.mu.Unlock()
	l := s.logger
	return &l
}

package call

import (
	"errors"

	"github.com/pion/webrtc/v4"

	"github.com/dkeye/Duet/internal/core"
	"github.com/dkeye/Duet/internal/domain"
)

// syncRemoteCandidates applies every remote candidate not applied yet.
// Candidates seen before a remote description exists are buffered in arrival
// order and flushed once the description lands.
func (s *Session) syncRemoteCandidates(remote []string) {
	if s.transport.RemoteDescription() == nil {
		s.mu.Lock()
		for _, c := range remote {
			if _, done := s.applied[c]; done {
				continue
			}
			if _, queued := s.pendingSet[c]; queued {
				continue
			}
			s.pendingSet[c] = struct{}{}
			s.pending = append(s.pending, c)
		}
		s.mu.Unlock()
		return
	}
	s.flushPending()
	for _, c := range remote {
		s.applyCandidate(c)
	}
}

func (s *Session) flushPending() {
	s.mu.Lock()
	queued := s.pending
	s.pending = nil
	clear(s.pendingSet)
	s.mu.Unlock()

	for _, c := range queued {
		s.applyCandidate(c)
	}
}

// applyCandidate hands a candidate to the transport at most once. A candidate
// the transport refuses is still marked applied.
func (s *Session) applyCandidate(raw string) {
	s.mu.Lock()
	if _, done := s.applied[raw]; done {
		s.mu.Unlock()
		return
	}
	s.applied[raw] = struct{}{}
	s.mu.Unlock()

	init, err := core.DecodeCandidate(raw)
	if err == nil {
		err = s.transport.AddICECandidate(init)
	}
	if err != nil {
		ev := s.log().Warn()
		if !errors.Is(err, domain.ErrCandidate) {
			ev = s.log().Error()
		}
		ev.Err(err).Str("candidate", raw).Msg("remote candidate not applied")
		return
	}
	s.log().Debug().Str("candidate", init.Candidate).Msg("remote candidate applied")
}

// onLocalCandidate publishes a gathered local candidate under this peer's
// role. It does not take the step guard.
func (s *Session) onLocalCandidate(init webrtc.ICECandidateInit) {
	encoded, err := core.EncodeCandidate(init)
	if err != nil {
		s.log().Debug().Err(err).Msg("local candidate dropped")
		return
	}

	s.mu.Lock()
	released, role, id := s.released, s.role, s.callID
	s.mu.Unlock()
	if released || role == domain.RoleUnset || id == "" {
		s.log().Debug().Str("candidate", init.Candidate).Msg("local candidate before call, dropped")
		return
	}

	if err := s.store.AppendCandidate(s.ctx, id, role, encoded); err != nil {
		if s.ctx.Err() != nil {
			return
		}
		if errors.Is(err, domain.ErrStoreRejected) {
			// the store is reachable, only this candidate is lost
			s.log().Warn().Err(err).Str("candidate", init.Candidate).Msg("local candidate rejected, dropped")
			return
		}
		_ = s.storeFailure("append candidate", err)
		return
	}
	s.log().Debug().Str("candidate", init.Candidate).Msg("local candidate published")
}

package rtc

import (
	"errors"
	"testing"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/rtcerr"
	"github.com/rs/zerolog"

	"github.com/dkeye/Duet/internal/domain"
)

func TestSignalingError(t *testing.T) {
	if signalingError(nil) != nil {
		t.Fatalf("nil error mapped to non-nil")
	}
	stateErr := &rtcerr.InvalidStateError{Err: webrtc.ErrConnectionClosed}
	if err := signalingError(stateErr); !errors.Is(err, domain.ErrSignalingState) {
		t.Fatalf("InvalidStateError not mapped: %v", err)
	}
	modErr := &rtcerr.InvalidModificationError{Err: errors.New("stable->answer")}
	if err := signalingError(modErr); !errors.Is(err, domain.ErrSignalingState) {
		t.Fatalf("InvalidModificationError not mapped: %v", err)
	}
	other := errors.New("sdp parse")
	if err := signalingError(other); errors.Is(err, domain.ErrSignalingState) {
		t.Fatalf("unrelated error mapped: %v", err)
	}
}

func TestConnection_RejectsOutOfOrderDescriptions(t *testing.T) {
	api, err := NewAPI(zerolog.Disabled, nil)
	if err != nil {
		t.Fatalf("NewAPI: %v", err)
	}
	c, err := NewConnection(api, webrtc.Configuration{})
	if err != nil {
		t.Fatalf("NewConnection: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })

	if _, err := c.CreateAnswer(); !errors.Is(err, domain.ErrSignalingState) {
		t.Fatalf("CreateAnswer without offer: %v", err)
	}
	if c.SignalingState() != webrtc.SignalingStateStable || c.RemoteDescription() != nil {
		t.Fatalf("fresh connection state=%s remote=%v", c.SignalingState(), c.RemoteDescription())
	}

	var init webrtc.ICECandidateInit
	init.Candidate = "candidate:1 1 udp 2130706431 10.0.0.1 5000 typ host"
	if err := c.AddICECandidate(init); !errors.Is(err, domain.ErrCandidate) {
		t.Fatalf("candidate before remote description: %v", err)
	}
}

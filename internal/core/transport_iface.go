package core

import "github.com/pion/webrtc/v4"

// Transport is the local media transport a session negotiates against.
type Transport interface {
	CreateOffer() (webrtc.SessionDescription, error)
	CreateAnswer() (webrtc.SessionDescription, error)
	// SetLocalDescription and SetRemoteDescription fail with
	// domain.ErrSignalingState outside the expected signaling state.
	SetLocalDescription(webrtc.SessionDescription) error
	SetRemoteDescription(webrtc.SessionDescription) error
	// AddICECandidate fails with domain.ErrCandidate when the candidate is
	// malformed or no remote description is set yet.
	AddICECandidate(webrtc.ICECandidateInit) error

	SignalingState() webrtc.SignalingState
	RemoteDescription() *webrtc.SessionDescription

	// AddLocalTrack attaches a local capture track.
	AddLocalTrack(webrtc.TrackLocal) error
	// OnICECandidate sets a callback for newly gathered local candidates.
	OnICECandidate(func(webrtc.ICECandidateInit))
	// OnConnectionStateChange sets a callback for connection state changes.
	OnConnectionStateChange(func(webrtc.PeerConnectionState))
	Close() error
}

// TransportFactory builds a fresh transport for a new session.
type TransportFactory func() (Transport, error)

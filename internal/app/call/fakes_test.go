package call

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/dkeye/Duet/internal/core"
	"github.com/dkeye/Duet/internal/domain"
)

// fakeTransport follows the signaling state machine closely enough for the
// session logic and records every call that could change transport state.
type fakeTransport struct {
	mu          sync.Mutex
	sdp         string
	gathered    []webrtc.ICECandidateInit
	state       webrtc.SignalingState
	remote      *webrtc.SessionDescription
	added       []string
	calls       []string
	closed      bool
	remoteErr   error
	rejectCand  string
	onCandidate func(webrtc.ICECandidateInit)
	onState     func(webrtc.PeerConnectionState)
}

func newFakeTransport(sdp string, gathered ...webrtc.ICECandidateInit) *fakeTransport {
	return &fakeTransport{sdp: sdp, gathered: gathered, state: webrtc.SignalingStateStable}
}

func (f *fakeTransport) record(name string) {
	f.calls = append(f.calls, name)
}

func (f *fakeTransport) CreateOffer() (webrtc.SessionDescription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("CreateOffer")
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: f.sdp}, nil
}

func (f *fakeTransport) CreateAnswer() (webrtc.SessionDescription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("CreateAnswer")
	if f.state != webrtc.SignalingStateHaveRemoteOffer {
		return webrtc.SessionDescription{}, fmt.Errorf("%w: create answer in %s", domain.ErrSignalingState, f.state)
	}
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: f.sdp}, nil
}

func (f *fakeTransport) SetLocalDescription(d webrtc.SessionDescription) error {
	f.mu.Lock()
	f.record("SetLocalDescription")
	switch {
	case d.Type == webrtc.SDPTypeOffer && f.state == webrtc.SignalingStateStable:
		f.state = webrtc.SignalingStateHaveLocalOffer
	case d.Type == webrtc.SDPTypeAnswer && f.state == webrtc.SignalingStateHaveRemoteOffer:
		f.state = webrtc.SignalingStateStable
	default:
		state := f.state
		f.mu.Unlock()
		return fmt.Errorf("%w: local %s in %s", domain.ErrSignalingState, d.Type, state)
	}
	emit, gathered := f.onCandidate, f.gathered
	f.mu.Unlock()

	if emit != nil {
		for _, c := range gathered {
			emit(c)
		}
	}
	return nil
}

func (f *fakeTransport) SetRemoteDescription(d webrtc.SessionDescription) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("SetRemoteDescription")
	if f.remoteErr != nil {
		return f.remoteErr
	}
	switch {
	case d.Type == webrtc.SDPTypeOffer && f.state == webrtc.SignalingStateStable && f.remote == nil:
		f.state = webrtc.SignalingStateHaveRemoteOffer
	case d.Type == webrtc.SDPTypeAnswer && f.state == webrtc.SignalingStateHaveLocalOffer:
		f.state = webrtc.SignalingStateStable
	default:
		return fmt.Errorf("%w: remote %s in %s", domain.ErrSignalingState, d.Type, f.state)
	}
	f.remote = &d
	return nil
}

func (f *fakeTransport) AddICECandidate(c webrtc.ICECandidateInit) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("AddICECandidate")
	if f.remote == nil {
		return fmt.Errorf("%w: no remote description", domain.ErrCandidate)
	}
	if c.Candidate == f.rejectCand {
		return fmt.Errorf("%w: rejected %s", domain.ErrCandidate, c.Candidate)
	}
	f.added = append(f.added, c.Candidate)
	return nil
}

func (f *fakeTransport) SignalingState() webrtc.SignalingState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeTransport) RemoteDescription() *webrtc.SessionDescription {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.remote
}

func (f *fakeTransport) AddLocalTrack(webrtc.TrackLocal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("AddLocalTrack")
	return nil
}

func (f *fakeTransport) OnICECandidate(fn func(webrtc.ICECandidateInit)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onCandidate = fn
}

func (f *fakeTransport) OnConnectionStateChange(fn func(webrtc.PeerConnectionState)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onState = fn
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("Close")
	f.closed = true
	f.state = webrtc.SignalingStateClosed
	return nil
}

func (f *fakeTransport) emitState(state webrtc.PeerConnectionState) {
	f.mu.Lock()
	fn := f.onState
	f.mu.Unlock()
	if fn != nil {
		fn(state)
	}
}

func (f *fakeTransport) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.calls)
}

func (f *fakeTransport) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == name {
			n++
		}
	}
	return n
}

func (f *fakeTransport) addedCandidates() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.added)
}

func (f *fakeTransport) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeTransport) remoteSDP() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.remote == nil {
		return ""
	}
	return f.remote.SDP
}

func (f *fakeTransport) factory() core.TransportFactory {
	return func() (core.Transport, error) { return f, nil }
}

type fakeTrack struct {
	kind    string
	stopped atomic.Bool
	muted   atomic.Bool
}

func (t *fakeTrack) ID() string               { return t.kind + "-0" }
func (t *fakeTrack) Kind() string             { return t.kind }
func (t *fakeTrack) Track() webrtc.TrackLocal { return nil }
func (t *fakeTrack) Stop()                    { t.stopped.Store(true) }
func (t *fakeTrack) SetMuted(muted bool)      { t.muted.Store(muted) }

type fakeMedia struct {
	tracks []*fakeTrack
	err    error
}

func newFakeMedia() *fakeMedia {
	return &fakeMedia{tracks: []*fakeTrack{{kind: "audio"}, {kind: "video"}}}
}

func (m *fakeMedia) Acquire(context.Context) ([]core.LocalTrack, error) {
	if m.err != nil {
		return nil, m.err
	}
	out := make([]core.LocalTrack, 0, len(m.tracks))
	for _, t := range m.tracks {
		out = append(out, t)
	}
	return out, nil
}

func (m *fakeMedia) allStopped() bool {
	for _, t := range m.tracks {
		if !t.stopped.Load() {
			return false
		}
	}
	return true
}

// statusLog collects status notifications.
type statusLog struct {
	mu   sync.Mutex
	seen []domain.Status
}

func (l *statusLog) add(st domain.Status) {
	l.mu.Lock()
	l.seen = append(l.seen, st)
	l.mu.Unlock()
}

func (l *statusLog) all() []domain.Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.seen)
}

func hostCandidate(n int) webrtc.ICECandidateInit {
	mid := "0"
	var idx uint16
	return webrtc.ICECandidateInit{
		Candidate:     fmt.Sprintf("candidate:%d 1 udp 2130706431 10.0.0.%d 5000%d typ host", n, n, n),
		SDPMid:        &mid,
		SDPMLineIndex: &idx,
	}
}

func encoded(t *testing.T, init webrtc.ICECandidateInit) string {
	t.Helper()
	s, err := core.EncodeCandidate(init)
	if err != nil {
		t.Fatalf("EncodeCandidate: %v", err)
	}
	return s
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

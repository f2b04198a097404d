package rtc

import (
	"errors"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/rtcerr"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Duet/internal/core"
	"github.com/dkeye/Duet/internal/domain"
)

func DefaultWebRTCConfig() webrtc.Configuration {
	return Configuration([]string{"stun:stun.l.google.com:19302"})
}

// Configuration builds a peer connection configuration from ICE server URLs.
func Configuration(iceServers []string) webrtc.Configuration {
	cfg := webrtc.Configuration{}
	if len(iceServers) > 0 {
		cfg.ICEServers = []webrtc.ICEServer{{URLs: iceServers}}
	}
	return cfg
}

// Connection adapts a pion PeerConnection to core.Transport.
type Connection struct {
	pc     *webrtc.PeerConnection
	logger zerolog.Logger

	mu      sync.Mutex
	onICE   func(webrtc.ICECandidateInit)
	onState func(webrtc.PeerConnectionState)
}

var _ core.Transport = (*Connection)(nil)

func NewConnection(api *webrtc.API, cfg webrtc.Configuration) (*Connection, error) {
	pc, err := api.NewPeerConnection(cfg)
	if err != nil {
		return nil, err
	}
	c := &Connection{pc: pc, logger: log.With().Str("module", "webrtc").Logger()}

	pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		c.logger.Info().Str("ice_state", s.String()).Msg("ICE state")
	})

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		c.logger.Info().Str("peer_connection_state", s.String()).Msg("Peer state")
		c.mu.Lock()
		fn := c.onState
		c.mu.Unlock()
		if fn != nil {
			fn(s)
		}
	})

	pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		// nil marks the end of gathering
		if cand == nil {
			return
		}
		c.mu.Lock()
		fn := c.onICE
		c.mu.Unlock()
		if fn != nil {
			fn(cand.ToJSON())
		}
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		c.logger.Info().
			Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).
			Str("stream_id", track.StreamID()).
			Msg("OnTrack received")
		go c.drain(track)
	})

	return c, nil
}

// NewTransportFactory returns a factory building one connection per session.
func NewTransportFactory(api *webrtc.API, cfg webrtc.Configuration) core.TransportFactory {
	return func() (core.Transport, error) {
		return NewConnection(api, cfg)
	}
}

// drain consumes a remote track so its receive buffers never fill.
func (c *Connection) drain(track *webrtc.TrackRemote) {
	packets := 0
	for {
		if _, _, err := track.ReadRTP(); err != nil {
			c.logger.Debug().Err(err).Str("track_id", track.ID()).Int("packets", packets).Msg("remote track ended")
			return
		}
		packets++
	}
}

func (c *Connection) CreateOffer() (webrtc.SessionDescription, error) {
	offer, err := c.pc.CreateOffer(nil)
	return offer, signalingError(err)
}

func (c *Connection) CreateAnswer() (webrtc.SessionDescription, error) {
	answer, err := c.pc.CreateAnswer(nil)
	return answer, signalingError(err)
}

func (c *Connection) SetLocalDescription(d webrtc.SessionDescription) error {
	return signalingError(c.pc.SetLocalDescription(d))
}

func (c *Connection) SetRemoteDescription(d webrtc.SessionDescription) error {
	return signalingError(c.pc.SetRemoteDescription(d))
}

func (c *Connection) AddICECandidate(ci webrtc.ICECandidateInit) error {
	if err := c.pc.AddICECandidate(ci); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrCandidate, err)
	}
	return nil
}

func (c *Connection) SignalingState() webrtc.SignalingState {
	return c.pc.SignalingState()
}

func (c *Connection) RemoteDescription() *webrtc.SessionDescription {
	return c.pc.RemoteDescription()
}

func (c *Connection) ConnectionState() webrtc.PeerConnectionState {
	return c.pc.ConnectionState()
}

// AddLocalTrack attaches a local track and drains RTCP from its sender.
func (c *Connection) AddLocalTrack(track webrtc.TrackLocal) error {
	sender, err := c.pc.AddTrack(track)
	if err != nil {
		return err
	}
	go func() {
		buf := make([]byte, 1500)
		for {
			if _, _, err := sender.Read(buf); err != nil {
				return
			}
		}
	}()
	return nil
}

func (c *Connection) OnICECandidate(fn func(webrtc.ICECandidateInit)) {
	c.mu.Lock()
	c.onICE = fn
	c.mu.Unlock()
}

func (c *Connection) OnConnectionStateChange(fn func(webrtc.PeerConnectionState)) {
	c.mu.Lock()
	c.onState = fn
	c.mu.Unlock()
}

func (c *Connection) Close() error {
	if err := c.pc.Close(); err != nil {
		c.logger.Error().Err(err).Msg("close error")
		return err
	}
	c.logger.Info().Msg("closed")
	return nil
}

// signalingError tags errors pion raises for operations attempted in the
// wrong signaling state.
func signalingError(err error) error {
	if err == nil {
		return nil
	}
	var (
		stateErr *rtcerr.InvalidStateError
		modErr   *rtcerr.InvalidModificationError
	)
	if errors.As(err, &stateErr) || errors.As(err, &modErr) {
		return fmt.Errorf("%w: %w", domain.ErrSignalingState, err)
	}
	return err
}

// Package media provides local capture tracks for a call.
package media

import (
	"context"
	"fmt"
	"net"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Duet/internal/core"
	"github.com/dkeye/Duet/internal/domain"
)

type Config struct {
	// AudioRTPAddr and VideoRTPAddr are UDP addresses to ingest RTP from.
	// An empty address yields a silent track.
	AudioRTPAddr string
	VideoRTPAddr string
}

// Source builds one Opus audio and one VP8 video track per acquisition.
type Source struct {
	cfg Config
}

var _ core.MediaSource = (*Source)(nil)

func NewSource(cfg Config) *Source {
	return &Source{cfg: cfg}
}

func (s *Source) Acquire(ctx context.Context) ([]core.LocalTrack, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrMediaAcquisition, err)
	}
	streamID := "duet-" + uuid.NewString()

	wants := []struct {
		kind string
		addr string
		cap  webrtc.RTPCodecCapability
	}{
		{"audio", s.cfg.AudioRTPAddr, webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2}},
		{"video", s.cfg.VideoRTPAddr, webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000}},
	}

	tracks := make([]core.LocalTrack, 0, len(wants))
	release := func() {
		for _, t := range tracks {
			t.Stop()
		}
	}
	for _, want := range wants {
		t, err := s.open(ctx, want.kind, want.addr, want.cap, streamID)
		if err != nil {
			release()
			return nil, fmt.Errorf("%w: %s: %w", domain.ErrMediaAcquisition, want.kind, err)
		}
		tracks = append(tracks, t)
	}
	return tracks, nil
}

func (s *Source) open(ctx context.Context, kind, addr string, codec webrtc.RTPCodecCapability, streamID string) (*Track, error) {
	local, err := webrtc.NewTrackLocalStaticRTP(codec, kind, streamID)
	if err != nil {
		return nil, err
	}
	logger := log.With().
		Str("module", "media").
		Str("kind", kind).
		Str("stream_id", streamID).
		Logger()

	var conn net.PacketConn
	if addr != "" {
		var lc net.ListenConfig
		conn, err = lc.ListenPacket(ctx, "udp", addr)
		if err != nil {
			return nil, err
		}
		logger.Info().Str("addr", conn.LocalAddr().String()).Msg("RTP ingest listening")
	}
	return newTrack(local, kind, conn, logger), nil
}

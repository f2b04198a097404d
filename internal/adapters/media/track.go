package media

import (
	"net"
	"sync"
	"sync/atomic"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"

	"github.com/dkeye/Duet/internal/core"
)

type TrackState int32

const (
	TrackStateLive TrackState = iota
	TrackStateMuted
	TrackStateStopped
)

// Track is a local capture track fed from an optional RTP ingest socket.
type Track struct {
	local *webrtc.TrackLocalStaticRTP
	kind  string

	state   atomic.Int32 // Zero by default (TrackStateLive)
	packets atomic.Uint64

	conn   net.PacketConn
	pumps  conc.WaitGroup
	once   sync.Once
	logger zerolog.Logger
}

var _ core.LocalTrack = (*Track)(nil)

func newTrack(local *webrtc.TrackLocalStaticRTP, kind string, conn net.PacketConn, logger zerolog.Logger) *Track {
	t := &Track{local: local, kind: kind, conn: conn, logger: logger}
	if conn != nil {
		t.pumps.Go(t.pump)
	}
	return t
}

func (t *Track) ID() string               { return t.local.ID() }
func (t *Track) Kind() string             { return t.kind }
func (t *Track) Track() webrtc.TrackLocal { return t.local }

func (t *Track) State() TrackState {
	return TrackState(t.state.Load())
}

// Packets reports how many RTP packets were written to the track.
func (t *Track) Packets() uint64 {
	return t.packets.Load()
}

// Addr is the ingest socket address, or nil when the track has no ingest.
func (t *Track) Addr() net.Addr {
	if t.conn == nil {
		return nil
	}
	return t.conn.LocalAddr()
}

func (t *Track) SetMuted(muted bool) {
	if muted {
		t.state.CompareAndSwap(int32(TrackStateLive), int32(TrackStateMuted))
		return
	}
	t.state.CompareAndSwap(int32(TrackStateMuted), int32(TrackStateLive))
}

// Stop closes the ingest socket and waits for the pump to exit.
func (t *Track) Stop() {
	t.once.Do(func() {
		t.state.Store(int32(TrackStateStopped))
		if t.conn != nil {
			_ = t.conn.Close()
		}
		t.pumps.Wait()
		t.logger.Info().Uint64("packets", t.Packets()).Msg("track stopped")
	})
}

package media

import (
	"errors"
	"net"

	"github.com/pion/rtp"
)

const mtu = 1500

// pump reads RTP from the ingest socket and writes it to the local track
// until the socket closes.
func (t *Track) pump() {
	buf := make([]byte, mtu)
	for {
		n, _, err := t.conn.ReadFrom(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) || t.State() == TrackStateStopped {
				return
			}
			t.logger.Error().Err(err).Msg("ingest read error, stopping")
			return
		}

		switch t.State() {
		case TrackStateStopped:
			return
		case TrackStateMuted:
			continue
		case TrackStateLive:
		}

		var pkt rtp.Packet
		if err := pkt.Unmarshal(buf[:n]); err != nil {
			// not RTP
			continue
		}
		if err := t.local.WriteRTP(&pkt); err != nil {
			t.logger.Error().Err(err).Msg("track write RTP error, stopping")
			return
		}
		t.packets.Add(1)
	}
}

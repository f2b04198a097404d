package media

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/pion/rtp"

	"github.com/dkeye/Duet/internal/domain"
)

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

func sendRTP(t *testing.T, to net.Addr, seq uint16) {
	t.Helper()
	pkt := rtp.Packet{
		Header:  rtp.Header{Version: 2, PayloadType: 111, SequenceNumber: seq, Timestamp: uint32(seq) * 960, SSRC: 42},
		Payload: []byte{0x01, 0x02, 0x03},
	}
	raw, err := pkt.Marshal()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	conn, err := net.Dial("udp", to.String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	if _, err := conn.Write(raw); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestSource_SilentTracks(t *testing.T) {
	tracks, err := NewSource(Config{}).Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if len(tracks) != 2 || tracks[0].Kind() != "audio" || tracks[1].Kind() != "video" {
		t.Fatalf("unexpected tracks %v", tracks)
	}
	for _, tr := range tracks {
		if tr.Track() == nil {
			t.Fatalf("%s track has no local track", tr.Kind())
		}
		tr.Stop()
		tr.Stop()
		if got := tr.(*Track).State(); got != TrackStateStopped {
			t.Fatalf("state = %d", got)
		}
	}
}

func TestSource_IngestPumpsRTP(t *testing.T) {
	tracks, err := NewSource(Config{AudioRTPAddr: "127.0.0.1:0"}).Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	audio := tracks[0].(*Track)
	t.Cleanup(func() {
		for _, tr := range tracks {
			tr.Stop()
		}
	})

	sendRTP(t, audio.Addr(), 1)
	waitFor(t, "first packet", func() bool { return audio.Packets() == 1 })

	audio.SetMuted(true)
	if audio.State() != TrackStateMuted {
		t.Fatalf("state = %d", audio.State())
	}
	sendRTP(t, audio.Addr(), 2)
	time.Sleep(100 * time.Millisecond)

	audio.SetMuted(false)
	sendRTP(t, audio.Addr(), 3)
	waitFor(t, "packet after unmute", func() bool { return audio.Packets() >= 2 })

	audio.Stop()
	if audio.Packets() > 2 {
		t.Fatalf("muted packet was written, packets = %d", audio.Packets())
	}
}

func TestSource_IngestIgnoresNonRTP(t *testing.T) {
	tracks, err := NewSource(Config{VideoRTPAddr: "127.0.0.1:0"}).Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	video := tracks[1].(*Track)
	t.Cleanup(func() {
		for _, tr := range tracks {
			tr.Stop()
		}
	})

	conn, err := net.Dial("udp", video.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	_, _ = conn.Write([]byte("hello"))
	conn.Close()
	sendRTP(t, video.Addr(), 7)

	waitFor(t, "rtp packet", func() bool { return video.Packets() == 1 })
}

func TestSource_BadIngestAddress(t *testing.T) {
	_, err := NewSource(Config{VideoRTPAddr: "not-an-address"}).Acquire(context.Background())
	if !errors.Is(err, domain.ErrMediaAcquisition) {
		t.Fatalf("expected ErrMediaAcquisition, got %v", err)
	}
}

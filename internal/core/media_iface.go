package core

import (
	"context"

	"github.com/pion/webrtc/v4"
)

// LocalTrack is a capture track owned by a session and released on teardown.
type LocalTrack interface {
	ID() string
	Kind() string
	Track() webrtc.TrackLocal
	// SetMuted pauses or resumes sending. A stopped track ignores it.
	SetMuted(muted bool)
	// Stop releases the capture. Safe to call more than once.
	Stop()
}

// MediaSource acquires local capture tracks. It fails with
// domain.ErrMediaAcquisition when capture is unavailable.
type MediaSource interface {
	Acquire(ctx context.Context) ([]LocalTrack, error)
}

package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/pion/ice/v4"
	"github.com/pion/webrtc/v4"

	"github.com/dkeye/Duet/internal/domain"
)

var errEmptyCandidate = errors.New("empty candidate")

// candidateWire fixes the field order of the canonical form.
type candidateWire struct {
	Candidate        string  `json:"candidate"`
	SDPMid           *string `json:"sdpMid,omitempty"`
	SDPMLineIndex    *uint16 `json:"sdpMLineIndex,omitempty"`
	UsernameFragment *string `json:"usernameFragment,omitempty"`
}

// EncodeCandidate serializes a candidate to its canonical string form.
// Equal candidates always encode to equal strings.
func EncodeCandidate(init webrtc.ICECandidateInit) (string, error) {
	if init.Candidate == "" {
		return "", errEmptyCandidate
	}
	b, err := json.Marshal(candidateWire{
		Candidate:        init.Candidate,
		SDPMid:           init.SDPMid,
		SDPMLineIndex:    init.SDPMLineIndex,
		UsernameFragment: init.UsernameFragment,
	})
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// DecodeCandidate parses a canonical candidate string.
func DecodeCandidate(s string) (webrtc.ICECandidateInit, error) {
	var w candidateWire
	if err := json.Unmarshal([]byte(s), &w); err != nil {
		return webrtc.ICECandidateInit{}, fmt.Errorf("%w: %w", domain.ErrCandidate, err)
	}
	if w.Candidate == "" {
		return webrtc.ICECandidateInit{}, fmt.Errorf("%w: %w", domain.ErrCandidate, errEmptyCandidate)
	}
	return webrtc.ICECandidateInit{
		Candidate:        w.Candidate,
		SDPMid:           w.SDPMid,
		SDPMLineIndex:    w.SDPMLineIndex,
		UsernameFragment: w.UsernameFragment,
	}, nil
}

// ValidateCandidate decodes s and checks the candidate attribute grammar.
func ValidateCandidate(s string) error {
	init, err := DecodeCandidate(s)
	if err != nil {
		return err
	}
	if _, err := ice.UnmarshalCandidate(strings.TrimPrefix(init.Candidate, "candidate:")); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrCandidate, err)
	}
	return nil
}

package domain

import "errors"

// Error kinds recognised by the engine.
var (
	ErrSignalingState   = errors.New("description applied outside expected signaling state")
	ErrCandidate        = errors.New("candidate rejected by transport")
	ErrStore            = errors.New("record store unavailable")
	ErrMediaAcquisition = errors.New("local media unavailable")
)

// Store contract errors.
var (
	ErrRecordNotFound     = errors.New("call record not found")
	ErrAnswerBeforeOffer  = errors.New("answer set before offer")
	ErrInvalidRole        = errors.New("invalid role")
	ErrInvalidDescription = errors.New("invalid session description")
	ErrStoreRejected      = errors.New("request rejected by record store")
)

// Engine usage errors.
var (
	ErrNoSession      = errors.New("no active session")
	ErrSessionActive  = errors.New("session already active")
	ErrRoleAlreadySet = errors.New("role already set")
	ErrNoRemoteOffer  = errors.New("no remote offer to answer")
	ErrSessionFailed  = errors.New("session failed")
	ErrNoTrack        = errors.New("no local track of that kind")
)

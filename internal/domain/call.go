// Package domain contains entities without logic, just meta-data
package domain

import (
	"slices"

	"github.com/google/uuid"
)

type CallID string

func NewCallID() CallID {
	return CallID(uuid.NewString())
}

func (id CallID) String() string { return string(id) }

// SessionDescription is the {type, sdp} pair stored in a call record.
type SessionDescription struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

const (
	DescriptionTypeOffer  = "offer"
	DescriptionTypeAnswer = "answer"
)

// CallRecord is the shared record both participants negotiate through.
// Offer and Answer are write-once; candidate lists only grow.
type CallRecord struct {
	ID               CallID              `json:"id"`
	Offer            *SessionDescription `json:"offer,omitempty"`
	Answer           *SessionDescription `json:"answer,omitempty"`
	OfferCandidates  []string            `json:"offerCandidates"`
	AnswerCandidates []string            `json:"answerCandidates"`
}

func NewCallRecord(id CallID) *CallRecord {
	return &CallRecord{
		ID:               id,
		OfferCandidates:  []string{},
		AnswerCandidates: []string{},
	}
}

// Clone returns a deep copy so snapshots never alias store state.
func (r *CallRecord) Clone() CallRecord {
	out := CallRecord{
		ID:               r.ID,
		OfferCandidates:  slices.Clone(r.OfferCandidates),
		AnswerCandidates: slices.Clone(r.AnswerCandidates),
	}
	if out.OfferCandidates == nil {
		out.OfferCandidates = []string{}
	}
	if out.AnswerCandidates == nil {
		out.AnswerCandidates = []string{}
	}
	if r.Offer != nil {
		o := *r.Offer
		out.Offer = &o
	}
	if r.Answer != nil {
		a := *r.Answer
		out.Answer = &a
	}
	return out
}

// CandidatesOf returns the list written by the given role.
func (r *CallRecord) CandidatesOf(role Role) []string {
	switch role {
	case RoleCaller:
		return r.OfferCandidates
	case RoleAnswerer:
		return r.AnswerCandidates
	default:
		return nil
	}
}

// RemoteCandidates returns the list written by the peer of role.
func (r *CallRecord) RemoteCandidates(local Role) []string {
	return r.CandidatesOf(local.Peer())
}

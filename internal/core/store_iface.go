package core

//go:generate mockgen -source=store_iface.go -destination=mock/store_mock.go -package=mock

import (
	"context"

	"github.com/dkeye/Duet/internal/domain"
)

// RecordStore is the shared call-record store.
// Offer and answer writes are write-once per record; a repeated write may be
// ignored or rejected, callers must not depend on which.
type RecordStore interface {
	CreateRecord(ctx context.Context) (domain.CallID, error)
	Get(ctx context.Context, id domain.CallID) (domain.CallRecord, error)
	SetOffer(ctx context.Context, id domain.CallID, desc domain.SessionDescription) error
	SetAnswer(ctx context.Context, id domain.CallID, desc domain.SessionDescription) error
	// AppendCandidate appends to the list owned by role (offerCandidates for
	// the caller, answerCandidates for the answerer).
	AppendCandidate(ctx context.Context, id domain.CallID, role domain.Role, candidate string) error
	// Subscribe starts a snapshot feed for one record. The current snapshot is
	// delivered first; identical snapshots may be redelivered.
	Subscribe(ctx context.Context, id domain.CallID) (Subscription, error)
}

// Subscription is a push feed of immutable record snapshots.
type Subscription interface {
	Snapshots() <-chan domain.CallRecord
	// Err reports why Snapshots was closed. It is nil after Close or context
	// cancellation.
	Err() error
	Close()
}

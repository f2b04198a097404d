// Package memory is an in-process call record store with push subscriptions.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Duet/internal/core"
	"github.com/dkeye/Duet/internal/domain"
)

const DefaultSubscriberBuffer = 16

var errStoreClosed = errors.New("store closed")

type recordEntry struct {
	record *domain.CallRecord
	subs   map[*subscription]struct{}
}

// Store keeps one record per call. Snapshots handed out are deep copies.
type Store struct {
	mu      sync.RWMutex
	records map[domain.CallID]*recordEntry
	policy  WritePolicy
	buffer  int
	closed  bool
}

var _ core.RecordStore = (*Store)(nil)

func NewStore(policy WritePolicy, subscriberBuffer int) *Store {
	if subscriberBuffer <= 0 {
		subscriberBuffer = DefaultSubscriberBuffer
	}
	return &Store{
		records: make(map[domain.CallID]*recordEntry),
		policy:  policy,
		buffer:  subscriberBuffer,
	}
}

func (s *Store) CreateRecord(ctx context.Context) (domain.CallID, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrStore, err)
	}
	id := domain.NewCallID()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", fmt.Errorf("%w: %w", domain.ErrStore, errStoreClosed)
	}
	s.records[id] = &recordEntry{
		record: domain.NewCallRecord(id),
		subs:   make(map[*subscription]struct{}),
	}
	log.Info().Str("module", "adapters.store").Str("call_id", id.String()).Msg("created record")
	return id, nil
}

// Get returns the current snapshot of a record.
func (s *Store) Get(ctx context.Context, id domain.CallID) (domain.CallRecord, error) {
	if err := ctx.Err(); err != nil {
		return domain.CallRecord{}, fmt.Errorf("%w: %w", domain.ErrStore, err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.records[id]
	if !ok {
		return domain.CallRecord{}, domain.ErrRecordNotFound
	}
	return e.record.Clone(), nil
}

func (s *Store) SetOffer(ctx context.Context, id domain.CallID, desc domain.SessionDescription) error {
	return s.update(ctx, id, func(rec *domain.CallRecord) (bool, error) {
		if rec.Offer != nil && !s.policy.allowOverwrite() {
			log.Warn().Str("module", "adapters.store").Str("call_id", id.String()).Msg("offer already set, ignoring write")
			return false, nil
		}
		d := desc
		rec.Offer = &d
		return true, nil
	})
}

func (s *Store) SetAnswer(ctx context.Context, id domain.CallID, desc domain.SessionDescription) error {
	return s.update(ctx, id, func(rec *domain.CallRecord) (bool, error) {
		if rec.Offer == nil {
			return false, domain.ErrAnswerBeforeOffer
		}
		if rec.Answer != nil && !s.policy.allowOverwrite() {
			log.Warn().Str("module", "adapters.store").Str("call_id", id.String()).Msg("answer already set, ignoring write")
			return false, nil
		}
		d := desc
		rec.Answer = &d
		return true, nil
	})
}

func (s *Store) AppendCandidate(ctx context.Context, id domain.CallID, role domain.Role, candidate string) error {
	return s.update(ctx, id, func(rec *domain.CallRecord) (bool, error) {
		switch role {
		case domain.RoleCaller:
			rec.OfferCandidates = append(rec.OfferCandidates, candidate)
		case domain.RoleAnswerer:
			rec.AnswerCandidates = append(rec.AnswerCandidates, candidate)
		default:
			return false, domain.ErrInvalidRole
		}
		return true, nil
	})
}

// update applies fn under the write lock and fans the new snapshot out to
// subscribers when fn reports a change.
func (s *Store) update(ctx context.Context, id domain.CallID, fn func(*domain.CallRecord) (bool, error)) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrStore, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("%w: %w", domain.ErrStore, errStoreClosed)
	}
	e, ok := s.records[id]
	if !ok {
		return domain.ErrRecordNotFound
	}
	changed, err := fn(e.record)
	if err != nil || !changed {
		return err
	}
	snap := e.record.Clone()
	for sub := range e.subs {
		sub.push(snap)
	}
	log.Debug().Str("module", "adapters.store").Str("call_id", id.String()).Int("subscribers", len(e.subs)).Msg("record updated")
	return nil
}

func (s *Store) Subscribe(ctx context.Context, id domain.CallID) (core.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrStore, err)
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %w", domain.ErrStore, errStoreClosed)
	}
	e, ok := s.records[id]
	if !ok {
		s.mu.Unlock()
		return nil, domain.ErrRecordNotFound
	}
	sub := &subscription{
		store: s,
		id:    id,
		ch:    make(chan domain.CallRecord, s.buffer),
	}
	sub.push(e.record.Clone())
	e.subs[sub] = struct{}{}
	s.mu.Unlock()

	sub.stop = context.AfterFunc(ctx, func() { s.unsubscribe(sub) })
	log.Info().Str("module", "adapters.store").Str("call_id", id.String()).Msg("subscribed")
	return sub, nil
}

// Close ends every subscription with a store error.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for _, e := range s.records {
		for sub := range e.subs {
			sub.finish(fmt.Errorf("%w: %w", domain.ErrStore, errStoreClosed))
		}
		clear(e.subs)
	}
	log.Info().Str("module", "adapters.store").Msg("store closed")
}

func (s *Store) unsubscribe(sub *subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.records[sub.id]; ok {
		delete(e.subs, sub)
	}
	sub.finish(nil)
}

type subscription struct {
	store *Store
	id    domain.CallID
	ch    chan domain.CallRecord
	stop  func() bool

	mu   sync.Mutex
	done bool
	err  error
}

func (sub *subscription) Snapshots() <-chan domain.CallRecord { return sub.ch }

func (sub *subscription) Err() error {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	return sub.err
}

func (sub *subscription) Close() {
	if sub.stop != nil {
		sub.stop()
	}
	sub.store.unsubscribe(sub)
}

// push delivers rec, dropping the oldest queued snapshot when the buffer is
// full. Later snapshots dominate earlier ones, so nothing is lost but
// intermediate states. Called with the store lock held.
func (sub *subscription) push(rec domain.CallRecord) {
	for {
		select {
		case sub.ch <- rec:
			return
		default:
		}
		select {
		case <-sub.ch:
		default:
		}
	}
}

// finish closes the feed once. Called with the store lock held.
func (sub *subscription) finish(err error) {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	if sub.done {
		return
	}
	sub.done = true
	sub.err = err
	close(sub.ch)
}

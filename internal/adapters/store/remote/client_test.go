package remote_test

import (
	"context"
	"errors"
	"net/http/httptest"
	"slices"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	httpadapter "github.com/dkeye/Duet/internal/adapters/http"
	"github.com/dkeye/Duet/internal/adapters/store/memory"
	"github.com/dkeye/Duet/internal/adapters/store/remote"
	"github.com/dkeye/Duet/internal/config"
	"github.com/dkeye/Duet/internal/domain"
)

const (
	testSDP       = "v=0\r\no=- 0 0 IN IP4 127.0.0.1\r\ns=-\r\nt=0 0\r\n"
	testCandidate = `{"candidate":"candidate:1 1 udp 2130706431 10.0.0.1 50000 typ host","sdpMid":"0","sdpMLineIndex":0}`
)

func newServer(t *testing.T) (*memory.Store, *remote.Client) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	store := memory.NewStore(memory.FirstWriteWins, 0)
	t.Cleanup(store.Close)
	cfg := &config.Config{
		Mode:   "test",
		Secret: "test-secret",
		Store:  config.StoreConfig{CandidateLimit: 100, CandidateInterval: time.Minute},
	}
	srv := httptest.NewServer(httpadapter.SetupRouter(ctx, cfg, store))
	t.Cleanup(srv.Close)

	client, err := remote.NewClient(srv.URL, 0)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return store, client
}

func recv(t *testing.T, ch <-chan domain.CallRecord) domain.CallRecord {
	t.Helper()
	select {
	case rec, ok := <-ch:
		if !ok {
			t.Fatalf("subscription closed unexpectedly")
		}
		return rec
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for snapshot")
	}
	return domain.CallRecord{}
}

func TestClient_RecordLifecycle(t *testing.T) {
	ctx := context.Background()
	_, c := newServer(t)

	id, err := c.CreateRecord(ctx)
	if err != nil {
		t.Fatalf("CreateRecord: %v", err)
	}
	if err := c.SetAnswer(ctx, id, domain.SessionDescription{Type: "answer", SDP: testSDP}); !errors.Is(err, domain.ErrAnswerBeforeOffer) {
		t.Fatalf("answer before offer: %v", err)
	}
	if err := c.SetOffer(ctx, id, domain.SessionDescription{Type: "offer", SDP: testSDP}); err != nil {
		t.Fatalf("SetOffer: %v", err)
	}
	if err := c.AppendCandidate(ctx, id, domain.RoleCaller, testCandidate); err != nil {
		t.Fatalf("AppendCandidate: %v", err)
	}

	rec, err := c.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.Offer == nil || rec.Offer.SDP != testSDP || !slices.Equal(rec.OfferCandidates, []string{testCandidate}) {
		t.Fatalf("unexpected record %+v", rec)
	}
}

func TestClient_ErrorKinds(t *testing.T) {
	ctx := context.Background()
	_, c := newServer(t)

	if _, err := c.Get(ctx, "missing"); !errors.Is(err, domain.ErrRecordNotFound) {
		t.Fatalf("Get missing: %v", err)
	}
	if _, err := c.Subscribe(ctx, "missing"); !errors.Is(err, domain.ErrRecordNotFound) {
		t.Fatalf("Subscribe missing: %v", err)
	}
	id, _ := c.CreateRecord(ctx)
	if err := c.AppendCandidate(ctx, id, domain.RoleUnset, testCandidate); !errors.Is(err, domain.ErrInvalidRole) {
		t.Fatalf("unset role: %v", err)
	}
	err := c.AppendCandidate(ctx, id, domain.RoleAnswerer, "garbage")
	if !errors.Is(err, domain.ErrStore) || !errors.Is(err, domain.ErrStoreRejected) {
		t.Fatalf("rejected candidate: %v", err)
	}

	down, err := remote.NewClient("http://127.0.0.1:1", 0)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if _, err := down.CreateRecord(ctx); !errors.Is(err, domain.ErrStore) || errors.Is(err, domain.ErrStoreRejected) {
		t.Fatalf("unreachable store: %v", err)
	}
	if _, err := remote.NewClient("ftp://example.org", 0); err == nil {
		t.Fatalf("expected scheme error")
	}
}

func TestClient_Subscribe(t *testing.T) {
	ctx := context.Background()
	_, c := newServer(t)
	id, _ := c.CreateRecord(ctx)

	sub, err := c.Subscribe(ctx, id)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if first := recv(t, sub.Snapshots()); first.ID != id {
		t.Fatalf("first snapshot %+v", first)
	}

	if err := c.AppendCandidate(ctx, id, domain.RoleAnswerer, testCandidate); err != nil {
		t.Fatalf("AppendCandidate: %v", err)
	}
	if next := recv(t, sub.Snapshots()); !slices.Equal(next.AnswerCandidates, []string{testCandidate}) {
		t.Fatalf("snapshot %+v", next)
	}

	sub.Close()
	for range sub.Snapshots() {
	}
	if sub.Err() != nil {
		t.Fatalf("Err after Close = %v", sub.Err())
	}
}

func TestClient_SubscriptionReportsStoreLoss(t *testing.T) {
	ctx := context.Background()
	store, c := newServer(t)
	id, _ := c.CreateRecord(ctx)

	sub, err := c.Subscribe(ctx, id)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	t.Cleanup(sub.Close)
	_ = recv(t, sub.Snapshots())

	store.Close()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-sub.Snapshots():
			if ok {
				continue
			}
			if !errors.Is(sub.Err(), domain.ErrStore) {
				t.Fatalf("Err = %v", sub.Err())
			}
			return
		case <-deadline:
			t.Fatalf("subscription did not end")
		}
	}
}

package access

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sealedbook/risk-engine/internal/model"
	"github.com/sealedbook/risk-engine/internal/store"
)

func newStoreWithSubmission(t *testing.T, owner string) *store.MemoryStore {
	t.Helper()
	s := store.NewMemoryStore()
	ob := &model.OrderBook{
		ExchangeID:  1,
		Owner:       owner,
		BidOrders:   "ct-bid",
		AskOrders:   "ct-ask",
		OrderFlow:   "ct-flow",
		Volatility:  "ct-vol",
		SubmittedAt: time.Now().UTC(),
	}
	ra := &model.RiskAssessment{ExchangeID: 1, LiquidityImpact: "ct-li", FlashCrashRisk: "ct-fc", MarketInstability: "ct-mi"}
	da := &model.DecryptedAssessment{ExchangeID: 1}
	if err := s.CreateSubmission(context.Background(), ob, ra, da); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return s
}

func TestIsOwner(t *testing.T) {
	s := newStoreWithSubmission(t, "alice")
	c := NewController(s)
	ctx := context.Background()

	ok, err := c.IsOwner(ctx, "alice", 1)
	if err != nil || !ok {
		t.Errorf("owner should match: ok=%v err=%v", ok, err)
	}

	ok, err = c.IsOwner(ctx, "mallory", 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("non-owner must not match")
	}
}

func TestIsOwner_UnknownExchangeID(t *testing.T) {
	s := newStoreWithSubmission(t, "alice")
	c := NewController(s)

	if _, err := c.IsOwner(context.Background(), "alice", 99); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestIsRevealed_TracksCommit(t *testing.T) {
	s := newStoreWithSubmission(t, "alice")
	c := NewController(s)
	ctx := context.Background()

	revealed, err := c.IsRevealed(ctx, 1, model.KindAssessment)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if revealed {
		t.Error("assessment should start un-revealed")
	}

	if err := s.CommitReveal(ctx, 1, 2, 100, 70); err != nil {
		t.Fatalf("commit: %v", err)
	}

	revealed, err = c.IsRevealed(ctx, 1, model.KindAssessment)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !revealed {
		t.Error("assessment should be revealed after commit")
	}
}

func TestIsRevealed_OrderBookNeverRevealed(t *testing.T) {
	s := newStoreWithSubmission(t, "alice")
	c := NewController(s)
	ctx := context.Background()

	// Raw order-book plaintext is never retained, so the order-book track
	// has no revealed state even after the assessment reveal.
	if err := s.CommitReveal(ctx, 1, 2, 100, 70); err != nil {
		t.Fatalf("commit: %v", err)
	}

	revealed, err := c.IsRevealed(ctx, 1, model.KindOrderBook)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if revealed {
		t.Error("order-book kind must never report revealed")
	}
}

// The predicates must not mutate anything: calling them repeatedly yields
// identical answers and leaves the store unchanged.
func TestPredicates_SideEffectFree(t *testing.T) {
	s := newStoreWithSubmission(t, "alice")
	c := NewController(s)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if ok, _ := c.IsOwner(ctx, "alice", 1); !ok {
			t.Fatal("IsOwner answer changed between calls")
		}
		if revealed, _ := c.IsRevealed(ctx, 1, model.KindAssessment); revealed {
			t.Fatal("IsRevealed answer changed between calls")
		}
	}

	da, err := s.GetDecryptedAssessment(ctx, 1)
	if err != nil || da.Revealed {
		t.Errorf("store state changed: %+v err=%v", da, err)
	}
}

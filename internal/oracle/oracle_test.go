package oracle_test

import (
	"context"
	"testing"
	"time"

	"github.com/sealedbook/risk-engine/internal/book"
	"github.com/sealedbook/risk-engine/internal/fhe"
	"github.com/sealedbook/risk-engine/internal/model"
	"github.com/sealedbook/risk-engine/internal/oracle"
	"github.com/sealedbook/risk-engine/internal/store"
)

// TestLocalOracle_RevealRoundTrip runs the full asynchronous reveal loop: a
// reveal request flows to the local oracle, which answers with a callback
// that lands the decrypted metrics.
func TestLocalOracle_RevealRoundTrip(t *testing.T) {
	ms := store.NewMemoryStore()
	sim := fhe.NewSimulator()
	svc := book.NewService(ms, sim, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go oracle.NewLocal(sim, svc, 5*time.Millisecond).Run(ctx)

	ob, err := svc.Submit(ctx, "alice", sim.Encrypt(500), sim.Encrypt(300), sim.Encrypt(50), sim.Encrypt(20))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := svc.RequestReveal(ctx, "alice", ob.ExchangeID, model.KindAssessment); err != nil {
		t.Fatalf("request reveal: %v", err)
	}

	da := awaitReveal(t, ms, ob.ExchangeID)
	if da.LiquidityImpact != 2 || da.FlashCrashRisk != 100 || da.MarketInstability != 70 {
		t.Errorf("expected {2, 100, 70}, got {%d, %d, %d}",
			da.LiquidityImpact, da.FlashCrashRisk, da.MarketInstability)
	}
}

// TestLocalOracle_ZeroDelay answers immediately when no delay is configured.
func TestLocalOracle_ZeroDelay(t *testing.T) {
	ms := store.NewMemoryStore()
	sim := fhe.NewSimulator()
	svc := book.NewService(ms, sim, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go oracle.NewLocal(sim, svc, 0).Run(ctx)

	ob, err := svc.Submit(ctx, "bob", sim.Encrypt(100), sim.Encrypt(400), sim.Encrypt(10), sim.Encrypt(5))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := svc.RequestReveal(ctx, "bob", ob.ExchangeID, model.KindAssessment); err != nil {
		t.Fatalf("request reveal: %v", err)
	}

	da := awaitReveal(t, ms, ob.ExchangeID)
	if da.LiquidityImpact != -3 {
		t.Errorf("expected liquidity impact -3, got %d", da.LiquidityImpact)
	}
}

// TestLocalOracle_CancelledContextStopsFulfillment ensures a cancelled run
// loop does not deliver late callbacks.
func TestLocalOracle_CancelledContextStopsFulfillment(t *testing.T) {
	ms := store.NewMemoryStore()
	sim := fhe.NewSimulator()
	svc := book.NewService(ms, sim, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go oracle.NewLocal(sim, svc, 50*time.Millisecond).Run(ctx)

	ob, err := svc.Submit(ctx, "alice", sim.Encrypt(1), sim.Encrypt(1), sim.Encrypt(1), sim.Encrypt(1))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := svc.RequestReveal(ctx, "alice", ob.ExchangeID, model.KindAssessment); err != nil {
		t.Fatalf("request reveal: %v", err)
	}

	// Cancel while the oracle is still inside its answer delay.
	cancel()
	time.Sleep(100 * time.Millisecond)

	da, err := ms.GetDecryptedAssessment(context.Background(), ob.ExchangeID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if da.Revealed {
		t.Error("cancelled oracle must not deliver a callback")
	}
}

// awaitReveal polls until the assessment is revealed or the deadline passes.
func awaitReveal(t *testing.T, ms *store.MemoryStore, id model.ExchangeID) *model.DecryptedAssessment {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for the oracle callback")
			return nil
		case <-time.After(5 * time.Millisecond):
		}
		da, err := ms.GetDecryptedAssessment(context.Background(), id)
		if err != nil {
			t.Fatalf("get decrypted assessment: %v", err)
		}
		if da.Revealed {
			return da
		}
	}
}

package risk

import (
	"context"
	"testing"

	"github.com/sealedbook/risk-engine/internal/fhe"
	"github.com/sealedbook/risk-engine/internal/model"
	"github.com/sealedbook/risk-engine/internal/wire"
)

// newOrderBook encrypts the given plaintext order book through the
// simulator.
func newOrderBook(sim *fhe.Simulator, bid, ask, flow, vol int64) *model.OrderBook {
	return &model.OrderBook{
		ExchangeID: 1,
		Owner:      "alice",
		BidOrders:  sim.Encrypt(bid),
		AskOrders:  sim.Encrypt(ask),
		OrderFlow:  sim.Encrypt(flow),
		Volatility: sim.Encrypt(vol),
	}
}

// reveal decrypts a metric handle for assertions.
func reveal(t *testing.T, sim *fhe.Simulator, h model.Handle) int64 {
	t.Helper()
	id, err := sim.RequestDecryption(context.Background(), []model.Handle{h})
	if err != nil {
		t.Fatalf("request decryption: %v", err)
	}
	cleartext, _, err := sim.Fulfill(id)
	if err != nil {
		t.Fatalf("fulfill: %v", err)
	}
	values, err := wire.DecodeCleartext(cleartext, 1)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return values[0]
}

func TestAssess_ReferenceValues(t *testing.T) {
	sim := fhe.NewSimulator()
	assessor := NewAssessor(sim)

	// bid=500 ask=300 flow=50 vol=20:
	//   liquidityImpact   = (500-300)/100     = 2
	//   flashCrashRisk    = 50*2              = 100
	//   marketInstability = (20*3) + (50/5)   = 70
	ra, err := assessor.Assess(context.Background(), newOrderBook(sim, 500, 300, 50, 20))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if ra.ExchangeID != 1 {
		t.Errorf("expected exchange id 1, got %d", ra.ExchangeID)
	}
	if got := reveal(t, sim, ra.LiquidityImpact); got != 2 {
		t.Errorf("liquidity impact: expected 2, got %d", got)
	}
	if got := reveal(t, sim, ra.FlashCrashRisk); got != 100 {
		t.Errorf("flash crash risk: expected 100, got %d", got)
	}
	if got := reveal(t, sim, ra.MarketInstability); got != 70 {
		t.Errorf("market instability: expected 70, got %d", got)
	}
}

func TestAssess_OperandOrder(t *testing.T) {
	sim := fhe.NewSimulator()
	assessor := NewAssessor(sim)

	// ask > bid: the spread must be computed bid-ask, not ask-bid.
	ra, err := assessor.Assess(context.Background(), newOrderBook(sim, 100, 400, 10, 5))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := reveal(t, sim, ra.LiquidityImpact); got != -3 {
		t.Errorf("liquidity impact: expected (100-400)/100 = -3, got %d", got)
	}
}

func TestAssess_IntegerTruncation(t *testing.T) {
	sim := fhe.NewSimulator()
	assessor := NewAssessor(sim)

	// (250-101)/100 truncates to 1; 7/5 truncates to 1.
	ra, err := assessor.Assess(context.Background(), newOrderBook(sim, 250, 101, 7, 3))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := reveal(t, sim, ra.LiquidityImpact); got != 1 {
		t.Errorf("liquidity impact: expected 1, got %d", got)
	}
	if got := reveal(t, sim, ra.MarketInstability); got != 10 {
		t.Errorf("market instability: expected (3*3)+(7/5) = 10, got %d", got)
	}
}

func TestAssess_NeverDecrypts(t *testing.T) {
	sim := fhe.NewSimulator()
	assessor := NewAssessor(sim)

	if _, err := assessor.Assess(context.Background(), newOrderBook(sim, 500, 300, 50, 20)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	select {
	case req := <-sim.Requests():
		t.Errorf("assessment must not request decryption, but issued %s", req.RequestID)
	default:
	}
}

func TestAssess_UnknownHandle(t *testing.T) {
	sim := fhe.NewSimulator()
	assessor := NewAssessor(sim)

	ob := newOrderBook(sim, 500, 300, 50, 20)
	ob.BidOrders = "ct-not-issued"

	if _, err := assessor.Assess(context.Background(), ob); err == nil {
		t.Error("expected error for handle the engine never issued")
	}
}

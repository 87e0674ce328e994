// Package model defines the core domain types shared across the risk engine.
// Ciphertext values are never represented as plaintext numbers, only as
// opaque Handles issued by the homomorphic engine.
package model

import "time"

// ExchangeID identifies one order-book submission. IDs are positive,
// strictly increasing, and never reused. Zero means "absent".
type ExchangeID uint64

// Handle is an opaque reference to an encrypted value. Handles are produced
// and consumed only through the homomorphic engine; the core never inspects
// their contents.
type Handle string

// RequestKind selects which record set a decryption request targets.
type RequestKind string

const (
	// KindAssessment reveals the three derived risk metrics.
	KindAssessment RequestKind = "assessment"
	// KindOrderBook reveals the four raw order-book ciphertexts.
	KindOrderBook RequestKind = "order_book"
)

// Valid reports whether k is a known request kind.
func (k RequestKind) Valid() bool {
	return k == KindAssessment || k == KindOrderBook
}

// HandleCount is the number of ciphertext handles decrypted for this kind,
// and therefore the number of fixed-width fields in the oracle cleartext.
func (k RequestKind) HandleCount() int {
	if k == KindOrderBook {
		return 4
	}
	return 3
}

// OrderBook is one encrypted order-book submission. Created once per
// ExchangeID and immutable thereafter; there is no update or delete path.
// Only Owner may request decryption of this record.
type OrderBook struct {
	ExchangeID  ExchangeID `json:"exchange_id"`
	Owner       string     `json:"owner"`
	BidOrders   Handle     `json:"bid_orders"`
	AskOrders   Handle     `json:"ask_orders"`
	OrderFlow   Handle     `json:"order_flow"`
	Volatility  Handle     `json:"volatility"`
	SubmittedAt time.Time  `json:"submitted_at"`
}

// RiskAssessment holds the encrypted risk metrics derived from an order
// book. Created exactly once, together with the OrderBook, and never
// recomputed for the same ExchangeID.
type RiskAssessment struct {
	ExchangeID        ExchangeID `json:"exchange_id"`
	LiquidityImpact   Handle     `json:"liquidity_impact"`
	FlashCrashRisk    Handle     `json:"flash_crash_risk"`
	MarketInstability Handle     `json:"market_instability"`
}

// DecryptedAssessment is the plaintext counterpart of a RiskAssessment.
// It starts as a zero-valued placeholder with Revealed=false, created at the
// same moment as the RiskAssessment, and is mutated exactly once by the
// decryption coordinator. Revealed only ever transitions false→true.
type DecryptedAssessment struct {
	ExchangeID        ExchangeID `json:"exchange_id"`
	LiquidityImpact   int64      `json:"liquidity_impact"`
	FlashCrashRisk    int64      `json:"flash_crash_risk"`
	MarketInstability int64      `json:"market_instability"`
	Revealed          bool       `json:"revealed"`
}

// PendingRequest is one decryption request awaiting an oracle callback.
// RequestID is supplied by the homomorphic engine and unique for the
// process lifetime; at most one unresolved request exists per
// (ExchangeID, Kind) pair. A request is marked Resolved, not deleted, when
// its callback is validated, so a replayed callback can be recognized.
type PendingRequest struct {
	RequestID  string      `json:"request_id"`
	ExchangeID ExchangeID  `json:"exchange_id"`
	Owner      string      `json:"owner"`
	Kind       RequestKind `json:"kind"`
	CreatedAt  time.Time   `json:"created_at"`
	Resolved   bool        `json:"resolved"`
}

// Package book implements the encrypted risk-assessment workflow: the
// order-book registry, the risk-assessment step, and the decryption
// coordinator that runs the asynchronous reveal protocol against the
// decryption oracle.
package book

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sealedbook/risk-engine/internal/access"
	"github.com/sealedbook/risk-engine/internal/fhe"
	"github.com/sealedbook/risk-engine/internal/metrics"
	"github.com/sealedbook/risk-engine/internal/model"
	"github.com/sealedbook/risk-engine/internal/risk"
	"github.com/sealedbook/risk-engine/internal/store"
	"github.com/sealedbook/risk-engine/internal/wire"
)

var (
	// ErrUnauthorized is returned when a principal other than the order
	// book's owner requests a reveal.
	ErrUnauthorized = errors.New("book: principal does not own this order book")

	// ErrAlreadyRevealed is returned for any reveal request or callback
	// that targets an assessment already revealed. Reveal is one-shot.
	ErrAlreadyRevealed = errors.New("book: assessment already revealed")

	// ErrRevealPending is returned when a reveal is requested while an
	// earlier request for the same record is still unresolved.
	ErrRevealPending = errors.New("book: a decryption request is already pending")

	// ErrUnknownRequest is returned for a callback whose request ID was
	// never issued (or was superseded).
	ErrUnknownRequest = errors.New("book: unknown decryption request")

	// ErrInvalidProof is returned when oracle-proof verification fails.
	// The callback mutates nothing in that case.
	ErrInvalidProof = errors.New("book: decryption proof verification failed")
)

// OrderBookConsumer receives decrypted raw order-book values. The plaintext
// is transient: it is handed off exactly once and never persisted.
type OrderBookConsumer func(ctx context.Context, id model.ExchangeID, bid, ask, flow, volatility int64)

// Service is the registry and decryption coordinator. A single mutex
// serializes every state-changing operation (submit, request reveal,
// callback), matching the workflow's no-concurrent-mutation execution
// model. For horizontal scaling, replace with per-exchange-ID locking or
// database-level optimistic concurrency.
type Service struct {
	store    store.Store
	engine   fhe.Engine
	assessor *risk.Assessor
	access   *access.Controller
	mu       sync.Mutex

	hub        *Hub              // optional WebSocket hub for event broadcasts
	consumer   OrderBookConsumer // optional sink for revealed order-book plaintext
	pendingTTL time.Duration     // 0 disables supersession of stale requests
}

// NewService creates the service. Pass nil for hub if event broadcasting is
// not needed.
func NewService(st store.Store, engine fhe.Engine, hub *Hub) *Service {
	return &Service{
		store:    st,
		engine:   engine,
		assessor: risk.NewAssessor(engine),
		access:   access.NewController(st),
		hub:      hub,
	}
}

// SetOrderBookConsumer installs the sink that receives revealed raw
// order-book plaintext. Without a consumer the values are only broadcast on
// the event stream.
func (s *Service) SetOrderBookConsumer(fn OrderBookConsumer) {
	s.consumer = fn
}

// SetPendingTTL enables supersession of stale pending requests: a new
// reveal request may replace one that has gone unanswered for longer than
// ttl. The superseded request's callback then fails with ErrUnknownRequest.
// The default (0) rejects new requests for as long as one is pending, which
// strands the record if the oracle never answers.
func (s *Service) SetPendingTTL(ttl time.Duration) {
	s.pendingTTL = ttl
}

// Submit registers an encrypted order book for owner and synchronously
// derives its encrypted risk metrics. The order book, risk assessment, and
// un-revealed decrypted-assessment placeholder are persisted as one atomic
// unit; a failure during assessment leaves no partial record. The allocated
// exchange ID may be burned in that case; IDs stay strictly increasing and
// are never reused.
func (s *Service) Submit(ctx context.Context, owner string, bid, ask, flow, volatility model.Handle) (*model.OrderBook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.store.NextExchangeID(ctx)
	if err != nil {
		return nil, fmt.Errorf("allocate exchange id: %w", err)
	}

	ob := &model.OrderBook{
		ExchangeID:  id,
		Owner:       owner,
		BidOrders:   bid,
		AskOrders:   ask,
		OrderFlow:   flow,
		Volatility:  volatility,
		SubmittedAt: time.Now().UTC(),
	}

	ra, err := s.assessor.Assess(ctx, ob)
	if err != nil {
		return nil, fmt.Errorf("assess order book %d: %w", id, err)
	}

	da := &model.DecryptedAssessment{ExchangeID: id}

	if err := s.store.CreateSubmission(ctx, ob, ra, da); err != nil {
		return nil, fmt.Errorf("persist submission %d: %w", id, err)
	}

	metrics.SubmissionsTotal.Inc()
	slog.Info("order book submitted",
		"exchange_id", id,
		"owner", owner,
	)

	if s.hub != nil {
		s.hub.Broadcast(Event{
			Type:       EventSubmitted,
			ExchangeID: id,
			Owner:      owner,
			Timestamp:  ob.SubmittedAt,
		})
		s.hub.Broadcast(Event{
			Type:       EventRiskComputed,
			ExchangeID: id,
		})
	}

	return ob, nil
}

// RequestReveal issues a decryption request for the assessment metrics or
// the raw order book of an exchange ID. Only the submitting owner may
// request a reveal; an assessment may be revealed at most once; and at most
// one request per (exchange ID, kind) may be unresolved at a time.
//
// The returned request ID resolves later through an oracle callback;
// fire-and-forget from the caller's perspective.
func (s *Service) RequestReveal(ctx context.Context, principal string, id model.ExchangeID, kind model.RequestKind) (string, error) {
	if !kind.Valid() {
		return "", fmt.Errorf("invalid request kind %q", kind)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ok, err := s.access.IsOwner(ctx, principal, id)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrUnauthorized
	}

	revealed, err := s.access.IsRevealed(ctx, id, kind)
	if err != nil {
		return "", err
	}
	if revealed {
		return "", ErrAlreadyRevealed
	}

	if err := s.checkPending(ctx, id, kind); err != nil {
		return "", err
	}

	handles, err := s.handlesFor(ctx, id, kind)
	if err != nil {
		return "", err
	}

	requestID, err := s.engine.RequestDecryption(ctx, handles)
	if err != nil {
		return "", fmt.Errorf("request decryption for %d: %w", id, err)
	}

	pr := &model.PendingRequest{
		RequestID:  requestID,
		ExchangeID: id,
		Owner:      principal,
		Kind:       kind,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.store.CreatePendingRequest(ctx, pr); err != nil {
		if errors.Is(err, store.ErrPendingExists) {
			return "", ErrRevealPending
		}
		return "", fmt.Errorf("record pending request: %w", err)
	}

	metrics.RevealRequestsTotal.WithLabelValues(string(kind)).Inc()
	metrics.PendingDecryptions.Inc()
	slog.Info("decryption requested",
		"exchange_id", id,
		"kind", kind,
		"request_id", requestID,
	)

	return requestID, nil
}

// checkPending enforces the reject-while-pending policy, superseding a
// stale request instead when the TTL has elapsed.
func (s *Service) checkPending(ctx context.Context, id model.ExchangeID, kind model.RequestKind) error {
	existing, err := s.store.PendingRequestFor(ctx, id, kind)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	}

	if s.pendingTTL <= 0 || time.Since(existing.CreatedAt) < s.pendingTTL {
		return ErrRevealPending
	}

	// Stale: supersede it. Its callback, should it ever arrive, will fail
	// with ErrUnknownRequest.
	if err := s.store.DeletePendingRequest(ctx, existing.RequestID); err != nil {
		return fmt.Errorf("supersede stale request %s: %w", existing.RequestID, err)
	}
	metrics.PendingDecryptions.Dec()
	slog.Warn("stale decryption request superseded",
		"exchange_id", id,
		"kind", kind,
		"request_id", existing.RequestID,
		"age", time.Since(existing.CreatedAt).String(),
	)
	return nil
}

// handlesFor gathers the ciphertext handles decrypted for a kind.
func (s *Service) handlesFor(ctx context.Context, id model.ExchangeID, kind model.RequestKind) ([]model.Handle, error) {
	if kind == model.KindOrderBook {
		ob, err := s.store.GetOrderBook(ctx, id)
		if err != nil {
			return nil, err
		}
		return []model.Handle{ob.BidOrders, ob.AskOrders, ob.OrderFlow, ob.Volatility}, nil
	}

	ra, err := s.store.GetRiskAssessment(ctx, id)
	if err != nil {
		return nil, err
	}
	return []model.Handle{ra.LiquidityImpact, ra.FlashCrashRisk, ra.MarketInstability}, nil
}

// HandleCallback consumes one oracle callback. Proof verification happens
// before any state mutation; a forged or garbled callback mutates nothing.
// Delivering the same callback twice mutates state at most once: the
// second delivery fails with ErrAlreadyRevealed and is a no-op.
func (s *Service) HandleCallback(ctx context.Context, requestID string, cleartext, proof []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pr, err := s.store.GetPendingRequest(ctx, requestID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			metrics.OracleCallbacksTotal.WithLabelValues(metrics.ResultRejected).Inc()
			return fmt.Errorf("%w: %s", ErrUnknownRequest, requestID)
		}
		return err
	}

	valid, err := s.engine.VerifyDecryptionProof(ctx, requestID, cleartext, proof)
	if err != nil {
		return fmt.Errorf("verify proof for %s: %w", requestID, err)
	}
	if !valid {
		metrics.OracleCallbacksTotal.WithLabelValues(metrics.ResultRejected).Inc()
		slog.Warn("oracle callback rejected: invalid proof", "request_id", requestID)
		return fmt.Errorf("%w: request %s", ErrInvalidProof, requestID)
	}

	values, err := wire.DecodeCleartext(cleartext, pr.Kind.HandleCount())
	if err != nil {
		metrics.OracleCallbacksTotal.WithLabelValues(metrics.ResultRejected).Inc()
		return err
	}

	if pr.Resolved {
		// Duplicate delivery of an already-consumed callback.
		metrics.OracleCallbacksTotal.WithLabelValues(metrics.ResultDuplicate).Inc()
		return ErrAlreadyRevealed
	}

	switch pr.Kind {
	case model.KindAssessment:
		if err := s.commitAssessment(ctx, pr, values); err != nil {
			return err
		}
	case model.KindOrderBook:
		s.deliverOrderBook(ctx, pr, values)
	}

	if err := s.store.ResolvePendingRequest(ctx, requestID); err != nil {
		return fmt.Errorf("resolve request %s: %w", requestID, err)
	}
	metrics.PendingDecryptions.Dec()
	metrics.OracleCallbacksTotal.WithLabelValues(metrics.ResultRevealed).Inc()
	return nil
}

// commitAssessment writes the revealed metrics exactly once. The store's
// conditional commit re-checks the revealed flag, guarding against a
// duplicate reveal even if two pending requests were to slip through.
func (s *Service) commitAssessment(ctx context.Context, pr *model.PendingRequest, values []int64) error {
	err := s.store.CommitReveal(ctx, pr.ExchangeID, values[0], values[1], values[2])
	if err != nil {
		if errors.Is(err, store.ErrAlreadyRevealed) {
			metrics.OracleCallbacksTotal.WithLabelValues(metrics.ResultDuplicate).Inc()
			return ErrAlreadyRevealed
		}
		return fmt.Errorf("commit reveal %d: %w", pr.ExchangeID, err)
	}

	slog.Info("assessment revealed",
		"exchange_id", pr.ExchangeID,
		"request_id", pr.RequestID,
	)
	if s.hub != nil {
		s.hub.Broadcast(Event{
			Type:       EventAssessmentRevealed,
			ExchangeID: pr.ExchangeID,
			Owner:      pr.Owner,
			Timestamp:  time.Now().UTC(),
			Plaintext:  values,
		})
	}
	return nil
}

// deliverOrderBook hands decrypted raw order-book values to the configured
// consumer. No core record is mutated; the plaintext is not retained.
func (s *Service) deliverOrderBook(ctx context.Context, pr *model.PendingRequest, values []int64) {
	slog.Info("order book revealed",
		"exchange_id", pr.ExchangeID,
		"request_id", pr.RequestID,
	)
	if s.consumer != nil {
		s.consumer(ctx, pr.ExchangeID, values[0], values[1], values[2], values[3])
	}
	if s.hub != nil {
		s.hub.Broadcast(Event{
			Type:       EventOrderBookRevealed,
			ExchangeID: pr.ExchangeID,
			Owner:      pr.Owner,
			Timestamp:  time.Now().UTC(),
			Plaintext:  values,
		})
	}
}

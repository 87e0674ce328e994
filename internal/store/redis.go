package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sealedbook/risk-engine/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache for the three record tables. Order books and risk assessments are
// immutable, so their cache entries never need invalidation; decrypted
// assessments are invalidated on reveal. Pending requests and the identity
// counter always hit the primary — they carry the replay-safety invariants
// and must never be served stale.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Writes (write to primary, prime or invalidate cache) ---

func (s *CachedStore) CreateSubmission(ctx context.Context, ob *model.OrderBook, ra *model.RiskAssessment, da *model.DecryptedAssessment) error {
	if err := s.primary.CreateSubmission(ctx, ob, ra, da); err != nil {
		return err
	}
	s.cache(ctx, bookKey(ob.ExchangeID), ob)
	s.cache(ctx, riskKey(ra.ExchangeID), ra)
	s.cache(ctx, decryptedKey(da.ExchangeID), da)
	return nil
}

func (s *CachedStore) CommitReveal(ctx context.Context, id model.ExchangeID, liquidity, flashCrash, instability int64) error {
	if err := s.primary.CommitReveal(ctx, id, liquidity, flashCrash, instability); err != nil {
		return err
	}
	// Invalidate; next read re-populates with the revealed record.
	s.rdb.Del(ctx, decryptedKey(id))
	return nil
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetOrderBook(ctx context.Context, id model.ExchangeID) (*model.OrderBook, error) {
	var ob model.OrderBook
	if s.lookup(ctx, bookKey(id), &ob) {
		return &ob, nil
	}

	fresh, err := s.primary.GetOrderBook(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cache(ctx, bookKey(id), fresh)
	return fresh, nil
}

func (s *CachedStore) GetRiskAssessment(ctx context.Context, id model.ExchangeID) (*model.RiskAssessment, error) {
	var ra model.RiskAssessment
	if s.lookup(ctx, riskKey(id), &ra) {
		return &ra, nil
	}

	fresh, err := s.primary.GetRiskAssessment(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cache(ctx, riskKey(id), fresh)
	return fresh, nil
}

func (s *CachedStore) GetDecryptedAssessment(ctx context.Context, id model.ExchangeID) (*model.DecryptedAssessment, error) {
	var da model.DecryptedAssessment
	if s.lookup(ctx, decryptedKey(id), &da) {
		return &da, nil
	}

	fresh, err := s.primary.GetDecryptedAssessment(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cache(ctx, decryptedKey(id), fresh)
	return fresh, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) NextExchangeID(ctx context.Context) (model.ExchangeID, error) {
	return s.primary.NextExchangeID(ctx)
}

func (s *CachedStore) ListOrderBooks(ctx context.Context) ([]model.OrderBook, error) {
	return s.primary.ListOrderBooks(ctx)
}

func (s *CachedStore) CreatePendingRequest(ctx context.Context, pr *model.PendingRequest) error {
	return s.primary.CreatePendingRequest(ctx, pr)
}

func (s *CachedStore) GetPendingRequest(ctx context.Context, requestID string) (*model.PendingRequest, error) {
	return s.primary.GetPendingRequest(ctx, requestID)
}

func (s *CachedStore) PendingRequestFor(ctx context.Context, id model.ExchangeID, kind model.RequestKind) (*model.PendingRequest, error) {
	return s.primary.PendingRequestFor(ctx, id, kind)
}

func (s *CachedStore) ResolvePendingRequest(ctx context.Context, requestID string) error {
	return s.primary.ResolvePendingRequest(ctx, requestID)
}

func (s *CachedStore) DeletePendingRequest(ctx context.Context, requestID string) error {
	return s.primary.DeletePendingRequest(ctx, requestID)
}

// --- Cache helpers ---

func (s *CachedStore) cache(ctx context.Context, key string, v interface{}) {
	if data, err := json.Marshal(v); err == nil {
		s.rdb.Set(ctx, key, data, s.ttl)
	}
}

func (s *CachedStore) lookup(ctx context.Context, key string, v interface{}) bool {
	data, err := s.rdb.Get(ctx, key).Bytes()
	if err != nil {
		return false
	}
	return json.Unmarshal(data, v) == nil
}

func bookKey(id model.ExchangeID) string      { return fmt.Sprintf("book:%d", id) }
func riskKey(id model.ExchangeID) string      { return fmt.Sprintf("risk:%d", id) }
func decryptedKey(id model.ExchangeID) string { return fmt.Sprintf("decrypted:%d", id) }

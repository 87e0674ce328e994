package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/sealedbook/risk-engine/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing and
// development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu        sync.RWMutex
	nextID    model.ExchangeID
	books     map[model.ExchangeID]*model.OrderBook
	risks     map[model.ExchangeID]*model.RiskAssessment
	decrypted map[model.ExchangeID]*model.DecryptedAssessment
	pending   map[string]*model.PendingRequest
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		books:     make(map[model.ExchangeID]*model.OrderBook),
		risks:     make(map[model.ExchangeID]*model.RiskAssessment),
		decrypted: make(map[model.ExchangeID]*model.DecryptedAssessment),
		pending:   make(map[string]*model.PendingRequest),
	}
}

func (s *MemoryStore) NextExchangeID(_ context.Context) (model.ExchangeID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	return s.nextID, nil
}

func (s *MemoryStore) CreateSubmission(_ context.Context, ob *model.OrderBook, ra *model.RiskAssessment, da *model.DecryptedAssessment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.books[ob.ExchangeID]; exists {
		return fmt.Errorf("order book %d already exists", ob.ExchangeID)
	}

	// Store copies to avoid external mutation. All three records land
	// under one lock so no reader sees a partial submission.
	obCopy, raCopy, daCopy := *ob, *ra, *da
	s.books[ob.ExchangeID] = &obCopy
	s.risks[ra.ExchangeID] = &raCopy
	s.decrypted[da.ExchangeID] = &daCopy
	return nil
}

func (s *MemoryStore) GetOrderBook(_ context.Context, id model.ExchangeID) (*model.OrderBook, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ob, ok := s.books[id]
	if !ok {
		return nil, fmt.Errorf("order book %d: %w", id, ErrNotFound)
	}
	copy := *ob
	return &copy, nil
}

func (s *MemoryStore) ListOrderBooks(_ context.Context) ([]model.OrderBook, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	books := make([]model.OrderBook, 0, len(s.books))
	// Newest first; IDs are assigned in submission order.
	for id := s.nextID; id >= 1; id-- {
		if ob, ok := s.books[id]; ok {
			books = append(books, *ob)
		}
	}
	return books, nil
}

func (s *MemoryStore) GetRiskAssessment(_ context.Context, id model.ExchangeID) (*model.RiskAssessment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ra, ok := s.risks[id]
	if !ok {
		return nil, fmt.Errorf("risk assessment %d: %w", id, ErrNotFound)
	}
	copy := *ra
	return &copy, nil
}

func (s *MemoryStore) GetDecryptedAssessment(_ context.Context, id model.ExchangeID) (*model.DecryptedAssessment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	da, ok := s.decrypted[id]
	if !ok {
		return nil, fmt.Errorf("decrypted assessment %d: %w", id, ErrNotFound)
	}
	copy := *da
	return &copy, nil
}

func (s *MemoryStore) CommitReveal(_ context.Context, id model.ExchangeID, liquidity, flashCrash, instability int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	da, ok := s.decrypted[id]
	if !ok {
		return fmt.Errorf("decrypted assessment %d: %w", id, ErrNotFound)
	}
	if da.Revealed {
		return ErrAlreadyRevealed
	}
	da.LiquidityImpact = liquidity
	da.FlashCrashRisk = flashCrash
	da.MarketInstability = instability
	da.Revealed = true
	return nil
}

func (s *MemoryStore) CreatePendingRequest(_ context.Context, pr *model.PendingRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.pending[pr.RequestID]; exists {
		return fmt.Errorf("request %s already recorded", pr.RequestID)
	}
	for _, existing := range s.pending {
		if !existing.Resolved && existing.ExchangeID == pr.ExchangeID && existing.Kind == pr.Kind {
			return ErrPendingExists
		}
	}

	copy := *pr
	s.pending[pr.RequestID] = &copy
	return nil
}

func (s *MemoryStore) GetPendingRequest(_ context.Context, requestID string) (*model.PendingRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pr, ok := s.pending[requestID]
	if !ok {
		return nil, fmt.Errorf("pending request %s: %w", requestID, ErrNotFound)
	}
	copy := *pr
	return &copy, nil
}

func (s *MemoryStore) PendingRequestFor(_ context.Context, id model.ExchangeID, kind model.RequestKind) (*model.PendingRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, pr := range s.pending {
		if !pr.Resolved && pr.ExchangeID == id && pr.Kind == kind {
			copy := *pr
			return &copy, nil
		}
	}
	return nil, fmt.Errorf("pending request for %d/%s: %w", id, kind, ErrNotFound)
}

func (s *MemoryStore) ResolvePendingRequest(_ context.Context, requestID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pr, ok := s.pending[requestID]
	if !ok {
		return fmt.Errorf("pending request %s: %w", requestID, ErrNotFound)
	}
	pr.Resolved = true
	return nil
}

func (s *MemoryStore) DeletePendingRequest(_ context.Context, requestID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.pending[requestID]; !ok {
		return fmt.Errorf("pending request %s: %w", requestID, ErrNotFound)
	}
	delete(s.pending, requestID)
	return nil
}

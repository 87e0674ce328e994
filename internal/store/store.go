// Package store defines the persistence interface for the risk engine.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// cache), and in-memory (for testing).
package store

import (
	"context"
	"errors"

	"github.com/sealedbook/risk-engine/internal/model"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("store: record not found")

	// ErrAlreadyRevealed is returned by CommitReveal when the assessment
	// was already revealed. The revealed flag is monotone; once set it
	// never reverts and no further plaintext mutation is permitted.
	ErrAlreadyRevealed = errors.New("store: assessment already revealed")

	// ErrPendingExists is returned by CreatePendingRequest when an
	// unresolved request already exists for the same (exchange ID, kind).
	ErrPendingExists = errors.New("store: pending decryption request already exists")
)

// Store is the persistence interface. One append-only identity counter,
// three record tables keyed by exchange ID, and one pending-request table
// keyed by oracle request ID.
type Store interface {
	// NextExchangeID allocates a fresh exchange ID. IDs are strictly
	// increasing, start at 1, and are never reused.
	NextExchangeID(ctx context.Context) (model.ExchangeID, error)

	// CreateSubmission persists an order book together with its risk
	// assessment and un-revealed decrypted-assessment placeholder as one
	// atomic unit. No observer ever sees an order book without its paired
	// assessment records.
	CreateSubmission(ctx context.Context, ob *model.OrderBook, ra *model.RiskAssessment, da *model.DecryptedAssessment) error

	// GetOrderBook retrieves an order book by exchange ID.
	GetOrderBook(ctx context.Context, id model.ExchangeID) (*model.OrderBook, error)

	// ListOrderBooks returns all order books, newest first.
	ListOrderBooks(ctx context.Context) ([]model.OrderBook, error)

	// GetRiskAssessment retrieves the encrypted risk metrics.
	GetRiskAssessment(ctx context.Context, id model.ExchangeID) (*model.RiskAssessment, error)

	// GetDecryptedAssessment retrieves the plaintext assessment record.
	GetDecryptedAssessment(ctx context.Context, id model.ExchangeID) (*model.DecryptedAssessment, error)

	// CommitReveal writes the plaintext metrics and flips revealed to
	// true, but only if the record is not yet revealed. Returns
	// ErrAlreadyRevealed otherwise; the record is left untouched.
	CommitReveal(ctx context.Context, id model.ExchangeID, liquidity, flashCrash, instability int64) error

	// CreatePendingRequest records an outstanding decryption request.
	// Returns ErrPendingExists if one is already unresolved for the same
	// (exchange ID, kind) pair.
	CreatePendingRequest(ctx context.Context, pr *model.PendingRequest) error

	// GetPendingRequest retrieves a pending request by oracle request ID,
	// whether resolved or not.
	GetPendingRequest(ctx context.Context, requestID string) (*model.PendingRequest, error)

	// PendingRequestFor retrieves the unresolved request for an
	// (exchange ID, kind) pair, if any.
	PendingRequestFor(ctx context.Context, id model.ExchangeID, kind model.RequestKind) (*model.PendingRequest, error)

	// ResolvePendingRequest marks a pending request resolved. The record
	// is retained so a replayed callback for the same request ID can be
	// recognized instead of reported as unknown.
	ResolvePendingRequest(ctx context.Context, requestID string) error

	// DeletePendingRequest removes a pending request outright. Used when
	// a stale unresolved request is superseded.
	DeletePendingRequest(ctx context.Context, requestID string) error
}

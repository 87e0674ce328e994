package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sealedbook/risk-engine/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// Ciphertext handles are stored as TEXT (they are opaque tokens), plaintext
// metrics as BIGINT. Exchange IDs come from a dedicated sequence so they
// are strictly increasing and never reused, even across restarts.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// InitSchema creates the tables, sequence, and indexes if they do not exist.
// Safe to call on every startup.
func (s *PostgresStore) InitSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE SEQUENCE IF NOT EXISTS exchange_id_seq START 1;

		CREATE TABLE IF NOT EXISTS order_books (
			exchange_id  BIGINT PRIMARY KEY,
			owner        TEXT NOT NULL,
			bid_orders   TEXT NOT NULL,
			ask_orders   TEXT NOT NULL,
			order_flow   TEXT NOT NULL,
			volatility   TEXT NOT NULL,
			submitted_at TIMESTAMPTZ NOT NULL
		);

		CREATE TABLE IF NOT EXISTS risk_assessments (
			exchange_id        BIGINT PRIMARY KEY REFERENCES order_books(exchange_id),
			liquidity_impact   TEXT NOT NULL,
			flash_crash_risk   TEXT NOT NULL,
			market_instability TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS decrypted_assessments (
			exchange_id        BIGINT PRIMARY KEY REFERENCES order_books(exchange_id),
			liquidity_impact   BIGINT NOT NULL,
			flash_crash_risk   BIGINT NOT NULL,
			market_instability BIGINT NOT NULL,
			revealed           BOOLEAN NOT NULL DEFAULT FALSE
		);

		CREATE TABLE IF NOT EXISTS pending_requests (
			request_id  TEXT PRIMARY KEY,
			exchange_id BIGINT NOT NULL REFERENCES order_books(exchange_id),
			owner       TEXT NOT NULL,
			kind        TEXT NOT NULL,
			created_at  TIMESTAMPTZ NOT NULL,
			resolved    BOOLEAN NOT NULL DEFAULT FALSE
		);

		CREATE UNIQUE INDEX IF NOT EXISTS pending_requests_unresolved_idx
			ON pending_requests (exchange_id, kind) WHERE NOT resolved;
	`)
	if err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) NextExchangeID(ctx context.Context) (model.ExchangeID, error) {
	var id uint64
	err := s.pool.QueryRow(ctx, `SELECT nextval('exchange_id_seq')`).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("next exchange id: %w", err)
	}
	return model.ExchangeID(id), nil
}

// CreateSubmission inserts all three records in one transaction so a
// failure during risk assessment persistence never leaves an orphan
// order book.
func (s *PostgresStore) CreateSubmission(ctx context.Context, ob *model.OrderBook, ra *model.RiskAssessment, da *model.DecryptedAssessment) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin submission: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO order_books (exchange_id, owner, bid_orders, ask_orders, order_flow, volatility, submitted_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		int64(ob.ExchangeID), ob.Owner,
		string(ob.BidOrders), string(ob.AskOrders), string(ob.OrderFlow), string(ob.Volatility),
		ob.SubmittedAt,
	)
	if err != nil {
		return fmt.Errorf("insert order book: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO risk_assessments (exchange_id, liquidity_impact, flash_crash_risk, market_instability)
		 VALUES ($1, $2, $3, $4)`,
		int64(ra.ExchangeID),
		string(ra.LiquidityImpact), string(ra.FlashCrashRisk), string(ra.MarketInstability),
	)
	if err != nil {
		return fmt.Errorf("insert risk assessment: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO decrypted_assessments (exchange_id, liquidity_impact, flash_crash_risk, market_instability, revealed)
		 VALUES ($1, $2, $3, $4, $5)`,
		int64(da.ExchangeID),
		da.LiquidityImpact, da.FlashCrashRisk, da.MarketInstability, da.Revealed,
	)
	if err != nil {
		return fmt.Errorf("insert decrypted assessment: %w", err)
	}

	return tx.Commit(ctx)
}

func (s *PostgresStore) GetOrderBook(ctx context.Context, id model.ExchangeID) (*model.OrderBook, error) {
	var ob model.OrderBook
	var eid int64
	var bid, ask, flow, vol string

	err := s.pool.QueryRow(ctx,
		`SELECT exchange_id, owner, bid_orders, ask_orders, order_flow, volatility, submitted_at
		 FROM order_books WHERE exchange_id = $1`, int64(id)).
		Scan(&eid, &ob.Owner, &bid, &ask, &flow, &vol, &ob.SubmittedAt)
	if err != nil {
		return nil, wrapNotFound(err, "order book %d", id)
	}

	ob.ExchangeID = model.ExchangeID(eid)
	ob.BidOrders = model.Handle(bid)
	ob.AskOrders = model.Handle(ask)
	ob.OrderFlow = model.Handle(flow)
	ob.Volatility = model.Handle(vol)
	return &ob, nil
}

func (s *PostgresStore) ListOrderBooks(ctx context.Context) ([]model.OrderBook, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT exchange_id, owner, bid_orders, ask_orders, order_flow, volatility, submitted_at
		 FROM order_books ORDER BY exchange_id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var books []model.OrderBook
	for rows.Next() {
		var ob model.OrderBook
		var eid int64
		var bid, ask, flow, vol string
		if err := rows.Scan(&eid, &ob.Owner, &bid, &ask, &flow, &vol, &ob.SubmittedAt); err != nil {
			return nil, err
		}
		ob.ExchangeID = model.ExchangeID(eid)
		ob.BidOrders = model.Handle(bid)
		ob.AskOrders = model.Handle(ask)
		ob.OrderFlow = model.Handle(flow)
		ob.Volatility = model.Handle(vol)
		books = append(books, ob)
	}
	return books, rows.Err()
}

func (s *PostgresStore) GetRiskAssessment(ctx context.Context, id model.ExchangeID) (*model.RiskAssessment, error) {
	var ra model.RiskAssessment
	var eid int64
	var liquidity, flashCrash, instability string

	err := s.pool.QueryRow(ctx,
		`SELECT exchange_id, liquidity_impact, flash_crash_risk, market_instability
		 FROM risk_assessments WHERE exchange_id = $1`, int64(id)).
		Scan(&eid, &liquidity, &flashCrash, &instability)
	if err != nil {
		return nil, wrapNotFound(err, "risk assessment %d", id)
	}

	ra.ExchangeID = model.ExchangeID(eid)
	ra.LiquidityImpact = model.Handle(liquidity)
	ra.FlashCrashRisk = model.Handle(flashCrash)
	ra.MarketInstability = model.Handle(instability)
	return &ra, nil
}

func (s *PostgresStore) GetDecryptedAssessment(ctx context.Context, id model.ExchangeID) (*model.DecryptedAssessment, error) {
	var da model.DecryptedAssessment
	var eid int64

	err := s.pool.QueryRow(ctx,
		`SELECT exchange_id, liquidity_impact, flash_crash_risk, market_instability, revealed
		 FROM decrypted_assessments WHERE exchange_id = $1`, int64(id)).
		Scan(&eid, &da.LiquidityImpact, &da.FlashCrashRisk, &da.MarketInstability, &da.Revealed)
	if err != nil {
		return nil, wrapNotFound(err, "decrypted assessment %d", id)
	}

	da.ExchangeID = model.ExchangeID(eid)
	return &da, nil
}

// CommitReveal uses a conditional UPDATE so the revealed flag can only ever
// transition false→true, regardless of how many callbacks race for it.
func (s *PostgresStore) CommitReveal(ctx context.Context, id model.ExchangeID, liquidity, flashCrash, instability int64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE decrypted_assessments
		 SET liquidity_impact = $2, flash_crash_risk = $3, market_instability = $4, revealed = TRUE
		 WHERE exchange_id = $1 AND revealed = FALSE`,
		int64(id), liquidity, flashCrash, instability,
	)
	if err != nil {
		return fmt.Errorf("commit reveal %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		// Either absent or already revealed; distinguish for the caller.
		if _, err := s.GetDecryptedAssessment(ctx, id); err != nil {
			return err
		}
		return ErrAlreadyRevealed
	}
	return nil
}

func (s *PostgresStore) CreatePendingRequest(ctx context.Context, pr *model.PendingRequest) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO pending_requests (request_id, exchange_id, owner, kind, created_at, resolved)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		pr.RequestID, int64(pr.ExchangeID), pr.Owner, string(pr.Kind), pr.CreatedAt, pr.Resolved,
	)
	if err != nil {
		// A partial UNIQUE index on (exchange_id, kind) WHERE NOT resolved
		// enforces at most one unresolved request per pair.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrPendingExists
		}
		return fmt.Errorf("insert pending request: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetPendingRequest(ctx context.Context, requestID string) (*model.PendingRequest, error) {
	pr, err := s.scanPendingRequest(s.pool.QueryRow(ctx,
		`SELECT request_id, exchange_id, owner, kind, created_at, resolved
		 FROM pending_requests WHERE request_id = $1`, requestID))
	if err != nil {
		return nil, wrapNotFound(err, "pending request %s", requestID)
	}
	return pr, nil
}

func (s *PostgresStore) PendingRequestFor(ctx context.Context, id model.ExchangeID, kind model.RequestKind) (*model.PendingRequest, error) {
	pr, err := s.scanPendingRequest(s.pool.QueryRow(ctx,
		`SELECT request_id, exchange_id, owner, kind, created_at, resolved
		 FROM pending_requests WHERE exchange_id = $1 AND kind = $2 AND resolved = FALSE`,
		int64(id), string(kind)))
	if err != nil {
		return nil, wrapNotFound(err, "pending request for %d/%s", id, kind)
	}
	return pr, nil
}

func (s *PostgresStore) ResolvePendingRequest(ctx context.Context, requestID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE pending_requests SET resolved = TRUE
		 WHERE request_id = $1 AND resolved = FALSE`, requestID)
	if err != nil {
		return fmt.Errorf("resolve pending request %s: %w", requestID, err)
	}
	if tag.RowsAffected() == 0 {
		// Absent or already resolved; only the former is an error.
		if _, err := s.GetPendingRequest(ctx, requestID); err != nil {
			return err
		}
	}
	return nil
}

func (s *PostgresStore) DeletePendingRequest(ctx context.Context, requestID string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM pending_requests WHERE request_id = $1`, requestID)
	if err != nil {
		return fmt.Errorf("delete pending request %s: %w", requestID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("pending request %s: %w", requestID, ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) scanPendingRequest(row pgx.Row) (*model.PendingRequest, error) {
	var pr model.PendingRequest
	var eid int64
	var kind string

	if err := row.Scan(&pr.RequestID, &eid, &pr.Owner, &kind, &pr.CreatedAt, &pr.Resolved); err != nil {
		return nil, err
	}
	pr.ExchangeID = model.ExchangeID(eid)
	pr.Kind = model.RequestKind(kind)
	return &pr, nil
}

// wrapNotFound maps pgx.ErrNoRows onto the store's ErrNotFound sentinel.
func wrapNotFound(err error, format string, args ...interface{}) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf(format+": %w", append(args, ErrNotFound)...)
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

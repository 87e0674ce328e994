package fhe

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/sealedbook/risk-engine/internal/model"
	"github.com/sealedbook/risk-engine/internal/wire"
)

// Simulator is a plaintext-backed Engine for development and tests. It keeps
// the cleartext of every handle in memory and authenticates oracle proofs
// with an HMAC key known only to itself, so the rest of the system sees the
// same opaque-handle contract a real scheme would present.
//
// Simulator also plays the oracle side: Fulfill produces the cleartext and
// proof for an outstanding request, and Requests exposes new decryption jobs
// for an oracle loop to consume.
type Simulator struct {
	mu       sync.Mutex
	values   map[model.Handle]int64
	requests map[string][]model.Handle
	key      []byte
	notify   chan DecryptionRequest
}

// NewSimulator creates a simulator with a fresh random proof key.
func NewSimulator() *Simulator {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		panic(fmt.Sprintf("fhe: rng unavailable: %v", err))
	}
	return &Simulator{
		values:   make(map[model.Handle]int64),
		requests: make(map[string][]model.Handle),
		key:      key,
		notify:   make(chan DecryptionRequest, 256),
	}
}

// Encrypt encrypts a caller-supplied value and returns its handle. This is
// the client-side primitive the presentation layer uses to build ciphertext
// submissions; the core itself only ever calls EncryptConstant.
func (s *Simulator) Encrypt(value int64) model.Handle {
	h := model.Handle("ct-" + uuid.New().String())
	s.mu.Lock()
	s.values[h] = value
	s.mu.Unlock()
	return h
}

// EncryptConstant implements Engine.
func (s *Simulator) EncryptConstant(_ context.Context, value int64) (model.Handle, error) {
	return s.Encrypt(value), nil
}

// Add implements Engine.
func (s *Simulator) Add(ctx context.Context, a, b model.Handle) (model.Handle, error) {
	return s.binop(a, b, func(x, y int64) (int64, error) { return x + y, nil })
}

// Sub implements Engine.
func (s *Simulator) Sub(ctx context.Context, a, b model.Handle) (model.Handle, error) {
	return s.binop(a, b, func(x, y int64) (int64, error) { return x - y, nil })
}

// Mul implements Engine.
func (s *Simulator) Mul(ctx context.Context, a, b model.Handle) (model.Handle, error) {
	return s.binop(a, b, func(x, y int64) (int64, error) { return x * y, nil })
}

// Div implements Engine. Integer division, truncated toward zero.
func (s *Simulator) Div(ctx context.Context, a, b model.Handle) (model.Handle, error) {
	return s.binop(a, b, func(x, y int64) (int64, error) {
		if y == 0 {
			return 0, ErrDivisionByZero
		}
		return x / y, nil
	})
}

func (s *Simulator) binop(a, b model.Handle, op func(x, y int64) (int64, error)) (model.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	x, ok := s.values[a]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownHandle, a)
	}
	y, ok := s.values[b]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownHandle, b)
	}

	v, err := op(x, y)
	if err != nil {
		return "", err
	}
	h := model.Handle("ct-" + uuid.New().String())
	s.values[h] = v
	return h, nil
}

// RequestDecryption implements Engine. The request is recorded and published
// on the Requests channel for an oracle loop to pick up.
func (s *Simulator) RequestDecryption(_ context.Context, handles []model.Handle) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, h := range handles {
		if _, ok := s.values[h]; !ok {
			return "", fmt.Errorf("%w: %s", ErrUnknownHandle, h)
		}
	}

	id := uuid.New().String()
	s.requests[id] = append([]model.Handle(nil), handles...)

	select {
	case s.notify <- DecryptionRequest{RequestID: id, Handles: handles}:
	default:
		slog.Warn("fhe simulator: request channel full, oracle loop will not see this request", "request_id", id)
	}
	return id, nil
}

// Requests returns the stream of decryption jobs awaiting fulfillment.
func (s *Simulator) Requests() <-chan DecryptionRequest {
	return s.notify
}

// Fulfill produces the oracle's answer for an outstanding request: the
// fixed-width cleartext of the requested handles plus a proof binding the
// cleartext to the request.
func (s *Simulator) Fulfill(requestID string) (cleartext, proof []byte, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	handles, ok := s.requests[requestID]
	if !ok {
		return nil, nil, fmt.Errorf("fhe: no decryption request %s", requestID)
	}

	values := make([]int64, len(handles))
	for i, h := range handles {
		values[i] = s.values[h]
	}
	cleartext = wire.EncodeCleartext(values)
	return cleartext, s.sign(requestID, cleartext), nil
}

// Sign computes the proof the oracle side would attach to cleartext for
// requestID. Tests use it to build well-signed but otherwise invalid
// callbacks.
func (s *Simulator) Sign(requestID string, cleartext []byte) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sign(requestID, cleartext)
}

// VerifyDecryptionProof implements Engine.
func (s *Simulator) VerifyDecryptionProof(_ context.Context, requestID string, cleartext, proof []byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return hmac.Equal(proof, s.sign(requestID, cleartext)), nil
}

// sign computes the proof MAC over requestID || cleartext. Callers hold mu.
func (s *Simulator) sign(requestID string, cleartext []byte) []byte {
	mac := hmac.New(sha256.New, s.key)
	mac.Write([]byte(requestID))
	mac.Write(cleartext)
	return mac.Sum(nil)
}

// Package fhe defines the homomorphic engine boundary. The core performs
// ciphertext arithmetic and decryption requests exclusively through the
// Engine interface and never inspects handle internals; the concrete scheme
// lives behind this boundary.
package fhe

import (
	"context"
	"errors"

	"github.com/sealedbook/risk-engine/internal/model"
)

var (
	// ErrUnknownHandle is returned when an operand handle was not issued
	// by this engine.
	ErrUnknownHandle = errors.New("fhe: unknown ciphertext handle")

	// ErrDivisionByZero is returned by Div when the divisor ciphertext
	// holds zero.
	ErrDivisionByZero = errors.New("fhe: division by zero")
)

// Engine is the homomorphic arithmetic and decryption-request capability
// consumed by the core. All operations take and return opaque handles.
type Engine interface {
	// EncryptConstant encrypts a public constant and returns its handle.
	EncryptConstant(ctx context.Context, value int64) (model.Handle, error)

	// Add returns a handle to the encrypted sum a+b.
	Add(ctx context.Context, a, b model.Handle) (model.Handle, error)

	// Sub returns a handle to the encrypted difference a-b. Not commutative.
	Sub(ctx context.Context, a, b model.Handle) (model.Handle, error)

	// Mul returns a handle to the encrypted product a*b.
	Mul(ctx context.Context, a, b model.Handle) (model.Handle, error)

	// Div returns a handle to the encrypted integer quotient a/b.
	// Not commutative.
	Div(ctx context.Context, a, b model.Handle) (model.Handle, error)

	// RequestDecryption asks the decryption oracle to reveal the given
	// handles. It returns an opaque request identifier; the cleartext
	// arrives later through an oracle callback keyed by that identifier.
	RequestDecryption(ctx context.Context, handles []model.Handle) (string, error)

	// VerifyDecryptionProof checks that cleartext genuinely corresponds to
	// the ciphertexts submitted under requestID. It is the sole trust
	// anchor for oracle callbacks.
	VerifyDecryptionProof(ctx context.Context, requestID string, cleartext, proof []byte) (bool, error)
}

// DecryptionRequest is one decryption job emitted by an engine for the
// oracle to fulfill.
type DecryptionRequest struct {
	RequestID string
	Handles   []model.Handle
}

package fhe

import (
	"context"
	"errors"
	"testing"

	"github.com/sealedbook/risk-engine/internal/model"
	"github.com/sealedbook/risk-engine/internal/wire"
)

// decrypt is a test helper that reveals a single handle through the full
// request/fulfill/decode path.
func decrypt(t *testing.T, sim *Simulator, h model.Handle) int64 {
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

func TestArithmetic(t *testing.T) {
	sim := NewSimulator()
	ctx := context.Background()

	a := sim.Encrypt(500)
	b := sim.Encrypt(300)

	sum, err := sim.Add(ctx, a, b)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if got := decrypt(t, sim, sum); got != 800 {
		t.Errorf("add: expected 800, got %d", got)
	}

	diff, err := sim.Sub(ctx, a, b)
	if err != nil {
		t.Fatalf("sub: %v", err)
	}
	if got := decrypt(t, sim, diff); got != 200 {
		t.Errorf("sub: expected 200, got %d", got)
	}

	// Subtraction is not commutative.
	diffRev, _ := sim.Sub(ctx, b, a)
	if got := decrypt(t, sim, diffRev); got != -200 {
		t.Errorf("sub reversed: expected -200, got %d", got)
	}

	prod, err := sim.Mul(ctx, a, b)
	if err != nil {
		t.Fatalf("mul: %v", err)
	}
	if got := decrypt(t, sim, prod); got != 150000 {
		t.Errorf("mul: expected 150000, got %d", got)
	}

	quot, err := sim.Div(ctx, a, b)
	if err != nil {
		t.Fatalf("div: %v", err)
	}
	if got := decrypt(t, sim, quot); got != 1 {
		t.Errorf("div: expected truncated quotient 1, got %d", got)
	}
}

func TestDiv_ByZero(t *testing.T) {
	sim := NewSimulator()
	a := sim.Encrypt(10)
	zero := sim.Encrypt(0)

	if _, err := sim.Div(context.Background(), a, zero); !errors.Is(err, ErrDivisionByZero) {
		t.Errorf("expected ErrDivisionByZero, got %v", err)
	}
}

func TestUnknownHandle(t *testing.T) {
	sim := NewSimulator()
	a := sim.Encrypt(10)

	if _, err := sim.Add(context.Background(), a, model.Handle("ct-bogus")); !errors.Is(err, ErrUnknownHandle) {
		t.Errorf("expected ErrUnknownHandle, got %v", err)
	}
	if _, err := sim.RequestDecryption(context.Background(), []model.Handle{"ct-bogus"}); !errors.Is(err, ErrUnknownHandle) {
		t.Errorf("expected ErrUnknownHandle for decryption request, got %v", err)
	}
}

func TestEncryptConstant_HandlesAreOpaque(t *testing.T) {
	sim := NewSimulator()
	h1, _ := sim.EncryptConstant(context.Background(), 100)
	h2, _ := sim.EncryptConstant(context.Background(), 100)

	if h1 == h2 {
		t.Error("two encryptions of the same constant should yield distinct handles")
	}
}

func TestProofVerification(t *testing.T) {
	sim := NewSimulator()
	ctx := context.Background()

	h := sim.Encrypt(42)
	id, err := sim.RequestDecryption(ctx, []model.Handle{h})
	if err != nil {
		t.Fatalf("request decryption: %v", err)
	}

	cleartext, proof, err := sim.Fulfill(id)
	if err != nil {
		t.Fatalf("fulfill: %v", err)
	}

	ok, err := sim.VerifyDecryptionProof(ctx, id, cleartext, proof)
	if err != nil || !ok {
		t.Fatalf("genuine proof should verify: ok=%v err=%v", ok, err)
	}

	// Tampered cleartext.
	forged := wire.EncodeCleartext([]int64{999})
	ok, _ = sim.VerifyDecryptionProof(ctx, id, forged, proof)
	if ok {
		t.Error("proof should not verify for tampered cleartext")
	}

	// Tampered proof.
	badProof := append([]byte(nil), proof...)
	badProof[0] ^= 0xff
	ok, _ = sim.VerifyDecryptionProof(ctx, id, cleartext, badProof)
	if ok {
		t.Error("tampered proof should not verify")
	}

	// Proof bound to a different request ID.
	id2, _ := sim.RequestDecryption(ctx, []model.Handle{h})
	ok, _ = sim.VerifyDecryptionProof(ctx, id2, cleartext, proof)
	if ok {
		t.Error("proof should be bound to its request ID")
	}
}

func TestRequestsChannel(t *testing.T) {
	sim := NewSimulator()
	h := sim.Encrypt(7)

	id, err := sim.RequestDecryption(context.Background(), []model.Handle{h})
	if err != nil {
		t.Fatalf("request decryption: %v", err)
	}

	select {
	case req := <-sim.Requests():
		if req.RequestID != id {
			t.Errorf("expected request %s on channel, got %s", id, req.RequestID)
		}
		if len(req.Handles) != 1 || req.Handles[0] != h {
			t.Errorf("unexpected handles: %v", req.Handles)
		}
	default:
		t.Fatal("expected a decryption job on the channel")
	}
}

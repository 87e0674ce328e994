// Package oracle provides a local stand-in for the trusted decryption
// oracle. It consumes decryption jobs from the simulator engine and feeds
// the resulting cleartext and proof back into the coordinator after a
// configurable delay, exercising the full asynchronous reveal round trip in
// development without an external service.
package oracle

import (
	"context"
	"log/slog"
	"time"

	"github.com/sealedbook/risk-engine/internal/fhe"
)

// CallbackHandler is the coordinator-side entry point for oracle callbacks.
type CallbackHandler interface {
	HandleCallback(ctx context.Context, requestID string, cleartext, proof []byte) error
}

// Local fulfills simulator decryption requests asynchronously.
type Local struct {
	sim     *fhe.Simulator
	handler CallbackHandler
	delay   time.Duration
}

// NewLocal creates a local oracle answering after the given delay.
func NewLocal(sim *fhe.Simulator, handler CallbackHandler, delay time.Duration) *Local {
	return &Local{
		sim:     sim,
		handler: handler,
		delay:   delay,
	}
}

// Run consumes decryption jobs until ctx is cancelled. Must be called in a
// goroutine.
func (o *Local) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-o.sim.Requests():
			go o.fulfill(ctx, req.RequestID)
		}
	}
}

func (o *Local) fulfill(ctx context.Context, requestID string) {
	if o.delay > 0 {
		t := time.NewTimer(o.delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}

	cleartext, proof, err := o.sim.Fulfill(requestID)
	if err != nil {
		slog.Error("oracle fulfillment failed", "request_id", requestID, "err", err)
		return
	}

	if err := o.handler.HandleCallback(ctx, requestID, cleartext, proof); err != nil {
		// A superseded request resolves to an unknown-request error here;
		// that is the expected end of its lifecycle.
		slog.Warn("oracle callback not accepted", "request_id", requestID, "err", err)
		return
	}
	slog.Info("oracle callback delivered", "request_id", requestID)
}

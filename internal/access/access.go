// Package access implements the ownership and reveal-state policy consulted
// before any decryption request is issued. The controller holds no mutable
// state of its own — it is a side-effect-free view over the store, so the
// predicates can be exercised in tests independent of the mutation paths.
package access

import (
	"context"

	"github.com/sealedbook/risk-engine/internal/model"
	"github.com/sealedbook/risk-engine/internal/store"
)

// Controller answers ownership and reveal-state questions.
type Controller struct {
	store store.Store
}

// NewController creates a controller reading from st.
func NewController(st store.Store) *Controller {
	return &Controller{store: st}
}

// IsOwner reports whether principal owns the order book with the given
// exchange ID. Only the owner may request decryption of its records.
func (c *Controller) IsOwner(ctx context.Context, principal string, id model.ExchangeID) (bool, error) {
	ob, err := c.store.GetOrderBook(ctx, id)
	if err != nil {
		return false, err
	}
	return ob.Owner == principal, nil
}

// IsRevealed reports whether the record targeted by kind has already been
// revealed. Raw order-book plaintext is never retained, so KindOrderBook is
// never in a revealed state and may be requested repeatedly.
func (c *Controller) IsRevealed(ctx context.Context, id model.ExchangeID, kind model.RequestKind) (bool, error) {
	if kind == model.KindOrderBook {
		return false, nil
	}
	da, err := c.store.GetDecryptedAssessment(ctx, id)
	if err != nil {
		return false, err
	}
	return da.Revealed, nil
}

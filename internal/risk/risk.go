// Package risk derives encrypted risk metrics from an encrypted order book.
//
// The three formulas are fixed and evaluated entirely in ciphertext space:
//
//	liquidityImpact   = (bidOrders - askOrders) / 100
//	flashCrashRisk    = orderFlow * 2
//	marketInstability = (volatility * 3) + (orderFlow / 5)
//
// Operand order matters: homomorphic subtraction and division are not
// commutative, and the engine defines no negative-number semantics beyond
// what the ciphertext scheme provides. This package never causes a
// decryption.
package risk

import (
	"context"
	"fmt"

	"github.com/sealedbook/risk-engine/internal/fhe"
	"github.com/sealedbook/risk-engine/internal/model"
)

// Divisor and multiplier constants of the risk formulas.
const (
	LiquidityDivisor     = 100
	FlashCrashMultiplier = 2
	InstabilityWeight    = 3
	FlowDampening        = 5
)

// Assessor computes risk assessments through a homomorphic engine.
// It is stateless — order-book ciphertexts are passed in, not stored.
type Assessor struct {
	engine fhe.Engine
}

// NewAssessor creates an assessor backed by the given engine.
func NewAssessor(engine fhe.Engine) *Assessor {
	return &Assessor{engine: engine}
}

// Assess derives the three encrypted risk metrics for ob. The result is a
// pure function of the input ciphertexts and the formula constants.
func (a *Assessor) Assess(ctx context.Context, ob *model.OrderBook) (*model.RiskAssessment, error) {
	liquidity, err := a.liquidityImpact(ctx, ob.BidOrders, ob.AskOrders)
	if err != nil {
		return nil, fmt.Errorf("liquidity impact: %w", err)
	}

	flashCrash, err := a.flashCrashRisk(ctx, ob.OrderFlow)
	if err != nil {
		return nil, fmt.Errorf("flash crash risk: %w", err)
	}

	instability, err := a.marketInstability(ctx, ob.Volatility, ob.OrderFlow)
	if err != nil {
		return nil, fmt.Errorf("market instability: %w", err)
	}

	return &model.RiskAssessment{
		ExchangeID:        ob.ExchangeID,
		LiquidityImpact:   liquidity,
		FlashCrashRisk:    flashCrash,
		MarketInstability: instability,
	}, nil
}

// liquidityImpact = (bid - ask) / 100
func (a *Assessor) liquidityImpact(ctx context.Context, bid, ask model.Handle) (model.Handle, error) {
	spread, err := a.engine.Sub(ctx, bid, ask)
	if err != nil {
		return "", err
	}
	hundred, err := a.engine.EncryptConstant(ctx, LiquidityDivisor)
	if err != nil {
		return "", err
	}
	return a.engine.Div(ctx, spread, hundred)
}

// flashCrashRisk = flow * 2
func (a *Assessor) flashCrashRisk(ctx context.Context, flow model.Handle) (model.Handle, error) {
	two, err := a.engine.EncryptConstant(ctx, FlashCrashMultiplier)
	if err != nil {
		return "", err
	}
	return a.engine.Mul(ctx, flow, two)
}

// marketInstability = (vol * 3) + (flow / 5)
func (a *Assessor) marketInstability(ctx context.Context, vol, flow model.Handle) (model.Handle, error) {
	three, err := a.engine.EncryptConstant(ctx, InstabilityWeight)
	if err != nil {
		return "", err
	}
	weighted, err := a.engine.Mul(ctx, vol, three)
	if err != nil {
		return "", err
	}

	five, err := a.engine.EncryptConstant(ctx, FlowDampening)
	if err != nil {
		return "", err
	}
	dampened, err := a.engine.Div(ctx, flow, five)
	if err != nil {
		return "", err
	}

	return a.engine.Add(ctx, weighted, dampened)
}

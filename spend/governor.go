// Package spend tracks what a single agent session has paid and enforces an
// optional cap on it.
//
// A Governor belongs to one session. Each method is individually locked,
// but CanSpend followed by RecordSpend is not atomic: two concurrent calls
// can both pass CanSpend before either records. Callers that pay
// concurrently must hold their own lock around the pair.
package spend

import (
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	x402 "github.com/skillpay/x402-skills"
)

// Decimals is the atomic precision of the tracked stablecoin
const Decimals = 6

// Unlimited is reported for the cap and remaining budget of an unlimited session
const Unlimited = "unlimited"

// Governor tracks session spend in atomic units
type Governor struct {
	mu        sync.Mutex
	cap       *big.Int
	spent     *big.Int
	callCount int
	limited   bool
}

// Status is a snapshot of the session budget. Currency fields have two decimals.
type Status struct {
	MaxBudget string `json:"maxBudget"`
	Spent     string `json:"spent"`
	Remaining string `json:"remaining"`
	CallCount int    `json:"callCount"`
	IsLimited bool   `json:"isLimited"`
}

// New returns an unlimited governor with nothing spent
func New() *Governor {
	return &Governor{
		cap:   new(big.Int),
		spent: new(big.Int),
	}
}

// SetLimit caps the session at a dollar amount such as "1.00" or "$0.50".
// Spend already recorded is kept.
func (g *Governor) SetLimit(usd string) error {
	value, err := decimal.NewFromString(strings.TrimPrefix(strings.TrimSpace(usd), "$"))
	if err != nil {
		return x402.NewValidationError(x402.ErrCodeInvalidAmount, fmt.Sprintf("invalid spend limit %q", usd))
	}
	if value.IsNegative() {
		return x402.NewValidationError(x402.ErrCodeInvalidAmount, fmt.Sprintf("spend limit must be non-negative: %s", usd))
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.cap = value.Shift(Decimals).Floor().BigInt()
	g.limited = true
	return nil
}

// ClearLimit removes the cap without touching spend history
func (g *Governor) ClearLimit() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cap = new(big.Int)
	g.limited = false
}

// CanSpend reports whether an atomic cost fits in the remaining budget.
// Unlimited sessions can always spend; malformed costs never can.
func (g *Governor) CanSpend(cost string) bool {
	amount, err := x402.ParseAtomicAmount(cost)
	if err != nil {
		return false
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.limited {
		return true
	}
	next := new(big.Int).Add(g.spent, amount)
	return next.Cmp(g.cap) <= 0
}

// RecordSpend adds an atomic cost to the session. It does not check the cap.
func (g *Governor) RecordSpend(cost string) error {
	amount, err := x402.ParseAtomicAmount(cost)
	if err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.spent = new(big.Int).Add(g.spent, amount)
	g.callCount++
	return nil
}

// Reset zeroes spend and call count. The cap is left as is.
func (g *Governor) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.spent = new(big.Int)
	g.callCount = 0
}

// Remaining returns the atomic budget left, floored at zero, and whether the
// session is limited at all
func (g *Governor) Remaining() (*big.Int, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.limited {
		return nil, false
	}
	return g.remaining(), true
}

func (g *Governor) remaining() *big.Int {
	remaining := new(big.Int).Sub(g.cap, g.spent)
	if remaining.Sign() < 0 {
		remaining.SetInt64(0)
	}
	return remaining
}

// Status returns the current budget snapshot
func (g *Governor) Status() Status {
	g.mu.Lock()
	defer g.mu.Unlock()

	status := Status{
		MaxBudget: Unlimited,
		Spent:     formatUSD(g.spent),
		Remaining: Unlimited,
		CallCount: g.callCount,
		IsLimited: g.limited,
	}
	if g.limited {
		status.MaxBudget = formatUSD(g.cap)
		status.Remaining = formatUSD(g.remaining())
	}
	return status
}

func formatUSD(atomic *big.Int) string {
	return decimal.NewFromBigInt(atomic, -Decimals).StringFixed(2)
}

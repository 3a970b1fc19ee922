package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"

	"ms-booking/internal/models"
)

// DefaultDiscountRate is the platform-wide discount applied when no override is configured.
var DefaultDiscountRate = decimal.RequireFromString("0.10")

// CurrencyScale is the number of minor-unit digits amounts are kept at.
const CurrencyScale int32 = 2

// Policy holds the discount configuration injected per deployment.
type Policy struct {
	DiscountRate decimal.Decimal
}

// DefaultPolicy returns the policy with DefaultDiscountRate.
func DefaultPolicy() Policy {
	return Policy{DiscountRate: DefaultDiscountRate}
}

// Item is the priced part of a line item.
type Item struct {
	Price decimal.Decimal
}

// Result represents the outcome of pricing a set of line items
type Result struct {
	TotalAmount decimal.Decimal `json:"total_amount"`
	Discount    decimal.Decimal `json:"discount"`
	FinalAmount decimal.Decimal `json:"final_amount"`
}

// Calculator prices line items under a fixed discount policy. It holds no mutable state.
type Calculator struct {
	policy Policy
}

// NewCalculator validates the policy and returns a Calculator for it.
func NewCalculator(policy Policy) (*Calculator, error) {
	if policy.DiscountRate.IsNegative() || policy.DiscountRate.GreaterThan(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("%w: discount rate %s must be within [0, 1]", models.ErrInvalidInput, policy.DiscountRate)
	}
	return &Calculator{policy: policy}, nil
}

// Rate returns the configured discount rate.
func (c *Calculator) Rate() decimal.Decimal {
	return c.policy.DiscountRate
}

// Price sums item prices, applies the discount rate and returns the totals.
// The discount is rounded half-to-even to the currency's minor unit, so
// FinalAmount = TotalAmount - Discount holds exactly.
func (c *Calculator) Price(items []Item) (*Result, error) {
	total := decimal.Zero
	for i, item := range items {
		if item.Price.IsNegative() {
			return nil, fmt.Errorf("%w: item %d has negative price %s", models.ErrInvalidInput, i, item.Price)
		}
		if item.Price.Exponent() < -CurrencyScale && !item.Price.Equal(item.Price.Round(CurrencyScale)) {
			return nil, fmt.Errorf("%w: item %d price %s has more than %d decimal places", models.ErrInvalidInput, i, item.Price, CurrencyScale)
		}
		total = total.Add(item.Price)
	}

	discount := total.Mul(c.policy.DiscountRate).RoundBank(CurrencyScale)

	return &Result{
		TotalAmount: total,
		Discount:    discount,
		FinalAmount: total.Sub(discount),
	}, nil
}

package pricing

import (
	"github.com/shopspring/decimal"
)

// Money is an exact decimal currency amount.
type Money = decimal.Decimal

// Item describes a line item used for pricing calculation.
type Item struct {
	Qty       int
	UnitPrice Money
}

// Policy holds the shipping and tax rules applied to a cart.
type Policy struct {
	// FreeShippingThreshold is the subtotal that must be strictly exceeded for free shipping.
	FreeShippingThreshold Money
	FlatShippingFee       Money
	// TaxBps is the tax rate in basis points applied at checkout.
	TaxBps int
}

// DefaultPolicy mirrors the storefront defaults: free shipping above 100, otherwise 10, tax 15%.
func DefaultPolicy() Policy {
	return Policy{
		FreeShippingThreshold: decimal.NewFromInt(100),
		FlatShippingFee:       decimal.NewFromInt(10),
		TaxBps:                1500,
	}
}

// Summary aggregates computed pricing components.
type Summary struct {
	ItemCount             int
	Subtotal              Money
	Shipping              Money
	Tax                   Money
	Total                 Money
	FreeShippingRemaining Money
}

// LineTotal is qty * unit price, or zero for non-positive quantities.
func LineTotal(it Item) Money {
	if it.Qty <= 0 {
		return decimal.Zero
	}
	return it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Qty)))
}

// Subtotal returns the exact sum of line totals.
func Subtotal(items []Item) Money {
	subtotal := decimal.Zero
	for _, it := range items {
		subtotal = subtotal.Add(LineTotal(it))
	}
	return subtotal
}

// ShippingFee is zero when subtotal strictly exceeds the threshold and the flat fee otherwise.
func (p Policy) ShippingFee(subtotal Money) Money {
	if subtotal.GreaterThan(p.FreeShippingThreshold) {
		return decimal.Zero
	}
	return p.FlatShippingFee
}

// Tax applies the policy rate to the subtotal, rounded half away from zero to cents.
func (p Policy) Tax(subtotal Money) Money {
	if p.TaxBps <= 0 || !subtotal.IsPositive() {
		return decimal.Zero
	}
	return subtotal.Mul(decimal.NewFromInt(int64(p.TaxBps))).Div(decimal.NewFromInt(10000)).Round(2)
}

// Compute calculates cart totals. Tax is supplied by the caller; inside the cart it is zero.
func Compute(items []Item, policy Policy, tax Money) Summary {
	count := 0
	for _, it := range items {
		if it.Qty > 0 {
			count += it.Qty
		}
	}
	subtotal := Subtotal(items)
	shipping := policy.ShippingFee(subtotal)
	remaining := decimal.Zero
	if shipping.IsPositive() {
		remaining = policy.FreeShippingThreshold.Sub(subtotal)
		if remaining.IsNegative() {
			remaining = decimal.Zero
		}
	}
	return Summary{
		ItemCount:             count,
		Subtotal:              subtotal,
		Shipping:              shipping,
		Tax:                   tax,
		Total:                 subtotal.Add(shipping).Add(tax),
		FreeShippingRemaining: remaining,
	}
}

// Format renders an amount with two decimal places.
func Format(m Money) string {
	return m.StringFixed(2)
}

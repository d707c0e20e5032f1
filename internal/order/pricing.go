package order

import (
	"github.com/shopspring/decimal"

	"ms-boxoffice/internal/models"
)

var (
	serviceFeeRate = decimal.NewFromFloat(0.05)
	taxRate        = decimal.NewFromFloat(0.08)
)

type Pricing struct {
	Subtotal   decimal.Decimal
	ServiceFee decimal.Decimal
	Tax        decimal.Decimal
	Total      decimal.Decimal
}

// ComputePricing derives the order's price breakdown from its line items.
// Fee and tax are each rounded to cents before the total is summed, so the
// total always equals subtotal + fee + tax exactly.
func ComputePricing(items models.LineItems) Pricing {
	subtotal := decimal.Zero
	for _, item := range items {
		subtotal = subtotal.Add(item.UnitPrice)
	}
	fee := subtotal.Mul(serviceFeeRate).Round(2)
	tax := subtotal.Mul(taxRate).Round(2)

	return Pricing{
		Subtotal:   subtotal,
		ServiceFee: fee,
		Tax:        tax,
		Total:      subtotal.Add(fee).Add(tax),
	}
}

// Package finance holds the pure monetary calculations shared by quotations,
// purchase orders and installment schedules. Stored summary fields are caches
// over these functions and are overwritten whenever line items change.
package finance

import "math"

// Tax rates fixed by the business domain.
const (
	VATRate         = 0.07
	WithholdingRate = 0.03
)

// Line is a single priced item. Discount and ExtraCost are absolute amounts,
// not percentages. Withholding marks the item for the 3% withholding tax.
type Line struct {
	Quantity    float64
	UnitPrice   float64
	UnitCost    float64
	Discount    float64
	ExtraCost   float64
	Withholding bool
}

// Net returns the line's entered net price: price*qty - discount + extra.
func (l Line) Net() float64 {
	return l.UnitPrice*l.Quantity - l.Discount + l.ExtraCost
}

// Summary is the derived financial rollup of a document.
type Summary struct {
	TotalCost      float64
	TotalPrice     float64
	Discount       float64
	VAT            float64
	WithholdingTax float64
	GrandTotal     float64
}

// Summarize recomputes the rollup for a set of lines.
//
// With vatIncluded false the entered prices are pre-VAT: VAT is added on top
// and the grand total is derived. With vatIncluded true the entered prices
// already carry VAT: the pre-VAT total is backed out by dividing by 1.07.
// The same rule applies at every recomputation site; there is no per-caller
// variation.
func Summarize(lines []Line, vatIncluded bool) Summary {
	var totalCost, entered, discount, withholding float64
	for _, l := range lines {
		totalCost += l.UnitCost * l.Quantity
		entered += l.Net()
		discount += l.Discount
		if l.Withholding {
			net := l.Net()
			if vatIncluded {
				net /= 1 + VATRate
			}
			withholding += net * WithholdingRate
		}
	}

	var totalPrice, vat float64
	if vatIncluded {
		totalPrice = entered / (1 + VATRate)
		vat = entered - totalPrice
	} else {
		totalPrice = entered
		vat = totalPrice * VATRate
	}

	return Summary{
		TotalCost:      Round2(totalCost),
		TotalPrice:     Round2(totalPrice),
		Discount:       Round2(discount),
		VAT:            Round2(vat),
		WithholdingTax: Round2(withholding),
		GrandTotal:     Round2(totalPrice + vat - withholding),
	}
}

// WithholdingDelta is the tax amount a single item contributes when its
// withholding flag turns on. Toggling the flag moves the document's tax up
// and its grand total down by exactly this amount, and the reverse on
// toggle off.
func WithholdingDelta(netPrice float64) float64 {
	return Round2(netPrice * WithholdingRate)
}

// Round2 rounds to two decimals, half away from zero.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Floor2 rounds down at two decimals.
func Floor2(v float64) float64 {
	return math.Floor(v*100) / 100
}

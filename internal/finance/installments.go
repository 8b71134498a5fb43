package finance

import (
	"errors"
	"fmt"
	"time"
)

// Installment is one slice of a planned schedule. Amount excludes VAT;
// AmountWithVAT is the collectible figure.
type Installment struct {
	Period        string
	Amount        float64
	AmountWithVAT float64
	DueDate       time.Time
}

// ErrBadPeriodCount indicates an unusable installment count.
var ErrBadPeriodCount = errors.New("finance: period count must be positive")

// PlanInstallments splits a pre-VAT total into n slices. Every slice but the
// last gets the floored per-period base; the last absorbs the full rounding
// remainder so the slice amounts sum to total exactly. Due dates run on a
// fixed 30 day cadence from the given start.
func PlanInstallments(total float64, n int, from time.Time) ([]Installment, error) {
	if n <= 0 {
		return nil, ErrBadPeriodCount
	}
	base := Floor2(total / float64(n))
	plan := make([]Installment, 0, n)
	for i := 1; i <= n; i++ {
		amount := base
		if i == n {
			amount = Round2(total - base*float64(n-1))
		}
		plan = append(plan, Installment{
			Period:        fmt.Sprintf("%d/%d", i, n),
			Amount:        amount,
			AmountWithVAT: Round2(amount * (1 + VATRate)),
			DueDate:       from.AddDate(0, 0, 30*i),
		})
	}
	return plan, nil
}

// AmountFromVATInclusive recovers the pre-VAT amount of an edited
// installment. The VAT-inclusive figure is the source of truth; the pre-VAT
// column is always derived from it.
func AmountFromVATInclusive(withVAT float64) float64 {
	return Round2(withVAT / (1 + VATRate))
}

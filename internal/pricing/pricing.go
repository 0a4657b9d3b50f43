package pricing

import (
	"errors"
	"fmt"

	"reverse-auction/internal/auctionerrors"

	"github.com/shopspring/decimal"
)

const monetaryPrecision int32 = 2 // prices are whole cents

// ReductionPercent is the fixed price cut applied between rounds
const ReductionPercent = 5

var (
	reductionFactor = decimal.NewFromInt(100 - ReductionPercent).Div(decimal.NewFromInt(100))
	cent            = decimal.New(1, -monetaryPrecision)
	hundred         = decimal.NewFromInt(100)
)

// ErrPriceFloor is returned when no lower positive whole-cent price exists
var ErrPriceFloor = errors.New("price floor reached")

// NextPrice reduces current by ReductionPercent and rounds half away from zero to
// whole cents. The result is always strictly below current and above zero; when
// rounding would return current itself the price drops by one cent instead.
func NextPrice(current decimal.Decimal) (decimal.Decimal, error) {
	if !current.IsPositive() {
		return decimal.Zero, fmt.Errorf("next price of %s: %w", current, auctionerrors.ErrValidation)
	}

	next := current.Mul(reductionFactor).Round(monetaryPrecision)
	if next.GreaterThanOrEqual(current) {
		next = current.Sub(cent).Truncate(monetaryPrecision)
	}
	if !next.IsPositive() {
		return decimal.Zero, fmt.Errorf("next price of %s: %w", current, ErrPriceFloor)
	}
	return next, nil
}

// ValidStartingPrice reports whether p is a positive amount in whole cents
func ValidStartingPrice(p decimal.Decimal) bool {
	return p.IsPositive() && p.Equal(p.Truncate(monetaryPrecision))
}

// Savings summarises how far the final price fell below the starting price
type Savings struct {
	Amount  decimal.Decimal `json:"savings_amount"`
	Percent decimal.Decimal `json:"savings_percent"`
}

// CalculateSavings returns zero savings when the auction has no final price
func CalculateSavings(starting decimal.Decimal, final *decimal.Decimal) Savings {
	if final == nil || final.IsZero() || !starting.IsPositive() {
		return Savings{Amount: decimal.Zero, Percent: decimal.Zero}
	}

	amount := starting.Sub(*final)
	percent := amount.Div(starting).Mul(hundred)

	return Savings{
		Amount:  amount.Round(monetaryPrecision),
		Percent: percent.Round(1),
	}
}

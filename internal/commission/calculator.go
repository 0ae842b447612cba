package commission

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/bizledger/internal/money"
)

var (
	// ErrInvalidCommissionType is returned for commission types other than percentage or fixed.
	ErrInvalidCommissionType = errors.New("commission: invalid commission type")
	// ErrInvalidPercentage is returned when a commission percentage is outside [0, 100] or has more than two decimals.
	ErrInvalidPercentage = errors.New("commission: percentage must be between 0 and 100")
	// ErrNegativeAmount is returned for negative sale totals or fixed commissions.
	ErrNegativeAmount = errors.New("commission: amount must not be negative")
)

// Type selects how an employee's commission is derived.
type Type string

const (
	TypePercentage Type = "percentage"
	TypeFixed      Type = "fixed"
)

// ParseType normalises a textual commission type.
func ParseType(s string) (Type, error) {
	switch Type(strings.ToLower(strings.TrimSpace(s))) {
	case TypePercentage:
		return TypePercentage, nil
	case TypeFixed:
		return TypeFixed, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidCommissionType, s)
	}
}

// Employee is the read-only commission configuration of a staff member.
type Employee struct {
	ID                   uuid.UUID
	BusinessID           uuid.UUID
	Name                 string
	CommissionType       Type
	CommissionPercentage decimal.Decimal
	FixedCommission      money.Money
}

// Split is the division of a sale amount between employee and house.
type Split struct {
	Total      money.Money
	Commission money.Money
	House      money.Money
}

// Calculate derives the commission and house share of total for e. A fixed
// commission larger than the sale is capped at the sale total so the house share
// never drops below zero.
func Calculate(total money.Money, e Employee) (Split, error) {
	if total.IsNegative() {
		return Split{}, fmt.Errorf("%w: total %s", ErrNegativeAmount, total)
	}
	var commission money.Money
	switch e.CommissionType {
	case TypeFixed:
		if e.FixedCommission.IsNegative() {
			return Split{}, fmt.Errorf("%w: fixed commission %s", ErrNegativeAmount, e.FixedCommission)
		}
		commission = money.Min(e.FixedCommission, total)
	case TypePercentage:
		if err := money.CheckPercent(e.CommissionPercentage); err != nil {
			return Split{}, fmt.Errorf("%w: %w", ErrInvalidPercentage, err)
		}
		commission = total.PercentOf(e.CommissionPercentage)
	default:
		return Split{}, fmt.Errorf("%w: %q", ErrInvalidCommissionType, string(e.CommissionType))
	}
	return Split{
		Total:      total,
		Commission: commission,
		House:      total.Sub(commission),
	}, nil
}

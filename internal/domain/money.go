package domain

import "github.com/shopspring/decimal"

// Money is a decimal amount that always carries two decimal places on the
// wire, so 20 is written as 20.00.
type Money struct {
	decimal.Decimal
}

func NewMoney(d decimal.Decimal) Money {
	return Money{Decimal: d.Round(2)}
}

func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.StringFixed(2)), nil
}

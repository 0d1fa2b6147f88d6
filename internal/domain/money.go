package domain

import (
	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var symbols = message.NewPrinter(language.English)

// Money is an amount in a display currency.
type Money struct {
	Amount   decimal.Decimal
	Currency currency.Unit
}

// NewMoney pairs amount with unit.
func NewMoney(amount decimal.Decimal, unit currency.Unit) Money {
	return Money{Amount: amount, Currency: unit}
}

// Rounded returns the amount rounded to the currency's standard scale.
func (m Money) Rounded() decimal.Decimal {
	scale, _ := currency.Standard.Rounding(m.Currency)
	return m.Amount.Round(int32(scale))
}

// String formats the amount with the currency symbol, e.g. "$50.00".
func (m Money) String() string {
	scale, _ := currency.Standard.Rounding(m.Currency)
	return symbols.Sprint(currency.Symbol(m.Currency)) + m.Amount.StringFixed(int32(scale))
}

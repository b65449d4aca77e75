package model

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

// Money is an amount in a single currency.
type Money struct {
	Amount   decimal.Decimal
	Currency currency.Unit
}

// NewMoney rounds amount to the standard scale of unit.
func NewMoney(amount decimal.Decimal, unit currency.Unit) Money {
	scale, _ := currency.Standard.Rounding(unit)
	return Money{Amount: amount.Round(int32(scale)), Currency: unit}
}

// String renders the amount at the currency's standard scale, e.g. "24.00 USD".
func (m Money) String() string {
	return fmt.Sprintf("%s %s", m.fixed(), m.Currency)
}

func (m Money) fixed() string {
	scale, _ := currency.Standard.Rounding(m.Currency)
	return m.Amount.StringFixed(int32(scale))
}

type moneyJSON struct {
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(moneyJSON{Amount: m.fixed(), Currency: m.Currency.String()})
}

func (m *Money) UnmarshalJSON(data []byte) error {
	var raw moneyJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	amount, err := decimal.NewFromString(raw.Amount)
	if err != nil {
		return fmt.Errorf("amount[%s] is not valid: %w", raw.Amount, err)
	}
	unit, err := currency.ParseISO(raw.Currency)
	if err != nil {
		return fmt.Errorf("currency[%s] is not valid: %w", raw.Currency, err)
	}
	m.Amount = amount
	m.Currency = unit
	return nil
}

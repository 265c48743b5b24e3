package currencies

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Currency represents a currency nomenclature entry.
type Currency struct {
	ID            int64  `json:"id"`
	Code          string `json:"code"`
	Name          string `json:"name"`
	Symbol        string `json:"symbol"`
	DecimalPlaces int    `json:"decimal_places"`
	IsBase        bool   `json:"is_base"`
	IsActive      bool   `json:"is_active"`
}

// ExchangeRate is a dated rate against the base currency: one unit of the
// currency equals Rate units of the base.
type ExchangeRate struct {
	ID         int64           `json:"id"`
	CurrencyID int64           `json:"currency_id"`
	Rate       decimal.Decimal `json:"rate"`
	ValidFrom  time.Time       `json:"valid_from"`
}

var (
	// ErrNoRate indicates no exchange rate is effective for the requested date.
	ErrNoRate = errors.New("currencies: no exchange rate for date")
	// ErrBaseRequired indicates an operation that would leave the system without a base currency.
	ErrBaseRequired = errors.New("currencies: a base currency is required")
)

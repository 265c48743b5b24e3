package taxgroups

import "github.com/shopspring/decimal"

// TaxGroup represents a tax group nomenclature entry.
type TaxGroup struct {
	ID        int64           `json:"id"`
	Code      string          `json:"code"`
	Name      string          `json:"name"`
	Rate      decimal.Decimal `json:"rate"`
	IsDefault bool            `json:"is_default"`
	IsActive  bool            `json:"is_active"`
}

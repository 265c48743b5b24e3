package taxgroups

import (
	"strings"

	"github.com/shopspring/decimal"

	nomshared "github.com/optimapos/optimapos/internal/nomenclature/shared"
	"github.com/optimapos/optimapos/internal/shared"
)

var maxRate = decimal.NewFromInt(100)

func (s *Service) validate(g TaxGroup) error {
	fields := shared.NewFieldErrors()
	if !nomshared.ValidCode(g.Code) {
		fields.Add("code", "must be 1-32 characters of A-Z, 0-9, dash or underscore")
	}
	if strings.TrimSpace(g.Name) == "" {
		fields.Add("name", "is required")
	}
	if g.Rate.IsNegative() || g.Rate.GreaterThan(maxRate) {
		fields.Add("rate", "must be between 0 and 100")
	}
	return fields.Err()
}

package currencies

import (
	"strings"

	nomshared "github.com/optimapos/optimapos/internal/nomenclature/shared"
	"github.com/optimapos/optimapos/internal/shared"
)

func (s *Service) validate(c Currency) error {
	fields := shared.NewFieldErrors()
	if !nomshared.ValidCode(c.Code) {
		fields.Add("code", "must be 1-32 characters of A-Z, 0-9, dash or underscore")
	}
	if strings.TrimSpace(c.Name) == "" {
		fields.Add("name", "is required")
	}
	if c.DecimalPlaces < 0 || c.DecimalPlaces > 6 {
		fields.Add("decimal_places", "must be between 0 and 6")
	}
	return fields.Err()
}

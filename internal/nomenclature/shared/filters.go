package shared

// ListFilters represents standard list filters for nomenclature endpoints.
type ListFilters struct {
	Page     int
	Limit    int
	Search   string
	SortBy   string
	SortDir  string
	IsActive *bool

	// Entity specific filters
	GroupID *int64
	BrandID *int64
}

// Offset translates page/limit into a SQL offset.
func (f ListFilters) Offset() int {
	if f.Page < 1 || f.Limit < 1 {
		return 0
	}
	return (f.Page - 1) * f.Limit
}

package shared

const (
	// Default pagination
	DefaultPage  = 1
	DefaultLimit = 10

	// Sort directions
	SortAsc  = "asc"
	SortDesc = "desc"
)

// Nomenclature kinds registered in the shared code registry.
const (
	KindCurrency     = "CURRENCY"
	KindTaxGroup     = "TAX_GROUP"
	KindProductGroup = "PRODUCT_GROUP"
	KindBrand        = "BRAND"
	KindProductType  = "PRODUCT_TYPE"
	KindNumbering    = "NUMBERING_CONFIG"
	KindDocumentType = "DOCUMENT_TYPE"
)

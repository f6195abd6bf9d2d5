package adapter

import "context"

// RawSearchItem is one unnormalized record from the commerce search
// collaborator. All cleaning happens in the lookup use case.
type RawSearchItem struct {
	Name         string
	Price        *int
	URL          string
	AffiliateURL string
	ImageURLs    []string
	ShopName     string
	GenreID      string
	ItemCode     string
	JAN          string
}

// ProductSearchAdapter is the port for barcode/keyword product search.
type ProductSearchAdapter interface {
	// Configured reports whether API credentials are present.
	Configured() bool
	// Search queries by keyword; identifierHint carries a JAN/ISBN code
	// when the keyword is a barcode.
	Search(ctx context.Context, keyword, identifierHint string) ([]RawSearchItem, error)
}

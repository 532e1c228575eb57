package model

import "time"

// Product is a catalog entry keyed by EAN-13, used by Stage Handlers to
// populate Detection.ProductFound/ProductID (spec.md §6 names "products"
// as one of the four metadata collections). Grounded on
// _examples/original_source/src/models/product.py.
type Product struct {
	ProductID       string
	EAN             string
	UPC             string
	EAN8            string
	AdditionalCodes []string

	Name        string
	Brand       string
	Description string
	Category    string

	Active bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasCode reports whether code matches any barcode this product carries.
func (p *Product) HasCode(code string) bool {
	if code == p.EAN || (p.UPC != "" && code == p.UPC) || (p.EAN8 != "" && code == p.EAN8) {
		return true
	}
	for _, c := range p.AdditionalCodes {
		if c == code {
			return true
		}
	}
	return false
}

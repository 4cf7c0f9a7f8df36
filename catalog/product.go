package catalog

import "time"

// Seller identifies who offers a product.
type Seller struct {
	ID         string  `json:"id"`
	Nickname   string  `json:"nickname"`
	Reputation float64 `json:"reputation"`
}

// Specification is a single technical attribute of a product.
type Specification struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Product is the catalog's central entity.
type Product struct {
	ID             string          `json:"id"`
	Title          string          `json:"title"`
	Description    string          `json:"description"`
	Price          float64         `json:"price"`
	Currency       string          `json:"currency"`
	Images         []string        `json:"images"`
	Condition      string          `json:"condition"`
	Stock          int             `json:"stock"`
	Category       string          `json:"category"`
	Seller         Seller          `json:"seller"`
	Specifications []Specification `json:"specifications"`
	Brand          string          `json:"brand"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
	Available      bool            `json:"available"`
}

// HasStock reports whether the product can currently be purchased.
func (p Product) HasStock() bool { return p.Stock > 0 }

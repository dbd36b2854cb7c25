package domain

import "time"

// CanonicalProduct is the normalized, source-agnostic record returned to
// callers. Every product in a listing originates from exactly one registered
// source; ID embeds the source key and round-trips through the registry's
// identity resolver.
type CanonicalProduct struct {
	ID              string   `json:"id"`
	Title           string   `json:"title"`
	Brand           *string  `json:"brand,omitempty"`
	Store           string   `json:"store"`
	Source          string   `json:"source"`
	ImageURL        *string  `json:"image_url,omitempty"`
	CurrentPrice    float64  `json:"current_price"`
	OriginalPrice   *float64 `json:"original_price,omitempty"`
	DiscountPercent *float64 `json:"discount_percent,omitempty"`
	Category        *string  `json:"category,omitempty"`
	Region          *string  `json:"region,omitempty"`
	AffiliateURL    string   `json:"affiliate_url"`
	IsActive        bool     `json:"is_active"`

	// LastSeenAt >= FirstSeenAt normally; scrapers occasionally violate it
	// and normalization keeps the row anyway.
	FirstSeenAt time.Time `json:"first_seen_at"`
	LastSeenAt  time.Time `json:"last_seen_at"`
}

// HasPriceDrop reports whether the product currently sells below its
// recorded original price.
func (p CanonicalProduct) HasPriceDrop() bool {
	return p.OriginalPrice != nil && p.CurrentPrice < *p.OriginalPrice
}

// PriceHistoryPoint is one observation in a product's price history.
type PriceHistoryPoint struct {
	Price         float64   `json:"price"`
	OriginalPrice *float64  `json:"original_price,omitempty"`
	ScrapedAt     time.Time `json:"scraped_at"`
	IsOnSale      bool      `json:"is_on_sale"`
}

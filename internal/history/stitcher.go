// Package history stitches a product's price history from its dedicated
// table when one exists, or synthesizes a minimal history from the current
// record when it does not. A history is never empty.
package history

import (
	"math"
	"time"

	"github.com/northdeals/catalog/internal/domain"
)

// Stitch returns the table-backed history when it has at least one point,
// otherwise a synthesized one.
func Stitch(p domain.CanonicalProduct, rows []domain.PriceHistoryPoint) []domain.PriceHistoryPoint {
	if len(rows) > 0 {
		return rows
	}
	return Synthesize(p)
}

// Synthesize builds a history from the current record alone: a two-point
// original-then-current sequence when the product dropped below its original
// price, or a single current-price point.
func Synthesize(p domain.CanonicalProduct) []domain.PriceHistoryPoint {
	if p.OriginalPrice != nil && *p.OriginalPrice > p.CurrentPrice {
		orig := *p.OriginalPrice
		return []domain.PriceHistoryPoint{
			{Price: orig, OriginalPrice: &orig, ScrapedAt: p.FirstSeenAt, IsOnSale: false},
			{Price: p.CurrentPrice, OriginalPrice: &orig, ScrapedAt: p.LastSeenAt, IsOnSale: true},
		}
	}
	return []domain.PriceHistoryPoint{
		{
			Price:         p.CurrentPrice,
			OriginalPrice: p.OriginalPrice,
			ScrapedAt:     p.FirstSeenAt,
			IsOnSale:      p.DiscountPercent != nil && *p.DiscountPercent > 0,
		},
	}
}

// Stats summarizes a history: price extremes, average, and first-to-last
// change.
type Stats struct {
	LowestPrice     float64 `json:"lowest_price"`
	HighestPrice    float64 `json:"highest_price"`
	AvgPrice        float64 `json:"avg_price"`
	TotalDataPoints int     `json:"total_data_points"`
	PriceChangePct  float64 `json:"price_change_pct"`
	FirstRecorded   string  `json:"first_recorded"`
	LastRecorded    string  `json:"last_recorded"`
}

// ComputeStats derives Stats from an ordered history. Returns nil for an
// empty history.
func ComputeStats(points []domain.PriceHistoryPoint) *Stats {
	if len(points) == 0 {
		return nil
	}

	lowest := points[0].Price
	highest := points[0].Price
	sum := 0.0
	for _, p := range points {
		if p.Price < lowest {
			lowest = p.Price
		}
		if p.Price > highest {
			highest = p.Price
		}
		sum += p.Price
	}

	first := points[0].Price
	last := points[len(points)-1].Price
	changePct := 0.0
	if first > 0 {
		changePct = (last - first) / first * 100
	}

	return &Stats{
		LowestPrice:     round2(lowest),
		HighestPrice:    round2(highest),
		AvgPrice:        round2(sum / float64(len(points))),
		TotalDataPoints: len(points),
		PriceChangePct:  math.Round(changePct*10) / 10,
		FirstRecorded:   points[0].ScrapedAt.Format(time.RFC3339),
		LastRecorded:    points[len(points)-1].ScrapedAt.Format(time.RFC3339),
	}
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}

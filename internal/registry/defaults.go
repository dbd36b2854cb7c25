package registry

import "github.com/northdeals/catalog/internal/domain"

// DefaultSources is the production source table. Each scraper fleet writes
// into its own table with its own column names; everything the rest of the
// service knows about those tables is declared here.
func DefaultSources() []SourceDescriptor {
	sources := []SourceDescriptor{
		{
			Key:   "retailer",
			Label: "Retailer",
			Table: "retailer_products",
			Fields: FieldMap{
				NativeID:      "id",
				Title:         "title",
				Brand:         "brand",
				CurrentPrice:  "current_price",
				OriginalPrice: "original_price",
				Discount:      "sale_percentage",
				Image:         "thumbnail_url",
				URL:           "affiliate_url",
				FirstSeen:     "first_seen_at",
				LastSeen:      "last_seen_at",
				Store:         "store",
				Region:        "region",
				Category:      "retailer_category",
				Description:   "description",
			},
			HistoryTable: "price_history",
			HistoryFK:    "retailer_product_id",
			ActiveColumn: "is_active",
			CleanTitles:  true,
			Capabilities: []domain.FilterKind{
				domain.FilterKindStore,
				domain.FilterKindRegion,
				domain.FilterKindBrand,
				domain.FilterKindCategory,
				domain.FilterKindSearch,
				domain.FilterKindDiscount,
				domain.FilterKindPrice,
				domain.FilterKindDate,
				domain.FilterKindOnSale,
				domain.FilterKindPriceDrop,
				domain.FilterKindActive,
			},
		},
		{
			Key:   "keepa",
			Label: "Keepa (Amazon.ca)",
			Table: "keepa_deals",
			Fields: FieldMap{
				NativeID:      "id",
				Title:         "title",
				Brand:         "brand",
				CurrentPrice:  "current_price",
				OriginalPrice: "original_price",
				Discount:      "discount_percent",
				Image:         "main_image_url",
				URL:           "affiliate_url",
				FirstSeen:     "discovered_at",
				LastSeen:      "price_checked_at",
				Category:      "category",
			},
			FixedStore:       "Amazon",
			FixedRegion:      "CA",
			StatusColumn:     "status",
			InactiveStatuses: []string{"expired", "rejected"},
			Capabilities: []domain.FilterKind{
				domain.FilterKindStore,
				domain.FilterKindRegion,
				domain.FilterKindBrand,
				domain.FilterKindCategory,
				domain.FilterKindSearch,
				domain.FilterKindDiscount,
				domain.FilterKindPrice,
				domain.FilterKindDate,
				domain.FilterKindOnSale,
				domain.FilterKindPriceDrop,
				domain.FilterKindActive,
			},
		},
	}

	// Single-store scrape tables share one legacy shape.
	for _, s := range []struct{ key, label, table, store string }{
		{"amazon_ca", "Amazon CA", "amazon_ca_deals", "Amazon"},
		{"cabelas_ca", "Cabela's", "cabelas_ca_deals", "Cabela's"},
		{"frank_and_oak", "Frank And Oak", "frank_and_oak_deals", "Frank And Oak"},
		{"leons", "Leon's", "leons_deals", "Leon's"},
		{"mastermind_toys", "Mastermind Toys", "mastermind_toys_deals", "Mastermind Toys"},
		{"reebok_ca", "Reebok CA", "reebok_ca_deals", "Reebok"},
		{"the_brick", "The Brick", "the_brick_deals", "The Brick"},
	} {
		sources = append(sources, legacyDealSource(s.key, s.label, s.table, s.store))
	}

	// YepSavings predates the shared scraper and names things differently.
	yep := legacyDealSource("yepsavings", "YepSavings", "yepsavings_deals", "")
	yep.Fields.Store = "store_name"
	yep.Fields.FirstSeen = "created_date"
	yep.SortProxy = map[domain.SortKey]string{
		domain.SortKeyLastSeenAt: "created_date",
	}
	sources = append(sources, yep)

	return sources
}

// legacyDealSource builds a descriptor for the older per-store deal tables.
// They have no last-seen or liveness column, so recency sorts fall back to
// created_at and the active filter does not apply.
func legacyDealSource(key, label, table, store string) SourceDescriptor {
	return SourceDescriptor{
		Key:   key,
		Label: label,
		Table: table,
		Fields: FieldMap{
			NativeID:      "id",
			Title:         "title",
			CurrentPrice:  "price",
			OriginalPrice: "original_price",
			Discount:      "discount_percent",
			Image:         "image_url",
			URL:           "url",
			FirstSeen:     "created_at",
			Store:         "store",
		},
		FixedStore:  store,
		FixedRegion: "CA",
		SortProxy: map[domain.SortKey]string{
			domain.SortKeyLastSeenAt: "created_at",
		},
		Capabilities: []domain.FilterKind{
			domain.FilterKindStore,
			domain.FilterKindRegion,
			domain.FilterKindSearch,
			domain.FilterKindDiscount,
			domain.FilterKindPrice,
			domain.FilterKindDate,
			domain.FilterKindOnSale,
			domain.FilterKindPriceDrop,
		},
	}
}

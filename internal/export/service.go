// Package export renders a filtered listing as an xlsx workbook.
package export

import (
	"context"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/northdeals/catalog/internal/catalog"
	"github.com/northdeals/catalog/internal/domain"
)

const sheetName = "Products"

var columns = []string{
	"ID", "Title", "Brand", "Store", "Source", "Region", "Category",
	"Current Price", "Original Price", "Discount %", "URL", "Active",
	"First Seen", "Last Seen",
}

// Service pages through a filtered listing and writes each page into a
// workbook, up to rowLimit rows.
type Service struct {
	catalog  *catalog.Service
	rowLimit int
	pageSize int
}

func NewService(catalog *catalog.Service, rowLimit int) *Service {
	if rowLimit <= 0 {
		rowLimit = 5000
	}
	return &Service{catalog: catalog, rowLimit: rowLimit, pageSize: 200}
}

// Build renders the listing matched by spec into an xlsx workbook. Pagination
// in spec is ignored; the export walks pages itself.
func (s *Service) Build(ctx context.Context, spec domain.FilterSpec) (*excelize.File, error) {
	file := excelize.NewFile()
	file.SetSheetName(file.GetSheetName(0), sheetName)

	sw, err := file.NewStreamWriter(sheetName)
	if err != nil {
		return nil, fmt.Errorf("open stream writer: %w", err)
	}

	header := make([]any, len(columns))
	for i, name := range columns {
		header[i] = name
	}
	if err := sw.SetRow("A1", header); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}

	spec.PerPage = s.pageSize
	written := 0
	for page := 1; written < s.rowLimit; page++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		spec.Page = page
		result := s.catalog.List(ctx, spec)
		if len(result.Products) == 0 {
			break
		}
		for _, p := range result.Products {
			if written >= s.rowLimit {
				break
			}
			cell, _ := excelize.CoordinatesToCellName(1, written+2)
			if err := sw.SetRow(cell, productRow(p)); err != nil {
				return nil, fmt.Errorf("write row: %w", err)
			}
			written++
		}
		if page >= result.TotalPages {
			break
		}
	}

	if err := sw.Flush(); err != nil {
		return nil, fmt.Errorf("flush workbook: %w", err)
	}
	return file, nil
}

func productRow(p domain.CanonicalProduct) []any {
	return []any{
		p.ID,
		p.Title,
		deref(p.Brand),
		p.Store,
		p.Source,
		deref(p.Region),
		deref(p.Category),
		p.CurrentPrice,
		derefFloat(p.OriginalPrice),
		derefFloat(p.DiscountPercent),
		p.AffiliateURL,
		p.IsActive,
		p.FirstSeenAt.Format(time.RFC3339),
		p.LastSeenAt.Format(time.RFC3339),
	}
}

func deref(s *string) any {
	if s == nil {
		return ""
	}
	return *s
}

func derefFloat(f *float64) any {
	if f == nil {
		return ""
	}
	return *f
}

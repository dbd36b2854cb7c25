package export

import (
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/northdeals/catalog/internal/catalog"
)

// Handler streams the export workbook for GET /api/products/export. Filter
// parameters match the listing endpoint.
type Handler struct {
	service *Service
	limits  catalog.Limits
}

func NewHTTPHandler(service *Service, limits catalog.Limits) *Handler {
	return &Handler{service: service, limits: limits}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	spec, err := catalog.ParseFilterSpec(r.URL.Query(), h.limits)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	file, err := h.service.Build(r.Context(), spec)
	if err != nil {
		log.Printf("[EXPORT] build workbook: %v", err)
		http.Error(w, "export failed", http.StatusInternalServerError)
		return
	}
	defer file.Close()

	filename := fmt.Sprintf("products-%s.xlsx", time.Now().UTC().Format("20060102-150405"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	if _, err := file.WriteTo(w); err != nil {
		log.Printf("[EXPORT] write response: %v", err)
	}
}

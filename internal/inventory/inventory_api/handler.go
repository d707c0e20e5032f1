package inventory_api

import (
	"fmt"
	"net/http"

	"ms-boxoffice/internal/inventory"
	"ms-boxoffice/internal/logger"
	"ms-boxoffice/internal/utils"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	Inventory *inventory.Service
	Logger    *logger.Logger
}

func NewHandler(service *inventory.Service, log *logger.Logger) *Handler {
	return &Handler{Inventory: service, Logger: log}
}

// GetAvailability reports seat counts and the exact unavailable seat
// numbers for one show instance.
func (h *Handler) GetAvailability(w http.ResponseWriter, r *http.Request) {
	showID := chi.URLParam(r, "showId")

	availability, err := h.Inventory.Availability(r.Context(), showID)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("GetAvailability: show %s: %v", showID, err))
		utils.WriteError(w, err)
		return
	}

	utils.WriteJSON(w, http.StatusOK, "availability", availability)
}

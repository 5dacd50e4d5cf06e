package checkstock

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/corray333/backend-labs/storefront/internal/service/models/stock"
	"github.com/corray333/backend-labs/storefront/internal/transport/http/httperr"
	"github.com/corray333/backend-labs/storefront/pkg/http/respond"
)

type service interface {
	CheckStock(ctx context.Context, items []stock.CheckRequest) error
}

type checkStockRequest struct {
	Items []stock.CheckRequest `json:"items"`
}

type checkStockResponse struct {
	Available bool `json:"available"`
}

// CheckStock answers whether every requested line is currently in stock.
func CheckStock(w http.ResponseWriter, r *http.Request, service service) {
	req := checkStockRequest{}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httperr.BadRequest(w, "malformed request body")
		slog.Error("Error decoding request body for stock check", "error", err)

		return
	}

	if err := service.CheckStock(r.Context(), req.Items); err != nil {
		httperr.Write(w, r, err)

		return
	}

	respond.JSON(w, http.StatusOK, checkStockResponse{Available: true})
}

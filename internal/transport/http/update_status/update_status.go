package updatestatus

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/corray333/backend-labs/storefront/internal/service/models/order"
	"github.com/corray333/backend-labs/storefront/internal/transport/http/httperr"
	"github.com/corray333/backend-labs/storefront/pkg/http/respond"
)

type service interface {
	UpdateOrderStatus(ctx context.Context, id int64, to order.Status) (*order.Order, error)
}

type updateStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=pending processing shipped delivered cancelled"`
}

// Validate validates the update status request.
func (r *updateStatusRequest) Validate() error {
	return validator.New().Struct(r)
}

// UpdateStatus moves an order to a new status.
func UpdateStatus(w http.ResponseWriter, r *http.Request, service service) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httperr.BadRequest(w, "order id must be a positive integer")

		return
	}

	req := updateStatusRequest{}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httperr.BadRequest(w, "malformed request body")
		slog.Error("Error decoding request body for status update", "error", err)

		return
	}
	if err := req.Validate(); err != nil {
		httperr.BadRequest(w, "status must be one of pending, processing, shipped, delivered, cancelled")

		return
	}

	status, err := order.ParseStatus(req.Status)
	if err != nil {
		httperr.BadRequest(w, err.Error())

		return
	}

	updated, err := service.UpdateOrderStatus(r.Context(), id, status)
	if err != nil {
		httperr.Write(w, r, err)

		return
	}

	respond.JSON(w, http.StatusOK, updated)
}

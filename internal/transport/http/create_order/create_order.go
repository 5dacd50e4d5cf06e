package createorder

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/corray333/backend-labs/storefront/internal/service/models/order"
	"github.com/corray333/backend-labs/storefront/internal/transport/http/httperr"
	"github.com/corray333/backend-labs/storefront/pkg/http/middleware/auth"
	"github.com/corray333/backend-labs/storefront/pkg/http/respond"
)

// service is an interface for the service layer.
type service interface {
	CreateOrder(ctx context.Context, req *order.CreateRequest) (*order.Order, error)
}

// CreateOrder handles checkout. The order belongs to the caller unless the
// caller is an admin placing it for someone else.
func CreateOrder(w http.ResponseWriter, r *http.Request, service service) {
	req := &order.CreateRequest{}
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		httperr.BadRequest(w, "malformed request body")
		slog.Error("Error decoding request body for create order", "error", err)

		return
	}

	if id, ok := auth.FromContext(r.Context()); ok {
		switch {
		case req.UserID == 0:
			req.UserID = id.UserID
		case req.UserID != id.UserID && !id.IsAdmin():
			respond.Error(w, http.StatusForbidden, "cannot place an order for another user")

			return
		}
	}

	created, err := service.CreateOrder(r.Context(), req)
	if err != nil {
		httperr.Write(w, r, err)

		return
	}

	respond.JSON(w, http.StatusCreated, created)
}

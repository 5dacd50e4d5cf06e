package getorder

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/corray333/backend-labs/storefront/internal/service/errs"
	"github.com/corray333/backend-labs/storefront/internal/service/models/order"
	"github.com/corray333/backend-labs/storefront/internal/transport/http/httperr"
	"github.com/corray333/backend-labs/storefront/pkg/http/middleware/auth"
	"github.com/corray333/backend-labs/storefront/pkg/http/respond"
)

type service interface {
	GetOrder(ctx context.Context, id int64) (*order.Order, error)
}

// GetOrder returns one order. Orders of other users look missing to
// non-admin callers.
func GetOrder(w http.ResponseWriter, r *http.Request, service service) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httperr.BadRequest(w, "order id must be a positive integer")

		return
	}

	o, err := service.GetOrder(r.Context(), id)
	if err != nil {
		httperr.Write(w, r, err)

		return
	}

	if caller, ok := auth.FromContext(r.Context()); ok && !caller.IsAdmin() && caller.UserID != o.UserID {
		httperr.Write(w, r, &errs.NotFoundError{Entity: "order", ID: id})

		return
	}

	respond.JSON(w, http.StatusOK, o)
}

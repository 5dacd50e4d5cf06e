// Package httperr maps service errors to HTTP responses.
package httperr

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/corray333/backend-labs/storefront/internal/service/errs"
	"github.com/corray333/backend-labs/storefront/pkg/http/respond"
)

// RetryAfterSeconds is sent with every 503.
const RetryAfterSeconds = 5

type stockDetails struct {
	ProductID int64  `json:"productId"`
	Size      string `json:"size"`
	Requested int    `json:"requested"`
	Available *int   `json:"available,omitempty"`
}

type validationDetails struct {
	Missing []string `json:"missing,omitempty"`
	Reason  string   `json:"reason,omitempty"`
}

type committedDetails struct {
	OrderID int64  `json:"orderId"`
	Op      string `json:"op"`
}

type transientDetails struct {
	Class      string `json:"class"`
	Suggestion string `json:"suggestion,omitempty"`
	Attempts   int    `json:"attempts"`
}

// Status returns the HTTP status for err.
func Status(err error) int {
	switch errs.KindOf(err) {
	case errs.KindValidation:
		return http.StatusBadRequest
	case errs.KindNotFound:
		return http.StatusNotFound
	case errs.KindInsufficientStock, errs.KindConflict:
		return http.StatusConflict
	case errs.KindTransient:
		return http.StatusServiceUnavailable
	case errs.KindCommitted:
		return http.StatusAccepted
	default:
		return http.StatusInternalServerError
	}
}

// Write sends err as a JSON error body. Unclassified errors are logged and
// reported without their message. A committed write whose read-back failed is
// a 202 pointing at the order, so clients do not retry it.
func Write(w http.ResponseWriter, r *http.Request, err error) {
	status := Status(err)
	kind := errs.KindOf(err)
	body := respond.ErrorBody{Error: err.Error(), Kind: kind.String()}

	var (
		validation *errs.ValidationError
		stock      *errs.InsufficientStockError
		transient  *errs.TransientError
		committed  *errs.CommittedError
	)
	switch {
	case errors.As(err, &committed):
		body.Error = "order " + strconv.FormatInt(committed.OrderID, 10) + " was committed but could not be read back"
		body.Details = committedDetails{OrderID: committed.OrderID, Op: committed.Op}
		w.Header().Set("Location", "/api/orders/"+strconv.FormatInt(committed.OrderID, 10))
	case errors.As(err, &validation):
		body.Details = validationDetails{Missing: validation.Missing, Reason: validation.Reason}
	case errors.As(err, &stock):
		body.Details = stockDetails{
			ProductID: stock.ProductID,
			Size:      stock.Size,
			Requested: stock.Requested,
			Available: stock.Available,
		}
	case errors.As(err, &transient):
		body.Details = transientDetails{
			Class:      transient.Class,
			Suggestion: transient.Suggestion,
			Attempts:   transient.Attempts,
		}
	}

	switch status {
	case http.StatusAccepted:
		slog.WarnContext(r.Context(), "Committed write could not be read back", "path", r.URL.Path, "error", err)
	case http.StatusServiceUnavailable:
		w.Header().Set("Retry-After", strconv.Itoa(RetryAfterSeconds))
		slog.WarnContext(r.Context(), "Storage unavailable", "path", r.URL.Path, "error", err)
	case http.StatusInternalServerError:
		slog.ErrorContext(r.Context(), "Request failed", "path", r.URL.Path, "error", err)
		if kind == errs.KindUnknown {
			body.Error = "internal error"
		}
	}

	respond.JSON(w, status, body)
}

// BadRequest reports an undecodable request body or parameter.
func BadRequest(w http.ResponseWriter, msg string) {
	respond.JSON(w, http.StatusBadRequest, respond.ErrorBody{Error: msg, Kind: errs.KindValidation.String()})
}

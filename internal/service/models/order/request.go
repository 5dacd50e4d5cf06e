package order

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/corray333/backend-labs/storefront/internal/service/errs"
	"github.com/corray333/backend-labs/storefront/internal/service/models/product"
)

// LineItemRequest is one requested line of a checkout payload.
type LineItemRequest struct {
	ProductID int64            `json:"productId" validate:"required,gt=0"`
	Size      string           `json:"size"      validate:"required"`
	Quantity  *int             `json:"quantity"  validate:"required,gt=0"`
	UnitPrice *decimal.Decimal `json:"unitPrice" validate:"required"`
}

// CreateRequest is the checkout payload as received from a client.
type CreateRequest struct {
	UserID          int64             `json:"userId"                    validate:"required,gt=0"`
	OrderNumber     string            `json:"orderNumber,omitempty"     validate:"omitempty,max=64"`
	Items           []LineItemRequest `json:"items"                     validate:"required,min=1,dive"`
	Subtotal        *decimal.Decimal  `json:"subtotal"                  validate:"required"`
	Tax             *decimal.Decimal  `json:"tax"                       validate:"required"`
	Shipping        *decimal.Decimal  `json:"shipping"                  validate:"required"`
	Total           *decimal.Decimal  `json:"total"                     validate:"required"`
	ShippingAddress *Address          `json:"shippingAddress,omitempty"`
	BillingAddress  *Address          `json:"billingAddress,omitempty"`
	PaymentMethod   *PaymentMethod    `json:"paymentMethod,omitempty"`
	Notes           string            `json:"notes,omitempty"           validate:"max=2000"`
}

// moneyScale is the number of decimal places stored for every amount.
const moneyScale = 2

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}

		return name
	})

	return v
}

// Validate checks the payload shape and converts it into a Draft.
// Every failure is a *errs.ValidationError naming the offending fields.
func (r *CreateRequest) Validate() (*Draft, error) {
	var (
		missing []string
		reasons []string
	)

	if err := validate.Struct(r); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return nil, errs.Invalid("%v", err)
		}
		for _, fe := range verrs {
			field := fieldPath(fe.Namespace())
			switch fe.Tag() {
			case "required":
				missing = append(missing, field)
			case "min":
				reasons = append(reasons, field+" must not be empty")
			case "gt":
				reasons = append(reasons, field+" must be positive")
			case "max":
				reasons = append(reasons, field+" is too long")
			default:
				reasons = append(reasons, field+" is invalid")
			}
		}
	}
	if len(missing) > 0 {
		return nil, &errs.ValidationError{Missing: missing, Reason: strings.Join(reasons, "; ")}
	}

	amounts := []struct {
		name  string
		value *decimal.Decimal
	}{
		{"subtotal", r.Subtotal},
		{"tax", r.Tax},
		{"shipping", r.Shipping},
		{"total", r.Total},
	}
	for _, amount := range amounts {
		if amount.value.IsNegative() {
			reasons = append(reasons, amount.name+" must not be negative")
		}
		if !isCents(*amount.value) {
			reasons = append(reasons, amount.name+" must have at most 2 decimal places")
		}
	}

	items := make(Items, 0, len(r.Items))
	for i, it := range r.Items {
		size, err := product.ParseSize(it.Size)
		if err != nil {
			reasons = append(reasons, fmt.Sprintf("items[%d].size %q is not one of S, M, L", i, it.Size))

			continue
		}
		if it.UnitPrice.IsNegative() {
			reasons = append(reasons, fmt.Sprintf("items[%d].unitPrice must not be negative", i))

			continue
		}
		if !isCents(*it.UnitPrice) {
			reasons = append(reasons, fmt.Sprintf("items[%d].unitPrice must have at most 2 decimal places", i))

			continue
		}
		items = append(items, LineItem{
			ProductID: it.ProductID,
			Size:      size,
			Quantity:  *it.Quantity,
			UnitPrice: *it.UnitPrice,
		})
	}

	if len(reasons) == 0 && !r.Subtotal.Add(*r.Tax).Add(*r.Shipping).Equal(*r.Total) {
		reasons = append(reasons, "total must equal subtotal + tax + shipping")
	}
	if len(reasons) > 0 {
		return nil, &errs.ValidationError{Reason: strings.Join(reasons, "; ")}
	}

	draft := &Draft{
		UserID:      r.UserID,
		OrderNumber: strings.TrimSpace(r.OrderNumber),
		Items:       items,
		Subtotal:    *r.Subtotal,
		Tax:         *r.Tax,
		Shipping:    *r.Shipping,
		Total:       *r.Total,
		Notes:       strings.TrimSpace(r.Notes),
	}
	if r.ShippingAddress != nil {
		draft.ShippingAddress = *r.ShippingAddress
	}
	if r.BillingAddress != nil {
		draft.BillingAddress = *r.BillingAddress
	}
	if r.PaymentMethod != nil {
		draft.PaymentMethod = *r.PaymentMethod
	}

	return draft, nil
}

// isCents reports whether d is representable in the 2-place money columns
// without rounding. Trailing zeros beyond the cents are allowed.
func isCents(d decimal.Decimal) bool {
	return d.Equal(d.Truncate(moneyScale))
}

// NewOrderNumber generates a human-readable order number such as VS-20260102-1A2B3C4D.
func NewOrderNumber(now time.Time) string {
	id := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))

	return fmt.Sprintf("VS-%s-%s", now.UTC().Format("20060102"), id[:8])
}

// fieldPath drops the struct name validator puts in front of a namespace.
func fieldPath(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}

	return ns
}

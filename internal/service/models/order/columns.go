package order

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/corray333/backend-labs/storefront/internal/service/models/product"
)

// ErrCorruptColumn is returned when a stored structured value does not match its schema.
var ErrCorruptColumn = errors.New("corrupt structured column")

// LineItem is one product+size+quantity entry of an order.
type LineItem struct {
	ProductID int64           `json:"productId"`
	Size      product.Size    `json:"size"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
}

// Items is the ordered list of line items, stored as one JSON column.
type Items []LineItem

// Encode serializes the items for storage.
func (i Items) Encode() ([]byte, error) {
	if len(i) == 0 {
		return nil, fmt.Errorf("%w: items must not be empty", ErrCorruptColumn)
	}

	return json.Marshal([]LineItem(i))
}

func (i Items) Value() (driver.Value, error) {
	return i.Encode()
}

// Scan decodes a stored items column and checks every entry.
func (i *Items) Scan(src any) error {
	var items []LineItem
	if err := decodeColumn(src, &items); err != nil {
		return err
	}
	if len(items) == 0 {
		return fmt.Errorf("%w: items is empty", ErrCorruptColumn)
	}
	for n, item := range items {
		if item.ProductID <= 0 || item.Quantity <= 0 || !item.Size.Valid() || item.UnitPrice.IsNegative() {
			return fmt.Errorf("%w: items[%d] = %+v", ErrCorruptColumn, n, item)
		}
	}
	*i = items

	return nil
}

// Address is a postal address. The zero value is stored as an empty object.
type Address struct {
	Name       string `json:"name,omitempty"`
	Line1      string `json:"line1,omitempty"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city,omitempty"`
	Region     string `json:"region,omitempty"`
	PostalCode string `json:"postalCode,omitempty"`
	Country    string `json:"country,omitempty"`
	Phone      string `json:"phone,omitempty"`
}

// Encode serializes the address for storage.
func (a Address) Encode() ([]byte, error) {
	return json.Marshal(a)
}

func (a Address) Value() (driver.Value, error) {
	return a.Encode()
}

func (a *Address) Scan(src any) error {
	var out Address
	if err := decodeColumn(src, &out); err != nil {
		return err
	}
	*a = out

	return nil
}

// PaymentMethod describes how an order was paid, without card secrets.
type PaymentMethod struct {
	Type     string `json:"type,omitempty"`
	Provider string `json:"provider,omitempty"`
	Brand    string `json:"brand,omitempty"`
	Last4    string `json:"last4,omitempty"`
}

// Encode serializes the payment method for storage.
func (p PaymentMethod) Encode() ([]byte, error) {
	return json.Marshal(p)
}

func (p PaymentMethod) Value() (driver.Value, error) {
	return p.Encode()
}

func (p *PaymentMethod) Scan(src any) error {
	var out PaymentMethod
	if err := decodeColumn(src, &out); err != nil {
		return err
	}
	*p = out

	return nil
}

// decodeColumn strictly decodes a JSON column value. NULL and empty input leave dst untouched.
func decodeColumn(src any, dst any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("%w: unsupported source type %T", ErrCorruptColumn, src)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", ErrCorruptColumn, err)
	}

	return nil
}

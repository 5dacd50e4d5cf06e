package product

import (
	"database/sql/driver"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Size is a garment size that has its own stock column on the product row.
type Size string

const (
	SizeS Size = "S"
	SizeM Size = "M"
	SizeL Size = "L"
)

var ErrInvalidSize = errors.New("invalid size")

// stockColumns maps every known size to its stock column.
var stockColumns = map[Size]string{
	SizeS: "size_s_stock",
	SizeM: "size_m_stock",
	SizeL: "size_l_stock",
}

// ParseSize normalizes case and surrounding whitespace.
func ParseSize(s string) (Size, error) {
	size := Size(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := stockColumns[size]; !ok {
		return "", ErrInvalidSize
	}

	return size, nil
}

func (s Size) String() string {
	return string(s)
}

// Valid reports whether s is one of S, M or L.
func (s Size) Valid() bool {
	_, ok := stockColumns[s]

	return ok
}

// StockColumn returns the column holding stock for this size.
// Unknown sizes report false and must never be turned into SQL.
func (s Size) StockColumn() (string, bool) {
	col, ok := stockColumns[Size(strings.ToUpper(string(s)))]

	return col, ok
}

func (s Size) Value() (driver.Value, error) {
	return s.String(), nil
}

// Product is the stock-relevant part of a catalog row.
type Product struct {
	ID         int64           `json:"id"`
	Name       string          `json:"name"`
	Price      decimal.Decimal `json:"price"`
	SizeSStock int             `json:"sizeSStock"`
	SizeMStock int             `json:"sizeMStock"`
	SizeLStock int             `json:"sizeLStock"`
	CreatedAt  time.Time       `json:"createdAt"`
	UpdatedAt  time.Time       `json:"updatedAt"`
}

// StockFor returns the stock level for size.
func (p *Product) StockFor(size Size) (int, bool) {
	switch Size(strings.ToUpper(string(size))) {
	case SizeS:
		return p.SizeSStock, true
	case SizeM:
		return p.SizeMStock, true
	case SizeL:
		return p.SizeLStock, true
	default:
		return 0, false
	}
}

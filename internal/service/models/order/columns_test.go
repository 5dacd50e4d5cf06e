package order

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corray333/backend-labs/storefront/internal/service/models/product"
)

func TestItemsScan(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		var items Items
		err := items.Scan([]byte(`[{"productId":1,"size":"M","quantity":2,"unitPrice":"12.50"}]`))
		require.NoError(t, err)

		require.Len(t, items, 1)
		assert.Equal(t, product.SizeM, items[0].Size)
		assert.True(t, decimal.RequireFromString("12.5").Equal(items[0].UnitPrice))
	})

	tests := []struct {
		name string
		src  any
	}{
		{"empty list", `[]`},
		{"unknown field", `[{"productId":1,"size":"M","quantity":2,"unitPrice":"1","colour":"red"}]`},
		{"bad size", `[{"productId":1,"size":"XL","quantity":2,"unitPrice":"1"}]`},
		{"zero quantity", `[{"productId":1,"size":"S","quantity":0,"unitPrice":"1"}]`},
		{"not json", `{{`},
		{"wrong type", 42},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var items Items
			assert.ErrorIs(t, items.Scan(tt.src), ErrCorruptColumn)
		})
	}
}

func TestItemsEncodeRejectsEmpty(t *testing.T) {
	_, err := Items{}.Encode()

	assert.ErrorIs(t, err, ErrCorruptColumn)
}

func TestAddressScan(t *testing.T) {
	var a Address
	require.NoError(t, a.Scan(`{"name":"Ada","city":"Leeds","country":"GB"}`))
	assert.Equal(t, Address{Name: "Ada", City: "Leeds", Country: "GB"}, a)

	var empty Address
	require.NoError(t, empty.Scan(nil))
	assert.Equal(t, Address{}, empty)

	assert.ErrorIs(t, a.Scan(`{"street":"x"}`), ErrCorruptColumn)
}

func TestPaymentMethodValue(t *testing.T) {
	v, err := PaymentMethod{Type: "card", Brand: "visa", Last4: "4242"}.Value()
	require.NoError(t, err)

	var p PaymentMethod
	require.NoError(t, p.Scan(v))
	assert.Equal(t, "4242", p.Last4)
}

func TestNewOrderNumber(t *testing.T) {
	n := NewOrderNumber(time.Date(2026, 1, 2, 23, 0, 0, 0, time.UTC))

	assert.Regexp(t, `^VS-20260102-[0-9A-F]{8}$`, n)
	assert.NotEqual(t, n, NewOrderNumber(time.Date(2026, 1, 2, 23, 0, 0, 0, time.UTC)))
}

package cart_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/storefront/internal/cart"
	"github.com/noah-isme/storefront/internal/pricing"
)

func item(id, price string, stock int) cart.LineItem {
	return cart.LineItem{ProductID: id, Name: "Product " + id, UnitPrice: decimal.RequireFromString(price), CountInStock: stock}
}

func ids(items []cart.LineItem) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.ProductID)
	}
	return out
}

func TestAddOrUpdateReplacesQuantityInPlace(t *testing.T) {
	store := cart.NewStore(cart.State{}, nil)
	require.NoError(t, store.AddOrUpdate(item("a", "20", 5), 2))
	require.NoError(t, store.AddOrUpdate(item("b", "15", 3), 1))
	require.NoError(t, store.AddOrUpdate(item("a", "20", 5), 5))

	items := store.Items()
	require.Equal(t, []string{"a", "b"}, ids(items))
	require.Equal(t, 5, items[0].Quantity, "quantity is replaced, not summed")
}

func TestAddOrUpdateRefreshesSnapshot(t *testing.T) {
	store := cart.NewStore(cart.State{}, nil)
	require.NoError(t, store.AddOrUpdate(item("a", "20", 5), 1))
	updated := item("a", "18.50", 4)
	updated.Name = "Renamed"
	require.NoError(t, store.AddOrUpdate(updated, 2))

	got := store.Items()[0]
	require.Equal(t, "Renamed", got.Name)
	require.True(t, got.UnitPrice.Equal(decimal.RequireFromString("18.50")))
	require.Equal(t, 4, got.CountInStock)
}

func TestAddOrUpdateQuantityBounds(t *testing.T) {
	store := cart.NewStore(cart.State{}, nil)
	require.ErrorIs(t, store.AddOrUpdate(item("a", "20", 5), 0), cart.ErrInvalidQuantity)
	require.ErrorIs(t, store.AddOrUpdate(item("a", "20", 5), 6), cart.ErrInvalidQuantity)
	require.ErrorIs(t, store.AddOrUpdate(item("a", "20", 0), 1), cart.ErrOutOfStock)
	require.ErrorIs(t, store.AddOrUpdate(item(" ", "20", 5), 1), cart.ErrNotFound)
	require.Empty(t, store.Items())

	require.NoError(t, store.AddOrUpdate(item("a", "20", 5), 5))
	require.NoError(t, store.UpdateQuantity("a", 1))
	require.Equal(t, 1, store.Items()[0].Quantity)
	require.ErrorIs(t, store.UpdateQuantity("a", 9), cart.ErrInvalidQuantity)
	require.ErrorIs(t, store.UpdateQuantity("zzz", 1), cart.ErrNotFound)
}

func TestRemoveIsNoOpForAbsentProduct(t *testing.T) {
	var saves int
	store := cart.NewStore(cart.State{}, func(cart.State) { saves++ })
	require.NoError(t, store.AddOrUpdate(item("a", "20", 5), 1))
	require.NoError(t, store.AddOrUpdate(item("b", "15", 5), 1))
	require.NoError(t, store.AddOrUpdate(item("c", "5", 5), 1))

	store.Remove("missing")
	require.Equal(t, []string{"a", "b", "c"}, ids(store.Items()))

	store.Remove("b")
	require.Equal(t, []string{"a", "c"}, ids(store.Items()))
	require.Equal(t, 5, saves)
}

func TestClearResetsCheckoutSelections(t *testing.T) {
	store := cart.NewStore(cart.State{}, nil)
	require.NoError(t, store.AddOrUpdate(item("a", "20", 5), 1))
	store.SetShippingAddress(cart.ShippingAddress{Address: "1 Main", City: "X", PostalCode: "1", Country: "US"})
	store.SetPaymentMethod("PayPal")
	store.EnsureOrderKey(func() string { return "k-1" })

	store.Clear()
	state := store.State()
	require.Empty(t, state.Items)
	require.Nil(t, state.ShippingAddress)
	require.Empty(t, state.PaymentMethod)
	require.Empty(t, state.PendingOrderKey)
}

func TestEnsureOrderKeyIsStableUntilCartChanges(t *testing.T) {
	var persisted []string
	store := cart.NewStore(cart.State{}, func(s cart.State) { persisted = append(persisted, s.PendingOrderKey) })
	require.NoError(t, store.AddOrUpdate(item("a", "20", 5), 1))

	n := 0
	mint := func() string { n++; return "key-" + string(rune('0'+n)) }
	first := store.EnsureOrderKey(mint)
	require.Equal(t, "key-1", first)
	require.Equal(t, first, store.EnsureOrderKey(mint))
	require.Equal(t, "key-1", persisted[len(persisted)-1], "minted key is persisted")

	require.NoError(t, store.AddOrUpdate(item("a", "20", 5), 2))
	require.Equal(t, "key-2", store.EnsureOrderKey(mint))
}

func TestTotalsScenario(t *testing.T) {
	policy := pricing.DefaultPolicy()
	store := cart.NewStore(cart.State{}, nil)
	require.NoError(t, store.AddOrUpdate(item("a", "20.00", 10), 2))
	require.NoError(t, store.AddOrUpdate(item("b", "15.00", 10), 1))

	totals := store.Totals(policy, decimal.Zero)
	require.Equal(t, 3, totals.ItemCount)
	require.Equal(t, "55.00", pricing.Format(totals.Subtotal))
	require.Equal(t, "10.00", pricing.Format(totals.Shipping))
	require.Equal(t, "65.00", pricing.Format(totals.Total))

	require.NoError(t, store.AddOrUpdate(item("a", "20.00", 10), 5))
	totals = store.Totals(policy, decimal.Zero)
	require.Equal(t, "115.00", pricing.Format(totals.Subtotal))
	require.Equal(t, "0.00", pricing.Format(totals.Shipping))
	require.Equal(t, "115.00", pricing.Format(totals.Total))

	store.Remove("b")
	totals = store.Totals(policy, decimal.Zero)
	require.Equal(t, "100.00", pricing.Format(totals.Subtotal))
	require.Equal(t, "10.00", pricing.Format(totals.Shipping), "exactly at the threshold still pays")
	require.Equal(t, "110.00", pricing.Format(totals.Total))
}

func TestEmptyCartTotals(t *testing.T) {
	totals := cart.ComputeTotals(nil, pricing.DefaultPolicy(), decimal.Zero)
	require.Zero(t, totals.ItemCount)
	require.Equal(t, "0.00", pricing.Format(totals.Subtotal))
}

package checkout_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/storefront/internal/cart"
	"github.com/noah-isme/storefront/internal/checkout"
)

var addr = &cart.ShippingAddress{Address: "1 Main St", City: "Springfield", PostalCode: "12345", Country: "US"}

func items() []cart.LineItem {
	return []cart.LineItem{{ProductID: "A", UnitPrice: decimal.RequireFromString("20"), Quantity: 2, CountInStock: 5}}
}

func TestGuard(t *testing.T) {
	cases := []struct {
		name   string
		state  cart.State
		view   checkout.View
		want   checkout.View
		wantOK bool
	}{
		{"placeorder without address", cart.State{Items: items(), PaymentMethod: "PayPal"}, checkout.ViewPlaceOrder, checkout.ViewShipping, false},
		{"placeorder with blank address", cart.State{Items: items(), ShippingAddress: &cart.ShippingAddress{City: "X"}, PaymentMethod: "PayPal"}, checkout.ViewPlaceOrder, checkout.ViewShipping, false},
		{"placeorder without payment", cart.State{Items: items(), ShippingAddress: addr}, checkout.ViewPlaceOrder, checkout.ViewPayment, false},
		{"placeorder empty cart", cart.State{ShippingAddress: addr, PaymentMethod: "PayPal"}, checkout.ViewPlaceOrder, checkout.ViewCart, false},
		{"placeorder ready", cart.State{Items: items(), ShippingAddress: addr, PaymentMethod: "PayPal"}, checkout.ViewPlaceOrder, checkout.ViewPlaceOrder, true},
		{"payment without address", cart.State{Items: items()}, checkout.ViewPayment, checkout.ViewShipping, false},
		{"payment with address", cart.State{Items: items(), ShippingAddress: addr}, checkout.ViewPayment, checkout.ViewPayment, true},
		{"shipping always open", cart.State{}, checkout.ViewShipping, checkout.ViewShipping, true},
		{"cart always open", cart.State{}, checkout.ViewCart, checkout.ViewCart, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := checkout.Guard(tc.state, tc.view)
			require.Equal(t, tc.wantOK, ok)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestPlaceOrderWithoutAddressAlwaysRedirectsToShipping(t *testing.T) {
	for _, method := range []string{"", "PayPal"} {
		for _, its := range [][]cart.LineItem{nil, items()} {
			got, ok := checkout.Guard(cart.State{Items: its, PaymentMethod: method}, checkout.ViewPlaceOrder)
			require.False(t, ok)
			require.Equal(t, checkout.ViewShipping, got)
		}
	}
}

func TestStepOf(t *testing.T) {
	require.Equal(t, checkout.NoAddress, checkout.StepOf(cart.State{}))
	require.Equal(t, checkout.AddressSet, checkout.StepOf(cart.State{ShippingAddress: addr}))
	require.Equal(t, checkout.ReadyToPlace, checkout.StepOf(cart.State{ShippingAddress: addr, PaymentMethod: "PayPal"}))
	require.Equal(t, "ready_to_place", checkout.ReadyToPlace.String())
}

func TestParseView(t *testing.T) {
	v, ok := checkout.ParseView(" PlaceOrder ")
	require.True(t, ok)
	require.Equal(t, checkout.ViewPlaceOrder, v)
	_, ok = checkout.ParseView("admin")
	require.False(t, ok)
}

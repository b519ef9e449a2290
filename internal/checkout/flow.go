package checkout

import (
	"fmt"
	"strings"

	"github.com/noah-isme/storefront/internal/cart"
)

// View is a checkout page the shopper can navigate to.
type View string

const (
	ViewCart       View = "cart"
	ViewShipping   View = "shipping"
	ViewPayment    View = "payment"
	ViewPlaceOrder View = "placeorder"
	ViewOrder      View = "order"
)

// ParseView validates a view name from a URL.
func ParseView(s string) (View, bool) {
	switch v := View(strings.ToLower(strings.TrimSpace(s))); v {
	case ViewCart, ViewShipping, ViewPayment, ViewPlaceOrder, ViewOrder:
		return v, true
	}
	return "", false
}

// Step is the shopper's position in the checkout flow.
type Step int

const (
	NoAddress Step = iota
	AddressSet
	ReadyToPlace
	Submitted
)

func (s Step) String() string {
	switch s {
	case NoAddress:
		return "no_address"
	case AddressSet:
		return "address_set"
	case ReadyToPlace:
		return "ready_to_place"
	case Submitted:
		return "submitted"
	default:
		return "unknown"
	}
}

// MarshalText renders the step name in JSON.
func (s Step) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// StepOf derives the pre-submission step from cart state. Submitted is never derived: a
// successful submission clears the cart.
func StepOf(state cart.State) Step {
	if !hasAddress(state) {
		return NoAddress
	}
	if strings.TrimSpace(state.PaymentMethod) == "" {
		return AddressSet
	}
	return ReadyToPlace
}

// Guard decides whether the shopper may open view. When not, it returns the view to redirect to.
func Guard(state cart.State, view View) (View, bool) {
	switch view {
	case ViewPayment:
		if !hasAddress(state) {
			return ViewShipping, false
		}
	case ViewPlaceOrder:
		switch StepOf(state) {
		case NoAddress:
			return ViewShipping, false
		case AddressSet:
			return ViewPayment, false
		}
		if len(state.Items) == 0 {
			return ViewCart, false
		}
	}
	return view, true
}

// RedirectError signals a guarded navigation. It is not a failure; the client should move to To.
type RedirectError struct {
	From View
	To   View
	Step Step
}

func (e *RedirectError) Error() string {
	return fmt.Sprintf("checkout: %s requires redirect to %s", e.From, e.To)
}

func hasAddress(state cart.State) bool {
	a := state.ShippingAddress
	if a == nil {
		return false
	}
	return strings.TrimSpace(a.Address) != "" &&
		strings.TrimSpace(a.City) != "" &&
		strings.TrimSpace(a.PostalCode) != "" &&
		strings.TrimSpace(a.Country) != ""
}

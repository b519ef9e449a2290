package cart

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/storefront/internal/pricing"
)

var (
	// ErrInvalidQuantity is returned when a quantity falls outside 1..countInStock.
	ErrInvalidQuantity = errors.New("invalid quantity")
	// ErrOutOfStock is returned when adding a product with no stock.
	ErrOutOfStock = errors.New("product out of stock")
	// ErrNotFound indicates the product is not in the cart or the catalog.
	ErrNotFound = errors.New("product not found")
	// ErrStaleState is returned by a Persister refusing a snapshot older than the stored one.
	ErrStaleState = errors.New("cart snapshot is stale")
)

// LineItem is a product snapshot captured at add time together with the chosen quantity.
type LineItem struct {
	ProductID    string          `json:"productId"`
	Name         string          `json:"name"`
	Image        string          `json:"image"`
	Brand        string          `json:"brand"`
	UnitPrice    decimal.Decimal `json:"unitPrice"`
	Quantity     int             `json:"quantity"`
	CountInStock int             `json:"countInStock"`
}

// ShippingAddress is collected during the shipping checkout step.
type ShippingAddress struct {
	Address    string `json:"address" validate:"required"`
	City       string `json:"city" validate:"required"`
	PostalCode string `json:"postalCode" validate:"required"`
	Country    string `json:"country" validate:"required"`
}

// State is the persisted shape of a shopper's cart.
type State struct {
	Items           []LineItem       `json:"items"`
	ShippingAddress *ShippingAddress `json:"shippingAddress,omitempty"`
	PaymentMethod   string           `json:"paymentMethod,omitempty"`
	// PendingOrderKey is the idempotency key of the current submission attempt.
	PendingOrderKey string    `json:"pendingOrderKey,omitempty"`
	UpdatedAt       time.Time `json:"updatedAt"`
	// Version increases on every mutation; persisters only accept newer versions.
	Version int64 `json:"version"`
}

func (s State) clone() State {
	out := s
	out.Items = append([]LineItem(nil), s.Items...)
	if s.ShippingAddress != nil {
		addr := *s.ShippingAddress
		out.ShippingAddress = &addr
	}
	return out
}

// Totals is the derived pricing view of the cart.
type Totals = pricing.Summary

// Store is the cart aggregator for one shopper session. Every mutation hands the new state to
// the persist hook; the hook's outcome never affects the in-memory update.
type Store struct {
	mu      sync.Mutex
	state   State
	persist func(State)
	now     func() time.Time
}

// NewStore builds a store from a persisted snapshot. persist may be nil.
func NewStore(state State, persist func(State)) *Store {
	return &Store{state: state.clone(), persist: persist, now: time.Now}
}

// AddOrUpdate inserts the item or replaces the quantity and snapshot of an existing entry with
// the same product. Existing items keep their position; new ones append.
func (s *Store) AddOrUpdate(item LineItem, qty int) error {
	item.ProductID = strings.TrimSpace(item.ProductID)
	if item.ProductID == "" {
		return fmt.Errorf("product id required: %w", ErrNotFound)
	}
	if item.CountInStock <= 0 {
		return ErrOutOfStock
	}
	if qty < 1 || qty > item.CountInStock {
		return fmt.Errorf("quantity %d outside 1..%d: %w", qty, item.CountInStock, ErrInvalidQuantity)
	}
	item.Quantity = qty

	s.mu.Lock()
	replaced := false
	for i := range s.state.Items {
		if s.state.Items[i].ProductID == item.ProductID {
			s.state.Items[i] = item
			replaced = true
			break
		}
	}
	if !replaced {
		s.state.Items = append(s.state.Items, item)
	}
	s.state.PendingOrderKey = ""
	snapshot := s.touchLocked()
	s.mu.Unlock()

	s.save(snapshot)
	return nil
}

// UpdateQuantity changes the quantity of an item already in the cart, bounded by its stock snapshot.
func (s *Store) UpdateQuantity(productID string, qty int) error {
	s.mu.Lock()
	var found *LineItem
	for i := range s.state.Items {
		if s.state.Items[i].ProductID == productID {
			item := s.state.Items[i]
			found = &item
			break
		}
	}
	s.mu.Unlock()
	if found == nil {
		return ErrNotFound
	}
	return s.AddOrUpdate(*found, qty)
}

// Remove drops the entry for productID. Removing an absent id is a no-op.
func (s *Store) Remove(productID string) {
	s.mu.Lock()
	kept := s.state.Items[:0:0]
	for _, it := range s.state.Items {
		if it.ProductID != productID {
			kept = append(kept, it)
		}
	}
	changed := len(kept) != len(s.state.Items)
	s.state.Items = kept
	if changed {
		s.state.PendingOrderKey = ""
	}
	snapshot := s.touchLocked()
	s.mu.Unlock()

	s.save(snapshot)
}

// Clear empties the cart and resets checkout selections.
func (s *Store) Clear() {
	s.mu.Lock()
	s.state.Items = nil
	s.state.ShippingAddress = nil
	s.state.PaymentMethod = ""
	s.state.PendingOrderKey = ""
	snapshot := s.touchLocked()
	s.mu.Unlock()

	s.save(snapshot)
}

// SetShippingAddress records the shipping step.
func (s *Store) SetShippingAddress(addr ShippingAddress) {
	s.mu.Lock()
	s.state.ShippingAddress = &addr
	snapshot := s.touchLocked()
	s.mu.Unlock()

	s.save(snapshot)
}

// SetPaymentMethod records the payment step.
func (s *Store) SetPaymentMethod(method string) {
	s.mu.Lock()
	s.state.PaymentMethod = method
	snapshot := s.touchLocked()
	s.mu.Unlock()

	s.save(snapshot)
}

// EnsureOrderKey returns the pending idempotency key, minting and persisting one if absent.
func (s *Store) EnsureOrderKey(mint func() string) string {
	s.mu.Lock()
	if s.state.PendingOrderKey != "" {
		key := s.state.PendingOrderKey
		s.mu.Unlock()
		return key
	}
	s.state.PendingOrderKey = mint()
	key := s.state.PendingOrderKey
	snapshot := s.touchLocked()
	s.mu.Unlock()

	s.save(snapshot)
	return key
}

// Replace swaps in a state read back from the persister. Nothing is saved.
func (s *Store) Replace(state State) {
	s.mu.Lock()
	s.state = state.clone()
	s.mu.Unlock()
}

// Version returns the version of the in-memory state.
func (s *Store) Version() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Version
}

// Items returns a copy of the line items in display order.
func (s *Store) Items() []LineItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]LineItem(nil), s.state.Items...)
}

// State returns a copy of the full cart state.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

// Totals derives item count, subtotal, shipping and total. tax is zero until checkout supplies it.
func (s *Store) Totals(policy pricing.Policy, tax decimal.Decimal) Totals {
	return ComputeTotals(s.Items(), policy, tax)
}

// ComputeTotals is the pure totals function over a set of line items.
func ComputeTotals(items []LineItem, policy pricing.Policy, tax decimal.Decimal) Totals {
	pricingItems := make([]pricing.Item, 0, len(items))
	for _, it := range items {
		pricingItems = append(pricingItems, pricing.Item{Qty: it.Quantity, UnitPrice: it.UnitPrice})
	}
	return pricing.Compute(pricingItems, policy, tax)
}

func (s *Store) touchLocked() State {
	s.state.UpdatedAt = s.now().UTC()
	s.state.Version++
	return s.state.clone()
}

func (s *Store) save(state State) {
	if s.persist != nil {
		s.persist(state)
	}
}

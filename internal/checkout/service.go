package checkout

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/storefront/internal/cart"
	"github.com/noah-isme/storefront/internal/common"
	"github.com/noah-isme/storefront/internal/events"
	"github.com/noah-isme/storefront/internal/lock"
	"github.com/noah-isme/storefront/internal/obs"
	"github.com/noah-isme/storefront/internal/order"
	"github.com/noah-isme/storefront/internal/pricing"
)

var (
	// ErrEmptyCart is returned when placing an order with no items.
	ErrEmptyCart = errors.New("cart is empty")
	// ErrSubmissionInFlight is returned while another submission for the session is running.
	ErrSubmissionInFlight = errors.New("order submission already in progress")
	// ErrUnsupportedPaymentMethod is returned for methods outside the allow-list.
	ErrUnsupportedPaymentMethod = errors.New("unsupported payment method")
)

// DefaultPaymentMethod is preselected on the payment step.
const DefaultPaymentMethod = "PayPal"

// ValidationError carries per-field messages for the shipping form.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		names = append(names, k)
	}
	return "invalid fields: " + strings.Join(names, ", ")
}

// Locker serializes submissions per session.
type Locker interface {
	TryWithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}

// CartReloader refreshes a store from the persisted snapshot.
type CartReloader interface {
	Reload(ctx context.Context, sessionID string, store *cart.Store) error
}

// Publisher receives domain events.
type Publisher interface {
	Emit(ctx context.Context, topic, aggregateID string, payload any) (events.Event, error)
}

// Confirmation is the result of a successful submission.
type Confirmation struct {
	OrderID  string `json:"orderId"`
	Redirect View   `json:"redirect"`
	Step     Step   `json:"step"`
}

// OrderPlaced is the payload of the order.placed event.
type OrderPlaced struct {
	OrderID   string `json:"orderId"`
	SessionID string `json:"sessionId"`
	UserID    string `json:"userId,omitempty"`
	Email     string `json:"email,omitempty"`
	ItemCount int    `json:"itemCount"`
	Total     string `json:"total"`
	Currency  string `json:"currency"`
}

// Service runs the shipping, payment and place-order steps.
type Service struct {
	Orders         order.Submitter
	Locker         Locker
	Carts          CartReloader
	LockTTL        time.Duration
	Policy         pricing.Policy
	PaymentMethods []string
	Currency       string
	Events         Publisher
	Logger         zerolog.Logger
	NewKey         func() string

	validateOnce sync.Once
	validate     *validator.Validate
}

func (s *Service) validator() *validator.Validate {
	s.validateOnce.Do(func() {
		v := validator.New()
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return fld.Name
			}
			return name
		})
		s.validate = v
	})
	return s.validate
}

// SaveShipping validates and records the shipping address.
func (s *Service) SaveShipping(store *cart.Store, addr cart.ShippingAddress) error {
	addr.Address = strings.TrimSpace(addr.Address)
	addr.City = strings.TrimSpace(addr.City)
	addr.PostalCode = strings.TrimSpace(addr.PostalCode)
	addr.Country = strings.TrimSpace(addr.Country)
	if err := s.validator().Struct(addr); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make(map[string]string, len(verrs))
			for _, fe := range verrs {
				fields[fe.Field()] = fe.Tag()
			}
			return &ValidationError{Fields: fields}
		}
		return err
	}
	store.SetShippingAddress(addr)
	return nil
}

// SavePayment records the payment method. The shipping step must be complete first.
func (s *Service) SavePayment(store *cart.Store, method string) error {
	if redirect, ok := Guard(store.State(), ViewPayment); !ok {
		return &RedirectError{From: ViewPayment, To: redirect, Step: StepOf(store.State())}
	}
	method = strings.TrimSpace(method)
	if method == "" {
		return &ValidationError{Fields: map[string]string{"paymentMethod": "required"}}
	}
	canonical, ok := s.allowedMethod(method)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedPaymentMethod, method)
	}
	store.SetPaymentMethod(canonical)
	return nil
}

func (s *Service) allowedMethod(method string) (string, bool) {
	allowed := s.PaymentMethods
	if len(allowed) == 0 {
		allowed = []string{DefaultPaymentMethod}
	}
	for _, m := range allowed {
		if strings.EqualFold(m, method) {
			return m, true
		}
	}
	return "", false
}

// Quote returns totals including tax.
func (s *Service) Quote(store *cart.Store) cart.Totals {
	items := store.Items()
	subtotal := cart.ComputeTotals(items, s.Policy, pricing.Money{}).Subtotal
	return cart.ComputeTotals(items, s.Policy, s.Policy.Tax(subtotal))
}

// Enter checks whether the shopper may open view.
func (s *Service) Enter(store *cart.Store, view View) error {
	state := store.State()
	if redirect, ok := Guard(state, view); !ok {
		return &RedirectError{From: view, To: redirect, Step: StepOf(state)}
	}
	return nil
}

// PlaceOrder submits the cart. The cart is cleared only after the order API confirms; on any
// failure the cart, address and payment method are left as they were.
func (s *Service) PlaceOrder(ctx context.Context, sessionID string, store *cart.Store) (Confirmation, error) {
	if s == nil || s.Orders == nil {
		return Confirmation{}, errors.New("checkout service not configured")
	}
	state := store.State()
	if len(state.Items) == 0 {
		return Confirmation{}, ErrEmptyCart
	}
	if redirect, ok := Guard(state, ViewPlaceOrder); !ok {
		return Confirmation{}, &RedirectError{From: ViewPlaceOrder, To: redirect, Step: StepOf(state)}
	}

	var confirmation Confirmation
	submit := func(ctx context.Context) error {
		c, err := s.submit(ctx, sessionID, store)
		confirmation = c
		return err
	}
	var err error
	if s.Locker != nil {
		err = s.Locker.TryWithLock(ctx, "checkout:"+sessionID, s.lockTTL(), submit)
		if errors.Is(err, lock.ErrLocked) {
			obs.CountCheckoutSubmission("in_flight")
			return Confirmation{}, ErrSubmissionInFlight
		}
	} else {
		err = submit(ctx)
	}
	if err != nil {
		return Confirmation{}, err
	}
	return confirmation, nil
}

// submit runs under the session lock. The store may have been opened before a concurrent
// submission completed, so it is refreshed before the order key is read or minted.
func (s *Service) submit(ctx context.Context, sessionID string, store *cart.Store) (Confirmation, error) {
	if s.Carts != nil {
		if err := s.Carts.Reload(ctx, sessionID, store); err != nil {
			return Confirmation{}, err
		}
	}
	state := store.State()
	if len(state.Items) == 0 {
		return Confirmation{}, ErrEmptyCart
	}
	if redirect, ok := Guard(state, ViewPlaceOrder); !ok {
		return Confirmation{}, &RedirectError{From: ViewPlaceOrder, To: redirect, Step: StepOf(state)}
	}
	key := store.EnsureOrderKey(s.mintKey)
	state = store.State()
	totals := s.Quote(store)
	req := order.Request{
		IdempotencyKey: key,
		Items:          make([]order.Item, 0, len(state.Items)),
		PaymentMethod:  state.PaymentMethod,
		ItemsPrice:     totals.Subtotal,
		ShippingPrice:  totals.Shipping,
		TaxPrice:       totals.Tax,
		TotalPrice:     totals.Total,
	}
	if a := state.ShippingAddress; a != nil {
		req.ShippingAddress = order.Address{Address: a.Address, City: a.City, PostalCode: a.PostalCode, Country: a.Country}
	}
	for _, it := range state.Items {
		req.Items = append(req.Items, order.Item{
			ProductID: it.ProductID,
			Name:      it.Name,
			Image:     it.Image,
			Price:     it.UnitPrice,
			Qty:       it.Quantity,
		})
	}

	receipt, err := s.Orders.Submit(ctx, req)
	if err != nil {
		kind := order.KindOf(err)
		obs.CountCheckoutSubmission(string(kind))
		s.Logger.Warn().Err(err).Str("session_id", sessionID).Str("kind", string(kind)).Msg("order_submit_failed")
		return Confirmation{}, err
	}

	store.Clear()
	obs.CountCheckoutSubmission("success")
	s.Logger.Info().Str("session_id", sessionID).Str("order_id", receipt.OrderID).Msg("order_placed")
	s.publish(ctx, sessionID, receipt, totals)
	return Confirmation{OrderID: receipt.OrderID, Redirect: ViewOrder, Step: Submitted}, nil
}

func (s *Service) publish(ctx context.Context, sessionID string, receipt order.Receipt, totals cart.Totals) {
	if s.Events == nil {
		return
	}
	payload := OrderPlaced{
		OrderID:   receipt.OrderID,
		SessionID: sessionID,
		ItemCount: totals.ItemCount,
		Total:     pricing.Format(totals.Total),
		Currency:  s.Currency,
	}
	payload.UserID, _ = common.UserID(ctx)
	payload.Email, _ = common.UserEmail(ctx)
	if _, err := s.Events.Emit(context.WithoutCancel(ctx), events.TopicOrderPlaced, receipt.OrderID, payload); err != nil {
		s.Logger.Warn().Err(err).Str("order_id", receipt.OrderID).Msg("order_placed_event_failed")
	}
}

func (s *Service) mintKey() string {
	if s.NewKey != nil {
		return s.NewKey()
	}
	return uuid.NewString()
}

func (s *Service) lockTTL() time.Duration {
	if s.LockTTL <= 0 {
		return 30 * time.Second
	}
	return s.LockTTL
}

package checkout_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/storefront/internal/cart"
	"github.com/noah-isme/storefront/internal/cartstore"
	"github.com/noah-isme/storefront/internal/checkout"
	"github.com/noah-isme/storefront/internal/common"
	"github.com/noah-isme/storefront/internal/events"
	"github.com/noah-isme/storefront/internal/lock"
	"github.com/noah-isme/storefront/internal/order"
	"github.com/noah-isme/storefront/internal/pricing"
)

type fakeOrders struct {
	mu       sync.Mutex
	requests []order.Request
	err      error
	id       string
	block    chan struct{}
	entered  chan struct{}
}

func (f *fakeOrders) Submit(_ context.Context, req order.Request) (order.Receipt, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	block, entered := f.block, f.entered
	f.mu.Unlock()
	if entered != nil {
		close(entered)
	}
	if block != nil {
		<-block
	}
	if f.err != nil {
		return order.Receipt{}, f.err
	}
	return order.Receipt{OrderID: f.id}, nil
}

func (f *fakeOrders) calls() []order.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]order.Request(nil), f.requests...)
}

func readyStore() *cart.Store {
	store := cart.NewStore(cart.State{}, nil)
	fillReady(store)
	return store
}

func fillReady(store *cart.Store) {
	_ = store.AddOrUpdate(cart.LineItem{ProductID: "A", Name: "Airpods", UnitPrice: decimal.RequireFromString("20.00"), CountInStock: 5}, 2)
	_ = store.AddOrUpdate(cart.LineItem{ProductID: "B", Name: "Kindle", UnitPrice: decimal.RequireFromString("15.00"), CountInStock: 3}, 1)
	store.SetShippingAddress(*addr)
	store.SetPaymentMethod("PayPal")
}

func newLocker(t *testing.T) lock.Locker {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return lock.Locker{R: client}
}

func newService(orders order.Submitter, bus checkout.Publisher) *checkout.Service {
	n := 0
	return &checkout.Service{
		Orders:   orders,
		Policy:   pricing.DefaultPolicy(),
		Currency: "USD",
		Events:   bus,
		Logger:   zerolog.Nop(),
		NewKey: func() string {
			n++
			return "key-" + string(rune('0'+n))
		},
	}
}

func TestSaveShippingValidatesRequiredFields(t *testing.T) {
	svc := newService(&fakeOrders{}, nil)
	store := cart.NewStore(cart.State{}, nil)

	err := svc.SaveShipping(store, cart.ShippingAddress{Address: "1 Main", City: "  "})
	var verr *checkout.ValidationError
	require.True(t, errors.As(err, &verr))
	require.Equal(t, map[string]string{"city": "required", "postalCode": "required", "country": "required"}, verr.Fields)
	require.Nil(t, store.State().ShippingAddress, "no state mutation on validation failure")

	require.NoError(t, svc.SaveShipping(store, cart.ShippingAddress{Address: " 1 Main ", City: "X", PostalCode: "1", Country: "US"}))
	require.Equal(t, "1 Main", store.State().ShippingAddress.Address)
	require.Equal(t, checkout.AddressSet, checkout.StepOf(store.State()))
}

func TestSavePayment(t *testing.T) {
	svc := newService(&fakeOrders{}, nil)
	store := cart.NewStore(cart.State{}, nil)

	var redirect *checkout.RedirectError
	require.True(t, errors.As(svc.SavePayment(store, "PayPal"), &redirect))
	require.Equal(t, checkout.ViewShipping, redirect.To)

	store.SetShippingAddress(*addr)
	require.ErrorIs(t, svc.SavePayment(store, "Bitcoin"), checkout.ErrUnsupportedPaymentMethod)
	var verr *checkout.ValidationError
	require.True(t, errors.As(svc.SavePayment(store, " "), &verr))

	require.NoError(t, svc.SavePayment(store, "paypal"))
	require.Equal(t, "PayPal", store.State().PaymentMethod)
	require.Equal(t, checkout.ReadyToPlace, checkout.StepOf(store.State()))
}

func TestQuoteIncludesTax(t *testing.T) {
	svc := newService(&fakeOrders{}, nil)
	totals := svc.Quote(readyStore())
	require.Equal(t, "55.00", pricing.Format(totals.Subtotal))
	require.Equal(t, "10.00", pricing.Format(totals.Shipping))
	require.Equal(t, "8.25", pricing.Format(totals.Tax))
	require.Equal(t, "73.25", pricing.Format(totals.Total))
}

func TestPlaceOrderSuccessClearsCartAndPublishes(t *testing.T) {
	orders := &fakeOrders{id: "order-1"}
	var published []events.Event
	bus := &events.Bus{Notifiers: []events.Notifier{events.NotifierFunc(func(_ context.Context, ev events.Event) error {
		published = append(published, ev)
		return nil
	})}}
	svc := newService(orders, bus)
	svc.Locker = newLocker(t)
	store := readyStore()

	ctx := common.WithUserEmail(common.WithUserID(context.Background(), "user-1"), "shopper@example.com")
	conf, err := svc.PlaceOrder(ctx, "sess-1", store)
	require.NoError(t, err)
	require.Equal(t, "order-1", conf.OrderID)
	require.Equal(t, checkout.ViewOrder, conf.Redirect)
	require.Equal(t, checkout.Submitted, conf.Step)

	calls := orders.calls()
	require.Len(t, calls, 1)
	req := calls[0]
	require.Equal(t, "key-1", req.IdempotencyKey)
	require.Equal(t, "PayPal", req.PaymentMethod)
	require.Equal(t, "Springfield", req.ShippingAddress.City)
	require.Len(t, req.Items, 2)
	require.True(t, req.ItemsPrice.Equal(decimal.RequireFromString("55")))
	require.True(t, req.ShippingPrice.Equal(decimal.RequireFromString("10")))
	require.True(t, req.TaxPrice.Equal(decimal.RequireFromString("8.25")))
	require.True(t, req.TotalPrice.Equal(decimal.RequireFromString("73.25")))

	state := store.State()
	require.Empty(t, state.Items)
	require.Nil(t, state.ShippingAddress)
	require.Empty(t, state.PaymentMethod)

	require.Len(t, published, 1)
	require.Equal(t, events.TopicOrderPlaced, published[0].Topic)
	var payload checkout.OrderPlaced
	require.NoError(t, json.Unmarshal(published[0].Payload, &payload))
	require.Equal(t, "order-1", payload.OrderID)
	require.Equal(t, "shopper@example.com", payload.Email)
	require.Equal(t, "73.25", payload.Total)
	require.Equal(t, 3, payload.ItemCount)
}

func TestPlaceOrderFailureKeepsState(t *testing.T) {
	kinds := []order.Kind{order.KindValidation, order.KindStockConflict, order.KindPaymentFailed, order.KindTransient, order.KindUnexpected}
	for _, kind := range kinds {
		t.Run(string(kind), func(t *testing.T) {
			orders := &fakeOrders{err: &order.SubmitError{Kind: kind, Message: "nope"}}
			svc := newService(orders, nil)
			store := readyStore()
			before := store.State()

			_, err := svc.PlaceOrder(context.Background(), "sess", store)
			require.Equal(t, kind, order.KindOf(err))

			after := store.State()
			require.Len(t, after.Items, len(before.Items))
			require.Equal(t, before.ShippingAddress, after.ShippingAddress)
			require.Equal(t, before.PaymentMethod, after.PaymentMethod)
			require.Equal(t, checkout.ReadyToPlace, checkout.StepOf(after))
		})
	}
}

func TestPlaceOrderRetryReusesIdempotencyKey(t *testing.T) {
	orders := &fakeOrders{err: &order.SubmitError{Kind: order.KindTransient}}
	svc := newService(orders, nil)
	store := readyStore()

	_, err := svc.PlaceOrder(context.Background(), "sess", store)
	require.Error(t, err)
	orders.err = nil
	orders.id = "order-2"
	_, err = svc.PlaceOrder(context.Background(), "sess", store)
	require.NoError(t, err)

	calls := orders.calls()
	require.Len(t, calls, 2)
	require.Equal(t, calls[0].IdempotencyKey, calls[1].IdempotencyKey)
}

func TestPlaceOrderNewKeyAfterCartChange(t *testing.T) {
	orders := &fakeOrders{err: &order.SubmitError{Kind: order.KindStockConflict}}
	svc := newService(orders, nil)
	store := readyStore()

	_, err := svc.PlaceOrder(context.Background(), "sess", store)
	require.Error(t, err)
	require.NoError(t, store.UpdateQuantity("B", 2))
	_, err = svc.PlaceOrder(context.Background(), "sess", store)
	require.Error(t, err)

	calls := orders.calls()
	require.NotEqual(t, calls[0].IdempotencyKey, calls[1].IdempotencyKey)
}

func TestPlaceOrderGuards(t *testing.T) {
	svc := newService(&fakeOrders{id: "x"}, nil)

	_, err := svc.PlaceOrder(context.Background(), "s", cart.NewStore(cart.State{}, nil))
	require.ErrorIs(t, err, checkout.ErrEmptyCart)

	store := cart.NewStore(cart.State{}, nil)
	require.NoError(t, store.AddOrUpdate(cart.LineItem{ProductID: "A", UnitPrice: decimal.RequireFromString("1"), CountInStock: 1}, 1))
	_, err = svc.PlaceOrder(context.Background(), "s", store)
	var redirect *checkout.RedirectError
	require.True(t, errors.As(err, &redirect))
	require.Equal(t, checkout.ViewShipping, redirect.To)
}

func TestPlaceOrderRejectsConcurrentSubmission(t *testing.T) {
	orders := &fakeOrders{id: "order-1", block: make(chan struct{}), entered: make(chan struct{})}
	svc := newService(orders, nil)
	svc.Locker = newLocker(t)
	store := readyStore()

	done := make(chan error, 1)
	go func() {
		_, err := svc.PlaceOrder(context.Background(), "sess", store)
		done <- err
	}()
	<-orders.entered

	_, err := svc.PlaceOrder(context.Background(), "sess", readyStore())
	require.ErrorIs(t, err, checkout.ErrSubmissionInFlight)

	close(orders.block)
	require.NoError(t, <-done)
	require.Len(t, orders.calls(), 1)
}

// openPair opens two stores for one session, as two overlapping requests would.
func openPair(t *testing.T, carts *cart.Service, sessionID string) (*cart.Store, *cart.Store) {
	t.Helper()
	ctx := context.Background()
	seed, err := carts.Open(ctx, sessionID)
	require.NoError(t, err)
	fillReady(seed)
	a, err := carts.Open(ctx, sessionID)
	require.NoError(t, err)
	b, err := carts.Open(ctx, sessionID)
	require.NoError(t, err)
	return a, b
}

func TestPlaceOrderStaleStoreSeesClearedCart(t *testing.T) {
	orders := &fakeOrders{id: "order-1"}
	svc := newService(orders, nil)
	svc.Locker = newLocker(t)
	carts := &cart.Service{Persister: cartstore.NewMemory(), Logger: zerolog.Nop()}
	svc.Carts = carts
	ctx := context.Background()

	first, second := openPair(t, carts, "sess")

	_, err := svc.PlaceOrder(ctx, "sess", first)
	require.NoError(t, err)
	_, err = svc.PlaceOrder(ctx, "sess", second)
	require.ErrorIs(t, err, checkout.ErrEmptyCart)

	calls := orders.calls()
	require.Len(t, calls, 1)
	require.Equal(t, "key-1", calls[0].IdempotencyKey)

	second.SetPaymentMethod("PayPal")
	fresh, err := carts.Open(ctx, "sess")
	require.NoError(t, err)
	require.Empty(t, fresh.Items())
	require.Empty(t, fresh.State().PaymentMethod)
}

func TestPlaceOrderStaleStoreReusesPendingKey(t *testing.T) {
	orders := &fakeOrders{err: &order.SubmitError{Kind: order.KindTransient}}
	svc := newService(orders, nil)
	svc.Locker = newLocker(t)
	carts := &cart.Service{Persister: cartstore.NewMemory(), Logger: zerolog.Nop()}
	svc.Carts = carts
	ctx := context.Background()

	first, second := openPair(t, carts, "sess")

	_, err := svc.PlaceOrder(ctx, "sess", first)
	require.Error(t, err)
	orders.err = nil
	orders.id = "order-2"
	_, err = svc.PlaceOrder(ctx, "sess", second)
	require.NoError(t, err)

	calls := orders.calls()
	require.Len(t, calls, 2)
	require.Equal(t, "key-1", calls[0].IdempotencyKey)
	require.Equal(t, "key-1", calls[1].IdempotencyKey)
}

func newRouter(svc *checkout.Service, store *cart.Store) http.Handler {
	h := &checkout.Handler{Svc: svc}
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := common.WithSessionID(r.Context(), "sess-http")
			next.ServeHTTP(w, r.WithContext(cart.NewContext(ctx, store)))
		})
	})
	r.Get("/checkout/quote", h.Quote)
	r.Get("/checkout/{view}", h.View)
	r.Put("/checkout/shipping", h.SaveShipping)
	r.Put("/checkout/payment", h.SavePayment)
	r.Post("/checkout/place-order", h.PlaceOrder)
	return r
}

func serve(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, strings.NewReader(body)))
	return rec
}

func TestCheckoutHandlersFlow(t *testing.T) {
	orders := &fakeOrders{id: "order-77"}
	store := cart.NewStore(cart.State{}, nil)
	require.NoError(t, store.AddOrUpdate(cart.LineItem{ProductID: "A", UnitPrice: decimal.RequireFromString("20.00"), CountInStock: 5}, 2))
	router := newRouter(newService(orders, nil), store)

	rec := serve(router, http.MethodGet, "/checkout/placeorder", "")
	require.Equal(t, http.StatusConflict, rec.Code)
	var redirect struct {
		Error struct {
			Code    string         `json:"code"`
			Details map[string]any `json:"details"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &redirect))
	require.Equal(t, "CHECKOUT_REDIRECT", redirect.Error.Code)
	require.Equal(t, "shipping", redirect.Error.Details["redirect"])

	rec = serve(router, http.MethodPut, "/checkout/shipping", `{"address":"1 Main","city":"","postalCode":"1","country":"US"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), `"city":"required"`)

	rec = serve(router, http.MethodPut, "/checkout/shipping", `{"address":"1 Main","city":"X","postalCode":"1","country":"US"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = serve(router, http.MethodGet, "/checkout/placeorder", "")
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Contains(t, rec.Body.String(), `"redirect":"payment"`)

	rec = serve(router, http.MethodPut, "/checkout/payment", `{"paymentMethod":"PayPal"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"step":"ready_to_place"`)

	rec = serve(router, http.MethodGet, "/checkout/quote", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"tax":"6.00"`)
	require.Contains(t, rec.Body.String(), `"total":"56.00"`)

	rec = serve(router, http.MethodGet, "/checkout/placeorder", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = serve(router, http.MethodPost, "/checkout/place-order", "")
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Contains(t, rec.Body.String(), `"orderId":"order-77"`)
	require.Contains(t, rec.Body.String(), `"path":"/order/order-77"`)
	require.Empty(t, store.Items())

	rec = serve(router, http.MethodPost, "/checkout/place-order", "")
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Contains(t, rec.Body.String(), "EMPTY_CART")
}

func TestCheckoutHandlerSurfacesOrderFailure(t *testing.T) {
	orders := &fakeOrders{err: &order.SubmitError{Kind: order.KindStockConflict, Status: 409, Message: "Kindle is out of stock"}}
	store := readyStore()
	router := newRouter(newService(orders, nil), store)

	rec := serve(router, http.MethodPost, "/checkout/place-order", "")
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Contains(t, rec.Body.String(), "Kindle is out of stock")
	require.Len(t, store.Items(), 2)
}

func TestUnknownView(t *testing.T) {
	router := newRouter(newService(&fakeOrders{}, nil), cart.NewStore(cart.State{}, nil))
	rec := serve(router, http.MethodGet, "/checkout/admin", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestQuoteRendersFormattedItems(t *testing.T) {
	router := newRouter(newService(&fakeOrders{}, nil), cart.NewStore(cart.State{}, nil))
	rec := serve(router, http.MethodGet, "/checkout/quote", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"items":[]`)

	router = newRouter(newService(&fakeOrders{}, nil), readyStore())
	rec = serve(router, http.MethodGet, "/checkout/quote", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Data struct {
			Items []cart.ItemView `json:"items"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Data.Items, 2)
	require.Equal(t, "20.00", resp.Data.Items[0].UnitPrice)
	require.Equal(t, "40.00", resp.Data.Items[0].LineTotal)
	require.Equal(t, "15.00", resp.Data.Items[1].UnitPrice)
}

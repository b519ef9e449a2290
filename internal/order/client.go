package order

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/noah-isme/storefront/internal/common"
	"github.com/noah-isme/storefront/internal/obs"
	"github.com/noah-isme/storefront/internal/pricing"
	"github.com/noah-isme/storefront/internal/resilience"
)

const maxErrorBody = 64 << 10

// NewHTTPClient returns an http.Client whose transport propagates trace context to the order API.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}

// Client talks to the order API.
type Client struct {
	BaseURL string
	HTTP    resilience.HTTPClient
	Logger  zerolog.Logger
}

type wireItem struct {
	ProductID string      `json:"product"`
	Name      string      `json:"name"`
	Image     string      `json:"image"`
	Price     json.Number `json:"price"`
	Qty       int         `json:"qty"`
}

type wireOrder struct {
	OrderItems      []wireItem  `json:"orderItems"`
	ShippingAddress Address     `json:"shippingAddress"`
	PaymentMethod   string      `json:"paymentMethod"`
	ItemsPrice      json.Number `json:"itemsPrice"`
	ShippingPrice   json.Number `json:"shippingPrice"`
	TaxPrice        json.Number `json:"taxPrice"`
	TotalPrice      json.Number `json:"totalPrice"`
}

func number(m pricing.Money) json.Number { return json.Number(pricing.Format(m)) }

// Submit posts the order. The idempotency key lets the order API collapse retried submissions.
func (c *Client) Submit(ctx context.Context, req Request) (Receipt, error) {
	payload := wireOrder{
		OrderItems:      make([]wireItem, 0, len(req.Items)),
		ShippingAddress: req.ShippingAddress,
		PaymentMethod:   req.PaymentMethod,
		ItemsPrice:      number(req.ItemsPrice),
		ShippingPrice:   number(req.ShippingPrice),
		TaxPrice:        number(req.TaxPrice),
		TotalPrice:      number(req.TotalPrice),
	}
	for _, it := range req.Items {
		payload.OrderItems = append(payload.OrderItems, wireItem{
			ProductID: it.ProductID,
			Name:      it.Name,
			Image:     it.Image,
			Price:     number(it.Price),
			Qty:       it.Qty,
		})
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return Receipt{}, &SubmitError{Kind: KindUnexpected, Err: fmt.Errorf("encode order: %w", err)}
	}

	httpReq, err := c.newRequest(ctx, http.MethodPost, "/api/orders", bytes.NewReader(body))
	if err != nil {
		return Receipt{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		httpReq.Header.Set("Idempotency-Key", key)
	}

	raw, err := c.do(ctx, "submit", httpReq)
	if err != nil {
		return Receipt{}, err
	}
	var created struct {
		MongoID string `json:"_id"`
		ID      string `json:"id"`
	}
	if err := json.Unmarshal(raw, &created); err != nil {
		return Receipt{}, &SubmitError{Kind: KindUnexpected, Err: fmt.Errorf("decode order: %w", err)}
	}
	id := created.MongoID
	if id == "" {
		id = created.ID
	}
	if id == "" {
		return Receipt{}, &SubmitError{Kind: KindUnexpected, Message: "order api returned no order id"}
	}
	return Receipt{OrderID: id}, nil
}

// Get returns a single order owned by the caller.
func (c *Client) Get(ctx context.Context, id string) (json.RawMessage, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, &SubmitError{Kind: KindNotFound, Message: "order id required"}
	}
	req, err := c.newRequest(ctx, http.MethodGet, "/api/orders/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, err
	}
	return c.do(ctx, "get", req)
}

// Mine lists the caller's orders.
func (c *Client) Mine(ctx context.Context) (json.RawMessage, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/orders/mine", nil)
	if err != nil {
		return nil, err
	}
	return c.do(ctx, "mine", req)
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	base := strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if base == "" {
		return nil, &SubmitError{Kind: KindUnexpected, Message: "order api base url not configured"}
	}
	req, err := http.NewRequestWithContext(ctx, method, base+path, body)
	if err != nil {
		return nil, &SubmitError{Kind: KindUnexpected, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if token, ok := common.AccessToken(ctx); ok {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

func (c *Client) do(ctx context.Context, op string, req *http.Request) (json.RawMessage, error) {
	start := time.Now()
	resp, err := c.HTTP.Do(ctx, req)
	if err != nil {
		obs.ObserveOrderAPI(op, "error", obs.DurationMillis(time.Since(start)))
		kind := KindTransient
		if errors.Is(err, context.Canceled) {
			kind = KindUnexpected
		}
		c.Logger.Warn().Err(err).Str("op", op).Msg("order_api_unreachable")
		return nil, &SubmitError{Kind: kind, Err: err, Message: "order service unavailable"}
	}
	defer func() { _ = resp.Body.Close() }()
	raw, readErr := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	obs.ObserveOrderAPI(op, statusClass(resp.StatusCode), obs.DurationMillis(time.Since(start)))
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if readErr != nil {
			return nil, &SubmitError{Kind: KindTransient, Status: resp.StatusCode, Err: readErr}
		}
		return raw, nil
	}
	if len(raw) > maxErrorBody {
		raw = raw[:maxErrorBody]
	}
	se := &SubmitError{Kind: Classify(resp.StatusCode), Status: resp.StatusCode, Message: errorMessage(raw)}
	c.Logger.Info().Str("op", op).Int("status", resp.StatusCode).Str("kind", string(se.Kind)).Msg("order_api_rejected")
	return nil, se
}

// Classify maps an order API status code to a failure kind.
func Classify(status int) Kind {
	switch {
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return KindValidation
	case status == http.StatusConflict:
		return KindStockConflict
	case status == http.StatusPaymentRequired:
		return KindPaymentFailed
	case status == http.StatusNotFound:
		return KindNotFound
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindUnauthorized
	case status == http.StatusTooManyRequests || status >= 500:
		return KindTransient
	default:
		return KindUnexpected
	}
}

// errorMessage extracts {"message": ...} or {"error": {"message": ...}} from an error body.
func errorMessage(raw []byte) string {
	var body struct {
		Message string          `json:"message"`
		Error   json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return strings.TrimSpace(string(raw))
	}
	if body.Message != "" {
		return body.Message
	}
	var nested struct {
		Message string `json:"message"`
	}
	if len(body.Error) > 0 && json.Unmarshal(body.Error, &nested) == nil && nested.Message != "" {
		return nested.Message
	}
	var plain string
	if len(body.Error) > 0 && json.Unmarshal(body.Error, &plain) == nil {
		return plain
	}
	return ""
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	default:
		return "2xx"
	}
}

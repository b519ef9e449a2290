package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Item is one order line as sent to the order API.
type Item struct {
	ProductID string          `json:"product"`
	Name      string          `json:"name"`
	Image     string          `json:"image"`
	Price     decimal.Decimal `json:"price"`
	Qty       int             `json:"qty"`
}

// Address is the shipping destination of an order.
type Address struct {
	Address    string `json:"address"`
	City       string `json:"city"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
}

// Request is a complete order submission. IdempotencyKey travels as a header, not in the body.
type Request struct {
	IdempotencyKey  string
	Items           []Item
	ShippingAddress Address
	PaymentMethod   string
	ItemsPrice      decimal.Decimal
	ShippingPrice   decimal.Decimal
	TaxPrice        decimal.Decimal
	TotalPrice      decimal.Decimal
}

// Receipt is returned when the order API accepted the order.
type Receipt struct {
	OrderID string `json:"orderId"`
}

// Submitter creates orders.
type Submitter interface {
	Submit(ctx context.Context, req Request) (Receipt, error)
}

// Reader fetches existing orders for the authenticated shopper.
type Reader interface {
	Get(ctx context.Context, id string) (json.RawMessage, error)
	Mine(ctx context.Context) (json.RawMessage, error)
}

// Kind classifies order API failures.
type Kind string

const (
	KindValidation    Kind = "validation"
	KindStockConflict Kind = "stock_conflict"
	KindPaymentFailed Kind = "payment_failed"
	KindTransient     Kind = "transient"
	KindUnexpected    Kind = "unexpected"
	KindNotFound      Kind = "not_found"
	KindUnauthorized  Kind = "unauthorized"
)

// SubmitError is the structured failure returned by the order client.
type SubmitError struct {
	Kind    Kind
	Status  int
	Message string
	Err     error
}

func (e *SubmitError) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Status > 0 {
		return fmt.Sprintf("order api %s (%d): %s", e.Kind, e.Status, msg)
	}
	return fmt.Sprintf("order api %s: %s", e.Kind, msg)
}

func (e *SubmitError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Retryable reports whether the shopper can resubmit without changing anything.
func (e *SubmitError) Retryable() bool {
	return e != nil && (e.Kind == KindTransient || e.Kind == KindStockConflict)
}

// KindOf returns the failure kind of err, or KindUnexpected for foreign errors.
func KindOf(err error) Kind {
	var se *SubmitError
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindUnexpected
}

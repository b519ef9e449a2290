package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"strings"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"gopkg.in/gomail.v2"

	"github.com/noah-isme/storefront/internal/common"
	"github.com/noah-isme/storefront/internal/obs"
)

// SMTPSender delivers email through an SMTP relay.
type SMTPSender struct {
	Dialer *gomail.Dialer
	From   string
}

// NewSMTPSender builds an SMTP sender. An empty host yields nil so callers fall back to a no-op sender.
func NewSMTPSender(host string, port int, username, password, from string) *SMTPSender {
	if strings.TrimSpace(host) == "" {
		return nil
	}
	return &SMTPSender{Dialer: gomail.NewDialer(host, port, username, password), From: from}
}

// Send implements common.EmailSender.
func (s *SMTPSender) Send(to, subject, body string) error {
	msg := gomail.NewMessage()
	msg.SetHeader("From", s.From)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/html", body)
	return s.Dialer.DialAndSend(msg)
}

// OrderEmailHandler sends the order confirmation email for order:placed tasks.
type OrderEmailHandler struct {
	Mail    common.EmailSender
	Enabled bool
	// StoreURL is used to link to the order confirmation page.
	StoreURL string
	Logger   zerolog.Logger
}

// ProcessTask implements asynq.Handler.
func (h OrderEmailHandler) ProcessTask(_ context.Context, task *asynq.Task) error {
	var payload OrderPlacedPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		obs.CountNotification("email", "invalid")
		return fmt.Errorf("order email: decode payload: %v: %w", err, asynq.SkipRetry)
	}
	if !h.Enabled || h.Mail == nil {
		obs.CountNotification("email", "disabled")
		return nil
	}
	to := strings.TrimSpace(payload.Email)
	if to == "" {
		obs.CountNotification("email", "no_recipient")
		h.Logger.Debug().Str("order_id", payload.OrderID).Msg("order_email_skipped")
		return nil
	}
	if err := h.Mail.Send(to, subjectFor(payload), bodyFor(payload, h.StoreURL)); err != nil {
		obs.CountNotification("email", "error")
		return fmt.Errorf("order email: send: %w", err)
	}
	obs.CountNotification("email", "sent")
	h.Logger.Info().Str("order_id", payload.OrderID).Msg("order_email_sent")
	return nil
}

func subjectFor(p OrderPlacedPayload) string {
	return fmt.Sprintf("Order %s confirmed", p.OrderID)
}

func bodyFor(p OrderPlacedPayload, storeURL string) string {
	var b strings.Builder
	b.WriteString("<p>Thank you for your order.</p>")
	fmt.Fprintf(&b, "<p>Order ID: %s<br>", html.EscapeString(p.OrderID))
	fmt.Fprintf(&b, "Items: %d<br>", p.ItemCount)
	fmt.Fprintf(&b, "Total: %s %s</p>", html.EscapeString(p.Total), html.EscapeString(p.Currency))
	if base := strings.TrimRight(strings.TrimSpace(storeURL), "/"); base != "" {
		link := base + "/order/" + p.OrderID
		fmt.Fprintf(&b, `<p><a href="%s">View your order</a></p>`, html.EscapeString(link))
	}
	return b.String()
}

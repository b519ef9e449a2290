package common

import "sync"

// EmailSender delivers one transactional email. body is HTML.
type EmailSender interface {
	Send(to, subject, body string) error
}

// Email is a message captured by InMemoryEmail.
type Email struct {
	To      string
	Subject string
	Body    string
}

// InMemoryEmail records messages instead of sending them. Safe for use by concurrent workers.
type InMemoryEmail struct {
	mu     sync.Mutex
	Outbox []Email
}

func (m *InMemoryEmail) Send(to, subject, body string) error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Outbox = append(m.Outbox, Email{To: to, Subject: subject, Body: body})
	return nil
}

// NopEmailSender drops every message. The worker uses it when SMTP is not configured.
type NopEmailSender struct{}

func (NopEmailSender) Send(string, string, string) error { return nil }

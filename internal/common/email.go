package common

// EmailSender is the outbound mail contract used by notification code.
type EmailSender interface {
	Send(to, subject, html string) error
}

// InMemoryEmail records messages for assertions in tests.
type InMemoryEmail struct {
	Outbox []Email
}

// Email is a single captured message.
type Email struct {
	To      string
	Subject string
	HTML    string
}

// Send records the email in memory.
func (m *InMemoryEmail) Send(to, subject, html string) error {
	if m == nil {
		return nil
	}
	m.Outbox = append(m.Outbox, Email{To: to, Subject: subject, HTML: html})
	return nil
}

// NopEmailSender drops every message. Used when email delivery is disabled.
type NopEmailSender struct{}

// Send implements EmailSender.
func (NopEmailSender) Send(string, string, string) error { return nil }

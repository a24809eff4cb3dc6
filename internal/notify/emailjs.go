// Package notify delivers transactional email for order events.
package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const defaultEmailJSEndpoint = "https://api.emailjs.com/api/v1.0/email/send"

// EmailJS sends mail through the EmailJS REST API using a generic template
// that accepts recipient, subject, and HTML body parameters.
type EmailJS struct {
	ServiceID  string
	TemplateID string
	PublicKey  string
	PrivateKey string
	Endpoint   string
	HTTPClient *http.Client
}

// NewEmailJS constructs a client with an instrumented HTTP transport.
func NewEmailJS(serviceID, templateID, publicKey, privateKey string) *EmailJS {
	return &EmailJS{
		ServiceID:  serviceID,
		TemplateID: templateID,
		PublicKey:  publicKey,
		PrivateKey: privateKey,
		HTTPClient: &http.Client{
			Timeout:   10 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

type emailJSRequest struct {
	ServiceID      string         `json:"service_id"`
	TemplateID     string         `json:"template_id"`
	UserID         string         `json:"user_id"`
	AccessToken    string         `json:"accessToken,omitempty"`
	TemplateParams map[string]any `json:"template_params"`
}

// Send implements common.EmailSender.
func (c *EmailJS) Send(to, subject, html string) error {
	if c == nil || c.ServiceID == "" || c.TemplateID == "" || c.PublicKey == "" {
		return fmt.Errorf("emailjs: client not configured")
	}
	payload, err := json.Marshal(emailJSRequest{
		ServiceID:   c.ServiceID,
		TemplateID:  c.TemplateID,
		UserID:      c.PublicKey,
		AccessToken: c.PrivateKey,
		TemplateParams: map[string]any{
			"to_email":     to,
			"subject":      subject,
			"html_content": html,
		},
	})
	if err != nil {
		return fmt.Errorf("emailjs: encode request: %w", err)
	}

	endpoint := c.Endpoint
	if endpoint == "" {
		endpoint = defaultEmailJSEndpoint
	}
	client := c.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Post(endpoint, "application/json", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("emailjs: send: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("emailjs: send failed with status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

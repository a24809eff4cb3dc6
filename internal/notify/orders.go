package notify

import (
	"fmt"
	"html"
	"strings"

	"github.com/evoqwell/evoqsite/internal/common"
	"github.com/evoqwell/evoqsite/internal/money"
	"github.com/evoqwell/evoqsite/internal/obs"
	"github.com/evoqwell/evoqsite/internal/order"
	"github.com/evoqwell/evoqsite/internal/store"
)

// OrderMailer renders and sends order confirmation email to the buyer and a
// copy to the shop owner.
type OrderMailer struct {
	Mail common.EmailSender
	// AdminMail sends the owner copy through a separate template when set.
	// Falls back to Mail.
	AdminMail     common.EmailSender
	AdminEmail    string
	VenmoUsername string
	Enabled       bool
}

// SendConfirmation sends the buyer confirmation and the admin notification
// for a freshly placed order.
func (m OrderMailer) SendConfirmation(o store.Order) error {
	if !m.Enabled || m.Mail == nil {
		return nil
	}
	subject := fmt.Sprintf("Order %s received", o.OrderNumber)
	body := m.renderOrder(o)

	if err := m.Mail.Send(o.Customer.Email, subject, body); err != nil {
		recordEmail("buyer", err)
		return fmt.Errorf("send buyer confirmation: %w", err)
	}
	recordEmail("buyer", nil)

	if m.AdminEmail != "" {
		adminMail := m.AdminMail
		if adminMail == nil {
			adminMail = m.Mail
		}
		adminSubject := fmt.Sprintf("New order %s (%s)", o.OrderNumber, money.FormatDollars(o.TotalCents))
		if err := adminMail.Send(m.AdminEmail, adminSubject, body); err != nil {
			recordEmail("admin", err)
			return fmt.Errorf("send admin notification: %w", err)
		}
		recordEmail("admin", nil)
	}
	return nil
}

func (m OrderMailer) renderOrder(o store.Order) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<h2>Order %s</h2>", html.EscapeString(o.OrderNumber))
	fmt.Fprintf(&b, "<p>Thanks %s, we received your order.</p>", html.EscapeString(o.Customer.Name))

	b.WriteString("<ul>")
	for _, item := range o.Items {
		fmt.Fprintf(&b, "<li>%d x %s &mdash; %s</li>",
			item.Quantity, html.EscapeString(item.Name), money.FormatDollars(item.LineTotalCents))
	}
	b.WriteString("</ul>")

	fmt.Fprintf(&b, "<p>Subtotal: %s<br>", money.FormatDollars(o.SubtotalCents))
	if o.DiscountCents > 0 {
		fmt.Fprintf(&b, "Discount: -%s<br>", money.FormatDollars(o.DiscountCents))
	}
	fmt.Fprintf(&b, "Shipping: %s<br>", money.FormatDollars(o.ShippingCents))
	fmt.Fprintf(&b, "<strong>Total: %s</strong></p>", money.FormatDollars(o.TotalCents))

	if o.Status == store.OrderStatusPendingPayment && m.VenmoUsername != "" {
		link := order.VenmoURL(m.VenmoUsername, o.TotalCents, o.VenmoNote)
		fmt.Fprintf(&b, `<p><a href="%s">Pay with Venmo</a> and include %s in the note.</p>`,
			html.EscapeString(link), html.EscapeString(o.OrderNumber))
	}
	return b.String()
}

func recordEmail(template string, err error) {
	if obs.EmailDeliveriesTotal == nil {
		return
	}
	result := "sent"
	if err != nil {
		result = "failed"
	}
	obs.EmailDeliveriesTotal.WithLabelValues(template, result).Inc()
}

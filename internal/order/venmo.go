package order

import (
	"net/url"

	"github.com/evoqwell/evoqsite/internal/money"
)

// VenmoURL builds the payment deep link the buyer opens to settle an order.
// The note carries the order number so payments can be matched by hand.
func VenmoURL(username string, totalCents int64, note string) string {
	query := url.Values{}
	query.Set("txn", "pay")
	query.Set("amount", money.FormatDollars(totalCents))
	query.Set("note", note)
	return "https://venmo.com/" + url.PathEscape(username) + "?" + query.Encode()
}

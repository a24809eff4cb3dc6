// Package order owns order presentation, numbering, payment links, and the
// admin management surface.
package order

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// GenerateNumber produces a public order number such as EVOQ-20260829-9F3A1C40.
// The random suffix keeps numbers unguessable while staying short enough to
// read over the phone.
func GenerateNumber(now time.Time) (string, error) {
	suffix := make([]byte, 4)
	if _, err := rand.Read(suffix); err != nil {
		return "", fmt.Errorf("generate order number: %w", err)
	}
	return fmt.Sprintf("EVOQ-%s-%s",
		now.UTC().Format("20060102"),
		strings.ToUpper(hex.EncodeToString(suffix))), nil
}

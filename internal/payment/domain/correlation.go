package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// Correlation travels through the provider as an opaque token and maps a
// provider event back to a local payment.
type Correlation struct {
	UserID    int64
	PaymentID string
	PackageID string
	Credits   int64
}

// Token renders "user:payment:package:credits".
func (c Correlation) Token() string {
	return fmt.Sprintf("%d:%s:%s:%d", c.UserID, c.PaymentID, c.PackageID, c.Credits)
}

func ParseCorrelation(token string) (Correlation, error) {
	parts := strings.Split(strings.TrimSpace(token), ":")
	if len(parts) != 4 {
		return Correlation{}, ErrWebhookMalformed
	}
	userID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || userID == 0 {
		return Correlation{}, ErrWebhookMalformed
	}
	credits, err := strconv.ParseInt(parts[3], 10, 64)
	if err != nil || credits <= 0 {
		return Correlation{}, ErrWebhookMalformed
	}
	if parts[1] == "" || parts[2] == "" {
		return Correlation{}, ErrWebhookMalformed
	}
	return Correlation{
		UserID:    userID,
		PaymentID: parts[1],
		PackageID: parts[2],
		Credits:   credits,
	}, nil
}

// Package notify delivers owner notifications over SMS and Viber, keeps one
// delivery-log row per attempt and retries transient failures with backoff.
package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/Keeydi/LedgerMonitor-sub000/apperr"
	"github.com/Keeydi/LedgerMonitor-sub000/models"
)

// Receipt is what a provider hands back for an accepted message
type Receipt struct {
	ProviderMessageID string
	// Delivered is set when the provider already reports final handset delivery
	Delivered bool
	Detail    string
}

// Channel sends one message to one normalized recipient. Errors must carry
// apperr.KindPermanentProvider for rejections; anything else counts as transient.
type Channel interface {
	Name() models.Channel
	Send(ctx context.Context, to, body string) (Receipt, error)
}

// permanentStatuses are HTTP answers that will not change on retry
var permanentStatuses = map[int]bool{
	http.StatusBadRequest:          true,
	http.StatusUnauthorized:        true,
	http.StatusPaymentRequired:     true,
	http.StatusForbidden:           true,
	http.StatusNotFound:            true,
	http.StatusUnprocessableEntity: true,
}

// classifyResponse turns a non-2xx provider response into a kinded error
func classifyResponse(op string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	cause := fmt.Errorf("provider answered %s: %s", resp.Status, strings.TrimSpace(string(body)))
	if permanentStatuses[resp.StatusCode] {
		return apperr.E(apperr.KindPermanentProvider, op, cause)
	}
	return apperr.E(apperr.KindTransientProvider, op, cause)
}

// classifyTransport wraps network-level failures and timeouts; they are always transient
func classifyTransport(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return apperr.Errorf(apperr.KindTransientProvider, op, "provider timed out: %w", err)
	}
	return apperr.E(apperr.KindTransientProvider, op, err)
}

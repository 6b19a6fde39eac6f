package notify

import (
	"encoding/json"
	"net/url"
	"strings"
	"time"

	"github.com/Keeydi/LedgerMonitor-sub000/apperr"
	"github.com/Keeydi/LedgerMonitor-sub000/models"
)

// DeliveryReport is a provider's asynchronous verdict on an accepted message
type DeliveryReport struct {
	ProviderMessageID string
	Status            models.DeliveryStatus
	Detail            string
	At                time.Time
}

// reportStatus maps provider vocabulary onto delivered/failed
func reportStatus(raw string) (models.DeliveryStatus, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "delivered", "seen", "read":
		return models.DeliveryDelivered, true
	case "failed", "undelivered", "expired", "error":
		return models.DeliveryFailed, true
	}
	return "", false
}

// ParseSMSReport reads the gateway's form-encoded delivery callback
func ParseSMSReport(form url.Values) (DeliveryReport, error) {
	const op = "notify.ParseSMSReport"
	id := form.Get("message_id")
	if id == "" {
		return DeliveryReport{}, apperr.Validation(op, "message_id is required")
	}
	status, ok := reportStatus(form.Get("status"))
	if !ok {
		return DeliveryReport{}, apperr.Validation(op, "unknown delivery status %q", form.Get("status"))
	}
	return DeliveryReport{ProviderMessageID: id, Status: status, Detail: form.Get("status"), At: time.Now()}, nil
}

// ParseViberReport reads a Viber delivery-status webhook body
func ParseViberReport(body []byte) (DeliveryReport, error) {
	const op = "notify.ParseViberReport"
	var in struct {
		MessageID string `json:"message_id"`
		Status    string `json:"status"`
		Timestamp int64  `json:"timestamp"`
	}
	if err := json.Unmarshal(body, &in); err != nil {
		return DeliveryReport{}, apperr.Validation(op, "invalid callback body: %v", err)
	}
	if in.MessageID == "" {
		return DeliveryReport{}, apperr.Validation(op, "message_id is required")
	}
	status, ok := reportStatus(in.Status)
	if !ok {
		return DeliveryReport{}, apperr.Validation(op, "unknown delivery status %q", in.Status)
	}
	at := time.Now()
	if in.Timestamp > 0 {
		at = time.UnixMilli(in.Timestamp)
	}
	return DeliveryReport{ProviderMessageID: in.MessageID, Status: status, Detail: in.Status, At: at}, nil
}

package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/Keeydi/LedgerMonitor-sub000/apperr"
	"github.com/Keeydi/LedgerMonitor-sub000/models"
)

// SMSChannel posts form-encoded messages to an HTTP SMS gateway
type SMSChannel struct {
	endpoint   string
	apiKey     string
	senderName string
	client     *http.Client
}

func NewSMSChannel(endpoint, apiKey, senderName string, client *http.Client) *SMSChannel {
	if client == nil {
		client = http.DefaultClient
	}
	return &SMSChannel{endpoint: endpoint, apiKey: apiKey, senderName: senderName, client: client}
}

func (c *SMSChannel) Name() models.Channel {
	return models.ChannelSMS
}

type smsAck struct {
	MessageID json.Number `json:"message_id"`
	Status    string      `json:"status"`
}

func (c *SMSChannel) Send(ctx context.Context, to, body string) (Receipt, error) {
	const op = "notify.SMSChannel.Send"

	params := url.Values{}
	params.Add("apikey", c.apiKey)
	params.Add("number", to)
	params.Add("message", body)
	if c.senderName != "" {
		params.Add("sendername", c.senderName)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(params.Encode()))
	if err != nil {
		return Receipt{}, apperr.E(apperr.KindPermanentProvider, op, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return Receipt{}, classifyTransport(op, err)
	}
	defer resp.Body.Close()

	if err := classifyResponse(op, resp); err != nil {
		return Receipt{}, err
	}

	// The gateway answers with one ack per recipient
	var acks []smsAck
	if err := json.NewDecoder(resp.Body).Decode(&acks); err != nil || len(acks) == 0 {
		return Receipt{Detail: "accepted without ack"}, nil
	}
	ack := acks[0]
	if strings.EqualFold(ack.Status, "failed") || strings.EqualFold(ack.Status, "refunded") {
		return Receipt{}, apperr.Errorf(apperr.KindPermanentProvider, op, "gateway refused message: %s", ack.Status)
	}
	return Receipt{
		ProviderMessageID: ack.MessageID.String(),
		Delivered:         strings.EqualFold(ack.Status, "delivered"),
		Detail:            ack.Status,
	}, nil
}

package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"github.com/Keeydi/LedgerMonitor-sub000/apperr"
	"github.com/Keeydi/LedgerMonitor-sub000/models"
)

// ViberChannel sends text messages through a Viber Business Messages HTTP API
type ViberChannel struct {
	endpoint string
	token    string
	sender   string
	client   *http.Client
}

func NewViberChannel(endpoint, token, sender string, client *http.Client) *ViberChannel {
	if client == nil {
		client = http.DefaultClient
	}
	return &ViberChannel{endpoint: endpoint, token: token, sender: sender, client: client}
}

func (c *ViberChannel) Name() models.Channel {
	return models.ChannelViber
}

type viberMessage struct {
	To     string `json:"to"`
	Sender string `json:"sender"`
	Type   string `json:"type"`
	Text   string `json:"text"`
}

type viberAck struct {
	MessageID string `json:"message_id"`
	Status    string `json:"status"`
}

func (c *ViberChannel) Send(ctx context.Context, to, body string) (Receipt, error) {
	const op = "notify.ViberChannel.Send"

	payload, err := json.Marshal(viberMessage{To: to, Sender: c.sender, Type: "text", Text: body})
	if err != nil {
		return Receipt{}, apperr.E(apperr.KindPermanentProvider, op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return Receipt{}, apperr.E(apperr.KindPermanentProvider, op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.client.Do(req)
	if err != nil {
		return Receipt{}, classifyTransport(op, err)
	}
	defer resp.Body.Close()

	if err := classifyResponse(op, resp); err != nil {
		return Receipt{}, err
	}

	var ack viberAck
	if err := json.NewDecoder(resp.Body).Decode(&ack); err != nil {
		return Receipt{Detail: "accepted without ack"}, nil
	}
	return Receipt{
		ProviderMessageID: ack.MessageID,
		Delivered:         ack.Status == "delivered",
		Detail:            ack.Status,
	}, nil
}

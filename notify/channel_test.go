package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/Keeydi/LedgerMonitor-sub000/apperr"
	"github.com/Keeydi/LedgerMonitor-sub000/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSMSChannelSend(t *testing.T) {
	var got url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		got = r.PostForm
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"message_id": 98765, "status": "Pending"}]`))
	}))
	defer srv.Close()

	ch := NewSMSChannel(srv.URL, "key-1", "PARKWATCH", srv.Client())
	receipt, err := ch.Send(context.Background(), "+639171234567", "move your car")
	require.NoError(t, err)

	assert.Equal(t, "98765", receipt.ProviderMessageID)
	assert.False(t, receipt.Delivered)
	assert.Equal(t, "key-1", got.Get("apikey"))
	assert.Equal(t, "+639171234567", got.Get("number"))
	assert.Equal(t, "move your car", got.Get("message"))
	assert.Equal(t, "PARKWATCH", got.Get("sendername"))
}

func TestProviderStatusClassification(t *testing.T) {
	tests := []struct {
		status int
		kind   apperr.Kind
	}{
		{status: http.StatusBadRequest, kind: apperr.KindPermanentProvider},
		{status: http.StatusUnauthorized, kind: apperr.KindPermanentProvider},
		{status: http.StatusPaymentRequired, kind: apperr.KindPermanentProvider},
		{status: http.StatusUnprocessableEntity, kind: apperr.KindPermanentProvider},
		{status: http.StatusRequestTimeout, kind: apperr.KindTransientProvider},
		{status: http.StatusTooManyRequests, kind: apperr.KindTransientProvider},
		{status: http.StatusInternalServerError, kind: apperr.KindTransientProvider},
		{status: http.StatusServiceUnavailable, kind: apperr.KindTransientProvider},
	}

	for _, tt := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
		}))

		_, smsErr := NewSMSChannel(srv.URL, "k", "", srv.Client()).Send(context.Background(), "+639171234567", "x")
		_, viberErr := NewViberChannel(srv.URL, "t", "s", srv.Client()).Send(context.Background(), "+639171234567", "x")
		srv.Close()

		assert.Equal(t, tt.kind, apperr.KindOf(smsErr), "sms status %d", tt.status)
		assert.Equal(t, tt.kind, apperr.KindOf(viberErr), "viber status %d", tt.status)
	}
}

func TestSMSGatewayRefusalIsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"message_id": 1, "status": "Failed"}]`))
	}))
	defer srv.Close()

	_, err := NewSMSChannel(srv.URL, "k", "", srv.Client()).Send(context.Background(), "+639171234567", "x")
	assert.True(t, apperr.IsKind(err, apperr.KindPermanentProvider))
}

func TestNetworkFailureIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	endpoint := srv.URL
	srv.Close()

	_, err := NewSMSChannel(endpoint, "k", "", nil).Send(context.Background(), "+639171234567", "x")
	assert.True(t, apperr.IsKind(err, apperr.KindTransientProvider))
}

func TestViberChannelSend(t *testing.T) {
	var body viberMessage
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		_, _ = w.Write([]byte(`{"message_id": "vb-1", "status": "delivered"}`))
	}))
	defer srv.Close()

	receipt, err := NewViberChannel(srv.URL, "tok", "ParkWatch", srv.Client()).Send(context.Background(), "+639171234567", "hello")
	require.NoError(t, err)

	assert.Equal(t, "Bearer tok", auth)
	assert.Equal(t, viberMessage{To: "+639171234567", Sender: "ParkWatch", Type: "text", Text: "hello"}, body)
	assert.Equal(t, "vb-1", receipt.ProviderMessageID)
	assert.True(t, receipt.Delivered)
}

func TestParseDeliveryReports(t *testing.T) {
	r, err := ParseSMSReport(url.Values{"message_id": {"98765"}, "status": {"Delivered"}})
	require.NoError(t, err)
	assert.Equal(t, models.DeliveryDelivered, r.Status)

	r, err = ParseViberReport([]byte(`{"message_id": "vb-1", "status": "undelivered", "timestamp": 1767225600000}`))
	require.NoError(t, err)
	assert.Equal(t, models.DeliveryFailed, r.Status)
	assert.Equal(t, int64(1767225600000), r.At.UnixMilli())

	_, err = ParseSMSReport(url.Values{"status": {"Delivered"}})
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))

	_, err = ParseViberReport([]byte(`{"message_id": "vb-1", "status": "teleported"}`))
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
}

package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82/webhook"
)

func checkoutEvent(eventID, paymentStatus string) []byte {
	return []byte(`{"id":"` + eventID + `","object":"event","type":"checkout.session.completed",` +
		`"data":{"object":{"id":"cs_1","object":"checkout.session","payment_status":"` + paymentStatus + `",` +
		`"metadata":{"companyId":"acme","sessions":"5"}}}}`)
}

func signedWebhook(payload []byte, secret string) *http.Request {
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    secret,
		Timestamp: time.Now(),
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/billing/webhook", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", signed.Header)
	return req
}

func TestStripeWebhookAppliesTopUpOnce(t *testing.T) {
	ta := newTestApp(t, 20*time.Millisecond)
	payload := checkoutEvent("evt_1", "paid")

	for i, want := range []bool{true, false} {
		rr := ta.do(signedWebhook(payload, webhookSecret))
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
		var resp struct {
			Applied bool `json:"applied"`
		}
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.Equal(t, want, resp.Applied, "delivery %d", i)
	}

	company, err := ta.store.Companies().FindByID(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, 15, company.SessionsAllocated)
}

func TestStripeWebhookIgnoresUnpaidCheckout(t *testing.T) {
	ta := newTestApp(t, 20*time.Millisecond)

	rr := ta.do(signedWebhook(checkoutEvent("evt_2", "unpaid"), webhookSecret))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Contains(t, rr.Body.String(), "ignored")

	company, err := ta.store.Companies().FindByID(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, 10, company.SessionsAllocated)
}

func TestStripeWebhookRejectsBadSignature(t *testing.T) {
	ta := newTestApp(t, 20*time.Millisecond)

	rr := ta.do(signedWebhook(checkoutEvent("evt_3", "paid"), "whsec_other"))
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/billing/webhook", bytes.NewReader(checkoutEvent("evt_3", "paid")))
	rr = ta.do(req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	company, err := ta.store.Companies().FindByID(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, 10, company.SessionsAllocated)
}

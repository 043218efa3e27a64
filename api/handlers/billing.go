package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/linesmerrill/benefits-access-api/api"
	"github.com/linesmerrill/benefits-access-api/config"
	"github.com/linesmerrill/benefits-access-api/logging"
	"github.com/linesmerrill/benefits-access-api/models"
	"github.com/linesmerrill/benefits-access-api/seats"
)

const maxWebhookBytes = 65536

// Billing exported for testing purposes
type Billing struct {
	Ledger        *seats.Ledger
	WebhookSecret string
}

// StripeWebhookHandler adds purchased sessions to a company when a checkout completes. The
// checkout carries metadata.companyId and metadata.sessions; the event id makes redelivery a
// no-op.
func (b Billing) StripeWebhookHandler(w http.ResponseWriter, r *http.Request) {
	const op = "apply_top_up"
	log := logging.Named("billing")

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBytes))
	if err != nil {
		config.ErrorStatus("failed to read webhook body", http.StatusServiceUnavailable, w, err)
		return
	}
	if b.WebhookSecret == "" {
		config.ErrorStatus("webhooks are not configured", http.StatusServiceUnavailable, w, nil)
		return
	}
	event, err := webhook.ConstructEventWithOptions(payload, r.Header.Get("Stripe-Signature"), b.WebhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		config.ErrorStatus("invalid webhook signature", http.StatusBadRequest, w, err)
		return
	}

	if event.Type != stripe.EventTypeCheckoutSessionCompleted {
		writeOK(w, http.StatusOK, "ignored", string(event.Type))
		return
	}
	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		invalid(w, r, op, "checkout session could not be decoded")
		return
	}
	if session.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
		log.Infow("checkout completed without payment, nothing to apply",
			"eventId", event.ID,
			"paymentStatus", session.PaymentStatus)
		writeOK(w, http.StatusOK, "ignored", string(session.PaymentStatus))
		return
	}

	companyID := session.Metadata["companyId"]
	sessions, err := strconv.Atoi(session.Metadata["sessions"])
	if companyID == "" || err != nil || sessions <= 0 {
		invalid(w, r, op, "checkout metadata must carry companyId and a positive sessions count")
		return
	}

	ctx, cancel := api.Detached(r.Context())
	defer cancel()
	applied, err := b.Ledger.ApplyTopUp(ctx, models.AllocationTopUp{
		ID:        event.ID,
		CompanyID: companyID,
		Sessions:  sessions,
		Source:    "stripe",
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		writeOutcome(w, r, op, err)
		return
	}
	log.Infow("checkout processed",
		"eventId", event.ID,
		"companyId", companyID,
		"sessions", sessions,
		"applied", applied)
	api.RecordOutcome(r.Context(), op, nil)
	writeOK(w, http.StatusOK, "applied", applied)
}

package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/MAGICGrants/campaign-site/btcpay"
	"github.com/MAGICGrants/campaign-site/coinbase"
	"github.com/MAGICGrants/campaign-site/service/flags"
	"github.com/go-chi/chi/v5"
	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/webhook"
)

// All webhook handlers follow the same shape: read the raw body, verify the
// signature over the exact bytes, then decode. Verified events that turn out
// to be duplicates or not actionable are still acknowledged with 200, so the
// processor stops redelivering them.

func (s *API) btcpayWebhook(w http.ResponseWriter, r *http.Request) {
	sig := r.Header.Get("BTCPay-Sig")
	if sig == "" {
		ackData(w, false, http.StatusBadRequest)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		ackData(w, false, http.StatusBadRequest)
		return
	}
	if !btcpay.VerifySignature(body, sig, flags.BTCPayWebhookSecret.Value()) {
		slog.WarnContext(r.Context(), "Rejected BTCPay delivery with invalid signature")
		ackData(w, false, http.StatusUnauthorized)
		return
	}

	var ev btcpay.WebhookEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		ackData(w, false, http.StatusBadRequest)
		return
	}

	pev, err := s.base.NormalizeBTCPay(r.Context(), &ev)
	if err != nil {
		slog.ErrorContext(r.Context(), "Could not normalize BTCPay event",
			slog.String("invoice", ev.InvoiceID), slog.Any("err", err))
		errorData(w, err)
		return
	}
	if pev == nil {
		ackData(w, true, http.StatusOK)
		return
	}

	if err := s.base.Reconcile(r.Context(), pev); err != nil {
		errorData(w, err)
		return
	}
	ackData(w, true, http.StatusOK)
}

func (s *API) stripeWebhook(w http.ResponseWriter, r *http.Request) {
	fund := chi.URLParam(r, "fund")
	secret := flags.StripeWebhookSecrets.Value()[fund]
	if secret == "" {
		slog.WarnContext(r.Context(), "Stripe delivery for fund with no webhook secret",
			slog.String("fund", fund))
		ackData(w, false, http.StatusBadRequest)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		ackData(w, false, http.StatusBadRequest)
		return
	}

	event, err := webhook.ConstructEvent(body, r.Header.Get("Stripe-Signature"), secret)
	if err != nil {
		slog.WarnContext(r.Context(), "Rejected Stripe delivery with invalid signature",
			slog.String("fund", fund), slog.Any("err", err))
		ackData(w, false, http.StatusUnauthorized)
		return
	}

	switch string(event.Type) {
	case "payment_intent.succeeded":
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			ackData(w, false, http.StatusBadRequest)
			return
		}
		s.reconcileStripe(w, r, func() (err error) {
			pev, err := s.base.NormalizeStripeIntent(r.Context(), &pi)
			if err != nil || pev == nil {
				return err
			}
			return s.base.Reconcile(r.Context(), pev)
		})
	case "invoice.paid":
		var in stripe.Invoice
		if err := json.Unmarshal(event.Data.Raw, &in); err != nil {
			ackData(w, false, http.StatusBadRequest)
			return
		}
		s.reconcileStripe(w, r, func() (err error) {
			pev, err := s.base.NormalizeStripeInvoice(r.Context(), &in)
			if err != nil || pev == nil {
				return err
			}
			return s.base.Reconcile(r.Context(), pev)
		})
	default:
		ackData(w, true, http.StatusOK)
	}
}

func (s *API) reconcileStripe(w http.ResponseWriter, r *http.Request, run func() error) {
	if err := run(); err != nil {
		slog.ErrorContext(r.Context(), "Could not process Stripe event", slog.Any("err", err))
		errorData(w, err)
		return
	}
	ackData(w, true, http.StatusOK)
}

func (s *API) coinbaseWebhook(w http.ResponseWriter, r *http.Request) {
	sig := r.Header.Get("X-CC-Webhook-Signature")
	if sig == "" {
		ackData(w, false, http.StatusBadRequest)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		ackData(w, false, http.StatusBadRequest)
		return
	}
	if !coinbase.VerifySignature(body, sig, flags.CoinbaseWebhookSecret.Value()) {
		slog.WarnContext(r.Context(), "Rejected Coinbase delivery with invalid signature")
		ackData(w, false, http.StatusUnauthorized)
		return
	}

	var ev coinbase.WebhookEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		ackData(w, false, http.StatusBadRequest)
		return
	}

	if ev.Event.Type != coinbase.EventChargeConfirmed {
		ackData(w, true, http.StatusOK)
		return
	}

	pev, err := s.base.NormalizeCoinbase(r.Context(), &ev)
	if err != nil {
		slog.ErrorContext(r.Context(), "Could not normalize Coinbase event",
			slog.String("charge", ev.Event.Data.ID), slog.Any("err", err))
		errorData(w, err)
		return
	}
	if pev == nil {
		ackData(w, true, http.StatusOK)
		return
	}

	if err := s.base.Reconcile(r.Context(), pev); err != nil {
		errorData(w, err)
		return
	}
	ackData(w, true, http.StatusOK)
}

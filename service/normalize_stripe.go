package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/MAGICGrants/campaign-site"
	"github.com/MAGICGrants/campaign-site/service/flags"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v78"
)

// NormalizeStripeIntent handles payment_intent.succeeded. Intents backing
// subscriptions carry no metadata (or declare themselves subscriptions) and
// are settled through invoice.paid instead; intents that are not yet fully
// received are acknowledged and left for a later delivery.
func (s *Service) NormalizeStripeIntent(ctx context.Context, pi *stripe.PaymentIntent) (*campaign.PaymentEvent, error) {
	if len(pi.Metadata) == 0 {
		return nil, nil
	}
	md := campaign.ParseMetadata(pi.Metadata)
	if !md.Actionable() || md.IsSubscription {
		return nil, nil
	}
	if pi.AmountReceived != pi.Amount {
		slog.InfoContext(ctx, "Skipping partially received payment intent",
			slog.String("intent", pi.ID),
			slog.Int64("received", pi.AmountReceived), slog.Int64("amount", pi.Amount))
		return nil, nil
	}

	gross := decimal.New(pi.AmountReceived, -2)

	kind := campaign.EventDonationSettled
	if md.IsMembership {
		kind = campaign.EventMembershipSettled
	}

	return &campaign.PaymentEvent{
		Processor: campaign.ProcessorStripe,
		Kind:      kind,
		OriginID:  pi.ID,
		Metadata:  md,
		GrossFiat: gross,
		NetFiat:   netFiat(gross, md),
	}, nil
}

// NormalizeStripeInvoice handles invoice.paid, the settlement path for
// recurring membership charges. One-off invoices without a subscription are
// not actionable.
func (s *Service) NormalizeStripeInvoice(ctx context.Context, in *stripe.Invoice) (*campaign.PaymentEvent, error) {
	if in.Subscription == nil {
		return nil, nil
	}
	if in.SubscriptionDetails == nil || len(in.SubscriptionDetails.Metadata) == 0 {
		return nil, nil
	}
	md := campaign.ParseMetadata(in.SubscriptionDetails.Metadata)
	if !md.Actionable() {
		return nil, nil
	}

	var periodEnd *time.Time
	if in.Lines != nil {
		for _, line := range in.Lines.Data {
			if line.Period != nil && line.Period.End > 0 {
				end := time.Unix(line.Period.End, 0)
				periodEnd = &end
				break
			}
		}
	}
	if periodEnd == nil {
		slog.ErrorContext(ctx, "No billing period found on paid invoice",
			slog.String("invoice", in.ID))
		return nil, nil
	}

	gross := decimal.New(in.Total, -2)

	return &campaign.PaymentEvent{
		Processor:      campaign.ProcessorStripe,
		Kind:           campaign.EventSubscriptionInvoicePaid,
		OriginID:       in.ID,
		SubscriptionID: in.Subscription.ID,
		Metadata:       md,
		GrossFiat:      gross,
		NetFiat:        netFiat(gross, md),
		PeriodEnd:      periodEnd,
	}, nil
}

// netFiat applies the flat points cashback deduction for donors who opted
// into loyalty points.
func netFiat(gross decimal.Decimal, md campaign.DonationMetadata) decimal.Decimal {
	if !md.GivePointsBack {
		return gross
	}
	rate := decimal.NewFromFloat(1 - flags.PointsBackRate.Value())
	return campaign.RoundFiat(gross.Mul(rate))
}

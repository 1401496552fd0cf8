package campaign

import (
	"time"

	"github.com/shopspring/decimal"
)

type Processor string

const (
	ProcessorBTCPay   Processor = "btcpay"
	ProcessorStripe   Processor = "stripe"
	ProcessorCoinbase Processor = "coinbase"
)

type EventKind string

const (
	// EventDonationSettled is a fully settled one-off donation.
	EventDonationSettled EventKind = "donation_settled"
	// EventMembershipSettled is a one-off membership charge.
	EventMembershipSettled EventKind = "membership_settled"
	// EventSubscriptionInvoicePaid is a recurring membership renewal.
	EventSubscriptionInvoicePaid EventKind = "subscription_invoice_paid"
)

// PaymentEvent is the canonical, processor-independent form of a settlement
// notification. It is transient: the reconciler turns it into a ledger entry
// and it is never persisted as-is.
type PaymentEvent struct {
	Processor Processor
	Kind      EventKind

	// OriginID is the processor's unique id for the settlement (invoice,
	// payment intent or charge id). Together with Processor it is the
	// idempotency key.
	OriginID string

	// TxID identifies the on-chain transaction for static-address payments.
	TxID string

	// SubscriptionID groups renewals of the same recurring membership.
	SubscriptionID string

	// StaticAddress routes the event to the simplified funding-address path:
	// ledger write only, no points/membership/attestation side effects.
	StaticAddress bool

	Metadata DonationMetadata

	// Methods lists what was actually paid, one entry per currency. Empty for
	// card payments, where the fiat amounts below are authoritative.
	Methods []CryptoPayment

	GrossFiat decimal.Decimal
	NetFiat   decimal.Decimal

	// PeriodEnd overrides the computed membership expiry for subscription
	// renewals, where the processor reports the exact billing period.
	PeriodEnd *time.Time
}

// RoundFiat rounds a fiat amount to cents. Stored fiat amounts are always
// rounded at write time; crypto amounts keep processor precision.
func RoundFiat(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// SumFiat converts a list of payment methods to fiat gross/net totals, rounded
// to cents.
func SumFiat(methods []CryptoPayment) (gross, net decimal.Decimal) {
	for _, m := range methods {
		rate := decimal.NewFromFloat(m.Rate)
		gross = gross.Add(decimal.NewFromFloat(m.GrossAmount).Mul(rate))
		net = net.Add(decimal.NewFromFloat(m.NetAmount).Mul(rate))
	}
	return RoundFiat(gross), RoundFiat(net)
}

// PointsForAmount computes the loyalty points granted for a gross fiat amount:
// floor(gross / pointsPerUSD).
func PointsForAmount(gross decimal.Decimal, pointsPerUSD int64) int64 {
	if pointsPerUSD <= 0 {
		return 0
	}
	return gross.Div(decimal.NewFromInt(pointsPerUSD)).Floor().IntPart()
}

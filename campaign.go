package campaign

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

type FundSlug string

const (
	FundMonero        FundSlug = "monero"
	FundFiro          FundSlug = "firo"
	FundPrivacyGuides FundSlug = "privacyguides"
	FundGeneral       FundSlug = "general"
)

// Fund is one of the independently-branded charitable programs sharing the platform.
type Fund struct {
	Slug  FundSlug `json:"slug"`
	Title string   `json:"title"`
}

var Funds = map[FundSlug]Fund{
	FundMonero:        {Slug: FundMonero, Title: "Monero Fund"},
	FundFiro:          {Slug: FundFiro, Title: "Firo Fund"},
	FundPrivacyGuides: {Slug: FundPrivacyGuides, Title: "Privacy Guides Fund"},
	FundGeneral:       {Slug: FundGeneral, Title: "MAGIC Grants General Fund"},
}

// Title returns the display name of the fund, falling back to the raw slug for
// slugs that predate the registry.
func (s FundSlug) Title() string {
	if f, ok := Funds[s]; ok {
		return f.Title
	}
	return string(s)
}

type MembershipTerm string

const (
	TermMonthly  MembershipTerm = "monthly"
	TermAnnually MembershipTerm = "annually"
)

// ExpiryFromTerm computes the membership expiry for a charge settled at `now`,
// using Go calendar arithmetic (AddDate normalization rules).
func ExpiryFromTerm(term MembershipTerm, now time.Time) time.Time {
	if term == TermMonthly {
		return now.AddDate(0, 1, 0)
	}
	return now.AddDate(1, 0, 0)
}

// CryptoPayment is one currency/payment-method actually paid against a ledger
// entry. Crypto amounts keep processor precision, only fiat sums are rounded.
type CryptoPayment struct {
	CryptoCode  string  `json:"cryptoCode"`
	GrossAmount float64 `json:"grossAmount"`
	NetAmount   float64 `json:"netAmount"`
	Rate        float64 `json:"rate"`
	// TxID is set only for static-address payments, where one invoice can
	// receive several distinct on-chain transactions over its lifetime.
	TxID string `json:"txId,omitempty"`
}

// Donation is one immutable ledger entry for a settled payment, one-off or
// membership charge. Exactly one of the processor origin references is set and
// acts as the idempotency key.
type Donation struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`

	// nil means an anonymous/guest donation
	UserID *string `json:"user_id"`

	FundSlug    FundSlug `json:"fund_slug"`
	ProjectSlug string   `json:"project_slug"`
	ProjectName string   `json:"project_name"`

	BTCPayInvoiceID       *string `json:"btcpay_invoice_id"`
	StripePaymentIntentID *string `json:"stripe_payment_intent_id"`
	StripeInvoiceID       *string `json:"stripe_invoice_id"`
	CoinbaseChargeID      *string `json:"coinbase_charge_id"`

	// StripeSubscriptionID groups repeated membership charges from the same
	// subscription. Only set together with StripeInvoiceID.
	StripeSubscriptionID *string `json:"stripe_subscription_id"`

	// Empty for fiat-only donations.
	CryptoPayments []CryptoPayment `json:"crypto_payments"`

	GrossFiatAmount decimal.Decimal `json:"gross_fiat_amount"`
	NetFiatAmount   decimal.Decimal `json:"net_fiat_amount"`
	PointsAdded     int64           `json:"points_added"`

	MembershipExpiresAt *time.Time      `json:"membership_expires_at"`
	MembershipTerm      *MembershipTerm `json:"membership_term"`

	ShowDonorNameOnLeaderboard bool    `json:"show_donor_name_on_leaderboard"`
	DonorName                  *string `json:"donor_name"`
	DonorNameIsProfane         bool    `json:"donor_name_is_profane"`

	// Legacy single-currency columns, still present on rows written before the
	// crypto_payments shape. Cleared by the reindexer.
	LegacyCryptoCode        *string  `json:"-"`
	LegacyGrossCryptoAmount *float64 `json:"-"`
	LegacyNetCryptoAmount   *float64 `json:"-"`
}

// PaidWithCrypto reports whether any crypto payment method settled this entry.
func (d *Donation) PaidWithCrypto() bool {
	return len(d.CryptoPayments) > 0
}

func (d *Donation) IsMembership() bool {
	return d.MembershipExpiresAt != nil
}

// PointEntry is one append-only row of the loyalty-point history. Balance is
// the running total as of this entry, not a delta to be summed.
type PointEntry struct {
	UserID        string    `json:"userId"`
	BalanceChange int64     `json:"balanceChange"`
	Balance       int64     `json:"balance"`
	DonationID    string    `json:"donationId,omitempty"`
	PerkID        string    `json:"perkId,omitempty"`
	OrderID       string    `json:"orderId,omitempty"`
	ProjectName   string    `json:"donationProjectName,omitempty"`
	ProjectSlug   string    `json:"donationProjectSlug,omitempty"`
	FundSlug      FundSlug  `json:"donationFundSlug,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Project is one fundraising campaign. Campaign content lives in the CMS;
// the ledger only references projects by slug.
type Project struct {
	Slug     string   `json:"slug"`
	FundSlug FundSlug `json:"fundSlug"`
	Title    string   `json:"title"`
	Date     string   `json:"date"`
	Author   string   `json:"nym"`

	// Goal is the fundraising target in the settlement fiat currency.
	Goal     float64 `json:"goal"`
	IsFunded bool    `json:"isFunded"`
}

type MailerMessage struct {
	To      string
	ReplyTo string
	Subject string

	PlainContent string
	HTMLContent  string
}

type Mailer interface {
	SendEmail(ctx context.Context, msg *MailerMessage) error
}

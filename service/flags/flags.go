package flags

import "github.com/MAGICGrants/campaign-site/internal/config"

// points
var (
	PointsPerUSD = config.GenFlag[int64]("behavior.points.per_usd", 1, "Fiat dollars per loyalty point granted")

	// The flat "cashback" deduction that funds loyalty points: donors opting
	// into points keep 90% of the donation as the net amount.
	PointsBackRate = config.GenFlag[float64]("behavior.points.cashback_rate", 0.1, "Fraction of gross amount deducted when points are requested")

	PointsRedeemPriceUSD = config.GenFlag[float64]("behavior.points.redeem_price_usd", 0.1, "Approximate fiat value of one point, used on receipts")
)

// btcpay
var (
	BTCPayURL           = config.GenFlag[string]("integrations.btcpay.url", "", "BTCPay Server greenfield API base URL")
	BTCPayAPIKey        = config.GenFlag[string]("integrations.btcpay.api_key", "", "BTCPay Server API key")
	BTCPayStoreID       = config.GenFlag[string]("integrations.btcpay.store_id", "", "BTCPay Server store ID")
	BTCPayWebhookSecret = config.GenFlag[string]("integrations.btcpay.webhook_secret", "", "Shared secret for BTCPay webhook signatures")
)

// stripe, one account per fund
var (
	StripeWebhookSecrets = config.GenFlag[map[string]string]("integrations.stripe.webhook_secrets", map[string]string{}, "Stripe webhook signing secret per fund slug")
)

// coinbase commerce
var (
	CoinbaseWebhookSecret = config.GenFlag[string]("integrations.coinbase.webhook_secret", "", "Shared secret for Coinbase Commerce webhook signatures")
)

// headless CMS, stores the loyalty point history
var (
	StrapiURL      = config.GenFlag[string]("integrations.strapi.url", "", "Strapi API base URL")
	StrapiAPIToken = config.GenFlag[string]("integrations.strapi.api_token", "", "Strapi API token")
)

// privacy guides forum
var (
	DiscourseURL               = config.GenFlag[string]("integrations.discourse.url", "", "Privacy Guides Discourse base URL")
	DiscourseAPIKey            = config.GenFlag[string]("integrations.discourse.api_key", "", "Discourse API key")
	DiscourseAPIUsername       = config.GenFlag[string]("integrations.discourse.api_username", "system", "Discourse API username")
	DiscourseMembershipGroupID = config.GenFlag[string]("integrations.discourse.membership_group_id", "", "Discourse group that paying members are added to")
)

// attestations
var (
	AttestationPrivateKeyHex = config.GenFlag[string]("attestation.private_key_hex", "", "Hex-encoded Ed25519 seed used to sign donation attestations")
	AttestationPublicKeyHex  = config.GenFlag[string]("attestation.public_key_hex", "", "Hex-encoded Ed25519 public key published for attestation verification")
)

// mailer
var (
	EmailBranding = config.GenFlag("admin.mailer.branding", "MAGIC Grants", "Branding to use at the end of emails")
)

// observability
var (
	OtelEnabled = config.GenFlag("integrations.otel.enabled", false, "Enable OpenTelemetry collectors")
)

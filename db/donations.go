package db

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/MAGICGrants/campaign-site"
	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

type donation struct {
	ID        string    `db:"id"`
	CreatedAt time.Time `db:"created_at"`

	UserID *string `db:"user_id"`

	FundSlug    campaign.FundSlug `db:"fund_slug"`
	ProjectSlug string            `db:"project_slug"`
	ProjectName string            `db:"project_name"`

	BTCPayInvoiceID       *string `db:"btcpay_invoice_id"`
	BTCPayTxID            *string `db:"btcpay_tx_id"`
	StripePaymentIntentID *string `db:"stripe_payment_intent_id"`
	StripeInvoiceID       *string `db:"stripe_invoice_id"`
	CoinbaseChargeID      *string `db:"coinbase_charge_id"`
	StripeSubscriptionID  *string `db:"stripe_subscription_id"`

	CryptoPayments []campaign.CryptoPayment `db:"crypto_payments"`

	GrossFiatAmount decimal.Decimal `db:"gross_fiat_amount"`
	NetFiatAmount   decimal.Decimal `db:"net_fiat_amount"`
	PointsAdded     int64           `db:"points_added"`

	MembershipExpiresAt *time.Time               `db:"membership_expires_at"`
	MembershipTerm      *campaign.MembershipTerm `db:"membership_term"`

	ShowDonorNameOnLeaderboard bool    `db:"show_donor_name_on_leaderboard"`
	DonorName                  *string `db:"donor_name"`
	DonorNameIsProfane         bool    `db:"donor_name_is_profane"`

	CryptoCode        *string  `db:"crypto_code"`
	GrossCryptoAmount *float64 `db:"gross_crypto_amount"`
	NetCryptoAmount   *float64 `db:"net_crypto_amount"`
}

// DonationFilter matches ledger rows. Zero value matches everything.
type DonationFilter struct {
	ID     *string
	UserID *string

	FundSlug    *campaign.FundSlug
	ProjectSlug *string

	BTCPayInvoiceID       *string
	StripePaymentIntentID *string
	StripeInvoiceID       *string
	CoinbaseChargeID      *string
	StripeSubscriptionID  *string

	MembershipOnly bool

	// Unmigrated selects rows still carrying the legacy single-currency
	// columns instead of crypto_payments.
	Unmigrated bool

	Limit uint64
}

func donationFilterQuery(filter *DonationFilter, sb sq.SelectBuilder) sq.SelectBuilder {
	if v := filter.ID; v != nil {
		sb = sb.Where(sq.Eq{"id": v})
	}
	if v := filter.UserID; v != nil {
		sb = sb.Where(sq.Eq{"user_id": v})
	}
	if v := filter.FundSlug; v != nil {
		sb = sb.Where(sq.Eq{"fund_slug": v})
	}
	if v := filter.ProjectSlug; v != nil {
		sb = sb.Where(sq.Eq{"project_slug": v})
	}
	if v := filter.BTCPayInvoiceID; v != nil {
		sb = sb.Where(sq.Eq{"btcpay_invoice_id": v})
	}
	if v := filter.StripePaymentIntentID; v != nil {
		sb = sb.Where(sq.Eq{"stripe_payment_intent_id": v})
	}
	if v := filter.StripeInvoiceID; v != nil {
		sb = sb.Where(sq.Eq{"stripe_invoice_id": v})
	}
	if v := filter.CoinbaseChargeID; v != nil {
		sb = sb.Where(sq.Eq{"coinbase_charge_id": v})
	}
	if v := filter.StripeSubscriptionID; v != nil {
		sb = sb.Where(sq.Eq{"stripe_subscription_id": v})
	}
	if filter.MembershipOnly {
		sb = sb.Where("membership_expires_at IS NOT NULL")
	}
	if filter.Unmigrated {
		sb = sb.Where("crypto_payments IS NULL").Where("gross_crypto_amount IS NOT NULL")
	}
	if filter.Limit > 0 {
		sb = sb.Limit(filter.Limit)
	}
	return sb
}

// CreateDonation appends one ledger row. A row already holding the same
// origin reference makes the insert fail with campaign.ErrDonationExists,
// which callers treat as a duplicate webhook delivery.
func (s *DB) CreateDonation(ctx context.Context, d *campaign.Donation) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now()
	}

	var txID *string
	for _, p := range d.CryptoPayments {
		if p.TxID != "" {
			txID = &p.TxID
			break
		}
	}

	_, err := s.conn.Exec(ctx, `
		INSERT INTO donations (
			id, created_at, user_id, fund_slug, project_slug, project_name,
			btcpay_invoice_id, btcpay_tx_id, stripe_payment_intent_id, stripe_invoice_id,
			coinbase_charge_id, stripe_subscription_id, crypto_payments,
			gross_fiat_amount, net_fiat_amount, points_added,
			membership_expires_at, membership_term,
			show_donor_name_on_leaderboard, donor_name, donor_name_is_profane
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)`,
		d.ID, d.CreatedAt, d.UserID, d.FundSlug, d.ProjectSlug, d.ProjectName,
		d.BTCPayInvoiceID, txID, d.StripePaymentIntentID, d.StripeInvoiceID,
		d.CoinbaseChargeID, d.StripeSubscriptionID, cryptoPaymentsValue(d.CryptoPayments),
		d.GrossFiatAmount, d.NetFiatAmount, d.PointsAdded,
		d.MembershipExpiresAt, d.MembershipTerm,
		d.ShowDonorNameOnLeaderboard, d.DonorName, d.DonorNameIsProfane,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return campaign.ErrDonationExists
		}
		return err
	}
	return nil
}

// DeleteDonation is the compensating delete for failed critical side effects.
func (s *DB) DeleteDonation(ctx context.Context, id string) error {
	_, err := s.conn.Exec(ctx, "DELETE FROM donations WHERE id = $1", id)
	return err
}

func (s *DB) Donations(ctx context.Context, filter DonationFilter) ([]*campaign.Donation, error) {
	sb := sq.Select("*").From("donations").PlaceholderFormat(sq.Dollar)
	sb = donationFilterQuery(&filter, sb)
	query, args, err := sb.OrderBy("created_at DESC").ToSql()
	if err != nil {
		return nil, err
	}

	rows, _ := s.conn.Query(ctx, query, args...)
	donations, err := pgx.CollectRows(rows, pgx.RowToAddrOfStructByName[donation])
	if errors.Is(err, pgx.ErrNoRows) {
		return []*campaign.Donation{}, nil
	}
	if err != nil {
		return nil, err
	}

	return mapper(donations, internalToDonation), nil
}

// InvoiceHasTransaction reports whether a specific on-chain transaction of a
// static funding-address invoice was already booked. One such invoice can
// receive many distinct transactions over its lifetime, so the invoice id
// alone is not the full idempotency key.
func (s *DB) InvoiceHasTransaction(ctx context.Context, invoiceID string, txID string) (bool, error) {
	match, err := json.Marshal([]map[string]string{{"txId": txID}})
	if err != nil {
		return false, err
	}
	var exists bool
	err = s.conn.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM donations
			WHERE btcpay_invoice_id = $1 AND (btcpay_tx_id = $2 OR crypto_payments @> $3)
		)`, invoiceID, txID, match).Scan(&exists)
	return exists, err
}

// SubscriptionAggregate returns the lifetime fiat total and the start of the
// first billing period across all membership charges of one subscription.
func (s *DB) SubscriptionAggregate(ctx context.Context, subscriptionID string) (total decimal.Decimal, periodStart time.Time, err error) {
	err = s.conn.QueryRow(ctx, `
		SELECT COALESCE(SUM(gross_fiat_amount), 0), COALESCE(MIN(created_at), NOW())
		FROM donations
		WHERE stripe_subscription_id = $1 AND membership_expires_at IS NOT NULL`,
		subscriptionID).Scan(&total, &periodStart)
	return
}

// ProjectStats is the ledger aggregate behind the funding report.
type ProjectStats struct {
	FundSlug      campaign.FundSlug `db:"fund_slug"`
	ProjectSlug   string            `db:"project_slug"`
	TotalRaised   decimal.Decimal   `db:"total_raised"`
	Contributions int               `db:"contributions"`
}

func (s *DB) ProjectTotals(ctx context.Context) (map[string]ProjectStats, error) {
	rows, _ := s.conn.Query(ctx, `
		SELECT fund_slug, project_slug,
		       COALESCE(SUM(gross_fiat_amount), 0) AS total_raised,
		       COUNT(*) AS contributions
		FROM donations
		GROUP BY fund_slug, project_slug`)
	stats, err := pgx.CollectRows(rows, pgx.RowToStructByName[ProjectStats])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return map[string]ProjectStats{}, nil
		}
		return nil, err
	}

	byProject := make(map[string]ProjectStats, len(stats))
	for _, st := range stats {
		byProject[string(st.FundSlug)+"/"+st.ProjectSlug] = st
	}
	return byProject, nil
}

// MigrateLegacyDonation rewrites one legacy single-currency row into the
// crypto_payments shape and clears the old columns. The predicate keeps it
// idempotent under concurrent reindexer runs.
func (s *DB) MigrateLegacyDonation(ctx context.Context, id string, payments []campaign.CryptoPayment) error {
	_, err := s.conn.Exec(ctx, `
		UPDATE donations
		SET crypto_payments = $2, crypto_code = NULL, gross_crypto_amount = NULL, net_crypto_amount = NULL
		WHERE id = $1 AND crypto_payments IS NULL`,
		id, cryptoPaymentsValue(payments))
	return err
}

func cryptoPaymentsValue(payments []campaign.CryptoPayment) any {
	if len(payments) == 0 {
		return nil
	}
	return payments
}

func internalToDonation(d *donation) *campaign.Donation {
	return &campaign.Donation{
		ID:        d.ID,
		CreatedAt: d.CreatedAt,
		UserID:    d.UserID,

		FundSlug:    d.FundSlug,
		ProjectSlug: d.ProjectSlug,
		ProjectName: d.ProjectName,

		BTCPayInvoiceID:       d.BTCPayInvoiceID,
		StripePaymentIntentID: d.StripePaymentIntentID,
		StripeInvoiceID:       d.StripeInvoiceID,
		CoinbaseChargeID:      d.CoinbaseChargeID,
		StripeSubscriptionID:  d.StripeSubscriptionID,

		CryptoPayments: d.CryptoPayments,

		GrossFiatAmount: d.GrossFiatAmount,
		NetFiatAmount:   d.NetFiatAmount,
		PointsAdded:     d.PointsAdded,

		MembershipExpiresAt: d.MembershipExpiresAt,
		MembershipTerm:      d.MembershipTerm,

		ShowDonorNameOnLeaderboard: d.ShowDonorNameOnLeaderboard,
		DonorName:                  d.DonorName,
		DonorNameIsProfane:         d.DonorNameIsProfane,

		LegacyCryptoCode:        d.CryptoCode,
		LegacyGrossCryptoAmount: d.GrossCryptoAmount,
		LegacyNetCryptoAmount:   d.NetCryptoAmount,
	}
}

func mapper[T1 any, T2 any](lst []*T1, f func(*T1) *T2) []*T2 {
	if len(lst) == 0 {
		return []*T2{}
	}
	rez := make([]*T2, len(lst))
	for i := range rez {
		rez[i] = f(lst[i])
	}
	return rez
}

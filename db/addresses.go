package db

import (
	"context"
	"errors"
	"time"

	"github.com/MAGICGrants/campaign-site"
	"github.com/jackc/pgx/v5"
)

// ProjectAddresses holds the persistent public receive addresses of one
// project, backed by a long-monitoring invoice at the crypto processor.
type ProjectAddresses struct {
	ProjectSlug     string            `db:"project_slug"`
	FundSlug        campaign.FundSlug `db:"fund_slug"`
	BTCPayInvoiceID string            `db:"btcpay_invoice_id"`
	BitcoinAddress  *string           `db:"bitcoin_address"`
	MoneroAddress   *string           `db:"monero_address"`
	LitecoinAddress *string           `db:"litecoin_address"`
	CreatedAt       time.Time         `db:"created_at"`
}

func (s *DB) ProjectAddresses(ctx context.Context, fundSlug campaign.FundSlug, projectSlug string) (*ProjectAddresses, error) {
	rows, _ := s.conn.Query(ctx,
		"SELECT * FROM project_addresses WHERE fund_slug = $1 AND project_slug = $2",
		fundSlug, projectSlug)
	addrs, err := pgx.CollectOneRow(rows, pgx.RowToAddrOfStructByName[ProjectAddresses])
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return addrs, err
}

func (s *DB) CreateProjectAddresses(ctx context.Context, addrs *ProjectAddresses) error {
	_, err := s.conn.Exec(ctx, `
		INSERT INTO project_addresses (project_slug, fund_slug, btcpay_invoice_id, bitcoin_address, monero_address, litecoin_address)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (project_slug, fund_slug) DO NOTHING`,
		addrs.ProjectSlug, addrs.FundSlug, addrs.BTCPayInvoiceID,
		addrs.BitcoinAddress, addrs.MoneroAddress, addrs.LitecoinAddress)
	return err
}

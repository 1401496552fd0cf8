package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/MAGICGrants/campaign-site"
	"github.com/MAGICGrants/campaign-site/db"
)

// Start launches the background jobs. It must run exactly once per process,
// from the entry point, after configuration is loaded.
func (s *Service) Start(ctx context.Context) {
	go s.migrateLegacyDonationsJob(ctx, time.Minute)
}

func (s *Service) migrateLegacyDonationsJob(ctx context.Context, interval time.Duration) error {
	t := time.NewTicker(interval)
	defer t.Stop()
	// Initial pass
	s.migrateLegacyDonations(ctx)
	for {
		select {
		case <-ctx.Done():
			if !errors.Is(ctx.Err(), context.Canceled) {
				return ctx.Err()
			}
			return nil
		case <-t.C:
			s.migrateLegacyDonations(ctx)
		}
	}
}

// migrateLegacyDonations rewrites ledger rows still carrying the old
// single-currency columns into the crypto_payments shape. The historical rate
// is reconstructed from the stored fiat and crypto amounts. One UPDATE per
// row and a predicate that excludes migrated rows keep the pass idempotent
// and safe to run under live webhook traffic.
func (s *Service) migrateLegacyDonations(ctx context.Context) {
	donations, err := s.store.Donations(ctx, db.DonationFilter{Unmigrated: true, Limit: 500})
	if err != nil {
		slog.WarnContext(ctx, "Could not list unmigrated donations", slog.Any("err", err))
		return
	}

	var migrated int
	for _, d := range donations {
		if d.LegacyCryptoCode == nil || d.LegacyGrossCryptoAmount == nil {
			continue
		}
		grossCrypto := *d.LegacyGrossCryptoAmount
		if grossCrypto <= 0 {
			slog.WarnContext(ctx, "Skipping legacy donation with non-positive crypto amount",
				slog.String("donation", d.ID))
			continue
		}
		netCrypto := grossCrypto
		if d.LegacyNetCryptoAmount != nil {
			netCrypto = *d.LegacyNetCryptoAmount
		}

		payment := campaign.CryptoPayment{
			CryptoCode:  *d.LegacyCryptoCode,
			GrossAmount: grossCrypto,
			NetAmount:   netCrypto,
			Rate:        d.GrossFiatAmount.InexactFloat64() / grossCrypto,
		}
		if err := s.store.MigrateLegacyDonation(ctx, d.ID, []campaign.CryptoPayment{payment}); err != nil {
			slog.WarnContext(ctx, "Could not migrate legacy donation",
				slog.String("donation", d.ID), slog.Any("err", err))
			continue
		}
		legacyMigrations.Inc()
		migrated++
	}

	if migrated > 0 {
		slog.InfoContext(ctx, "Migrated legacy donations", slog.Int("count", migrated))
	}
}

// Package service holds the reconciliation core: it turns verified webhook
// deliveries into canonical payment events, writes them to the donation
// ledger and runs the side effects (points, forum membership, attestations,
// receipt emails) with the failure semantics each of them deserves.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/MAGICGrants/campaign-site"
	"github.com/MAGICGrants/campaign-site/attestation"
	"github.com/MAGICGrants/campaign-site/btcpay"
	"github.com/MAGICGrants/campaign-site/db"
	"github.com/MAGICGrants/campaign-site/email"
	"github.com/MAGICGrants/campaign-site/forum"
	"github.com/MAGICGrants/campaign-site/internal/config"
	"github.com/MAGICGrants/campaign-site/points"
	"github.com/MAGICGrants/campaign-site/projects"
	"github.com/MAGICGrants/campaign-site/rates"
	"github.com/MAGICGrants/campaign-site/service/flags"
	"github.com/Yiling-J/theine-go"
	"github.com/shopspring/decimal"
)

// Store is the donation ledger surface the reconciler needs.
type Store interface {
	CreateDonation(ctx context.Context, d *campaign.Donation) error
	DeleteDonation(ctx context.Context, id string) error
	Donations(ctx context.Context, filter db.DonationFilter) ([]*campaign.Donation, error)
	InvoiceHasTransaction(ctx context.Context, invoiceID string, txID string) (bool, error)
	SubscriptionAggregate(ctx context.Context, subscriptionID string) (decimal.Decimal, time.Time, error)
	ProjectTotals(ctx context.Context) (map[string]db.ProjectStats, error)
	MigrateLegacyDonation(ctx context.Context, id string, payments []campaign.CryptoPayment) error

	ProjectAddresses(ctx context.Context, fundSlug campaign.FundSlug, projectSlug string) (*db.ProjectAddresses, error)
	CreateProjectAddresses(ctx context.Context, addrs *db.ProjectAddresses) error
}

// PointsLedger grants loyalty points against a ledger entry.
type PointsLedger interface {
	Grant(ctx context.Context, points int64, d *campaign.Donation) error
}

// ForumConnector syncs paying members into the community forum group.
type ForumConnector interface {
	AddUserToMembersGroup(ctx context.Context, userID string) error
}

// Invoicer is the part of the crypto processor API the service consumes.
type Invoicer interface {
	Invoice(ctx context.Context, id string) (*btcpay.Invoice, error)
	InvoicePaymentMethods(ctx context.Context, invoiceID string) ([]btcpay.InvoicePaymentMethod, error)
	CreateInvoice(ctx context.Context, req *btcpay.CreateInvoiceRequest) (*btcpay.Invoice, error)
}

// RateOracle resolves crypto-to-fiat rates. Results are always positive.
type RateOracle interface {
	Rate(ctx context.Context, cryptoCode string) (float64, error)
}

// ProjectSource lists the fundraising campaigns known to the CMS.
type ProjectSource interface {
	Projects(ctx context.Context, fund campaign.FundSlug) ([]campaign.Project, error)
}

type Service struct {
	store    Store
	points   PointsLedger
	forum    ForumConnector
	invoicer Invoicer
	rates    RateOracle
	projects ProjectSource
	signer   *attestation.Signer
	mailer   campaign.Mailer

	fundingCache *theine.Cache[string, any]

	// set only by Initialize, for Close
	database *db.DB
}

func (s *Service) Close() error {
	if s.database != nil {
		return s.database.Close()
	}
	return nil
}

// New wires a Service from explicit collaborators. Tests substitute fakes;
// production wiring lives in Initialize.
func New(store Store, pointsLedger PointsLedger, forumConn ForumConnector, invoicer Invoicer,
	oracle RateOracle, projectSource ProjectSource, signer *attestation.Signer, mailer campaign.Mailer) (*Service, error) {
	fundingCache, err := theine.NewBuilder[string, any](100).Build()
	if err != nil {
		return nil, fmt.Errorf("could not build funding response cache: %w", err)
	}
	return &Service{
		store:    store,
		points:   pointsLedger,
		forum:    forumConn,
		invoicer: invoicer,
		rates:    oracle,
		projects: projectSource,
		signer:   signer,
		mailer:   mailer,

		fundingCache: fundingCache,
	}, nil
}

// Initialize builds the production service: database, CMS-backed points
// ledger and project catalog, processor clients and the attestation signer.
func Initialize(ctx context.Context) (*Service, error) {
	database, err := db.NewPSQL(ctx, config.DatabaseConf.DSN)
	if err != nil {
		return nil, fmt.Errorf("could not connect to DB: %w", err)
	}
	if err := database.RunMigrations(ctx); err != nil {
		return nil, fmt.Errorf("could not run migrations: %w", err)
	}

	btcpayClient := btcpay.NewClient()
	oracle, err := rates.NewOracle(btcpayClient)
	if err != nil {
		return nil, err
	}

	signer, err := attestation.NewSigner(flags.AttestationPrivateKeyHex.Value(), config.CommonConf.AppURL)
	if err != nil {
		return nil, fmt.Errorf("could not initialize attestation signer: %w", err)
	}

	mailer, err := email.NewMailer()
	if err != nil {
		return nil, fmt.Errorf("could not initialize mailer: %w", err)
	}

	s, err := New(
		database,
		points.NewLedger(points.NewStrapiStore()),
		forum.NewClient(),
		btcpayClient,
		oracle,
		projects.NewStrapiSource(),
		signer,
		mailer,
	)
	if err != nil {
		return nil, err
	}
	s.database = database
	return s, nil
}

package service

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/MAGICGrants/campaign-site"
	"github.com/MAGICGrants/campaign-site/btcpay"
	"github.com/MAGICGrants/campaign-site/db"
	"github.com/MAGICGrants/campaign-site/internal/config"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"golang.org/x/sync/errgroup"
)

const fundingCacheTTL = 10 * time.Minute

// FundingQuery filters the funding report. Zero-value fields mean "all".
type FundingQuery struct {
	Fund   campaign.FundSlug `json:"fund"`
	Asset  string            `json:"asset"`
	Status string            `json:"project_status"`
}

var (
	fundValidation   = []validation.Rule{validation.In(fundSlugs()...)}
	assetValidation  = []validation.Rule{validation.In("BTC", "XMR", "LTC", "USD")}
	statusValidation = []validation.Rule{validation.In("FUNDED", "NOT_FUNDED", "ANY")}
)

func fundSlugs() []any {
	slugs := make([]any, 0, len(campaign.Funds))
	for slug := range campaign.Funds {
		slugs = append(slugs, slug)
	}
	return slugs
}

func (q *FundingQuery) Validate() error {
	if err := validation.ValidateStruct(q,
		validation.Field(&q.Fund, fundValidation...),
		validation.Field(&q.Asset, assetValidation...),
		validation.Field(&q.Status, statusValidation...),
	); err != nil {
		return campaign.Statusf(400, "Invalid funding query: %s", err)
	}
	if q.Status == "" {
		q.Status = "NOT_FUNDED"
	}
	return nil
}

// FundingEntry is one project in the full report, amounts denominated in
// every supported asset.
type FundingEntry struct {
	Title               string            `json:"title"`
	Fund                campaign.FundSlug `json:"fund"`
	Date                string            `json:"date"`
	Author              string            `json:"author"`
	URL                 string            `json:"url"`
	IsFunded            bool              `json:"is_funded"`
	RaisedAmountPercent int               `json:"raised_amount_percent"`
	Contributions       int               `json:"contributions"`

	TargetAmountBTC float64 `json:"target_amount_btc"`
	TargetAmountXMR float64 `json:"target_amount_xmr"`
	TargetAmountLTC float64 `json:"target_amount_ltc"`
	TargetAmountUSD float64 `json:"target_amount_usd"`

	RemainingAmountBTC float64 `json:"remaining_amount_btc"`
	RemainingAmountXMR float64 `json:"remaining_amount_xmr"`
	RemainingAmountLTC float64 `json:"remaining_amount_ltc"`
	RemainingAmountUSD float64 `json:"remaining_amount_usd"`

	AddressBTC *string `json:"address_btc"`
	AddressXMR *string `json:"address_xmr"`
	AddressLTC *string `json:"address_ltc"`
}

// FundingAssetEntry is the asset-specific projection of a FundingEntry.
type FundingAssetEntry struct {
	Title               string            `json:"title"`
	Fund                campaign.FundSlug `json:"fund"`
	Date                string            `json:"date"`
	Author              string            `json:"author"`
	URL                 string            `json:"url"`
	IsFunded            bool              `json:"is_funded"`
	RaisedAmountPercent int               `json:"raised_amount_percent"`
	Contributions       int               `json:"contributions"`

	Asset           string  `json:"asset"`
	TargetAmount    float64 `json:"target_amount"`
	RemainingAmount float64 `json:"remaining_amount"`
	Address         *string `json:"address"`
}

// FundingRequired builds the public funding report: per project, the target
// and remaining amounts in each supported asset plus a persistent receive
// address for direct crypto donations. Responses are cached for a few
// minutes; crawlers hit the endpoint far more often than the ledger moves.
func (s *Service) FundingRequired(ctx context.Context, q FundingQuery) (any, error) {
	cacheKey := fmt.Sprintf("%s-%s-%s", q.Fund, q.Asset, q.Status)
	if cached, ok := s.fundingCache.Get(cacheKey); ok {
		return cached, nil
	}

	allProjects, err := s.projects.Projects(ctx, q.Fund)
	if err != nil {
		return nil, err
	}
	var projects []campaign.Project
	for _, p := range allProjects {
		switch q.Status {
		case "FUNDED":
			if !p.IsFunded {
				continue
			}
		case "NOT_FUNDED":
			if p.IsFunded {
				continue
			}
		}
		projects = append(projects, p)
	}

	assetRates := map[string]float64{}
	if q.Asset != "USD" {
		for _, asset := range []string{"BTC", "XMR", "LTC"} {
			rate, err := s.rates.Rate(ctx, asset)
			if err != nil {
				return nil, err
			}
			assetRates[asset] = rate
		}
	}

	totals, err := s.store.ProjectTotals(ctx)
	if err != nil {
		return nil, err
	}

	entries := make([]FundingEntry, len(projects))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, project := range projects {
		i, project := i, project
		g.Go(func() error {
			entry, err := s.fundingEntry(gctx, project, assetRates, totals)
			if err != nil {
				return err
			}
			entries[i] = *entry
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var response any = entries
	if q.Asset != "" {
		projected := make([]FundingAssetEntry, len(entries))
		for i, e := range entries {
			projected[i] = e.forAsset(q.Asset)
		}
		response = projected
	}

	s.fundingCache.SetWithTTL(cacheKey, response, 1, fundingCacheTTL)
	return response, nil
}

func (s *Service) fundingEntry(ctx context.Context, project campaign.Project, assetRates map[string]float64, totals map[string]db.ProjectStats) (*FundingEntry, error) {
	stats := totals[string(project.FundSlug)+"/"+project.Slug]
	raised := stats.TotalRaised.InexactFloat64()

	var addrs *db.ProjectAddresses
	if !project.IsFunded {
		var err error
		addrs, err = s.projectAddresses(ctx, project)
		if err != nil {
			return nil, err
		}
	}

	remaining := project.Goal - raised
	if remaining < 0 {
		remaining = 0
	}

	var raisedPercent int
	if project.Goal > 0 {
		raisedPercent = int(math.Floor(raised / project.Goal * 100))
	}

	entry := &FundingEntry{
		Title:               project.Title,
		Fund:                project.FundSlug,
		Date:                project.Date,
		Author:              project.Author,
		URL:                 fmt.Sprintf("%s/%s/projects/%s", config.CommonConf.AppURL, project.FundSlug, project.Slug),
		IsFunded:            project.IsFunded,
		RaisedAmountPercent: raisedPercent,
		Contributions:       stats.Contributions,

		TargetAmountUSD:    roundTo(project.Goal, 2),
		RemainingAmountUSD: roundTo(remaining, 2),
	}
	if rate := assetRates["BTC"]; rate > 0 {
		entry.TargetAmountBTC = roundTo(project.Goal/rate, 8)
		entry.RemainingAmountBTC = roundTo(remaining/rate, 8)
	}
	if rate := assetRates["XMR"]; rate > 0 {
		entry.TargetAmountXMR = roundTo(project.Goal/rate, 12)
		entry.RemainingAmountXMR = roundTo(remaining/rate, 12)
	}
	if rate := assetRates["LTC"]; rate > 0 {
		entry.TargetAmountLTC = roundTo(project.Goal/rate, 8)
		entry.RemainingAmountLTC = roundTo(remaining/rate, 8)
	}
	if addrs != nil {
		entry.AddressBTC = addrs.BitcoinAddress
		entry.AddressXMR = addrs.MoneroAddress
		entry.AddressLTC = addrs.LitecoinAddress
	}
	return entry, nil
}

func (e FundingEntry) forAsset(asset string) FundingAssetEntry {
	out := FundingAssetEntry{
		Title:               e.Title,
		Fund:                e.Fund,
		Date:                e.Date,
		Author:              e.Author,
		URL:                 e.URL,
		IsFunded:            e.IsFunded,
		RaisedAmountPercent: e.RaisedAmountPercent,
		Contributions:       e.Contributions,

		Asset: asset,
	}
	switch asset {
	case "BTC":
		out.TargetAmount, out.RemainingAmount, out.Address = e.TargetAmountBTC, e.RemainingAmountBTC, e.AddressBTC
	case "XMR":
		out.TargetAmount, out.RemainingAmount, out.Address = e.TargetAmountXMR, e.RemainingAmountXMR, e.AddressXMR
	case "LTC":
		out.TargetAmount, out.RemainingAmount, out.Address = e.TargetAmountLTC, e.RemainingAmountLTC, e.AddressLTC
	case "USD":
		out.TargetAmount, out.RemainingAmount = e.TargetAmountUSD, e.RemainingAmountUSD
	}
	return out
}

// projectAddresses returns the persistent receive addresses of a project,
// provisioning them on first use from a long-monitoring processor invoice.
func (s *Service) projectAddresses(ctx context.Context, project campaign.Project) (*db.ProjectAddresses, error) {
	existing, err := s.store.ProjectAddresses(ctx, project.FundSlug, project.Slug)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	md := campaign.DonationMetadata{
		ProjectSlug:           project.Slug,
		ProjectName:           project.Title,
		FundSlug:              project.FundSlug,
		StaticGeneratedForAPI: true,
	}
	invoice, err := s.invoicer.CreateInvoice(ctx, &btcpay.CreateInvoiceRequest{
		Currency: "USD",
		Metadata: md.Encode(),
		Checkout: &btcpay.InvoiceCheckout{
			// Effectively never expires; payments keep settling through the
			// InvoicePaymentSettled flow.
			MonitoringMinutes:  9999999,
			LazyPaymentMethods: false,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("could not create static invoice for %s/%s: %w", project.FundSlug, project.Slug, err)
	}

	paymentMethods, err := s.invoicer.InvoicePaymentMethods(ctx, invoice.ID)
	if err != nil {
		return nil, err
	}

	addrs := &db.ProjectAddresses{
		ProjectSlug:     project.Slug,
		FundSlug:        project.FundSlug,
		BTCPayInvoiceID: invoice.ID,
	}
	for _, pm := range paymentMethods {
		if pm.Destination == "" {
			continue
		}
		dest := pm.Destination
		switch pm.Currency {
		case "BTC":
			addrs.BitcoinAddress = &dest
		case "XMR":
			addrs.MoneroAddress = &dest
		case "LTC":
			addrs.LitecoinAddress = &dest
		}
	}
	if addrs.BitcoinAddress == nil || addrs.MoneroAddress == nil || addrs.LitecoinAddress == nil {
		slog.WarnContext(ctx, "Static invoice is missing payment methods",
			slog.String("invoice", invoice.ID),
			slog.String("project", string(project.FundSlug)+"/"+project.Slug))
	}

	if err := s.store.CreateProjectAddresses(ctx, addrs); err != nil {
		return nil, err
	}
	return addrs, nil
}

func roundTo(v float64, places int) float64 {
	shift := math.Pow(10, float64(places))
	return math.Round(v*shift) / shift
}

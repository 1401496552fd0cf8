package service

import (
	"context"
	"testing"

	"github.com/MAGICGrants/campaign-site"
	"github.com/MAGICGrants/campaign-site/btcpay"
)

func TestFundingRequired(t *testing.T) {
	f := newFixture(t)
	f.svc.projects = fakeProjects{
		{Slug: "fellowship", FundSlug: campaign.FundMonero, Title: "Research Fellowship", Goal: 1000, Date: "2025-01-01", Author: "MAGIC"},
		{Slug: "done", FundSlug: campaign.FundMonero, Title: "Finished", Goal: 500, IsFunded: true},
	}
	f.svc.invoicer = &fakeInvoicer{
		methods: []btcpay.InvoicePaymentMethod{
			{Currency: "BTC", Destination: "bc1qaddr"},
			{Currency: "XMR", Destination: "4addr"},
			{Currency: "LTC", Destination: "ltc1addr"},
		},
	}

	out, err := f.svc.FundingRequired(context.Background(), FundingQuery{Status: "NOT_FUNDED"})
	if err != nil {
		t.Fatal(err)
	}
	entries, ok := out.([]FundingEntry)
	if !ok {
		t.Fatalf("unexpected response type %T", out)
	}
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1 (funded project filtered out)", len(entries))
	}

	e := entries[0]
	if e.TargetAmountUSD != 1000 || e.RemainingAmountUSD != 1000 {
		t.Errorf("usd amounts = %v/%v, want 1000/1000", e.TargetAmountUSD, e.RemainingAmountUSD)
	}
	// 1000 USD at 60000 USD/BTC.
	if e.TargetAmountBTC != 0.01666667 {
		t.Errorf("btc target = %v, want 0.01666667", e.TargetAmountBTC)
	}
	if e.AddressBTC == nil || *e.AddressBTC != "bc1qaddr" {
		t.Errorf("btc address = %v, want bc1qaddr", e.AddressBTC)
	}
	if e.Contributions != 0 || e.RaisedAmountPercent != 0 {
		t.Errorf("fresh project should have no contributions: %+v", e)
	}

	// Asset projection.
	out, err = f.svc.FundingRequired(context.Background(), FundingQuery{Asset: "XMR", Status: "NOT_FUNDED"})
	if err != nil {
		t.Fatal(err)
	}
	assetEntries, ok := out.([]FundingAssetEntry)
	if !ok {
		t.Fatalf("unexpected response type %T", out)
	}
	if assetEntries[0].Asset != "XMR" {
		t.Errorf("asset = %q, want XMR", assetEntries[0].Asset)
	}
	if assetEntries[0].Address == nil || *assetEntries[0].Address != "4addr" {
		t.Errorf("xmr address = %v, want 4addr", assetEntries[0].Address)
	}
}

func TestFundingQueryValidate(t *testing.T) {
	q := FundingQuery{}
	if err := q.Validate(); err != nil {
		t.Fatal(err)
	}
	if q.Status != "NOT_FUNDED" {
		t.Errorf("default status = %q, want NOT_FUNDED", q.Status)
	}

	for _, bad := range []FundingQuery{
		{Fund: "nonexistent"},
		{Asset: "DOGE"},
		{Status: "MAYBE"},
	} {
		if err := bad.Validate(); err == nil {
			t.Errorf("expected validation error for %+v", bad)
		} else if campaign.ErrorCode(err) != 400 {
			t.Errorf("error code = %d, want 400", campaign.ErrorCode(err))
		}
	}
}

func TestFundingRequiredCachesResponses(t *testing.T) {
	f := newFixture(t)
	source := &countingProjects{}
	f.svc.projects = source
	f.svc.invoicer = &fakeInvoicer{}

	for i := 0; i < 3; i++ {
		if _, err := f.svc.FundingRequired(context.Background(), FundingQuery{Status: "ANY"}); err != nil {
			t.Fatal(err)
		}
	}
	if source.calls != 1 {
		t.Errorf("project source called %d times, want 1 (cached)", source.calls)
	}
}

type countingProjects struct {
	calls int
}

func (p *countingProjects) Projects(ctx context.Context, fund campaign.FundSlug) ([]campaign.Project, error) {
	p.calls++
	return nil, nil
}

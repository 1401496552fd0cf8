package service

import (
	"context"
	"testing"

	"github.com/MAGICGrants/campaign-site"
	"github.com/MAGICGrants/campaign-site/btcpay"
	"github.com/MAGICGrants/campaign-site/coinbase"
	"github.com/stripe/stripe-go/v78"
)

func checkoutMetadata(extra map[string]string) map[string]any {
	md := map[string]any{
		"projectSlug": "fellowship",
		"projectName": "Research Fellowship",
		"fundSlug":    "monero",
	}
	for k, v := range extra {
		md[k] = v
	}
	return md
}

func TestNormalizeBTCPayIgnoresForeignInvoices(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for name, ev := range map[string]*btcpay.WebhookEvent{
		"no metadata":    {Type: btcpay.EventInvoiceSettled, InvoiceID: "inv1"},
		"empty metadata": {Type: btcpay.EventInvoiceSettled, InvoiceID: "inv1", Metadata: map[string]any{}},
		"missing slugs":  {Type: btcpay.EventInvoiceSettled, InvoiceID: "inv1", Metadata: map[string]any{"donorName": "x"}},
	} {
		pev, err := f.svc.NormalizeBTCPay(ctx, ev)
		if err != nil {
			t.Errorf("%s: unexpected error %v", name, err)
		}
		if pev != nil {
			t.Errorf("%s: expected nil event, got %+v", name, pev)
		}
	}
}

func TestNormalizeBTCPaySettledInvoice(t *testing.T) {
	f := newFixture(t)
	f.svc.invoicer = &fakeInvoicer{
		methods: []btcpay.InvoicePaymentMethod{
			{PaymentMethodID: "XMR", Currency: "XMR", Rate: "150", PaymentMethodPaid: "0.5"},
			{PaymentMethodID: "BTC-CHAIN", Currency: "BTC", Rate: "60000", PaymentMethodPaid: "0"},
			{PaymentMethodID: "LTC", Currency: "LTC", Rate: "80", PaymentMethodPaid: "0.3125"},
		},
	}

	ev := &btcpay.WebhookEvent{
		Type:      btcpay.EventInvoiceSettled,
		InvoiceID: "inv1",
		Metadata:  checkoutMetadata(map[string]string{"userId": "u1", "givePointsBack": "true"}),
	}
	pev, err := f.svc.NormalizeBTCPay(context.Background(), ev)
	if err != nil {
		t.Fatal(err)
	}
	if pev == nil {
		t.Fatal("Expected actionable event")
	}

	// Zero-amount method is dropped, 0.5 XMR @ 150 + 0.3125 LTC @ 80.
	if len(pev.Methods) != 2 {
		t.Fatalf("methods = %d, want 2", len(pev.Methods))
	}
	if got := pev.GrossFiat.StringFixed(2); got != "100.00" {
		t.Errorf("gross = %s, want 100.00", got)
	}
	if got := pev.NetFiat.StringFixed(2); got != "90.00" {
		t.Errorf("net = %s, want 90.00", got)
	}
	if pev.Kind != campaign.EventDonationSettled {
		t.Errorf("kind = %s, want donation_settled", pev.Kind)
	}
}

func TestNormalizeBTCPayManuallyMarked(t *testing.T) {
	f := newFixture(t)
	f.svc.invoicer = &fakeInvoicer{
		invoice: &btcpay.Invoice{ID: "inv1", Amount: "100", Currency: "USD"},
		methods: []btcpay.InvoicePaymentMethod{
			{PaymentMethodID: "XMR", Currency: "XMR", Rate: "150", PaymentMethodPaid: "0.2"},
		},
	}

	ev := &btcpay.WebhookEvent{
		Type:           btcpay.EventInvoiceSettled,
		InvoiceID:      "inv1",
		ManuallyMarked: true,
		Metadata:       checkoutMetadata(nil),
	}
	pev, err := f.svc.NormalizeBTCPay(context.Background(), ev)
	if err != nil {
		t.Fatal(err)
	}

	// 0.2 XMR @ 150 = $30 paid, $70 shortfall becomes a MANUAL method at
	// rate 1.
	if len(pev.Methods) != 2 {
		t.Fatalf("methods = %d, want 2", len(pev.Methods))
	}
	manual := pev.Methods[1]
	if manual.CryptoCode != "MANUAL" || manual.Rate != 1 || manual.GrossAmount != 70 {
		t.Errorf("manual method = %+v, want MANUAL 70 @ 1", manual)
	}
	if got := pev.GrossFiat.StringFixed(2); got != "100.00" {
		t.Errorf("gross = %s, want 100.00", got)
	}
}

func TestNormalizeBTCPayStaticPayment(t *testing.T) {
	f := newFixture(t)

	ev := &btcpay.WebhookEvent{
		Type:            btcpay.EventInvoicePaymentSettled,
		InvoiceID:       "inv1",
		PaymentMethodID: "XMR",
		Metadata:        checkoutMetadata(map[string]string{"staticGeneratedForApi": "true"}),
	}
	ev.Payment.ID = "tx1"
	ev.Payment.Value = "0.5"

	pev, err := f.svc.NormalizeBTCPay(context.Background(), ev)
	if err != nil {
		t.Fatal(err)
	}
	if pev == nil {
		t.Fatal("Expected actionable event")
	}
	if !pev.StaticAddress || pev.TxID != "tx1" {
		t.Errorf("static routing not set: %+v", pev)
	}
	if got := pev.GrossFiat.StringFixed(2); got != "75.00" {
		t.Errorf("gross = %s, want 75.00", got)
	}
	if pev.Methods[0].TxID != "tx1" {
		t.Errorf("method txid = %q, want tx1", pev.Methods[0].TxID)
	}

	// The same event type on a checkout invoice is not actionable.
	ev.Metadata = checkoutMetadata(nil)
	pev, err = f.svc.NormalizeBTCPay(context.Background(), ev)
	if err != nil || pev != nil {
		t.Errorf("checkout invoice payment should be ignored, got %+v, %v", pev, err)
	}
}

func TestNormalizeStripeIntentSkips(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	subscription := campaign.DonationMetadata{
		ProjectSlug: "fellowship", FundSlug: campaign.FundMonero, IsSubscription: true,
	}.Encode()

	tests := map[string]*stripe.PaymentIntent{
		"no metadata":  {ID: "pi_1", Amount: 1000, AmountReceived: 1000},
		"subscription": {ID: "pi_2", Amount: 1000, AmountReceived: 1000, Metadata: subscription},
		"partial": {ID: "pi_3", Amount: 1000, AmountReceived: 500, Metadata: campaign.DonationMetadata{
			ProjectSlug: "fellowship", FundSlug: campaign.FundMonero,
		}.Encode()},
	}
	for name, pi := range tests {
		pev, err := f.svc.NormalizeStripeIntent(ctx, pi)
		if err != nil {
			t.Errorf("%s: unexpected error %v", name, err)
		}
		if pev != nil {
			t.Errorf("%s: expected nil event, got %+v", name, pev)
		}
	}
}

func TestNormalizeStripeInvoice(t *testing.T) {
	f := newFixture(t)

	in := &stripe.Invoice{
		ID:           "in_1",
		Total:        1000,
		Subscription: &stripe.Subscription{ID: "sub_1"},
		SubscriptionDetails: &stripe.InvoiceSubscriptionDetails{
			Metadata: campaign.DonationMetadata{
				UserID:         "u1",
				ProjectSlug:    "fellowship",
				ProjectName:    "Research Fellowship",
				FundSlug:       campaign.FundMonero,
				IsMembership:   true,
				MembershipTerm: campaign.TermMonthly,
				IsSubscription: true,
			}.Encode(),
		},
		Lines: &stripe.InvoiceLineItemList{
			Data: []*stripe.InvoiceLineItem{
				{Period: &stripe.Period{Start: 1735689600, End: 1738368000}},
			},
		},
	}

	pev, err := f.svc.NormalizeStripeInvoice(context.Background(), in)
	if err != nil {
		t.Fatal(err)
	}
	if pev == nil {
		t.Fatal("Expected actionable event")
	}
	if pev.Kind != campaign.EventSubscriptionInvoicePaid {
		t.Errorf("kind = %s, want subscription_invoice_paid", pev.Kind)
	}
	if pev.SubscriptionID != "sub_1" {
		t.Errorf("subscription = %q, want sub_1", pev.SubscriptionID)
	}
	if pev.PeriodEnd == nil || pev.PeriodEnd.Unix() != 1738368000 {
		t.Errorf("period end = %v, want unix 1738368000", pev.PeriodEnd)
	}
	if got := pev.GrossFiat.StringFixed(2); got != "10.00" {
		t.Errorf("gross = %s, want 10.00", got)
	}

	// Without a subscription the invoice is not actionable.
	in.Subscription = nil
	pev, err = f.svc.NormalizeStripeInvoice(context.Background(), in)
	if err != nil || pev != nil {
		t.Errorf("invoice without subscription should be ignored, got %+v, %v", pev, err)
	}
}

func TestNormalizeCoinbase(t *testing.T) {
	f := newFixture(t)

	ev := &coinbase.WebhookEvent{}
	ev.Event.Type = coinbase.EventChargeConfirmed
	ev.Event.Data.ID = "charge1"
	ev.Event.Data.Metadata = checkoutMetadata(map[string]string{"userId": "u1", "givePointsBack": "true"})
	ev.Event.Data.Pricing.Local = coinbase.Money{Amount: "100", Currency: "USD"}
	ev.Event.Data.Pricing.Settlement = coinbase.Money{Amount: "0.5", Currency: "XMR"}

	pev, err := f.svc.NormalizeCoinbase(context.Background(), ev)
	if err != nil {
		t.Fatal(err)
	}
	if pev == nil {
		t.Fatal("Expected actionable event")
	}
	if got := pev.GrossFiat.StringFixed(2); got != "100.00" {
		t.Errorf("gross = %s, want 100.00", got)
	}
	if got := pev.NetFiat.StringFixed(2); got != "90.00" {
		t.Errorf("net = %s, want 90.00", got)
	}
	m := pev.Methods[0]
	if m.CryptoCode != "XMR" || m.GrossAmount != 0.5 {
		t.Errorf("method = %+v, want 0.5 XMR", m)
	}
	if m.Rate != 200 {
		t.Errorf("rate = %v, want 200 (fiat per crypto)", m.Rate)
	}

	ev.Event.Data.Metadata = nil
	pev, err = f.svc.NormalizeCoinbase(context.Background(), ev)
	if err != nil || pev != nil {
		t.Errorf("charge without metadata should be ignored, got %+v, %v", pev, err)
	}
}

package service

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/MAGICGrants/campaign-site"
	"github.com/MAGICGrants/campaign-site/btcpay"
	"github.com/MAGICGrants/campaign-site/service/flags"
)

// NormalizeBTCPay turns a verified BTCPay webhook delivery into a canonical
// payment event. A nil event with a nil error means the delivery is valid but
// not actionable and must be acknowledged without processing.
//
// Two flows share the endpoint. InvoicePaymentSettled fires per settled
// payment and only matters for static funding-address invoices, which can
// receive many independent transactions over their long monitoring window.
// InvoiceSettled fires once the checkout invoice is fully paid, possibly
// across several payment methods.
func (s *Service) NormalizeBTCPay(ctx context.Context, ev *btcpay.WebhookEvent) (*campaign.PaymentEvent, error) {
	if len(ev.Metadata) == 0 {
		return nil, nil
	}
	md := campaign.ParseMetadata(metadataStrings(ev.Metadata))
	if !md.Actionable() {
		return nil, nil
	}

	switch ev.Type {
	case btcpay.EventInvoicePaymentSettled:
		if !md.StaticGeneratedForAPI {
			return nil, nil
		}
		return s.normalizeStaticPayment(ctx, ev, md)
	case btcpay.EventInvoiceSettled:
		if md.StaticGeneratedForAPI {
			// Static invoices are handled per payment, not on settlement.
			return nil, nil
		}
		return s.normalizeSettledInvoice(ctx, ev, md)
	}
	return nil, nil
}

func (s *Service) normalizeStaticPayment(ctx context.Context, ev *btcpay.WebhookEvent, md campaign.DonationMetadata) (*campaign.PaymentEvent, error) {
	cryptoCode := ev.PaymentCryptoCode()
	rate, err := s.rates.Rate(ctx, cryptoCode)
	if err != nil {
		return nil, err
	}

	amount, err := strconv.ParseFloat(ev.Payment.Value, 64)
	if err != nil {
		return nil, fmt.Errorf("unparsable payment value %q on invoice %s: %w", ev.Payment.Value, ev.InvoiceID, err)
	}

	methods := []campaign.CryptoPayment{{
		CryptoCode:  cryptoCode,
		GrossAmount: amount,
		NetAmount:   amount,
		Rate:        rate,
		TxID:        ev.Payment.ID,
	}}
	gross, net := campaign.SumFiat(methods)

	return &campaign.PaymentEvent{
		Processor:     campaign.ProcessorBTCPay,
		Kind:          campaign.EventDonationSettled,
		OriginID:      ev.InvoiceID,
		TxID:          ev.Payment.ID,
		StaticAddress: true,
		Metadata:      md,
		Methods:       methods,
		GrossFiat:     gross,
		NetFiat:       net,
	}, nil
}

func (s *Service) normalizeSettledInvoice(ctx context.Context, ev *btcpay.WebhookEvent, md campaign.DonationMetadata) (*campaign.PaymentEvent, error) {
	paymentMethods, err := s.invoicer.InvoicePaymentMethods(ctx, ev.InvoiceID)
	if err != nil {
		return nil, err
	}

	netRate := 1 - flags.PointsBackRate.Value()

	var methods []campaign.CryptoPayment
	for _, pm := range paymentMethods {
		gross, err := strconv.ParseFloat(pm.PaymentMethodPaid, 64)
		if err != nil || gross == 0 {
			continue
		}
		rate, err := strconv.ParseFloat(pm.Rate, 64)
		if err != nil {
			return nil, fmt.Errorf("unparsable rate %q on invoice %s", pm.Rate, ev.InvoiceID)
		}
		net := gross
		if md.GivePointsBack {
			net = gross * netRate
		}
		methods = append(methods, campaign.CryptoPayment{
			CryptoCode:  pm.Currency,
			GrossAmount: gross,
			NetAmount:   net,
			Rate:        rate,
		})
	}

	// An operator can mark an underpaid invoice as settled. The shortfall
	// becomes a synthetic fiat-denominated method at rate 1 so the ledger
	// entry still adds up to the invoice amount.
	if ev.ManuallyMarked {
		invoice, err := s.invoicer.Invoice(ctx, ev.InvoiceID)
		if err != nil {
			return nil, err
		}
		invoiceAmount, err := strconv.ParseFloat(invoice.Amount, 64)
		if err != nil {
			return nil, fmt.Errorf("unparsable amount %q on invoice %s", invoice.Amount, ev.InvoiceID)
		}

		var paidFiat float64
		for _, m := range methods {
			paidFiat += m.GrossAmount * m.Rate
		}
		if due := invoiceAmount - paidFiat; due > 0 {
			slog.InfoContext(ctx, "Filling manually marked invoice shortfall",
				slog.String("invoice", ev.InvoiceID), slog.Float64("due", due))
			net := due
			if md.GivePointsBack {
				net = due * netRate
			}
			methods = append(methods, campaign.CryptoPayment{
				CryptoCode:  "MANUAL",
				GrossAmount: due,
				NetAmount:   net,
				Rate:        1,
			})
		}
	}

	gross, net := campaign.SumFiat(methods)

	kind := campaign.EventDonationSettled
	if md.IsMembership {
		kind = campaign.EventMembershipSettled
	}

	return &campaign.PaymentEvent{
		Processor: campaign.ProcessorBTCPay,
		Kind:      kind,
		OriginID:  ev.InvoiceID,
		Metadata:  md,
		Methods:   methods,
		GrossFiat: gross,
		NetFiat:   net,
	}, nil
}

// metadataStrings flattens the untyped metadata object processors deliver.
// Null values and non-string scalars degrade to their string form.
func metadataStrings(raw map[string]any) map[string]string {
	kv := make(map[string]string, len(raw))
	for k, v := range raw {
		switch val := v.(type) {
		case nil:
		case string:
			kv[k] = val
		case bool:
			if val {
				kv[k] = "true"
			} else {
				kv[k] = "false"
			}
		case float64:
			kv[k] = strconv.FormatFloat(val, 'f', -1, 64)
		default:
			kv[k] = fmt.Sprint(val)
		}
	}
	return kv
}

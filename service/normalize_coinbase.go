package service

import (
	"context"
	"fmt"
	"strconv"

	"github.com/MAGICGrants/campaign-site"
	"github.com/MAGICGrants/campaign-site/coinbase"
	"github.com/MAGICGrants/campaign-site/service/flags"
	"github.com/shopspring/decimal"
)

// NormalizeCoinbase handles charge:confirmed. The charge settles in a single
// crypto asset; its fiat pricing comes straight from the processor, so the
// per-method rate is derived instead of fetched.
func (s *Service) NormalizeCoinbase(ctx context.Context, ev *coinbase.WebhookEvent) (*campaign.PaymentEvent, error) {
	data := ev.Event.Data
	if len(data.Metadata) == 0 {
		return nil, nil
	}
	md := campaign.ParseMetadata(metadataStrings(data.Metadata))
	if !md.Actionable() {
		return nil, nil
	}

	grossFiat, err := decimal.NewFromString(data.Pricing.Local.Amount)
	if err != nil {
		return nil, fmt.Errorf("unparsable local amount %q on charge %s: %w", data.Pricing.Local.Amount, data.ID, err)
	}
	cryptoAmount, err := strconv.ParseFloat(data.Pricing.Settlement.Amount, 64)
	if err != nil {
		return nil, fmt.Errorf("unparsable settlement amount %q on charge %s: %w", data.Pricing.Settlement.Amount, data.ID, err)
	}

	grossFiatF, _ := grossFiat.Float64()
	var rate float64
	if cryptoAmount > 0 {
		rate = grossFiatF / cryptoAmount
	}

	netRate := 1 - flags.PointsBackRate.Value()
	netCrypto := cryptoAmount
	if md.GivePointsBack {
		netCrypto = cryptoAmount * netRate
	}

	methods := []campaign.CryptoPayment{{
		CryptoCode:  data.Pricing.Settlement.Currency,
		GrossAmount: cryptoAmount,
		NetAmount:   netCrypto,
		Rate:        rate,
	}}

	kind := campaign.EventDonationSettled
	if md.IsMembership {
		kind = campaign.EventMembershipSettled
	}

	return &campaign.PaymentEvent{
		Processor: campaign.ProcessorCoinbase,
		Kind:      kind,
		OriginID:  data.ID,
		Metadata:  md,
		Methods:   methods,
		GrossFiat: campaign.RoundFiat(grossFiat),
		NetFiat:   netFiat(grossFiat, md),
	}, nil
}

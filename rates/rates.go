// Package rates resolves crypto-to-fiat exchange rates through the invoicing
// processor's rate endpoint, with a short-lived in-process cache in front.
package rates

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/MAGICGrants/campaign-site"
	"github.com/MAGICGrants/campaign-site/btcpay"
	"github.com/Yiling-J/theine-go"
)

const cacheTTL = time.Minute

// RateSource is the processor endpoint the oracle reads from.
type RateSource interface {
	Rates(ctx context.Context, pairs ...string) ([]btcpay.Rate, error)
}

type Oracle struct {
	cache *theine.LoadingCache[string, float64]
}

func NewOracle(source RateSource) (*Oracle, error) {
	cache, err := theine.NewBuilder[string, float64](100).BuildWithLoader(func(ctx context.Context, pair string) (theine.Loaded[float64], error) {
		rates, err := source.Rates(ctx, pair)
		if err != nil {
			return theine.Loaded[float64]{}, fmt.Errorf("%w: %w", campaign.ErrRateUnavailable, err)
		}
		for _, r := range rates {
			if r.CurrencyPair != pair {
				continue
			}
			rate, err := strconv.ParseFloat(r.Rate, 64)
			if err != nil || rate <= 0 {
				break
			}
			return theine.Loaded[float64]{Value: rate, Cost: 1, TTL: cacheTTL}, nil
		}
		return theine.Loaded[float64]{}, fmt.Errorf("%w: no usable rate for %s", campaign.ErrRateUnavailable, pair)
	})
	if err != nil {
		return nil, fmt.Errorf("could not build rate cache: %w", err)
	}
	return &Oracle{cache: cache}, nil
}

// Rate returns the current rate of one crypto asset against the settlement
// fiat currency. The result is always positive; callers still computing
// divisions with rates they got elsewhere must guard for zero themselves.
func (o *Oracle) Rate(ctx context.Context, cryptoCode string) (float64, error) {
	return o.cache.Get(ctx, cryptoCode+"_USD")
}

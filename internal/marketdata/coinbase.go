package marketdata

import (
	"context"
	"fmt"
	"net/url"
)

// CoinbaseClient reads the public Coinbase spot price.
type CoinbaseClient struct {
	p *provider
}

// SpotPrice returns the spot price of a currency pair such as BTC-USD.
func (c *CoinbaseClient) SpotPrice(ctx context.Context, pair string) (float64, error) {
	body, err := c.p.getJSON(ctx, "/v2/prices/"+url.PathEscape(pair)+"/spot", nil)
	if err != nil {
		return 0, err
	}
	price, err := extractSpotPrice(body)
	if err != nil {
		return 0, fmt.Errorf("coinbase spot %s: %w", pair, err)
	}
	return price, nil
}

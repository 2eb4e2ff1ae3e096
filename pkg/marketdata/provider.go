// Package marketdata backs executor.MarketDataProvider: an HTTP client
// fetching price/return series for the AUTOMATED fetch_market_series
// transform, guarded by pkg/ratelimit the same way pkg/ai guards completions
// (spec.md §4.3 "AUTOMATED may call out to a market data source").
package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/ledgerflow/workflowengine/internal/apperror"
	"github.com/ledgerflow/workflowengine/pkg/ratelimit"
)

// HTTPProvider fetches a symbol's series from a JSON HTTP endpoint of the
// shape GET {baseURL}/series?symbol=X&window=Y -> {"values":[...]}.
type HTTPProvider struct {
	baseURL string
	client  *http.Client
	guard   *ratelimit.Guard
}

func NewHTTPProvider(baseURL string, client *http.Client, guard *ratelimit.Guard) *HTTPProvider {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPProvider{baseURL: baseURL, client: client, guard: guard}
}

type seriesResponse struct {
	Values []float64 `json:"values"`
}

// FetchSeries satisfies executor.MarketDataProvider.
func (p *HTTPProvider) FetchSeries(ctx context.Context, symbol string, window string) ([]float64, error) {
	call := func(ctx context.Context) (interface{}, error) {
		u := fmt.Sprintf("%s/series?symbol=%s&window=%s", p.baseURL, url.QueryEscape(symbol), url.QueryEscape(window))
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, apperror.Wrapf(err, apperror.KindInternal, "building market data request")
		}

		resp, err := p.client.Do(req)
		if err != nil {
			return nil, apperror.Wrapf(err, apperror.KindTransient, "market data request failed")
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests {
			return nil, apperror.NewRateLimited("marketdata")
		}
		if resp.StatusCode >= 500 {
			return nil, apperror.Newf(apperror.KindTransient, "market data provider returned %d", resp.StatusCode)
		}
		if resp.StatusCode >= 400 {
			return nil, apperror.Newf(apperror.KindValidationFailed, "market data provider rejected request: %d", resp.StatusCode)
		}

		var parsed seriesResponse
		if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
			return nil, apperror.Wrapf(err, apperror.KindTransient, "decoding market data response")
		}
		return parsed.Values, nil
	}

	var result interface{}
	var err error
	if p.guard != nil {
		result, err = p.guard.Do(ctx, call)
	} else {
		result, err = call(ctx)
	}
	if err != nil {
		return nil, err
	}
	return result.([]float64), nil
}

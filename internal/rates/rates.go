// Package rates fetches fiat prices for the supported assets.
package rates

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/avast/retry-go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"exchange/internal/logging"
	"exchange/internal/models"
)

var ErrUnsupportedCurrency = errors.New("unsupported currency")

// coinIDs maps assets to the price API's coin identifiers.
var coinIDs = map[models.AssetKind]string{
	models.AssetBTC:  "bitcoin",
	models.AssetUSDT: "tether",
	models.AssetETH:  "ethereum",
}

type Rates map[models.AssetKind]decimal.Decimal

type Provider interface {
	Rates(ctx context.Context, currency string) (Rates, error)
}

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	cache      Cache
	ttl        time.Duration
	attempts   uint
	delay      time.Duration
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithCache(cache Cache, ttl time.Duration) Option {
	return func(c *Client) {
		c.cache = cache
		c.ttl = ttl
	}
}

func WithRetry(attempts uint, delay time.Duration) Option {
	return func(c *Client) {
		c.attempts = attempts
		c.delay = delay
	}
}

func NewClient(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		cache:      NopCache{},
		attempts:   3,
		delay:      time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Rates returns the price of one unit of each asset in currency. Cached
// values are served until they expire.
func (c *Client) Rates(ctx context.Context, currency string) (Rates, error) {
	currency = strings.ToLower(strings.TrimSpace(currency))
	if currency == "" {
		return nil, ErrUnsupportedCurrency
	}

	logger := logging.With(zap.String("currency", currency))

	if cached, ok, err := c.cache.Get(ctx, currency); err != nil {
		logger.Warn("Rates cache read failed", zap.Error(err))
	} else if ok {
		return cached, nil
	}

	var rates Rates
	err := retry.Do(
		func() error {
			var err error
			rates, err = c.fetch(ctx, currency)
			return err
		},
		retry.Context(ctx),
		retry.Attempts(c.attempts),
		retry.Delay(c.delay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool { return !errors.Is(err, ErrUnsupportedCurrency) }),
		retry.OnRetry(func(n uint, err error) {
			logger.Warn("Retry fetching rates", zap.Uint("attempt", n), zap.Error(err))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("fetch rates: %w", err)
	}

	if err := c.cache.Set(ctx, currency, rates, c.ttl); err != nil {
		logger.Warn("Rates cache write failed", zap.Error(err))
	}
	return rates, nil
}

func (c *Client) fetch(ctx context.Context, currency string) (Rates, error) {
	ids := make([]string, 0, len(models.Assets))
	for _, a := range models.Assets {
		ids = append(ids, coinIDs[a])
	}

	q := url.Values{}
	q.Set("ids", strings.Join(ids, ","))
	q.Set("vs_currencies", currency)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/simple/price?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("x-cg-demo-api-key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rates api returned %s", resp.Status)
	}

	var body map[string]map[string]json.Number
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(&body); err != nil {
		return nil, fmt.Errorf("decode rates: %w", err)
	}

	rates := make(Rates, len(models.Assets))
	for _, a := range models.Assets {
		price, ok := body[coinIDs[a]][currency]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedCurrency, currency)
		}
		d, err := decimal.NewFromString(price.String())
		if err != nil {
			return nil, fmt.Errorf("parse %s price: %w", a, err)
		}
		rates[a] = d
	}
	return rates, nil
}

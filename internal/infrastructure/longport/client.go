// Package longport reaches the external quote gateway and trade venue over
// its HTTP API plus a websocket push stream. It implements the QuoteFeed and
// TradeService boundaries; nothing above this package knows about transport.
package longport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"longtrade/internal/domain/entity/market"
	"longtrade/internal/domain/entity/options"
	"longtrade/internal/domain/interfaces"
)

const (
	defaultTimeout = 10 * time.Second

	codeNotTradable = "instrument_not_tradable"
)

// apiError is the gateway's error envelope.
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
}

func (e *apiError) Error() string {
	return fmt.Sprintf("gateway error %s (%d): %s", e.Code, e.Status, e.Message)
}

// Client talks to the gateway's request/response API and delegates push
// subscriptions to its Stream.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	stream  *Stream
	logger  *logrus.Logger
}

func NewClient(baseURL, token string, stream *Stream, logger *logrus.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: defaultTimeout},
		stream:  stream,
		logger:  logger,
	}
}

var _ interfaces.QuoteFeed = (*Client)(nil)
var _ interfaces.TradeService = (*Client)(nil)

// Push stream delegation.

func (c *Client) Subscribe(ctx context.Context, symbols []string, kinds []interfaces.SubKind) error {
	return c.stream.Subscribe(ctx, symbols, kinds)
}

func (c *Client) Unsubscribe(ctx context.Context, symbols []string, kinds []interfaces.SubKind) error {
	return c.stream.Unsubscribe(ctx, symbols, kinds)
}

func (c *Client) OnTick(h interfaces.TickHandler)   { c.stream.OnTick(h) }
func (c *Client) OnDepth(h interfaces.DepthHandler) { c.stream.OnDepth(h) }

// Point queries.

func (c *Client) Quote(ctx context.Context, symbols []string) ([]market.Quote, error) {
	var out struct {
		Quotes []market.Quote `json:"quotes"`
	}
	q := url.Values{"symbols": {strings.Join(symbols, ",")}}
	if err := c.get(ctx, "/v1/quote", q, &out); err != nil {
		return nil, err
	}
	return out.Quotes, nil
}

func (c *Client) OptionQuote(ctx context.Context, symbols []string) ([]options.ContractQuote, error) {
	var out struct {
		Quotes []options.ContractQuote `json:"quotes"`
	}
	q := url.Values{"symbols": {strings.Join(symbols, ",")}}
	if err := c.get(ctx, "/v1/option/quote", q, &out); err != nil {
		return nil, err
	}
	return out.Quotes, nil
}

func (c *Client) Depth(ctx context.Context, symbol string) (market.Depth, error) {
	var out market.Depth
	q := url.Values{"symbol": {symbol}}
	if err := c.get(ctx, "/v1/depth", q, &out); err != nil {
		return market.Depth{}, err
	}
	return out, nil
}

func (c *Client) OptionChainExpiries(ctx context.Context, symbol string) ([]time.Time, error) {
	var out struct {
		Dates []string `json:"dates"`
	}
	q := url.Values{"symbol": {symbol}}
	if err := c.get(ctx, "/v1/option/chain/dates", q, &out); err != nil {
		return nil, err
	}
	dates := make([]time.Time, 0, len(out.Dates))
	for _, raw := range out.Dates {
		d, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return nil, fmt.Errorf("decode expiry date %q: %w", raw, err)
		}
		dates = append(dates, d)
	}
	return dates, nil
}

func (c *Client) OptionChainByDate(ctx context.Context, symbol string, expiry time.Time) ([]options.StrikeInfo, error) {
	var out struct {
		Strikes []options.StrikeInfo `json:"strikes"`
	}
	q := url.Values{
		"symbol": {symbol},
		"date":   {expiry.Format("2006-01-02")},
	}
	if err := c.get(ctx, "/v1/option/chain", q, &out); err != nil {
		return nil, err
	}
	return out.Strikes, nil
}

func (c *Client) Intraday(ctx context.Context, symbol string) ([]market.IntradayPoint, error) {
	var out struct {
		Points []market.IntradayPoint `json:"points"`
	}
	q := url.Values{"symbol": {symbol}}
	if err := c.get(ctx, "/v1/intraday", q, &out); err != nil {
		return nil, err
	}
	return out.Points, nil
}

func (c *Client) CapitalFlow(ctx context.Context, symbol string) ([]market.CapitalFlowPoint, error) {
	var out struct {
		Points []market.CapitalFlowPoint `json:"points"`
	}
	q := url.Values{"symbol": {symbol}}
	if err := c.get(ctx, "/v1/capital/flow", q, &out); err != nil {
		return nil, err
	}
	return out.Points, nil
}

func (c *Client) CapitalDistribution(ctx context.Context, symbol string) (market.CapitalDistribution, error) {
	var out market.CapitalDistribution
	q := url.Values{"symbol": {symbol}}
	if err := c.get(ctx, "/v1/capital/distribution", q, &out); err != nil {
		return market.CapitalDistribution{}, err
	}
	return out, nil
}

func (c *Client) Candlesticks(ctx context.Context, symbol string, count int) ([]market.Candle, error) {
	var out struct {
		Candles []market.Candle `json:"candles"`
	}
	q := url.Values{
		"symbol": {symbol},
		"period": {"day"},
		"count":  {strconv.Itoa(count)},
	}
	if err := c.get(ctx, "/v1/candles", q, &out); err != nil {
		return nil, err
	}
	return out.Candles, nil
}

// HTTP plumbing.

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	return c.do(ctx, http.MethodGet, path, query, nil, out)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = strings.NewReader(string(raw))
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func (c *Client) decodeError(resp *http.Response) error {
	apiErr := &apiError{Status: resp.StatusCode}
	if err := json.NewDecoder(resp.Body).Decode(apiErr); err != nil {
		apiErr.Code = "unexpected_status"
		apiErr.Message = resp.Status
	}
	if apiErr.Code == codeNotTradable {
		return fmt.Errorf("%w: %s", interfaces.ErrNotTradable, apiErr.Message)
	}
	return apiErr
}

// IsAPIError reports whether err carries a gateway error envelope.
func IsAPIError(err error) bool {
	var apiErr *apiError
	return errors.As(err, &apiErr)
}

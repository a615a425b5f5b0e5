package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/evdnx/papertrader/types"
)

const DefaultBaseURL = "https://api.binance.com"

// Binance reads the public spot REST API. It needs no credentials.
type Binance struct {
	baseURL string
	client  *http.Client
	now     func() time.Time
}

func NewBinance(baseURL string, timeout time.Duration) *Binance {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	return &Binance{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		now:     time.Now,
	}
}

// MarketSymbol maps "btc_usdt" or "BTC/USDT" to the exchange form "BTCUSDT".
func MarketSymbol(symbol string) string {
	r := strings.NewReplacer("_", "", "/", "", "-", "")
	return strings.ToUpper(r.Replace(strings.TrimSpace(symbol)))
}

// Candles returns up to limit closed bars. A bar whose close time is still in
// the future is dropped.
func (b *Binance) Candles(ctx context.Context, symbol, timeframe string, limit int) ([]types.Candle, error) {
	q := url.Values{}
	q.Set("symbol", MarketSymbol(symbol))
	q.Set("interval", timeframe)
	if limit > 0 {
		// one extra for the bar still forming
		q.Set("limit", strconv.Itoa(limit+1))
	}
	var payload [][]any
	if err := b.get(ctx, "/api/v3/klines", q, &payload); err != nil {
		return nil, err
	}
	now := b.now()
	out := make([]types.Candle, 0, len(payload))
	for _, row := range payload {
		if len(row) < 7 {
			return nil, fmt.Errorf("kline row has %d fields", len(row))
		}
		closeTime := time.UnixMilli(toInt64(row[6]))
		if closeTime.After(now) {
			continue
		}
		out = append(out, types.Candle{
			OpenTime: time.UnixMilli(toInt64(row[0])).UTC(),
			Open:     toF64(row[1]),
			High:     toF64(row[2]),
			Low:      toF64(row[3]),
			Close:    toF64(row[4]),
			Volume:   toF64(row[5]),
		})
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

type bookTicker struct {
	BidPrice string `json:"bidPrice"`
	AskPrice string `json:"askPrice"`
}

type lastPrice struct {
	Price string `json:"price"`
}

func (b *Binance) Ticker(ctx context.Context, symbol string) (types.Ticker, error) {
	q := url.Values{}
	q.Set("symbol", MarketSymbol(symbol))
	var book bookTicker
	if err := b.get(ctx, "/api/v3/ticker/bookTicker", q, &book); err != nil {
		return types.Ticker{}, err
	}
	var last lastPrice
	if err := b.get(ctx, "/api/v3/ticker/price", q, &last); err != nil {
		return types.Ticker{}, err
	}
	return types.Ticker{
		Bid:  toF64(book.BidPrice),
		Ask:  toF64(book.AskPrice),
		Last: toF64(last.Price),
	}, nil
}

type apiError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

func (b *Binance) get(ctx context.Context, path string, q url.Values, dst any) error {
	u := b.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		var e apiError
		if json.NewDecoder(resp.Body).Decode(&e) == nil && e.Msg != "" {
			return fmt.Errorf("binance %s: status %d: %s (code %d)", path, resp.StatusCode, e.Msg, e.Code)
		}
		return fmt.Errorf("binance %s: status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("binance %s: decode: %w", path, err)
	}
	return nil
}

func toF64(v any) float64 {
	switch t := v.(type) {
	case string:
		x, _ := strconv.ParseFloat(t, 64)
		return x
	case float64:
		return t
	case json.Number:
		x, _ := t.Float64()
		return x
	default:
		x, _ := strconv.ParseFloat(fmt.Sprint(v), 64)
		return x
	}
}

func toInt64(v any) int64 {
	switch t := v.(type) {
	case float64:
		return int64(t)
	case int64:
		return t
	case json.Number:
		i, _ := t.Int64()
		return i
	default:
		i, _ := strconv.ParseInt(fmt.Sprint(v), 10, 64)
		return i
	}
}

package moex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	defaultBaseURL = "https://invest-public-api.tbank.ru/rest"
	apiPrefix      = "tinkoff.public.invest.api.contract.v1"

	// MOEX main equity board.
	classCode = "TQBR"
)

// ClientConfig configures the REST market-data client.
type ClientConfig struct {
	BaseURL      string
	Token        string
	RequestDelay time.Duration
	Timeout      time.Duration
	MaxAttempts  int
}

// Client fetches MOEX market data through the broker Invest REST API.
// All business logic stays out; this is pure I/O with retry and spacing.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	token       string
	limiter     *RateLimiter
	maxAttempts int

	mu          sync.RWMutex
	instruments map[string]*resolvedInstrument // ticker -> uid + meta

	log zerolog.Logger
}

type resolvedInstrument struct {
	UID  string
	Meta InstrumentMeta
}

func NewClient(cfg ClientConfig) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.RequestDelay <= 0 {
		cfg.RequestDelay = 200 * time.Millisecond
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	return &Client{
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		token:       cfg.Token,
		limiter:     NewRateLimiter(cfg.RequestDelay),
		maxAttempts: cfg.MaxAttempts,
		instruments: make(map[string]*resolvedInstrument),
		log:         log.With().Str("component", "moex-client").Logger(),
	}
}

// quotation is the protobuf-JSON money shape: integer units plus nano part.
type quotation struct {
	Units json.Number `json:"units"`
	Nano  int32       `json:"nano"`
}

func (q quotation) Float() float64 {
	u, _ := q.Units.Int64()
	return float64(u) + float64(q.Nano)/1e9
}

func candleIntervalFor(interval string) (string, error) {
	switch interval {
	case Interval1Min:
		return "CANDLE_INTERVAL_1_MIN", nil
	case Interval5Min:
		return "CANDLE_INTERVAL_5_MIN", nil
	case Interval15Min:
		return "CANDLE_INTERVAL_15_MIN", nil
	case IntervalHour:
		return "CANDLE_INTERVAL_HOUR", nil
	case IntervalDay:
		return "CANDLE_INTERVAL_DAY", nil
	default:
		return "", fmt.Errorf("unsupported candle interval %q", interval)
	}
}

// call posts one API method with retry on transient failures.
func (c *Client) call(ctx context.Context, service, method string, req, resp interface{}) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", method, err)
	}
	url := fmt.Sprintf("%s/%s.%s/%s", c.baseURL, apiPrefix, service, method)

	var lastErr error
	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		if attempt > 0 {
			backoff := 250 * time.Millisecond << uint(attempt-1)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		lastErr = c.doOnce(ctx, url, body, resp)
		if lastErr == nil {
			return nil
		}
		if !Retryable(lastErr) {
			return lastErr
		}
		c.log.Warn().Err(lastErr).Str("method", method).Int("attempt", attempt+1).Msg("retrying upstream call")
	}
	return lastErr
}

func (c *Client) doOnce(ctx context.Context, url string, body []byte, resp interface{}) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.token)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(httpResp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("%w: read body: %v", ErrTransient, err)
	}
	if httpResp.StatusCode != http.StatusOK {
		return errorFromStatus(httpResp.StatusCode, strings.TrimSpace(string(data)))
	}
	if err := json.Unmarshal(data, resp); err != nil {
		return fmt.Errorf("decode upstream response: %w", err)
	}
	return nil
}

// resolve finds the instrument uid for a ticker, caching the lookup.
func (c *Client) resolve(ctx context.Context, instrument string) (*resolvedInstrument, error) {
	c.mu.RLock()
	ri, ok := c.instruments[instrument]
	c.mu.RUnlock()
	if ok {
		return ri, nil
	}

	req := map[string]string{
		"idType":    "INSTRUMENT_ID_TYPE_TICKER",
		"classCode": classCode,
		"id":        instrument,
	}
	var resp struct {
		Instrument struct {
			UID                   string `json:"uid"`
			Name                  string `json:"name"`
			Lot                   int    `json:"lot"`
			Currency              string `json:"currency"`
			APITradeAvailableFlag bool   `json:"apiTradeAvailableFlag"`
		} `json:"instrument"`
	}
	if err := c.call(ctx, "InstrumentsService", "ShareBy", req, &resp); err != nil {
		return nil, fmt.Errorf("resolve %s: %w", instrument, err)
	}
	if resp.Instrument.UID == "" {
		return nil, fmt.Errorf("resolve %s: %w", instrument, ErrNotFound)
	}

	ri = &resolvedInstrument{
		UID: resp.Instrument.UID,
		Meta: InstrumentMeta{
			Instrument: instrument,
			Name:       resp.Instrument.Name,
			LotSize:    resp.Instrument.Lot,
			Currency:   resp.Instrument.Currency,
			Tradable:   resp.Instrument.APITradeAvailableFlag,
		},
	}
	c.mu.Lock()
	c.instruments[instrument] = ri
	c.mu.Unlock()
	return ri, nil
}

// LastPrice returns the most recent trade price for an instrument.
func (c *Client) LastPrice(ctx context.Context, instrument string) (float64, error) {
	ri, err := c.resolve(ctx, instrument)
	if err != nil {
		return 0, err
	}

	req := map[string][]string{"instrumentId": {ri.UID}}
	var resp struct {
		LastPrices []struct {
			Price quotation `json:"price"`
		} `json:"lastPrices"`
	}
	if err := c.call(ctx, "MarketDataService", "GetLastPrices", req, &resp); err != nil {
		return 0, fmt.Errorf("last price %s: %w", instrument, err)
	}
	if len(resp.LastPrices) == 0 {
		return 0, fmt.Errorf("last price %s: %w", instrument, ErrNotFound)
	}
	return resp.LastPrices[0].Price.Float(), nil
}

// Candles fetches the most recent count bars of the given interval,
// newest last, in exchange-local time.
func (c *Client) Candles(ctx context.Context, instrument, interval string, count int) ([]Candle, error) {
	ri, err := c.resolve(ctx, instrument)
	if err != nil {
		return nil, err
	}
	apiInterval, err := candleIntervalFor(interval)
	if err != nil {
		return nil, err
	}

	dur := IntervalDuration(interval)
	to := time.Now()
	from := to.Add(-dur * time.Duration(count))

	req := map[string]interface{}{
		"instrumentId": ri.UID,
		"from":         from.UTC().Format(time.RFC3339),
		"to":           to.UTC().Format(time.RFC3339),
		"interval":     apiInterval,
	}
	var resp struct {
		Candles []struct {
			Open       quotation   `json:"open"`
			High       quotation   `json:"high"`
			Low        quotation   `json:"low"`
			Close      quotation   `json:"close"`
			Volume     json.Number `json:"volume"`
			Time       time.Time   `json:"time"`
			IsComplete bool        `json:"isComplete"`
		} `json:"candles"`
	}
	if err := c.call(ctx, "MarketDataService", "GetCandles", req, &resp); err != nil {
		return nil, fmt.Errorf("candles %s %s: %w", instrument, interval, err)
	}

	out := make([]Candle, 0, len(resp.Candles))
	for _, rc := range resp.Candles {
		vol, _ := rc.Volume.Float64()
		out = append(out, Candle{
			Instrument: instrument,
			OpenTime:   rc.Time,
			Open:       rc.Open.Float(),
			High:       rc.High.Float(),
			Low:        rc.Low.Float(),
			Close:      rc.Close.Float(),
			Volume:     vol,
			Interval:   interval,
			Complete:   rc.IsComplete,
		})
	}
	if len(out) > count {
		out = out[len(out)-count:]
	}
	return out, nil
}

// OrderBook returns a top-of-book summary with aggregated depth volumes.
func (c *Client) OrderBook(ctx context.Context, instrument string, depth int) (*OrderBook, error) {
	ri, err := c.resolve(ctx, instrument)
	if err != nil {
		return nil, err
	}
	if depth <= 0 {
		depth = 10
	}

	req := map[string]interface{}{"instrumentId": ri.UID, "depth": depth}
	var resp struct {
		Bids []struct {
			Price    quotation   `json:"price"`
			Quantity json.Number `json:"quantity"`
		} `json:"bids"`
		Asks []struct {
			Price    quotation   `json:"price"`
			Quantity json.Number `json:"quantity"`
		} `json:"asks"`
	}
	if err := c.call(ctx, "MarketDataService", "GetOrderBook", req, &resp); err != nil {
		return nil, fmt.Errorf("order book %s: %w", instrument, err)
	}
	if len(resp.Bids) == 0 || len(resp.Asks) == 0 {
		return nil, fmt.Errorf("order book %s: %w: empty book", instrument, ErrTransient)
	}

	bestBid := resp.Bids[0].Price.Float()
	bestAsk := resp.Asks[0].Price.Float()
	var bidVol, askVol float64
	for _, b := range resp.Bids {
		q, _ := b.Quantity.Float64()
		bidVol += q
	}
	for _, a := range resp.Asks {
		q, _ := a.Quantity.Float64()
		askVol += q
	}
	spread := 0.0
	if bestBid > 0 {
		spread = (bestAsk - bestBid) / bestBid * 100.0
	}

	return &OrderBook{
		Instrument:    instrument,
		BestBid:       bestBid,
		BestAsk:       bestAsk,
		BidVolume:     bidVol,
		AskVolume:     askVol,
		SpreadPercent: spread,
	}, nil
}

// InstrumentMeta returns static reference data for an instrument.
func (c *Client) InstrumentMeta(ctx context.Context, instrument string) (*InstrumentMeta, error) {
	ri, err := c.resolve(ctx, instrument)
	if err != nil {
		return nil, err
	}
	meta := ri.Meta
	return &meta, nil
}

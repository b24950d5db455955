// Package exchange implements the Upbit candle HTTP client: endpoint
// routing per timeframe unit, the cooperative rate limiter that reacts to
// the exchange's Remaining-Req header and to HTTP 429, and the bounded
// retry budget for other transport errors.
package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	"upbit_ingestor/internal/ohlcv/timeframe"
	"upbit_ingestor/pkg/apperrors"
	"upbit_ingestor/pkg/log"
)

const maxAttempts = 3

// RawCandle is the exchange's JSON candle shape, newest-first.
type RawCandle struct {
	CandleDateTimeKST   string  `json:"candle_date_time_kst"`
	OpeningPrice        float64 `json:"opening_price"`
	HighPrice           float64 `json:"high_price"`
	LowPrice            float64 `json:"low_price"`
	TradePrice          float64 `json:"trade_price"`
	CandleAccTradePrice float64 `json:"candle_acc_trade_price"`
	CandleAccTradeVol   float64 `json:"candle_acc_trade_volume"`
}

// Client talks to the Upbit candle endpoints through a shared cooperative
// rate limiter that tightens in response to the exchange's Remaining-Req
// header and to HTTP 429.
type Client struct {
	httpClient *http.Client
	baseURL    string
	limiter    *rate.Limiter
}

// NewClient builds a Client against baseURL (e.g. "https://api.upbit.com/v1").
// The limiter starts unbounded; it only tightens once the exchange signals
// pressure via Remaining-Req or a 429.
func NewClient(baseURL string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    strings.TrimRight(baseURL, "/"),
		limiter:    rate.NewLimiter(rate.Inf, 1),
	}
}

// FetchCandles returns up to count candles strictly earlier than to
// (server to-cursor semantics), newest first.
func (c *Client) FetchCandles(ctx context.Context, tf timeframe.Spec, market string, to time.Time, count int) ([]RawCandle, error) {
	endpoint, err := c.buildEndpoint(tf)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s%s?market=%s&count=%d&to=%s", c.baseURL, endpoint, market, count, to.In(Zone()).Format("2006-01-02T15:04:05"))

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		req, reqErr := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if reqErr != nil {
			return nil, errors.Wrap(reqErr, "failed to build upbit request")
		}
		req.Header.Set("Accept", "application/json")

		resp, doErr := c.httpClient.Do(req)
		if doErr != nil {
			lastErr = errors.Wrap(doErr, "upbit request failed")
			log.IngestWarn("upbit transport retry", market, tf.Raw, attempt, lastErr)
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			lastErr = errors.Wrap(readErr, "failed to read upbit response body")
			continue
		}

		c.observeRemaining(resp.Header.Get("Remaining-Req"))

		if resp.StatusCode == http.StatusTooManyRequests {
			c.tighten(time.Second)
			log.IngestWarn("upbit rate limited, retrying", market, tf.Raw)
			// A 429 retry does not count against maxAttempts.
			attempt--
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			lastErr = apperrors.NewTransportError(
				fmt.Sprintf("upbit returned status %d", resp.StatusCode), nil)
			continue
		}

		var candles []RawCandle
		if err := json.Unmarshal(body, &candles); err != nil {
			return nil, errors.Wrap(err, "failed to decode upbit candle response")
		}
		return candles, nil
	}

	return nil, apperrors.NewTransportError(fmt.Sprintf("upbit candle fetch failed after %d attempts", maxAttempts), lastErr)
}

// buildEndpoint routes to the per-unit candle path.
func (c *Client) buildEndpoint(tf timeframe.Spec) (string, error) {
	switch tf.Unit {
	case timeframe.Minute:
		return fmt.Sprintf("/candles/minutes/%d", tf.Value), nil
	case timeframe.Day:
		return "/candles/days", nil
	case timeframe.Week:
		return "/candles/weeks", nil
	case timeframe.Month:
		return "/candles/months", nil
	case timeframe.Year:
		return "/candles/years", nil
	default:
		return "", apperrors.NewConfigurationError(fmt.Sprintf("no upbit endpoint for timeframe %q", tf.Raw), nil)
	}
}

// tighten narrows the limiter's pacing to at least one request per delay,
// never loosening a tighter limit already in effect.
func (c *Client) tighten(delay time.Duration) {
	if delay <= 0 {
		return
	}
	newLimit := rate.Every(delay)
	if newLimit < c.limiter.Limit() {
		c.limiter.SetLimit(newLimit)
	}
}

// observeRemaining parses a "Remaining-Req" header of the form
// "group=market; min=600; sec=10" and tightens the limiter from the
// sec-remaining hint.
func (c *Client) observeRemaining(header string) {
	if header == "" {
		return
	}
	secRemaining, ok := parseSecRemaining(header)
	if !ok {
		return
	}

	switch {
	case secRemaining <= 1:
		c.tighten(time.Second)
	case secRemaining <= 5:
		c.tighten(500 * time.Millisecond)
	case secRemaining <= 10:
		c.tighten(200 * time.Millisecond)
	}
}

func parseSecRemaining(header string) (int, bool) {
	for _, field := range strings.Split(header, ";") {
		field = strings.TrimSpace(field)
		kv := strings.SplitN(field, "=", 2)
		if len(kv) != 2 {
			continue
		}
		if strings.TrimSpace(kv[0]) == "sec" {
			v, err := strconv.Atoi(strings.TrimSpace(kv[1]))
			if err != nil {
				return 0, false
			}
			return v, true
		}
	}
	return 0, false
}

// BucketStart returns the bucket-start timestamp for a raw candle: the
// exchange reports the bucket's close time, so bucket-start = close - Δ.
func BucketStart(raw RawCandle, tf timeframe.Spec) (time.Time, error) {
	closeTime, err := time.ParseInLocation("2006-01-02T15:04:05", raw.CandleDateTimeKST, kstLocation())
	if err != nil {
		return time.Time{}, errors.Wrap(err, "failed to parse candle_date_time_kst")
	}
	delta, err := tf.ToDuration()
	if err != nil {
		return time.Time{}, err
	}
	return closeTime.Add(-delta).UTC(), nil
}

func kstLocation() *time.Location {
	return Zone()
}

// Zone returns the exchange's configured timezone ("Asia/Seoul"), falling
// back to a fixed +09:00 offset if the tzdata lookup fails. The ingest
// orchestrator aligns every timeframe boundary in this zone.
func Zone() *time.Location {
	loc, err := time.LoadLocation("Asia/Seoul")
	if err != nil {
		return time.FixedZone("KST", 9*60*60)
	}
	return loc
}

// Package rest is a REST exchange client for spot market data, balances and market orders.
package rest

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"
	"github.com/rustyeddy/gradebot/broker"
	"github.com/rustyeddy/gradebot/market"
	"github.com/rustyeddy/gradebot/ratelimit"
	"go.uber.org/zap"
)

type Config struct {
	BaseURL   string        `yaml:"base_url" json:"base_url"`
	APIKey    string        `yaml:"-" json:"-"`
	APISecret string        `yaml:"-" json:"-"`
	Quote     string        `yaml:"quote" json:"quote"`
	Timeout   time.Duration `yaml:"timeout" json:"timeout"`
	// Market data calls are retried this many times before reporting
	// market.ErrDataUnavailable.
	DataAttempts int           `yaml:"data_attempts" json:"data_attempts"`
	DataBackoff  time.Duration `yaml:"data_backoff" json:"data_backoff"`
	// QuantityDecimals is the precision sells are truncated to.
	QuantityDecimals int32 `yaml:"quantity_decimals" json:"quantity_decimals"`
	// OrderPoll bounds how long to wait for a market order to report done.
	OrderPoll     time.Duration `yaml:"order_poll" json:"order_poll"`
	OrderPollWait time.Duration `yaml:"order_poll_wait" json:"order_poll_wait"`
}

func DefaultConfig() Config {
	return Config{
		Quote:            "KRW",
		Timeout:          10 * time.Second,
		DataAttempts:     3,
		DataBackoff:      500 * time.Millisecond,
		QuantityDecimals: 8,
		OrderPoll:        5 * time.Second,
		OrderPollWait:    250 * time.Millisecond,
	}
}

// Client implements broker.Exchange over HTTP. Every request first waits on
// the shared rate limiter.
type Client struct {
	cfg     Config
	http    *resty.Client
	limiter *ratelimit.Limiter
	log     *zap.Logger
	now     func() time.Time
}

func New(cfg Config, limiter *ratelimit.Limiter, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.DataAttempts <= 0 {
		cfg.DataAttempts = 1
	}
	hc := resty.New()
	hc.SetBaseURL(cfg.BaseURL)
	hc.SetTimeout(cfg.Timeout)
	hc.SetHeader("Accept", "application/json")
	hc.JSONMarshal = sonic.Marshal
	hc.JSONUnmarshal = sonic.Unmarshal

	return &Client{cfg: cfg, http: hc, limiter: limiter, log: log, now: time.Now}
}

// apiError is the error body returned by the exchange.
type apiError struct {
	Error struct {
		Name    string `json:"name"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) sign(ts, method, path string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(c.cfg.APISecret))
	mac.Write([]byte(ts + method + path))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func (c *Client) request(ctx context.Context, private bool) (*resty.Request, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	r := c.http.R().SetContext(ctx)
	if private {
		if c.cfg.APIKey == "" || c.cfg.APISecret == "" {
			return nil, errors.New("exchange credentials are not configured")
		}
		r.SetHeader("X-API-KEY", c.cfg.APIKey)
	}
	return r, nil
}

// signed adds the signature headers for method, path and body.
func (c *Client) signed(r *resty.Request, method, path string, body []byte) *resty.Request {
	ts := strconv.FormatInt(c.now().UnixMilli(), 10)
	return r.SetHeader("X-API-TIMESTAMP", ts).
		SetHeader("X-API-SIGN", c.sign(ts, method, path, body))
}

// check maps HTTP failures onto broker errors.
func check(resp *resty.Response, what string) error {
	code := resp.StatusCode()
	if code/100 == 2 {
		return nil
	}
	var ae apiError
	msg := resp.String()
	if err := sonic.Unmarshal(resp.Body(), &ae); err == nil && ae.Error.Message != "" {
		msg = ae.Error.Name + ": " + ae.Error.Message
	}
	switch {
	case code == http.StatusTooManyRequests || code == 418:
		return fmt.Errorf("%s http %d: %s: %w", what, code, msg, broker.ErrRateLimited)
	default:
		return fmt.Errorf("%s http %d: %s", what, code, msg)
	}
}

func (c *Client) dataRetry(ctx context.Context, what string, fn func() error) error {
	var err error
	for attempt := 1; attempt <= c.cfg.DataAttempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if attempt == c.cfg.DataAttempts {
			break
		}
		wait := c.cfg.DataBackoff * time.Duration(attempt)
		if errors.Is(err, broker.ErrRateLimited) {
			wait *= 2
		}
		c.log.Debug("retry market data", zap.String("call", what), zap.Int("attempt", attempt), zap.Error(err))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return fmt.Errorf("%s: %w: %w", what, market.ErrDataUnavailable, err)
}

var _ broker.Exchange = (*Client)(nil)

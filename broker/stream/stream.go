// Package stream keeps a market.PriceStore current from the exchange ticker
// websocket and serves prices from it.
package stream

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"github.com/rustyeddy/gradebot/market"
	"go.uber.org/zap"
)

type Config struct {
	URL          string        `yaml:"url" json:"url"`
	PingInterval time.Duration `yaml:"ping_interval" json:"ping_interval"`
	// Reconnect waits grow from ReconnectMin by ReconnectMin per failed
	// dial up to ReconnectMax. MaxRetries consecutive dial failures end Run.
	ReconnectMin time.Duration `yaml:"reconnect_min" json:"reconnect_min"`
	ReconnectMax time.Duration `yaml:"reconnect_max" json:"reconnect_max"`
	MaxRetries   int           `yaml:"max_retries" json:"max_retries"`
	// MaxAge is how old a streamed price may be before Source falls back to REST.
	MaxAge time.Duration `yaml:"max_age" json:"max_age"`
}

func DefaultConfig() Config {
	return Config{
		PingInterval: 15 * time.Second,
		ReconnectMin: 300 * time.Millisecond,
		ReconnectMax: 10 * time.Second,
		MaxRetries:   8,
		MaxAge:       5 * time.Second,
	}
}

type subscribe struct {
	Type  string   `json:"type"`
	Codes []string `json:"codes"`
}

type frame struct {
	Type      string  `json:"type"`
	Code      string  `json:"code"`
	Price     float64 `json:"trade_price"`
	Timestamp int64   `json:"trade_timestamp"`
}

// Streamer writes every ticker frame it receives into a PriceStore.
type Streamer struct {
	cfg    Config
	store  *market.PriceStore
	dialer *websocket.Dialer
	log    *zap.Logger

	mu        sync.Mutex
	connected bool
}

func New(cfg Config, store *market.PriceStore, log *zap.Logger) *Streamer {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.ReconnectMin <= 0 {
		cfg.ReconnectMin = 300 * time.Millisecond
	}
	if cfg.ReconnectMax < cfg.ReconnectMin {
		cfg.ReconnectMax = cfg.ReconnectMin
	}
	return &Streamer{cfg: cfg, store: store, dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second}, log: log}
}

// Connected reports whether a websocket session is currently up.
func (s *Streamer) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

func (s *Streamer) setConnected(v bool) {
	s.mu.Lock()
	s.connected = v
	s.mu.Unlock()
}

// Run streams instruments until ctx is done, reconnecting after every drop.
// It returns nil on cancellation and an error once MaxRetries dials in a row fail.
func (s *Streamer) Run(ctx context.Context, instruments []string) error {
	if len(instruments) == 0 {
		return errors.New("stream: no instruments")
	}
	retry := 0
	for {
		err := s.session(ctx, instruments)
		if ctx.Err() != nil {
			return nil
		}

		var de dialError
		if errors.As(err, &de) {
			retry++
			if s.cfg.MaxRetries > 0 && retry > s.cfg.MaxRetries {
				return fmt.Errorf("stream: giving up after %d dials: %w", retry-1, err)
			}
		} else {
			retry = 0
		}
		wait := min(s.cfg.ReconnectMin*time.Duration(retry+1), s.cfg.ReconnectMax)
		s.log.Warn("stream dropped", zap.Error(err), zap.Int("retry", retry), zap.Duration("wait", wait))

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
	}
}

type dialError struct{ err error }

func (e dialError) Error() string { return "dial: " + e.err.Error() }
func (e dialError) Unwrap() error { return e.err }

func (s *Streamer) session(ctx context.Context, instruments []string) error {
	conn, _, err := s.dialer.DialContext(ctx, s.cfg.URL, nil)
	if err != nil {
		return dialError{err}
	}
	defer conn.Close()

	sub, err := sonic.Marshal([]subscribe{{Type: "ticker", Codes: instruments}})
	if err != nil {
		return err
	}
	if err := conn.WriteMessage(websocket.TextMessage, sub); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	s.setConnected(true)
	defer s.setConnected(false)
	s.log.Info("stream connected", zap.String("url", s.cfg.URL), zap.Strings("instruments", instruments))

	done := make(chan struct{})
	defer close(done)
	var wmu sync.Mutex
	go func() {
		var tick <-chan time.Time
		if s.cfg.PingInterval > 0 {
			t := time.NewTicker(s.cfg.PingInterval)
			defer t.Stop()
			tick = t.C
		}
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				// unblocks ReadMessage
				wmu.Lock()
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
				wmu.Unlock()
				_ = conn.Close()
				return
			case <-tick:
				wmu.Lock()
				err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
				wmu.Unlock()
				if err != nil {
					_ = conn.Close()
					return
				}
			}
		}
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		var f frame
		if err := sonic.Unmarshal(msg, &f); err != nil {
			s.log.Debug("skip stream frame", zap.Error(err))
			continue
		}
		if f.Type != "ticker" || f.Code == "" || f.Price <= 0 {
			continue
		}
		s.store.Set(market.Tick{Instrument: f.Code, Price: f.Price, Time: time.UnixMilli(f.Timestamp).UTC()})
	}
}

// Package ratelimit throttles outbound exchange calls with a pair of token buckets.
package ratelimit

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

type Config struct {
	PerSecond int `yaml:"per_second" json:"per_second"`
	PerMinute int `yaml:"per_minute" json:"per_minute"`
}

func DefaultConfig() Config {
	return Config{PerSecond: 8, PerMinute: 400}
}

// Observer is told how long each Wait blocked.
type Observer func(waited time.Duration)

// Limiter admits a call only when both the per-second and per-minute buckets
// have a token. The zero value of a bucket limit disables it.
type Limiter struct {
	second *rate.Limiter
	minute *rate.Limiter
	obs    Observer
}

func New(cfg Config) *Limiter {
	l := &Limiter{}
	if cfg.PerSecond > 0 {
		l.second = rate.NewLimiter(rate.Limit(cfg.PerSecond), cfg.PerSecond)
	}
	if cfg.PerMinute > 0 {
		l.minute = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.PerMinute)), cfg.PerMinute)
	}
	return l
}

// Observe installs fn to be called after every Wait.
func (l *Limiter) Observe(fn Observer) { l.obs = fn }

// Wait blocks until a call is allowed or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil {
		return nil
	}
	start := time.Now()
	if l.minute != nil {
		if err := l.minute.Wait(ctx); err != nil {
			return err
		}
	}
	if l.second != nil {
		if err := l.second.Wait(ctx); err != nil {
			return err
		}
	}
	if l.obs != nil {
		l.obs(time.Since(start))
	}
	return nil
}

// Allow reports whether a call could be made right now without waiting,
// consuming the tokens if so.
func (l *Limiter) Allow() bool {
	if l == nil {
		return true
	}
	now := time.Now()
	if l.minute != nil && l.minute.TokensAt(now) < 1 {
		return false
	}
	if l.second != nil && l.second.TokensAt(now) < 1 {
		return false
	}
	if l.minute != nil {
		l.minute.AllowN(now, 1)
	}
	if l.second != nil {
		l.second.AllowN(now, 1)
	}
	return true
}

// Package notify delivers operator notifications: entries, exits, sell failures,
// risk blocks and ledger re-initialisation.
package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

type Level string

const (
	Info  Level = "info"
	Warn  Level = "warn"
	Alert Level = "alert"
)

type Message struct {
	Level Level
	Title string
	Text  string
}

func (m Message) String() string {
	if m.Text == "" {
		return m.Title
	}
	return m.Title + "\n" + m.Text
}

// Notifier sends messages to an operator channel.
type Notifier interface {
	Notify(ctx context.Context, m Message) error
}

// Infof builds an Info message with a formatted body.
func Infof(title, format string, args ...any) Message {
	return Message{Level: Info, Title: title, Text: fmt.Sprintf(format, args...)}
}

func Warnf(title, format string, args ...any) Message {
	return Message{Level: Warn, Title: title, Text: fmt.Sprintf(format, args...)}
}

func Alertf(title, format string, args ...any) Message {
	return Message{Level: Alert, Title: title, Text: fmt.Sprintf(format, args...)}
}

type Nop struct{}

func (Nop) Notify(context.Context, Message) error { return nil }

// Log writes notifications to a zap logger.
type Log struct {
	log *zap.Logger
}

func NewLog(log *zap.Logger) *Log {
	if log == nil {
		log = zap.NewNop()
	}
	return &Log{log: log.Named("notify")}
}

func (l *Log) Notify(_ context.Context, m Message) error {
	fields := []zap.Field{zap.String("title", m.Title), zap.String("text", m.Text)}
	switch m.Level {
	case Alert:
		l.log.Error("notification", fields...)
	case Warn:
		l.log.Warn("notification", fields...)
	default:
		l.log.Info("notification", fields...)
	}
	return nil
}

// Multi fans a message out to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, msg Message) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Async queues messages for a background sender so callers never block.
// When the queue is full new messages are dropped and counted.
type Async struct {
	next    Notifier
	log     *zap.Logger
	queue   chan Message
	dropped atomic.Int64

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

func NewAsync(next Notifier, size int, log *zap.Logger) *Async {
	if log == nil {
		log = zap.NewNop()
	}
	if size <= 0 {
		size = 64
	}
	a := &Async{next: next, log: log, queue: make(chan Message, size), done: make(chan struct{})}
	go a.loop()
	return a
}

func (a *Async) loop() {
	defer close(a.done)
	for m := range a.queue {
		if err := a.next.Notify(context.Background(), m); err != nil {
			a.log.Warn("notification failed", zap.String("title", m.Title), zap.Error(err))
		}
	}
}

func (a *Async) Notify(_ context.Context, m Message) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return errors.New("notify: closed")
	}
	select {
	case a.queue <- m:
		return nil
	default:
		a.dropped.Add(1)
		return nil
	}
}

// Dropped returns how many messages were discarded because the queue was full.
func (a *Async) Dropped() int64 { return a.dropped.Load() }

// Close stops accepting messages and waits until the queue drains or ctx is done.
func (a *Async) Close(ctx context.Context) error {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.queue)
	}
	a.mu.Unlock()
	select {
	case <-a.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

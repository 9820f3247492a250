// Package listener consumes payment notifications and hands the ones tagged
// for this extension to a domain.PaymentHook.
package listener

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"

	"github.com/lnbits/scrum/domain"
)

const defaultBackoff = time.Second

// Message is one queued payment notification.
type Message struct {
	ID         string
	PopReceipt string
	Text       string
}

// Source yields queued messages. Receive returns nil, nil when nothing is queued.
type Source interface {
	Receive(ctx context.Context) (*Message, error)
	Delete(ctx context.Context, m Message) error
}

// Option customizes a Subscription.
type Option func(*Subscription)

// WithBackoff sets how long the loop waits after an empty or failed receive.
func WithBackoff(d time.Duration) Option {
	return func(s *Subscription) {
		if d > 0 {
			s.backoff = d
		}
	}
}

// Subscription is a running listener loop.
type Subscription struct {
	src     Source
	hook    domain.PaymentHook
	logger  *log.Logger
	backoff time.Duration

	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Start launches the listener loop. It runs until ctx is cancelled or Stop is called.
func Start(ctx context.Context, src Source, hook domain.PaymentHook, logger *log.Logger, opts ...Option) *Subscription {
	if logger == nil {
		logger = log.StandardLogger()
	}
	ctx, cancel := context.WithCancel(ctx)
	s := &Subscription{
		src:     src,
		hook:    hook,
		logger:  logger,
		backoff: defaultBackoff,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	go s.run(ctx)
	return s
}

// Stop cancels the loop and waits for it to exit.
func (s *Subscription) Stop() {
	s.once.Do(s.cancel)
	<-s.done
}

// Done is closed once the loop has exited.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

func (s *Subscription) run(ctx context.Context) {
	defer close(s.done)
	s.logger.Info("invoice listener started")
	for {
		if ctx.Err() != nil {
			s.logger.Info("invoice listener stopped")
			return
		}
		msg, err := s.src.Receive(ctx)
		if err != nil {
			if ctx.Err() == nil {
				s.logger.WithError(err).Error("receive payment notification")
			}
			s.wait(ctx)
			continue
		}
		if msg == nil {
			s.wait(ctx)
			continue
		}
		s.handle(ctx, *msg)
		if err := s.src.Delete(context.WithoutCancel(ctx), *msg); err != nil {
			s.logger.WithError(err).WithField("message_id", msg.ID).Error("delete payment notification")
		}
	}
}

func (s *Subscription) wait(ctx context.Context) {
	t := time.NewTimer(s.backoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func (s *Subscription) handle(ctx context.Context, msg Message) {
	logger := s.logger.WithField("message_id", msg.ID)
	defer func() {
		if r := recover(); r != nil {
			logger.WithField("panic", r).Error("payment hook panicked")
		}
	}()

	p, err := decodePayment(msg.Text)
	if err != nil {
		logger.WithError(err).Warn("unable to parse payment notification")
		return
	}
	if p.Tag() != domain.PaymentTag {
		return
	}
	if err := s.hook.PaymentReceived(ctx, p); err != nil {
		logger.WithError(err).WithField("payment_hash", p.PaymentHash).Error("payment hook failed")
	}
}

// decodePayment accepts raw JSON or base64-encoded JSON message bodies.
func decodePayment(text string) (domain.Payment, error) {
	body := strings.TrimSpace(text)
	if !strings.HasPrefix(body, "{") {
		raw, err := base64.StdEncoding.DecodeString(body)
		if err != nil {
			return domain.Payment{}, fmt.Errorf("message is neither json nor base64: %w", err)
		}
		body = string(raw)
	}
	var p domain.Payment
	if err := sonic.ConfigStd.UnmarshalFromString(body, &p); err != nil {
		return domain.Payment{}, err
	}
	return p, nil
}

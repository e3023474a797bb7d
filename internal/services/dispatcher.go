package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/senyabanana/rfq-service/internal/clock"
	"github.com/senyabanana/rfq-service/internal/logging"
	"github.com/senyabanana/rfq-service/internal/models"
	"github.com/senyabanana/rfq-service/internal/repository"

	"github.com/cenkalti/backoff/v5"
)

const (
	defaultDispatchInterval = 2 * time.Second
	defaultDispatchBatch    = 50
	defaultDispatchLease    = 30 * time.Second
	defaultDispatchMaxTries = 3
	maxRedeliveryDelay      = time.Hour
)

// Sink - канал живой доставки уведомления пользователю.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, n models.Notification) error
}

// Dispatcher переносит сообщения из исходящего ящика во входящий ящик пользователя и рассылает их по каналам.
// Состояние запросов и предложений он не меняет.
type Dispatcher struct {
	outbox     repository.OutboxRepository
	inbox      repository.NotificationRepository
	sinks      []Sink
	clock      clock.Clock
	interval   time.Duration
	batch      int
	lease      time.Duration
	maxTries   int
	newBackOff func() backoff.BackOff
}

// DispatcherOption настраивает Dispatcher.
type DispatcherOption func(*Dispatcher)

func WithDispatchInterval(d time.Duration) DispatcherOption {
	return func(s *Dispatcher) {
		if d > 0 {
			s.interval = d
		}
	}
}

func WithDispatchBatch(n int) DispatcherOption {
	return func(s *Dispatcher) {
		if n > 0 {
			s.batch = n
		}
	}
}

func WithDispatchLease(d time.Duration) DispatcherOption {
	return func(s *Dispatcher) {
		if d > 0 {
			s.lease = d
		}
	}
}

func WithDispatchMaxTries(n int) DispatcherOption {
	return func(s *Dispatcher) {
		if n > 0 {
			s.maxTries = n
		}
	}
}

// WithBackOff подменяет политику пауз между попытками доставки.
func WithBackOff(newBackOff func() backoff.BackOff) DispatcherOption {
	return func(s *Dispatcher) {
		if newBackOff != nil {
			s.newBackOff = newBackOff
		}
	}
}

// WithSinks добавляет каналы живой доставки.
func WithSinks(sinks ...Sink) DispatcherOption {
	return func(s *Dispatcher) {
		for _, sink := range sinks {
			if sink != nil {
				s.sinks = append(s.sinks, sink)
			}
		}
	}
}

// NewDispatcher создает новый экземпляр Dispatcher.
func NewDispatcher(outbox repository.OutboxRepository, inbox repository.NotificationRepository, clk clock.Clock,
	opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		outbox:   outbox,
		inbox:    inbox,
		clock:    clk,
		interval: defaultDispatchInterval,
		batch:    defaultDispatchBatch,
		lease:    defaultDispatchLease,
		maxTries: defaultDispatchMaxTries,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 100 * time.Millisecond
			b.MaxInterval = 2 * time.Second
			return b
		},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run доставляет уведомления с заданным интервалом до отмены контекста.
func (d *Dispatcher) Run(ctx context.Context) error {
	ctx = logging.WithAttrs(ctx, slog.String("component", "notification_dispatcher"))
	logging.Info(ctx, "notification dispatcher started", slog.Duration("interval", d.interval))

	runEvery(ctx, d.interval, func(ctx context.Context) {
		if _, err := d.DispatchOnce(ctx); err != nil && ctx.Err() == nil {
			logging.Error(ctx, "dispatch failed", logging.Err(err))
		}
	})

	logging.Info(ctx, "notification dispatcher stopped")
	return nil
}

// DispatchOnce обрабатывает одну пачку сообщений и возвращает число доставленных.
func (d *Dispatcher) DispatchOnce(ctx context.Context) (int, error) {
	now := d.clock.Now()
	due, err := d.outbox.ClaimDue(ctx, now, d.lease, d.batch)
	if err != nil {
		return 0, err
	}

	delivered := 0
	for _, msg := range due {
		tries, err := d.deliver(ctx, msg)
		if err != nil {
			attempts := msg.Attempts + tries
			next := d.clock.Now().Add(redeliveryDelay(d.lease, attempts))
			logging.Warn(ctx, "notification delivery failed",
				slog.String("notification_id", msg.ID),
				slog.Int("attempts", attempts),
				logging.Err(err))
			if markErr := d.outbox.MarkFailed(ctx, msg.ID, tries, next, err.Error()); markErr != nil {
				return delivered, markErr
			}
			continue
		}
		if err := d.outbox.MarkDelivered(ctx, msg.ID, d.clock.Now()); err != nil {
			return delivered, err
		}
		delivered++
	}
	return delivered, nil
}

// deliver кладет уведомление во входящий ящик и рассылает его, повторяя с паузами не более maxTries раз.
func (d *Dispatcher) deliver(ctx context.Context, msg models.OutboxMessage) (int, error) {
	n := models.Notification{
		ID:          msg.ID,
		UserID:      msg.UserID,
		Type:        msg.Type,
		ReferenceID: msg.ReferenceID,
		CreatedAt:   msg.CreatedAt,
		Version:     1,
	}

	tries := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		tries++
		if _, err := d.inbox.Insert(ctx, n); err != nil {
			return struct{}{}, err
		}
		for _, sink := range d.sinks {
			if err := sink.Deliver(ctx, n); err != nil {
				logging.Debug(ctx, "sink delivery failed", slog.String("sink", sink.Name()), logging.Err(err))
				return struct{}{}, err
			}
		}
		return struct{}{}, nil
	}, backoff.WithBackOff(d.newBackOff()), backoff.WithMaxTries(uint(d.maxTries)))
	return tries, err
}

// redeliveryDelay растет вдвое с каждой неудачной попыткой и ограничен часом.
func redeliveryDelay(base time.Duration, attempts int) time.Duration {
	delay := base
	for i := 1; i < attempts && delay < maxRedeliveryDelay; i++ {
		delay *= 2
	}
	if delay > maxRedeliveryDelay {
		delay = maxRedeliveryDelay
	}
	return delay
}

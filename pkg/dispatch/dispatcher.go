package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/openmarketlabs/relay-backend/pkg/backoff"
	"github.com/openmarketlabs/relay-backend/pkg/db/models"
	"github.com/openmarketlabs/relay-backend/pkg/enums"
	relayerrors "github.com/openmarketlabs/relay-backend/pkg/errors"
	"github.com/openmarketlabs/relay-backend/pkg/logger"
	"github.com/openmarketlabs/relay-backend/pkg/metrics"
	"github.com/openmarketlabs/relay-backend/pkg/outbox"
)

// Delivery is one decoded message handed to a handler. Payload keeps the raw
// broker bytes (the full envelope) so dead letters store the same shape the
// publisher sends and replays can re-inject them as-is.
type Delivery struct {
	EventID   uuid.UUID
	MessageID string
	Topic     string
	EventType enums.EventType
	Envelope  outbox.PayloadEnvelope
	Payload   json.RawMessage
}

// HandlerFunc applies one event inside tx. Returning an error with
// CodePermanentHandler skips the remaining retry budget; any retryable error
// is attempted again after backoff.
type HandlerFunc func(ctx context.Context, tx *gorm.DB, delivery Delivery) error

type subscriber interface {
	Receive(ctx context.Context, f func(ctx context.Context, msg *pubsub.Message)) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type idempotencyGuard interface {
	IsProcessed(ctx context.Context, group string, eventID uuid.UUID) (bool, error)
	MarkProcessed(ctx context.Context, group string, eventID uuid.UUID) error
}

type deadLetterStore interface {
	InsertTx(tx *gorm.DB, entry models.DeadLetter) error
}

type offsetStore interface {
	CommitTx(tx *gorm.DB, topic, group string, eventID uuid.UUID) error
}

// DispatcherParams wires one (topic, consumer group) loop.
type DispatcherParams struct {
	Topic        string
	Group        string
	Subscription subscriber
	DB           txRunner
	Handler      HandlerFunc
	Idempotency  idempotencyGuard
	DeadLetters  deadLetterStore
	Offsets      offsetStore
	Backoff      backoff.Policy
	MaxAttempts  int
	Metrics      *metrics.RelayMetrics
	Logger       *logger.Logger
}

// Dispatcher consumes one subscription for one consumer group. Messages are
// handled one at a time; a message leaves the loop only acked-after-commit or
// dead-lettered. The processed marker is written only after the handler's
// transaction commits, so a crash mid-handling leaves the redelivery eligible
// for reprocessing. A dead-letter store failure halts the whole loop instead
// of dropping the message.
type Dispatcher struct {
	topic       string
	group       string
	sub         subscriber
	db          txRunner
	handler     HandlerFunc
	idempotency idempotencyGuard
	dlq         deadLetterStore
	offsets     offsetStore
	policy      backoff.Policy
	maxAttempts int
	metrics     *metrics.RelayMetrics
	logg        *logger.Logger

	sleep func(ctx context.Context, d time.Duration) error

	mu    sync.Mutex
	fatal error
}

func NewDispatcher(params DispatcherParams) (*Dispatcher, error) {
	if params.Topic == "" {
		return nil, fmt.Errorf("topic required")
	}
	if params.Group == "" {
		return nil, fmt.Errorf("consumer group required")
	}
	if params.Subscription == nil {
		return nil, fmt.Errorf("subscription required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("database required")
	}
	if params.Handler == nil {
		return nil, fmt.Errorf("handler required")
	}
	if params.Idempotency == nil {
		return nil, fmt.Errorf("idempotency manager required")
	}
	if params.DeadLetters == nil {
		return nil, fmt.Errorf("dead letter store required")
	}
	if params.Offsets == nil {
		return nil, fmt.Errorf("offset store required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.MaxAttempts <= 0 {
		return nil, fmt.Errorf("max attempts must be positive")
	}
	return &Dispatcher{
		topic:       params.Topic,
		group:       params.Group,
		sub:         params.Subscription,
		db:          params.DB,
		handler:     params.Handler,
		idempotency: params.Idempotency,
		dlq:         params.DeadLetters,
		offsets:     params.Offsets,
		policy:      params.Backoff,
		maxAttempts: params.MaxAttempts,
		metrics:     params.Metrics,
		logg:        params.Logger,
		sleep:       sleepCtx,
	}, nil
}

// Run blocks on the subscription until ctx is canceled or the loop halts on
// a storage failure.
func (d *Dispatcher) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	err := d.sub.Receive(runCtx, func(ctx context.Context, msg *pubsub.Message) {
		result := d.process(ctx, msg)
		if result.nack {
			msg.Nack()
			if result.halt {
				cancel()
			}
			return
		}
		msg.Ack()
	})
	if fatal := d.fatalErr(); fatal != nil {
		return fatal
	}
	return err
}

type processResult struct {
	ack  bool
	nack bool
	halt bool
}

func (d *Dispatcher) process(ctx context.Context, msg *pubsub.Message) processResult {
	logCtx := d.logg.WithConsumerGroup(d.logg.WithTopic(ctx, d.topic), d.group)
	logCtx = d.logg.WithField(logCtx, "message_id", msg.ID)

	delivery, err := d.decode(msg)
	if err != nil {
		d.logg.Error(logCtx, "undecodable message", err)
		return d.routeDeadLetter(ctx, logCtx, delivery, enums.DeadLetterReasonNonRetryable, 1, err)
	}
	logCtx = d.logg.WithEventID(logCtx, delivery.EventID.String())

	already, err := d.idempotency.IsProcessed(ctx, d.group, delivery.EventID)
	if err != nil {
		d.logg.Error(logCtx, "idempotency check failed", err)
		return processResult{nack: true}
	}
	if already {
		d.logg.Info(logCtx, "event already processed")
		return processResult{ack: true}
	}

	var history error
	for attempt := 1; attempt <= d.maxAttempts; attempt++ {
		start := time.Now()
		err := d.db.WithTx(ctx, func(tx *gorm.DB) error {
			if err := d.handler(ctx, tx, delivery); err != nil {
				return err
			}
			return d.offsets.CommitTx(tx, d.topic, d.group, delivery.EventID)
		})
		d.metrics.ObserveHandlerDuration(d.topic, d.group, time.Since(start))
		if err == nil {
			d.metrics.IncOffsetCommit(d.topic, d.group)
			d.markProcessed(ctx, logCtx, delivery.EventID)
			d.logg.Info(logCtx, "event handled")
			return processResult{ack: true}
		}

		history = multierr.Append(history, fmt.Errorf("attempt %d: %w", attempt, err))
		if !relayerrors.Retryable(err) {
			d.logg.Error(logCtx, "permanent handler failure", err)
			return d.routeDeadLetter(ctx, logCtx, delivery, enums.DeadLetterReasonNonRetryable, attempt, history)
		}
		d.logg.Warn(d.logg.WithField(logCtx, "attempt", attempt), "handler failed, will retry")
		if attempt < d.maxAttempts {
			if err := d.sleep(ctx, d.policy.DelayWithJitter(attempt-1)); err != nil {
				return processResult{nack: true}
			}
		}
	}

	return d.routeDeadLetter(ctx, logCtx, delivery, enums.DeadLetterReasonMaxAttempts, d.maxAttempts, history)
}

// routeDeadLetter records the failure and advances the offset in one
// transaction, then acks so the subscription is not wedged on a poison
// message. Failure to record is fatal for the loop.
func (d *Dispatcher) routeDeadLetter(ctx context.Context, logCtx context.Context, delivery Delivery, reason enums.DeadLetterReason, attempts int, cause error) processResult {
	entry := models.DeadLetter{
		ID:           uuid.New(),
		EventID:      delivery.EventID,
		Topic:        d.topic,
		EventType:    delivery.EventType,
		Payload:      delivery.Payload,
		ErrorReason:  reason,
		Source:       enums.DeadLetterSourceConsumer,
		AttemptCount: attempts,
		FailedAt:     time.Now().UTC(),
	}
	if len(entry.Payload) == 0 {
		entry.Payload = []byte("{}")
	} else if !json.Valid(entry.Payload) {
		// The payload column is jsonb; quote garbage bytes so the row
		// still lands.
		if quoted, err := json.Marshal(string(entry.Payload)); err == nil {
			entry.Payload = quoted
		} else {
			entry.Payload = []byte("{}")
		}
	}
	if cause != nil {
		msg := cause.Error()
		entry.ErrorMessage = &msg
	}

	err := d.db.WithTx(ctx, func(tx *gorm.DB) error {
		if err := d.dlq.InsertTx(tx, entry); err != nil {
			return err
		}
		return d.offsets.CommitTx(tx, d.topic, d.group, delivery.EventID)
	})
	if err != nil {
		fatal := relayerrors.Wrap(relayerrors.CodeStorageUnavailable, err, "dead letter store unavailable")
		d.setFatal(fatal)
		d.logg.Error(logCtx, "dead letter write failed, halting", fatal)
		return processResult{nack: true, halt: true}
	}

	d.metrics.IncDeadLetter(d.topic, string(enums.DeadLetterSourceConsumer))
	d.markProcessed(ctx, logCtx, delivery.EventID)
	d.logg.Warn(logCtx, "event dead-lettered")
	return processResult{ack: true}
}

// markProcessed is best-effort: the marker is an optimization on top of the
// idempotent handlers and offset cursor, so a write failure is logged, not
// retried. Poison messages carry no event id and are skipped.
func (d *Dispatcher) markProcessed(ctx context.Context, logCtx context.Context, eventID uuid.UUID) {
	if eventID == uuid.Nil {
		return
	}
	if err := d.idempotency.MarkProcessed(ctx, d.group, eventID); err != nil {
		d.logg.Warn(d.logg.WithField(logCtx, "error", err.Error()), "processed marker write failed")
	}
}

func (d *Dispatcher) decode(msg *pubsub.Message) (Delivery, error) {
	delivery := Delivery{
		MessageID: msg.ID,
		Topic:     d.topic,
		EventType: enums.EventType(msg.Attributes["event_type"]),
		Payload:   msg.Data,
	}
	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(msg.Data, &envelope); err != nil {
		return delivery, relayerrors.Wrap(relayerrors.CodePermanentHandler, err, "decoding envelope")
	}
	eventID, err := uuid.Parse(envelope.EventID)
	if err != nil {
		return delivery, relayerrors.Wrap(relayerrors.CodePermanentHandler, err, "parsing event id")
	}
	delivery.EventID = eventID
	delivery.Envelope = envelope
	return delivery, nil
}

func (d *Dispatcher) setFatal(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fatal == nil {
		d.fatal = err
	}
}

func (d *Dispatcher) fatalErr() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.fatal
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

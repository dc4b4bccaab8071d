package relay

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/stitchwell-backend/pkg/db/models"
	"github.com/angelmondragon/stitchwell-backend/pkg/enums"
	"github.com/angelmondragon/stitchwell-backend/pkg/logger"
	"github.com/angelmondragon/stitchwell-backend/pkg/pubsub"
)

// Sink delivers one message to the broker and returns once it is acked.
type Sink interface {
	Send(ctx context.Context, topic string, data []byte, attrs map[string]string) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type eventStore interface {
	ClaimBatch(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublished(tx *gorm.DB, id uuid.UUID) error
	RecordFailure(tx *gorm.DB, id uuid.UUID, err error) error
	Retire(tx *gorm.DB, id uuid.UUID, err error, ceiling int) error
}

type deadLetterStore interface {
	Insert(tx *gorm.DB, entry models.OutboxDLQ) error
}

type counters interface {
	IncPublished(eventType string)
	IncFailed(eventType string)
}

type Options struct {
	BatchSize    int
	MaxAttempts  int
	PollInterval time.Duration
	MaxBackoff   time.Duration
	SendTimeout  time.Duration
}

func (o Options) withDefaults() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = 50
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 10
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 500 * time.Millisecond
	}
	if o.MaxBackoff < o.PollInterval {
		o.MaxBackoff = 10 * time.Second
	}
	if o.SendTimeout <= 0 {
		o.SendTimeout = 15 * time.Second
	}
	return o
}

type Params struct {
	DB          txRunner
	Events      eventStore
	DeadLetters deadLetterStore
	Routes      Routes
	Sink        Sink
	Metrics     counters
	Logger      *logger.Logger
	Options     Options
}

// Relay moves committed outbox rows to Pub/Sub. A row is marked published
// only after the broker acks it, so delivery is at least once.
type Relay struct {
	db      txRunner
	events  eventStore
	dlq     deadLetterStore
	routes  Routes
	sink    Sink
	metrics counters
	logg    *logger.Logger
	opts    Options
}

func New(p Params) (*Relay, error) {
	switch {
	case p.DB == nil:
		return nil, errors.New("transaction runner required")
	case p.Events == nil:
		return nil, errors.New("outbox repository required")
	case p.DeadLetters == nil:
		return nil, errors.New("dead letter repository required")
	case len(p.Routes) == 0:
		return nil, errors.New("routes required")
	case p.Sink == nil:
		return nil, errors.New("sink required")
	}
	return &Relay{
		db:      p.DB,
		events:  p.Events,
		dlq:     p.DeadLetters,
		routes:  p.Routes,
		sink:    p.Sink,
		metrics: p.Metrics,
		logg:    p.Logger,
		opts:    p.Options.withDefaults(),
	}, nil
}

// Run drains batches until ctx is done. Empty polls wait PollInterval;
// failing polls back off exponentially up to MaxBackoff.
func (r *Relay) Run(ctx context.Context) error {
	wait := r.opts.PollInterval
	for {
		n, err := r.Drain(ctx)
		switch {
		case err != nil:
			r.logg.Error(ctx, "outbox drain failed", err)
			wait = min(wait*2, r.opts.MaxBackoff)
		case n > 0:
			wait = r.opts.PollInterval
			if ctx.Err() == nil {
				continue
			}
		default:
			wait = r.opts.PollInterval
		}

		timer := time.NewTimer(jitter(wait))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Drain claims one batch and settles every row in it. It returns the number
// of rows claimed.
func (r *Relay) Drain(ctx context.Context) (int, error) {
	var claimed int
	err := r.db.WithTx(ctx, func(tx *gorm.DB) error {
		batch, err := r.events.ClaimBatch(tx, r.opts.BatchSize, r.opts.MaxAttempts)
		if err != nil {
			return fmt.Errorf("claim outbox batch: %w", err)
		}
		claimed = len(batch)
		for _, event := range batch {
			if err := r.settle(ctx, tx, event); err != nil {
				return err
			}
		}
		return nil
	})
	return claimed, err
}

// settle publishes one row and records the outcome. Only bookkeeping errors
// are returned; publish failures are recorded on the row.
func (r *Relay) settle(ctx context.Context, tx *gorm.DB, event models.OutboxEvent) error {
	ctx = r.logg.WithFields(ctx, map[string]any{
		"outbox_id":     event.ID.String(),
		"event_type":    string(event.EventType),
		"aggregate_id":  event.AggregateID.String(),
		"attempt_count": event.AttemptCount,
	})

	msg, err := r.routes.Build(event)
	if err == nil {
		ctx = r.logg.WithFields(ctx, map[string]any{"topic": msg.Topic, "event_id": msg.EventID})
		err = r.send(ctx, msg)
	}

	switch {
	case err == nil:
		if err := r.events.MarkPublished(tx, event.ID); err != nil {
			return fmt.Errorf("mark %s published: %w", event.ID, err)
		}
		r.count(event.EventType, true)
		r.logg.Info(ctx, "outbox event published")
		return nil
	case IsPermanent(err):
		return r.deadLetter(ctx, tx, event, enums.OutboxDLQReasonNonRetryable, err)
	case event.AttemptCount+1 >= r.opts.MaxAttempts:
		return r.deadLetter(ctx, tx, event, enums.OutboxDLQReasonMaxAttempts, fmt.Errorf("giving up after %d attempts: %w", event.AttemptCount+1, err))
	default:
		r.count(event.EventType, false)
		r.logg.Warn(r.logg.WithField(ctx, "error", err.Error()), "outbox publish failed, will retry")
		if err := r.events.RecordFailure(tx, event.ID, err); err != nil {
			return fmt.Errorf("record %s failure: %w", event.ID, err)
		}
		return nil
	}
}

func (r *Relay) send(ctx context.Context, msg *Message) error {
	sendCtx, cancel := context.WithTimeout(ctx, r.opts.SendTimeout)
	defer cancel()
	err := r.sink.Send(sendCtx, msg.Topic, msg.Data, msg.Attributes)
	if errors.Is(err, pubsub.ErrUnknownTopic) {
		return Permanent(err)
	}
	return err
}

func (r *Relay) deadLetter(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error) error {
	r.count(event.EventType, false)
	r.logg.Error(r.logg.WithField(ctx, "dlq_reason", string(reason)), "outbox event dead-lettered", cause)

	msg := cause.Error()
	entry := models.OutboxDLQ{
		EventID:       event.ID,
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       event.Payload,
		ErrorReason:   reason,
		ErrorMessage:  &msg,
		AttemptCount:  event.AttemptCount,
		FailedAt:      time.Now().UTC(),
	}
	if err := r.dlq.Insert(tx, entry); err != nil {
		return fmt.Errorf("dead-letter %s: %w", event.ID, err)
	}
	if err := r.events.Retire(tx, event.ID, cause, r.opts.MaxAttempts); err != nil {
		return fmt.Errorf("retire %s: %w", event.ID, err)
	}
	return nil
}

func (r *Relay) count(eventType enums.OutboxEventType, ok bool) {
	if r.metrics == nil {
		return
	}
	if ok {
		r.metrics.IncPublished(string(eventType))
		return
	}
	r.metrics.IncFailed(string(eventType))
}

// jitter adds up to a quarter of d so replicas do not poll in lockstep.
func jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d + rand.N(d/4+1)
}

package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/accountkeeper/internal/metrics"
	"github.com/sakif/accountkeeper/internal/model"
	"github.com/sakif/accountkeeper/internal/repository"
)

// OutboxPath is the subtree holding queued messages.
const OutboxPath = "/outbox"

// Properties of an outbox node.
const (
	propTo       = "to"
	propSubject  = "subject"
	propBody     = "body"
	propAttempts = "attempts"
)

const (
	dispatchBatch = 50
	// maxAttempts failed deliveries drop the message.
	maxAttempts = 5
)

// Outbox is a Sink that persists each message as a node for the Dispatcher.
type Outbox struct {
	store repository.NodeStore
	owner string
}

// NewOutbox queues into store; owner is stamped on the created nodes.
func NewOutbox(store repository.NodeStore, owner string) *Outbox {
	return &Outbox{store: store, owner: owner}
}

func (o *Outbox) Send(ctx context.Context, to, subject, body string) error {
	id := xid.New().String()
	err := o.store.CreateNode(ctx, &model.Node{
		ID:        id,
		Path:      OutboxPath + "/" + id,
		Owner:     o.owner,
		CreatedBy: o.owner,
		Properties: model.Properties{
			propTo:       model.String(to),
			propSubject:  model.String(subject),
			propBody:     model.String(body),
			propAttempts: model.Int(0),
		},
	})
	if err != nil {
		return fmt.Errorf("notify: queueing message: %w", err)
	}
	return nil
}

// Dispatcher moves queued messages from the outbox to a delivering Sink.
type Dispatcher struct {
	store    repository.NodeStore
	mailer   Sink
	interval time.Duration
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

func NewDispatcher(store repository.NodeStore, mailer Sink, interval time.Duration, m *metrics.Metrics, logger *slog.Logger) *Dispatcher {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Dispatcher{
		store:    store,
		mailer:   mailer,
		interval: interval,
		metrics:  m,
		logger:   logger,
	}
}

// Run drains the outbox every interval until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		if _, err := d.DrainOnce(ctx); err != nil && ctx.Err() == nil {
			d.logger.Error("draining outbox", slog.String("error", err.Error()))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// DrainOnce attempts delivery of one batch and returns how many messages
// were sent. Delivered messages are removed; failed ones stay queued with
// their attempt count bumped until maxAttempts is reached.
func (d *Dispatcher) DrainOnce(ctx context.Context) (int, error) {
	queued, err := d.store.ListChildren(ctx, OutboxPath, dispatchBatch)
	if err != nil {
		return 0, fmt.Errorf("notify: listing outbox: %w", err)
	}

	sent := 0
	for _, msg := range queued {
		if ctx.Err() != nil {
			return sent, ctx.Err()
		}

		to, _ := msg.StringProp(propTo)
		subject, _ := msg.StringProp(propSubject)
		body, _ := msg.StringProp(propBody)

		sendErr := d.mailer.Send(ctx, to, subject, body)
		if sendErr == nil {
			sent++
			d.metrics.Observe(metrics.FlowNotify, metrics.OutcomeSuccess)
			if _, err := d.store.DeleteSubtree(ctx, msg.Path); err != nil {
				return sent, fmt.Errorf("notify: removing delivered %s: %w", msg.ID, err)
			}
			continue
		}

		d.metrics.Observe(metrics.FlowNotify, metrics.OutcomeError)
		attempts, _ := msg.IntProp(propAttempts)
		attempts++
		if attempts >= maxAttempts {
			d.logger.Error("dropping undeliverable message",
				slog.String("id", msg.ID),
				slog.Int64("attempts", attempts),
				slog.String("error", sendErr.Error()),
			)
			if _, err := d.store.DeleteSubtree(ctx, msg.Path); err != nil {
				return sent, fmt.Errorf("notify: removing %s: %w", msg.ID, err)
			}
			continue
		}

		d.logger.Warn("message delivery failed, will retry",
			slog.String("id", msg.ID),
			slog.Int64("attempts", attempts),
			slog.String("error", sendErr.Error()),
		)
		if err := d.store.SetProperty(ctx, msg.Path, propAttempts, model.Int(attempts)); err != nil {
			return sent, fmt.Errorf("notify: recording attempt on %s: %w", msg.ID, err)
		}
	}
	return sent, nil
}

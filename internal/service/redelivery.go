package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/brunojppb/mailbolt/internal/config"
	"github.com/brunojppb/mailbolt/internal/database"
	"github.com/brunojppb/mailbolt/internal/email"
	"github.com/brunojppb/mailbolt/internal/logger"
	"github.com/brunojppb/mailbolt/internal/metrics"
	"github.com/brunojppb/mailbolt/internal/repository"
)

const (
	redeliveryQueueKey = "mailbolt:confirmation_redelivery"
	// redeliveryProcessingKey holds jobs claimed by a worker until they are settled
	redeliveryProcessingKey = redeliveryQueueKey + ":processing"
)

// RedeliveryJob is one queued confirmation email, keyed by subscriber
type RedeliveryJob struct {
	SubscriberID string    `json:"subscriberId"`
	Attempts     int       `json:"attempts"`
	EnqueuedAt   time.Time `json:"enqueuedAt"`
}

// RedeliveryQueue retries confirmation emails that failed after the
// registration committed. Jobs are claimed into a processing list and only
// removed from it once requeued or finished, so delivery is at least once.
// Jobs are dropped after maxAttempts failures.
type RedeliveryQueue struct {
	rdb          *database.Redis
	repo         *repository.SubscriptionRepository
	sender       email.Sender
	metrics      *metrics.Metrics
	baseURL      string
	maxAttempts  int
	pollInterval time.Duration
	log          *logger.Logger
}

// NewRedeliveryQueue creates a new RedeliveryQueue
func NewRedeliveryQueue(
	rdb *database.Redis,
	repo *repository.SubscriptionRepository,
	sender email.Sender,
	m *metrics.Metrics,
	cfg *config.Config,
	log *logger.Logger,
) *RedeliveryQueue {
	maxAttempts := cfg.Email.Redelivery.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	pollInterval := cfg.Email.Redelivery.PollInterval
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	return &RedeliveryQueue{
		rdb:          rdb,
		repo:         repo,
		sender:       sender,
		metrics:      m,
		baseURL:      cfg.Application.BaseURL,
		maxAttempts:  maxAttempts,
		pollInterval: pollInterval,
		log:          log.WithComponent("confirmation_redelivery"),
	}
}

// Enqueue schedules a confirmation email for subscriberID
func (q *RedeliveryQueue) Enqueue(ctx context.Context, subscriberID string) error {
	return q.push(ctx, RedeliveryJob{SubscriberID: subscriberID, EnqueuedAt: time.Now().UTC()})
}

func (q *RedeliveryQueue) push(ctx context.Context, job RedeliveryJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to encode redelivery job: %w", err)
	}
	if err := q.rdb.PushBack(ctx, redeliveryQueueKey, payload); err != nil {
		return fmt.Errorf("failed to enqueue redelivery job: %w", err)
	}
	q.metrics.RedeliveryQueued.Inc()
	return nil
}

// Len returns the number of pending jobs
func (q *RedeliveryQueue) Len(ctx context.Context) (int64, error) {
	return q.rdb.Length(ctx, redeliveryQueueKey)
}

// ProcessOnce handles the job at the head of the queue. It reports false
// when the queue was empty. A claimed job is settled even if ctx is
// cancelled during delivery.
func (q *RedeliveryQueue) ProcessOnce(ctx context.Context) (bool, error) {
	raw, ok, err := q.rdb.MoveFront(ctx, redeliveryQueueKey, redeliveryProcessingKey)
	if err != nil {
		return false, fmt.Errorf("failed to claim redelivery job: %w", err)
	}
	if !ok {
		return false, nil
	}
	settleCtx := context.WithoutCancel(ctx)

	var job RedeliveryJob
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		q.log.Error().Err(err).Str("payload", raw).Msg("dropping malformed redelivery job")
		return true, q.ack(settleCtx, raw)
	}

	log := q.log.WithSubscriberID(job.SubscriberID)
	job.Attempts++

	err = q.deliver(ctx, job.SubscriberID)
	switch {
	case err == nil:
		q.metrics.EmailSent()
		log.Info().Int("attempt", job.Attempts).Msg("confirmation email redelivered")
	case errors.Is(err, errNothingToDeliver):
		log.Info().Msg("subscriber no longer needs a confirmation email")
	case job.Attempts >= q.maxAttempts:
		q.metrics.EmailFailed()
		log.Error().Err(err).Int("attempt", job.Attempts).Msg("giving up on confirmation email")
	default:
		q.metrics.EmailFailed()
		log.Warn().Err(err).Int("attempt", job.Attempts).Msg("confirmation email redelivery failed, requeueing")
		// On failure the claim stays in the processing list for Recover
		if err := q.push(settleCtx, job); err != nil {
			return true, err
		}
	}
	return true, q.ack(settleCtx, raw)
}

// ack removes a settled job from the processing list
func (q *RedeliveryQueue) ack(ctx context.Context, raw string) error {
	if err := q.rdb.Remove(ctx, redeliveryProcessingKey, raw); err != nil {
		return fmt.Errorf("failed to settle redelivery job: %w", err)
	}
	return nil
}

// Recover moves jobs left in the processing list by a stopped worker back
// to the queue and returns how many it moved
func (q *RedeliveryQueue) Recover(ctx context.Context) (int, error) {
	moved := 0
	for {
		_, ok, err := q.rdb.MoveFront(ctx, redeliveryProcessingKey, redeliveryQueueKey)
		if err != nil {
			return moved, fmt.Errorf("failed to recover redelivery jobs: %w", err)
		}
		if !ok {
			return moved, nil
		}
		moved++
	}
}

var errNothingToDeliver = errors.New("nothing to deliver")

func (q *RedeliveryQueue) deliver(ctx context.Context, subscriberID string) error {
	subscriber, err := q.repo.GetByID(ctx, subscriberID)
	if errors.Is(err, repository.ErrNotFound) {
		return errNothingToDeliver
	}
	if err != nil {
		return err
	}
	if subscriber.IsConfirmed() {
		return errNothingToDeliver
	}

	token, err := q.repo.FindTokenBySubscriberID(ctx, subscriberID)
	if errors.Is(err, repository.ErrNotFound) {
		return errNothingToDeliver
	}
	if err != nil {
		return err
	}

	return q.sender.Send(ctx, email.ConfirmationMessage(subscriber.Email.String(), q.baseURL, token))
}

// Run drains the queue every poll interval until ctx is cancelled
func (q *RedeliveryQueue) Run(ctx context.Context) error {
	q.log.Info().Dur("poll_interval", q.pollInterval).Int("max_attempts", q.maxAttempts).Msg("redelivery worker started")
	if moved, err := q.Recover(ctx); err != nil {
		q.log.Error().Err(err).Msg("could not recover claimed redelivery jobs")
	} else if moved > 0 {
		q.log.Warn().Int("jobs", moved).Msg("recovered claimed redelivery jobs")
	}
	ticker := time.NewTicker(q.pollInterval)
	defer ticker.Stop()

	for {
		q.drain(ctx)

		select {
		case <-ctx.Done():
			q.log.Info().Msg("redelivery worker stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// drain processes at most the jobs present when it started, so requeued
// failures wait for the next tick
func (q *RedeliveryQueue) drain(ctx context.Context) {
	pending, err := q.Len(ctx)
	if err != nil {
		if ctx.Err() == nil {
			q.log.Error().Err(err).Msg("failed to read redelivery queue length")
		}
		return
	}
	for i := int64(0); i < pending && ctx.Err() == nil; i++ {
		processed, err := q.ProcessOnce(ctx)
		if err != nil {
			q.log.Error().Err(err).Msg("redelivery job failed")
			return
		}
		if !processed {
			return
		}
	}
}

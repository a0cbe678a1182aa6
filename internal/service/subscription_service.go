package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/brunojppb/mailbolt/internal/auth"
	"github.com/brunojppb/mailbolt/internal/config"
	"github.com/brunojppb/mailbolt/internal/email"
	"github.com/brunojppb/mailbolt/internal/logger"
	"github.com/brunojppb/mailbolt/internal/metrics"
	"github.com/brunojppb/mailbolt/internal/model"
	"github.com/brunojppb/mailbolt/internal/repository"
)

// Subscription errors
var (
	ErrInvalidSubscriber = errors.New("invalid subscriber details")
	ErrTokenNotFound     = errors.New("confirmation token not found")
	// ErrConfirmationEmail means the subscriber was committed but the
	// confirmation email could not be sent
	ErrConfirmationEmail = errors.New("failed to send confirmation email")
)

// maxTokenAttempts bounds regeneration when a token collides with an existing one
const maxTokenAttempts = 3

// SubscriptionService registers subscribers and confirms them
type SubscriptionService struct {
	repo       *repository.SubscriptionRepository
	sender     email.Sender
	tokens     auth.TokenGenerator
	redelivery *RedeliveryQueue
	metrics    *metrics.Metrics
	baseURL    string
	log        *logger.Logger
}

// NewSubscriptionService creates a new SubscriptionService. redelivery may be nil.
func NewSubscriptionService(
	repo *repository.SubscriptionRepository,
	sender email.Sender,
	tokens auth.TokenGenerator,
	redelivery *RedeliveryQueue,
	m *metrics.Metrics,
	cfg *config.Config,
	log *logger.Logger,
) *SubscriptionService {
	if tokens == nil {
		tokens = auth.GenerateConfirmationToken
	}
	return &SubscriptionService{
		repo:       repo,
		sender:     sender,
		tokens:     tokens,
		redelivery: redelivery,
		metrics:    m,
		baseURL:    cfg.Application.BaseURL,
		log:        log.WithComponent("subscription_service"),
	}
}

// SubscribeRequest carries the untrusted form fields
type SubscribeRequest struct {
	Name  string
	Email string
}

// SubscribeResponse describes a committed registration
type SubscribeResponse struct {
	SubscriberID string                 `json:"subscriberId"`
	Status       model.SubscriberStatus `json:"status"`
}

// Subscribe validates the request, stores the subscriber and its token in
// one transaction, then sends the confirmation email. A send failure after
// commit returns ErrConfirmationEmail while the subscriber stays stored.
func (s *SubscriptionService) Subscribe(ctx context.Context, req SubscribeRequest) (*SubscribeResponse, error) {
	subscriber, err := model.NewSubscriber(req.Name, req.Email)
	if err != nil {
		s.metrics.RegistrationFailed(metrics.StageValidation)
		return nil, fmt.Errorf("%w: %s", ErrInvalidSubscriber, err.Error())
	}

	log := s.log.WithSubscriberID(subscriber.ID)
	log.Info().
		Str("subscriber_email", subscriber.Email.String()).
		Str("subscriber_name", subscriber.Name.String()).
		Msg("adding a new subscriber")

	token, err := s.persist(ctx, subscriber, log)
	if err != nil {
		return nil, err
	}
	s.metrics.SubscriptionsRegistered.Inc()
	log.Info().Msg("new subscriber has been saved")

	msg := email.ConfirmationMessage(subscriber.Email.String(), s.baseURL, token)
	if err := s.sender.Send(ctx, msg); err != nil {
		s.metrics.EmailFailed()
		s.metrics.RegistrationFailed(metrics.StageEmail)
		log.Error().Err(err).Msg("subscriber committed but confirmation email failed")
		// The send may have failed because the client went away
		s.queueRedelivery(context.WithoutCancel(ctx), subscriber.ID, log)
		return nil, fmt.Errorf("%w: %w", ErrConfirmationEmail, err)
	}
	s.metrics.EmailSent()
	log.Info().Msg("confirmation email sent")

	return &SubscribeResponse{
		SubscriberID: subscriber.ID,
		Status:       subscriber.Status,
	}, nil
}

// persist runs the registration transaction and returns the stored token.
// Any return before Commit rolls the transaction back.
func (s *SubscriptionService) persist(ctx context.Context, subscriber *model.Subscriber, log *logger.Logger) (string, error) {
	tx, err := s.repo.BeginTx(ctx)
	if err != nil {
		s.metrics.RegistrationFailed(metrics.StageBegin)
		log.Error().Err(err).Msg("could not open registration transaction")
		return "", err
	}
	defer tx.Rollback() //nolint:errcheck // no-op after Commit

	if err := s.repo.InsertSubscriber(ctx, tx, subscriber); err != nil {
		s.metrics.RegistrationFailed(metrics.StageSubscriber)
		log.Error().Err(err).Msg("could not save subscriber")
		return "", err
	}

	token, err := s.storeToken(ctx, tx, subscriber.ID, log)
	if err != nil {
		s.metrics.RegistrationFailed(metrics.StageToken)
		log.Error().Err(err).Msg("could not store confirmation token")
		return "", err
	}

	if err := tx.Commit(); err != nil {
		s.metrics.RegistrationFailed(metrics.StageCommit)
		log.Error().Err(err).Msg("could not commit registration")
		return "", fmt.Errorf("failed to commit registration: %w", err)
	}
	return token, nil
}

func (s *SubscriptionService) storeToken(ctx context.Context, tx *sql.Tx, subscriberID string, log *logger.Logger) (string, error) {
	for attempt := 1; attempt <= maxTokenAttempts; attempt++ {
		token, err := s.tokens()
		if err != nil {
			return "", err
		}

		err = s.repo.InsertToken(ctx, tx, subscriberID, token)
		if errors.Is(err, repository.ErrDuplicate) {
			log.Warn().Int("attempt", attempt).Msg("confirmation token collision, regenerating")
			continue
		}
		if err != nil {
			return "", err
		}
		return token, nil
	}
	return "", fmt.Errorf("no unique confirmation token after %d attempts: %w", maxTokenAttempts, repository.ErrDuplicate)
}

func (s *SubscriptionService) queueRedelivery(ctx context.Context, subscriberID string, log *logger.Logger) {
	if s.redelivery == nil {
		return
	}
	if err := s.redelivery.Enqueue(ctx, subscriberID); err != nil {
		log.Error().Err(err).Msg("could not queue confirmation email for redelivery")
		return
	}
	log.Info().Msg("confirmation email queued for redelivery")
}

// Confirm redeems a confirmation token. Confirming an already confirmed
// subscriber succeeds again.
func (s *SubscriptionService) Confirm(ctx context.Context, token string) error {
	if !auth.IsWellFormedToken(token) {
		return ErrTokenNotFound
	}

	subscriberID, err := s.repo.FindSubscriberIDByToken(ctx, token)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrTokenNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to resolve confirmation token: %w", err)
	}

	if err := s.repo.ConfirmSubscriber(ctx, subscriberID); err != nil {
		return err
	}

	s.metrics.SubscriptionsConfirmed.Inc()
	s.log.Info().Str("subscriber_id", subscriberID).Msg("subscriber confirmed")
	return nil
}

package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/brunojppb/mailbolt/internal/database"
	"github.com/brunojppb/mailbolt/internal/model"
)

// SubscriptionRepository persists subscribers and their confirmation tokens
type SubscriptionRepository struct {
	db *database.Postgres
}

// NewSubscriptionRepository creates a new SubscriptionRepository
func NewSubscriptionRepository(db *database.Postgres) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

// BeginTx opens the transaction that scopes a registration
func (r *SubscriptionRepository) BeginTx(ctx context.Context) (*sql.Tx, error) {
	tx, err := r.db.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return tx, nil
}

// InsertSubscriber stores a new subscriber inside tx
func (r *SubscriptionRepository) InsertSubscriber(ctx context.Context, tx *sql.Tx, s *model.Subscriber) error {
	query := `
		INSERT INTO subscriptions (id, email, name, subscribed_at, status)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := tx.ExecContext(ctx, query,
		s.ID,
		string(s.Email),
		string(s.Name),
		s.SubscribedAt,
		string(s.Status),
	)
	if err != nil {
		return fmt.Errorf("failed to insert subscriber: %w", err)
	}
	return nil
}

// InsertToken binds token to subscriberID inside tx. It returns
// ErrDuplicate when the token is already taken; the transaction stays usable.
func (r *SubscriptionRepository) InsertToken(ctx context.Context, tx *sql.Tx, subscriberID, token string) error {
	query := `
		INSERT INTO subscription_tokens (subscription_token, subscriber_id)
		VALUES ($1, $2)
		ON CONFLICT (subscription_token) DO NOTHING
	`
	result, err := tx.ExecContext(ctx, query, token, subscriberID)
	if err != nil {
		return fmt.Errorf("failed to insert subscription token: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to insert subscription token: %w", err)
	}
	if rowsAffected == 0 {
		return ErrDuplicate
	}
	return nil
}

// FindSubscriberIDByToken resolves a confirmation token to its subscriber
func (r *SubscriptionRepository) FindSubscriberIDByToken(ctx context.Context, token string) (string, error) {
	query := `SELECT subscriber_id FROM subscription_tokens WHERE subscription_token = $1`
	var subscriberID string
	err := r.db.QueryRowContext(ctx, query, token).Scan(&subscriberID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to find subscription token: %w", err)
	}
	return subscriberID, nil
}

// FindTokenBySubscriberID returns the token issued to a subscriber
func (r *SubscriptionRepository) FindTokenBySubscriberID(ctx context.Context, subscriberID string) (string, error) {
	query := `SELECT subscription_token FROM subscription_tokens WHERE subscriber_id = $1 LIMIT 1`
	var token string
	err := r.db.QueryRowContext(ctx, query, subscriberID).Scan(&token)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to find token for subscriber: %w", err)
	}
	return token, nil
}

// ConfirmSubscriber sets the status to confirmed without looking at the
// previous value, so repeating it is harmless
func (r *SubscriptionRepository) ConfirmSubscriber(ctx context.Context, subscriberID string) error {
	query := `UPDATE subscriptions SET status = $1 WHERE id = $2`
	_, err := r.db.ExecContext(ctx, query, string(model.SubscriberStatusConfirmed), subscriberID)
	if err != nil {
		return fmt.Errorf("failed to confirm subscriber: %w", err)
	}
	return nil
}

// GetByID retrieves a subscriber by ID
func (r *SubscriptionRepository) GetByID(ctx context.Context, id string) (*model.Subscriber, error) {
	query := `
		SELECT id, email, name, subscribed_at, status
		FROM subscriptions
		WHERE id = $1
	`
	var s model.Subscriber
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&s.ID,
		&s.Email,
		&s.Name,
		&s.SubscribedAt,
		&s.Status,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get subscriber: %w", err)
	}
	return &s, nil
}

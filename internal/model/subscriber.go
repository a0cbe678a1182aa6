package model

import (
	"time"

	"github.com/google/uuid"
)

// SubscriberStatus represents where a subscriber is in the confirmation flow
type SubscriberStatus string

const (
	SubscriberStatusPendingConfirmation SubscriberStatus = "pending_confirmation"
	SubscriberStatusConfirmed           SubscriberStatus = "confirmed"
)

// Subscriber is a newsletter subscription row. New rows come from
// NewSubscriber; literals are only built when scanning stored rows.
type Subscriber struct {
	ID           string           `json:"id"`
	Email        SubscriberEmail  `json:"email"`
	Name         SubscriberName   `json:"name"`
	Status       SubscriberStatus `json:"status"`
	SubscribedAt time.Time        `json:"subscribedAt"`
}

// NewSubscriber validates the raw name and email and builds a pending
// subscriber with a fresh ID
func NewSubscriber(rawName, rawEmail string) (*Subscriber, error) {
	name, err := ParseSubscriberName(rawName)
	if err != nil {
		return nil, err
	}
	email, err := ParseSubscriberEmail(rawEmail)
	if err != nil {
		return nil, err
	}
	return &Subscriber{
		ID:           uuid.New().String(),
		Email:        email,
		Name:         name,
		Status:       SubscriberStatusPendingConfirmation,
		SubscribedAt: time.Now().UTC(),
	}, nil
}

// IsConfirmed reports whether the subscriber redeemed a token
func (s *Subscriber) IsConfirmed() bool {
	return s.Status == SubscriberStatusConfirmed
}

// ConfirmationToken binds an opaque token to the subscriber it confirms
type ConfirmationToken struct {
	Token        string `json:"-"`
	SubscriberID string `json:"subscriberId"`
}

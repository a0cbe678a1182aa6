package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brunojppb/mailbolt/internal/logger"
	"github.com/brunojppb/mailbolt/internal/metrics"
	"github.com/brunojppb/mailbolt/internal/model"
	"github.com/brunojppb/mailbolt/internal/repository"
)

const (
	tokenA = "AAAAAAAAAAAAAAAAAAAAAAAAA"
	tokenB = "BBBBBBBBBBBBBBBBBBBBBBBBB"
	tokenC = "CCCCCCCCCCCCCCCCCCCCCCCCC"
)

type serviceFixture struct {
	svc     *SubscriptionService
	mock    sqlmock.Sqlmock
	sender  *fakeSender
	metrics *metrics.Metrics
	queue   *RedeliveryQueue
}

func newServiceFixture(t *testing.T, withRedelivery bool, tokens ...string) *serviceFixture {
	t.Helper()
	repo, mock := setupTestDB(t)
	sender := &fakeSender{}
	m := newTestMetrics()
	cfg := testConfig()

	var queue *RedeliveryQueue
	if withRedelivery {
		rdb, _ := setupTestRedis(t)
		queue = NewRedeliveryQueue(rdb, repo, sender, m, cfg, logger.Nop())
	}

	if len(tokens) == 0 {
		tokens = []string{tokenA}
	}
	svc := NewSubscriptionService(repo, sender, sequenceTokens(tokens...), queue, m, cfg, logger.Nop())
	return &serviceFixture{svc: svc, mock: mock, sender: sender, metrics: m, queue: queue}
}

func validRequest() SubscribeRequest {
	return SubscribeRequest{Name: "le guin", Email: "ursula_le_guin@gmail.com"}
}

func TestSubscribe_Success(t *testing.T) {
	f := newServiceFixture(t, false)

	f.mock.ExpectBegin()
	f.mock.ExpectExec("INSERT INTO subscriptions").
		WithArgs(sqlmock.AnyArg(), "ursula_le_guin@gmail.com", "le guin", sqlmock.AnyArg(), "pending_confirmation").
		WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectExec("INSERT INTO subscription_tokens").
		WithArgs(tokenA, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectCommit()

	resp, err := f.svc.Subscribe(context.Background(), validRequest())
	require.NoError(t, err)
	assert.NotEmpty(t, resp.SubscriberID)
	assert.Equal(t, model.SubscriberStatusPendingConfirmation, resp.Status)
	assert.NoError(t, f.mock.ExpectationsWereMet())

	sent := f.sender.sent()
	require.Len(t, sent, 1)
	link := testBaseURL + "/subscriptions/confirm?subscription_token=" + tokenA
	assert.Equal(t, "ursula_le_guin@gmail.com", sent[0].To)
	assert.Contains(t, sent[0].HTMLBody, link)
	assert.Contains(t, sent[0].TextBody, link)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.SubscriptionsRegistered))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.ConfirmationEmails.WithLabelValues("sent")))
}

func TestSubscribe_InvalidInputTouchesNothing(t *testing.T) {
	tests := []struct {
		name string
		req  SubscribeRequest
	}{
		{name: "empty email", req: SubscribeRequest{Name: "James", Email: ""}},
		{name: "invalid email", req: SubscribeRequest{Name: "James", Email: "not-a-valid-email"}},
		{name: "empty name", req: SubscribeRequest{Name: "", Email: "james@email.com"}},
		{name: "whitespace name", req: SubscribeRequest{Name: "   ", Email: "james@email.com"}},
		{name: "forbidden char", req: SubscribeRequest{Name: "Ja{mes}", Email: "james@email.com"}},
		{name: "too long name", req: SubscribeRequest{Name: strings.Repeat("a", 257), Email: "james@email.com"}},
		{name: "both missing", req: SubscribeRequest{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newServiceFixture(t, false)

			_, err := f.svc.Subscribe(context.Background(), tt.req)
			assert.ErrorIs(t, err, ErrInvalidSubscriber)
			assert.Empty(t, f.sender.sent())
			assert.NoError(t, f.mock.ExpectationsWereMet())
		})
	}
}

func TestSubscribe_TokenInsertFailureRollsBack(t *testing.T) {
	f := newServiceFixture(t, false)
	boom := errors.New("disk full")

	f.mock.ExpectBegin()
	f.mock.ExpectExec("INSERT INTO subscriptions").WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectExec("INSERT INTO subscription_tokens").WillReturnError(boom)
	f.mock.ExpectRollback()

	_, err := f.svc.Subscribe(context.Background(), validRequest())
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrInvalidSubscriber)
	assert.Empty(t, f.sender.sent())
	assert.NoError(t, f.mock.ExpectationsWereMet())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.RegistrationFailures.WithLabelValues(metrics.StageToken)))
}

func TestSubscribe_SubscriberInsertFailureRollsBack(t *testing.T) {
	f := newServiceFixture(t, false)

	f.mock.ExpectBegin()
	f.mock.ExpectExec("INSERT INTO subscriptions").WillReturnError(errors.New("relation does not exist"))
	f.mock.ExpectRollback()

	_, err := f.svc.Subscribe(context.Background(), validRequest())
	assert.Error(t, err)
	assert.Empty(t, f.sender.sent())
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestSubscribe_BeginFailure(t *testing.T) {
	f := newServiceFixture(t, false)
	f.mock.ExpectBegin().WillReturnError(errors.New("too many connections"))

	_, err := f.svc.Subscribe(context.Background(), validRequest())
	assert.Error(t, err)
	assert.Empty(t, f.sender.sent())
}

func TestSubscribe_CommitFailureSendsNoEmail(t *testing.T) {
	f := newServiceFixture(t, false)

	f.mock.ExpectBegin()
	f.mock.ExpectExec("INSERT INTO subscriptions").WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectExec("INSERT INTO subscription_tokens").WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectCommit().WillReturnError(errors.New("serialization failure"))

	_, err := f.svc.Subscribe(context.Background(), validRequest())
	assert.Error(t, err)
	assert.Empty(t, f.sender.sent())
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestSubscribe_TokenCollisionIsRetried(t *testing.T) {
	f := newServiceFixture(t, false, tokenA, tokenB)

	f.mock.ExpectBegin()
	f.mock.ExpectExec("INSERT INTO subscriptions").WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectExec("INSERT INTO subscription_tokens").
		WithArgs(tokenA, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	f.mock.ExpectExec("INSERT INTO subscription_tokens").
		WithArgs(tokenB, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectCommit()

	_, err := f.svc.Subscribe(context.Background(), validRequest())
	require.NoError(t, err)
	assert.NoError(t, f.mock.ExpectationsWereMet())

	sent := f.sender.sent()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0].TextBody, tokenB)
	assert.NotContains(t, sent[0].TextBody, tokenA)
}

func TestSubscribe_TokenCollisionExhausted(t *testing.T) {
	f := newServiceFixture(t, false, tokenA, tokenB, tokenC)

	f.mock.ExpectBegin()
	f.mock.ExpectExec("INSERT INTO subscriptions").WillReturnResult(sqlmock.NewResult(0, 1))
	for i := 0; i < maxTokenAttempts; i++ {
		f.mock.ExpectExec("INSERT INTO subscription_tokens").WillReturnResult(sqlmock.NewResult(0, 0))
	}
	f.mock.ExpectRollback()

	_, err := f.svc.Subscribe(context.Background(), validRequest())
	assert.ErrorIs(t, err, repository.ErrDuplicate)
	assert.Empty(t, f.sender.sent())
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestSubscribe_EmailFailureAfterCommit(t *testing.T) {
	f := newServiceFixture(t, false)
	f.sender.setErr(errors.New("provider unreachable"))

	f.mock.ExpectBegin()
	f.mock.ExpectExec("INSERT INTO subscriptions").WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectExec("INSERT INTO subscription_tokens").WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectCommit()

	_, err := f.svc.Subscribe(context.Background(), validRequest())
	assert.ErrorIs(t, err, ErrConfirmationEmail)

	// The registration is durable even though the caller sees a failure.
	assert.NoError(t, f.mock.ExpectationsWereMet())
	assert.Len(t, f.sender.sent(), 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.SubscriptionsRegistered))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.ConfirmationEmails.WithLabelValues("failed")))
}

func TestSubscribe_EmailFailureQueuesRedelivery(t *testing.T) {
	f := newServiceFixture(t, true)
	f.sender.setErr(errors.New("provider unreachable"))

	f.mock.ExpectBegin()
	f.mock.ExpectExec("INSERT INTO subscriptions").WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectExec("INSERT INTO subscription_tokens").WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectCommit()

	_, err := f.svc.Subscribe(context.Background(), validRequest())
	assert.ErrorIs(t, err, ErrConfirmationEmail)

	n, err := f.queue.Len(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestSubscribe_ClientDisconnectStillQueuesRedelivery(t *testing.T) {
	f := newServiceFixture(t, true)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.sender.onSend = func(context.Context) error {
		cancel()
		return ctx.Err()
	}

	f.mock.ExpectBegin()
	f.mock.ExpectExec("INSERT INTO subscriptions").WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectExec("INSERT INTO subscription_tokens").WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectCommit()

	_, err := f.svc.Subscribe(ctx, validRequest())
	assert.ErrorIs(t, err, ErrConfirmationEmail)
	assert.ErrorIs(t, err, context.Canceled)

	n, err := f.queue.Len(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestConfirm_KnownTokenIsIdempotent(t *testing.T) {
	f := newServiceFixture(t, false)

	for i := 0; i < 2; i++ {
		f.mock.ExpectQuery("SELECT subscriber_id FROM subscription_tokens").
			WithArgs(tokenA).
			WillReturnRows(sqlmock.NewRows([]string{"subscriber_id"}).AddRow("sub-1"))
		f.mock.ExpectExec("UPDATE subscriptions SET status").
			WithArgs("confirmed", "sub-1").
			WillReturnResult(sqlmock.NewResult(0, 1))
	}

	require.NoError(t, f.svc.Confirm(context.Background(), tokenA))
	require.NoError(t, f.svc.Confirm(context.Background(), tokenA))
	assert.NoError(t, f.mock.ExpectationsWereMet())
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.SubscriptionsConfirmed))
}

func TestConfirm_UnknownTokenPerformsNoMutation(t *testing.T) {
	f := newServiceFixture(t, false)

	f.mock.ExpectQuery("SELECT subscriber_id FROM subscription_tokens").
		WithArgs(tokenB).
		WillReturnRows(sqlmock.NewRows([]string{"subscriber_id"}))

	err := f.svc.Confirm(context.Background(), tokenB)
	assert.ErrorIs(t, err, ErrTokenNotFound)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestConfirm_MalformedTokenSkipsLookup(t *testing.T) {
	f := newServiceFixture(t, false)

	for _, token := range []string{"", "short", strings.Repeat("!", 25)} {
		assert.ErrorIs(t, f.svc.Confirm(context.Background(), token), ErrTokenNotFound)
	}
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestConfirm_StorageFailures(t *testing.T) {
	t.Run("lookup", func(t *testing.T) {
		f := newServiceFixture(t, false)
		f.mock.ExpectQuery("SELECT subscriber_id FROM subscription_tokens").
			WillReturnError(errors.New("connection refused"))

		err := f.svc.Confirm(context.Background(), tokenA)
		assert.Error(t, err)
		assert.NotErrorIs(t, err, ErrTokenNotFound)
	})

	t.Run("update", func(t *testing.T) {
		f := newServiceFixture(t, false)
		f.mock.ExpectQuery("SELECT subscriber_id FROM subscription_tokens").
			WillReturnRows(sqlmock.NewRows([]string{"subscriber_id"}).AddRow("sub-1"))
		f.mock.ExpectExec("UPDATE subscriptions SET status").
			WillReturnError(errors.New("read-only transaction"))

		err := f.svc.Confirm(context.Background(), tokenA)
		assert.Error(t, err)
		assert.NotErrorIs(t, err, ErrTokenNotFound)
		assert.Equal(t, 0.0, testutil.ToFloat64(f.metrics.SubscriptionsConfirmed))
	})
}

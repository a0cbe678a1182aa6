package service

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/brunojppb/mailbolt/internal/config"
	"github.com/brunojppb/mailbolt/internal/database"
	"github.com/brunojppb/mailbolt/internal/email"
	"github.com/brunojppb/mailbolt/internal/metrics"
	"github.com/brunojppb/mailbolt/internal/repository"
)

const testBaseURL = "http://127.0.0.1:8000"

// fakeSender records every message and fails while err is set. onSend,
// when set, replaces err as the result of each call.
type fakeSender struct {
	mu       sync.Mutex
	err      error
	onSend   func(ctx context.Context) error
	messages []email.Message
}

func (f *fakeSender) Send(ctx context.Context, msg email.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, msg)
	if f.onSend != nil {
		return f.onSend(ctx)
	}
	return f.err
}

func (f *fakeSender) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeSender) sent() []email.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]email.Message(nil), f.messages...)
}

// sequenceTokens hands out the given tokens in order
func sequenceTokens(tokens ...string) func() (string, error) {
	var mu sync.Mutex
	i := 0
	return func() (string, error) {
		mu.Lock()
		defer mu.Unlock()
		if i >= len(tokens) {
			return "", fmt.Errorf("token sequence exhausted")
		}
		t := tokens[i]
		i++
		return t, nil
	}
}

func testConfig() *config.Config {
	return &config.Config{
		Application: config.ApplicationConfig{BaseURL: testBaseURL},
		Email: config.EmailConfig{
			Provider:   "http",
			Redelivery: config.RedeliveryConfig{Enabled: true, MaxAttempts: 2},
		},
	}
}

func setupTestDB(t *testing.T) (*repository.SubscriptionRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return repository.NewSubscriptionRepository(&database.Postgres{DB: db}), mock
}

func setupTestRedis(t *testing.T) (*database.Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)

	rdb, err := database.NewRedis(config.RedisConfig{Host: mr.Host(), Port: port})
	require.NoError(t, err)
	t.Cleanup(func() { rdb.Close() })
	return rdb, mr
}

func newTestMetrics() *metrics.Metrics {
	return metrics.New(prometheus.NewRegistry())
}

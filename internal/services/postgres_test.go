package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/senyabanana/rfq-service/internal/clock"
	"github.com/senyabanana/rfq-service/internal/models"
	"github.com/senyabanana/rfq-service/internal/repository"
	"github.com/senyabanana/rfq-service/internal/testutil"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type pgEnv struct {
	pool         *pgxpool.Pool
	clock        *clock.Manual
	rfqs         *repository.PostgresRfqRepository
	quotes       *repository.PostgresQuoteRepository
	quoteService *QuoteService
	coordinator  *AcceptanceCoordinator
}

func newPgEnv(t *testing.T) *pgEnv {
	t.Helper()
	pool := testutil.NewTestPool(t)
	testutil.TruncateAll(t, context.Background(), pool)

	tx := repository.NewTxManager(pool)
	clk := clock.NewManual(time.Now().UTC().Truncate(time.Microsecond))
	rfqs := repository.NewPostgresRfqRepository(pool)
	quotes := repository.NewPostgresQuoteRepository(pool)
	outbox := repository.NewPostgresOutboxRepository(pool)
	return &pgEnv{
		pool:         pool,
		clock:        clk,
		rfqs:         rfqs,
		quotes:       quotes,
		quoteService: NewQuoteService(tx, rfqs, quotes, outbox, clk),
		coordinator:  NewAcceptanceCoordinator(tx, rfqs, quotes, outbox, clk),
	}
}

func (env *pgEnv) openRfq(t *testing.T, consumerID string) models.Rfq {
	t.Helper()
	now := env.clock.Now()
	rfq := models.Rfq{
		ID:         newID(),
		ConsumerID: consumerID,
		Quantity:   5,
		Unit:       "pcs",
		ExpiresAt:  now.Add(72 * time.Hour),
		Status:     models.OpenRfq,
		CreatedAt:  now,
		UpdatedAt:  now,
		Version:    1,
	}
	require.NoError(t, env.rfqs.Create(context.Background(), rfq))
	return rfq
}

func (env *pgEnv) submitQuote(t *testing.T, providerID, rfqID string) *models.Quote {
	t.Helper()
	quote, err := env.quoteService.SubmitQuote(context.Background(), actor(providerID), rfqID, models.QuoteRequest{
		Price:    decimal.RequireFromString("99.95"),
		Currency: "RUB",
	})
	require.NoError(t, err)
	return quote
}

func (env *pgEnv) outboxCount(t *testing.T, typ models.NotificationType, referenceID string) int {
	t.Helper()
	var n int
	err := env.pool.QueryRow(context.Background(),
		`SELECT count(*) FROM notification_outbox WHERE type = $1 AND reference_id = $2`, typ, referenceID).Scan(&n)
	require.NoError(t, err)
	return n
}

func TestPostgresAccept_ConcurrentCallsHaveSingleWinner(t *testing.T) {
	env := newPgEnv(t)
	ctx := context.Background()

	const n = 6
	rfq := env.openRfq(t, "consumer-1")
	quotes := make([]*models.Quote, n)
	for i := range quotes {
		quotes[i] = env.submitQuote(t, fmt.Sprintf("prov-%d", i), rfq.ID)
	}

	var wg sync.WaitGroup
	start := make(chan struct{})
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = env.coordinator.Accept(ctx, actor("consumer-1"), rfq.ID, quotes[i].ID)
		}(i)
	}
	close(start)
	wg.Wait()

	winner := -1
	for i, err := range errs {
		if err == nil {
			require.Equal(t, -1, winner, "second winner %d", i)
			winner = i
			continue
		}
		require.ErrorIs(t, err, models.ErrConflict)
	}
	require.NotEqual(t, -1, winner)

	stored, err := env.rfqs.GetByID(ctx, rfq.ID)
	require.NoError(t, err)
	require.Equal(t, models.AcceptedRfq, stored.Status)
	require.Equal(t, quotes[winner].ID, *stored.AcceptedQuoteID)

	all, err := env.quotes.ListByRfq(ctx, rfq.ID)
	require.NoError(t, err)
	require.Len(t, all, n)
	for _, q := range all {
		if q.ID == quotes[winner].ID {
			require.Equal(t, models.AcceptedQuote, q.Status)
			require.Equal(t, 1, env.outboxCount(t, models.QuoteAccepted, q.ID))
			continue
		}
		require.Equal(t, models.RejectedQuote, q.Status)
		require.Equal(t, models.ReasonNotSelected, *q.StatusReason)
		require.Equal(t, 1, env.outboxCount(t, models.QuoteRejected, q.ID))
	}
}

func TestPostgresWithdrawRacingAccept(t *testing.T) {
	env := newPgEnv(t)
	ctx := context.Background()

	for round := 0; round < 10; round++ {
		rfq := env.openRfq(t, "consumer-1")
		quote := env.submitQuote(t, "prov-a", rfq.ID)

		var wg sync.WaitGroup
		start := make(chan struct{})
		var acceptErr, withdrawErr error
		wg.Add(2)
		go func() {
			defer wg.Done()
			<-start
			_, acceptErr = env.coordinator.Accept(ctx, actor("consumer-1"), rfq.ID, quote.ID)
		}()
		go func() {
			defer wg.Done()
			<-start
			_, withdrawErr = env.coordinator.Withdraw(ctx, actor("prov-a"), quote.ID)
		}()
		close(start)
		wg.Wait()

		require.True(t, (acceptErr == nil) != (withdrawErr == nil),
			"round %d: accept=%v withdraw=%v", round, acceptErr, withdrawErr)

		storedRfq, err := env.rfqs.GetByID(ctx, rfq.ID)
		require.NoError(t, err)
		storedQuote, err := env.quotes.GetByID(ctx, quote.ID)
		require.NoError(t, err)

		if acceptErr == nil {
			require.True(t, errors.Is(withdrawErr, models.ErrConflict), "round %d: %v", round, withdrawErr)
			require.Equal(t, models.AcceptedRfq, storedRfq.Status)
			require.Equal(t, models.AcceptedQuote, storedQuote.Status)
			continue
		}
		require.True(t, errors.Is(acceptErr, models.ErrConflict), "round %d: %v", round, acceptErr)
		require.Equal(t, models.OpenRfq, storedRfq.Status)
		require.Nil(t, storedRfq.AcceptedQuoteID)
		require.Equal(t, models.WithdrawnQuote, storedQuote.Status)
		require.Zero(t, env.outboxCount(t, models.QuoteAccepted, quote.ID))
	}
}

func TestPostgresSubmitQuote_StoresExactPrice(t *testing.T) {
	env := newPgEnv(t)
	ctx := context.Background()
	rfq := env.openRfq(t, "consumer-1")

	quote, err := env.quoteService.SubmitQuote(ctx, actor("prov-a"), rfq.ID, models.QuoteRequest{
		Price:    decimal.RequireFromString("1234567890.1234"),
		Currency: "usd",
	})
	require.NoError(t, err)

	stored, err := env.quotes.GetByID(ctx, quote.ID)
	require.NoError(t, err)
	require.Equal(t, "1234567890.1234", stored.Price.StringFixed(4))
}

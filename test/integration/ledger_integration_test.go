//go:build integration

package integration

import (
	"context"
	"log/slog"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cschwartz85032/loanserve-sub003/internal/ledger"
	"github.com/cschwartz85032/loanserve-sub003/pkg/testutil"
)

func migrationsDir() string {
	_, filename, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(filename), "..", "..", "migrations")
}

func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	pg := testutil.NewPostgresContainer(ctx, t)
	t.Cleanup(func() { pg.Cleanup(t) })

	pg.RunMigrations(t, migrationsDir())
	return pg.Pool
}

func newLedger(pool *pgxpool.Pool) (*ledger.Repo, *ledger.Service) {
	repo := ledger.NewRepo(pool)
	return repo, ledger.NewService(repo, slog.Default())
}

func day(s string) time.Time {
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestLedger_PostAndDeriveBalances(t *testing.T) {
	pool := setupTestDB(t)
	repo, svc := newLedger(pool)
	ctx := context.Background()

	loanID := testutil.TestLoanID
	eventID, err := svc.PostEvent(ctx,
		ledger.LoanOrigination(loanID, day("2025-01-15"), "origination:loan:17", "USD", 25_000_000))
	require.NoError(t, err)

	ev, err := repo.FindByID(ctx, eventID)
	require.NoError(t, err)
	require.NotNil(t, ev.FinalizedAt)
	assert.Equal(t, "origination:loan:17", ev.CorrelationID)
	require.Len(t, ev.Lines, 2)

	balances, err := svc.LatestBalances(ctx, loanID)
	require.NoError(t, err)
	assert.Equal(t, int64(25_000_000), balances.Principal)
	assert.Equal(t, int64(-25_000_000), balances.Cash)
}

func TestLedger_DuplicateCorrelationRejected(t *testing.T) {
	pool := setupTestDB(t)
	_, svc := newLedger(pool)
	ctx := context.Background()

	req := ledger.InterestAccrual(testutil.TestLoanID, day("2025-02-01"),
		"accrual:loan:17:due:2025-02-01", "USD", 104_167)

	first, err := svc.PostEvent(ctx, req)
	require.NoError(t, err)

	_, err = svc.PostEvent(ctx, req)
	require.ErrorIs(t, err, ledger.ErrDuplicateCorrelation)

	// The first event is untouched and its balances count exactly once.
	balances, err := svc.LatestBalances(ctx, testutil.TestLoanID)
	require.NoError(t, err)
	assert.Equal(t, int64(104_167), balances.InterestReceivable)
	assert.NotEqual(t, uuid.Nil, first)
}

func TestLedger_ReverseEventNetsToZero(t *testing.T) {
	pool := setupTestDB(t)
	_, svc := newLedger(pool)
	ctx := context.Background()

	loanID := testutil.TestLoanID2
	eventID, err := svc.PostEvent(ctx,
		ledger.LateFeeAssessment(loanID, day("2025-03-01"), "latefee:loan:18:2025-03-01", "USD", 2_500))
	require.NoError(t, err)

	_, err = svc.ReverseEvent(ctx, eventID, "latefee:loan:18:2025-03-01:reversal")
	require.NoError(t, err)

	balances, err := svc.LatestBalances(ctx, loanID)
	require.NoError(t, err)
	assert.Zero(t, balances.FeesReceivable)

	// Append-only: both events remain and the trial balance still balances.
	rows, err := svc.TrialBalance(ctx)
	require.NoError(t, err)
	var debits, credits int64
	for _, row := range rows {
		debits += row.DebitMinor
		credits += row.CreditMinor
	}
	assert.Equal(t, debits, credits)
}

func TestLedger_BankChargeWithoutLoan(t *testing.T) {
	pool := setupTestDB(t)
	repo, svc := newLedger(pool)
	ctx := context.Background()

	eventID, err := svc.PostEvent(ctx,
		ledger.BankCharge(day("2025-03-10"), "recon:writeoff:abc", "USD", "Analysis charge", 1_500))
	require.NoError(t, err)

	ev, err := repo.FindByID(ctx, eventID)
	require.NoError(t, err)
	assert.Equal(t, uuid.Nil, ev.LoanID)
	require.NotNil(t, ev.FinalizedAt)
}

func TestLedger_CashActivityWindow(t *testing.T) {
	pool := setupTestDB(t)
	repo, svc := newLedger(pool)
	ctx := context.Background()

	loanID := testutil.TestLoanID
	_, err := svc.PostEvent(ctx, ledger.PaymentReceived(loanID, day("2025-03-10"),
		"payment:loan:17:gw:txn1", "USD", 150_000, []ledger.Line{
			ledger.Credit(ledger.AccountLoanPrincipal, 150_000, "USD", "Principal"),
		}))
	require.NoError(t, err)

	// Outside the window.
	_, err = svc.PostEvent(ctx, ledger.PaymentReceived(loanID, day("2025-04-20"),
		"payment:loan:17:gw:txn2", "USD", 150_000, []ledger.Line{
			ledger.Credit(ledger.AccountLoanPrincipal, 150_000, "USD", "Principal"),
		}))
	require.NoError(t, err)

	activities, err := repo.CashActivityBetween(ctx, day("2025-03-07"), day("2025-03-13"))
	require.NoError(t, err)
	require.Len(t, activities, 1)
	assert.Equal(t, "payment:loan:17:gw:txn1", activities[0].CorrelationID)
	assert.Equal(t, int64(150_000), activities[0].NetMinor)
}

func TestLedger_UnbalancedEventRollsBack(t *testing.T) {
	pool := setupTestDB(t)
	_, svc := newLedger(pool)
	ctx := context.Background()

	_, err := svc.PostEvent(ctx, ledger.PostRequest{
		LoanID:        testutil.TestLoanID,
		EffectiveDate: day("2025-03-01"),
		CorrelationID: "bad:event:1",
		Schema:        ledger.SchemaPayment,
		Currency:      "USD",
		Lines: []ledger.Line{
			ledger.Debit(ledger.AccountCash, 100, "USD", ""),
			ledger.Credit(ledger.AccountLoanPrincipal, 99, "USD", ""),
		},
	})
	require.Error(t, err)

	// Nothing persisted, not even the event row.
	var count int
	err = pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM ledger_events WHERE correlation_id = $1", "bad:event:1",
	).Scan(&count)
	require.NoError(t, err)
	assert.Zero(t, count)
}

//go:build integration

package integration

import (
	"context"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cschwartz85032/loanserve-sub003/internal/escrow"
	"github.com/cschwartz85032/loanserve-sub003/internal/ledger"
	"github.com/cschwartz85032/loanserve-sub003/internal/payments"
	"github.com/cschwartz85032/loanserve-sub003/pkg/testutil"
)

func scheduleDisbursement(t *testing.T, repo *escrow.Repo, loanID uuid.UUID, due string, amountMinor int64) escrow.Disbursement {
	t.Helper()
	disb := escrow.Disbursement{
		ID:          uuid.New(),
		LoanID:      loanID,
		EscrowID:    testutil.TestEscrowItemID,
		DueDate:     day(due),
		AmountMinor: amountMinor,
		Status:      escrow.DisbursementScheduled,
	}
	inserted, err := repo.InsertDisbursement(context.Background(), disb)
	require.NoError(t, err)
	require.True(t, inserted)
	return disb
}

func fundEscrow(t *testing.T, svc *ledger.Service, loanID uuid.UUID, date string, amountMinor int64) {
	t.Helper()
	_, err := svc.PostEvent(context.Background(),
		ledger.PaymentReceived(loanID, day(date),
			"payment:loan:esc:gw:"+uuid.NewString(), "USD", amountMinor, []ledger.Line{
				ledger.Credit(ledger.AccountEscrowLiability, amountMinor, "USD", "Escrow deposit"),
			}))
	require.NoError(t, err)
}

// Under a no-advance policy an underfunded disbursement stays scheduled until
// the escrow balance can cover it.
func TestDisburser_HoldsWhenBalanceInsufficient(t *testing.T) {
	pool := setupTestDB(t)
	_, ledgerSvc := newLedger(pool)
	escrowRepo := escrow.NewRepo(pool)
	policy := escrow.DefaultPolicy()
	policy.PayWhenInsufficient = false
	d := escrow.NewDisburser(pool, escrowRepo, ledgerSvc, payments.NewOutboxRepo(pool), policy, slog.Default())
	ctx := context.Background()

	disb := scheduleDisbursement(t, escrowRepo, testutil.TestLoanID, "2025-04-01", 120_000)

	posted, err := d.PostDue(ctx, testutil.TestLoanID, day("2025-04-05"))
	require.NoError(t, err)
	assert.Zero(t, posted)

	var status string
	require.NoError(t, pool.QueryRow(ctx,
		"SELECT status FROM escrow_disbursements WHERE id = $1", disb.ID).Scan(&status))
	assert.Equal(t, string(escrow.DisbursementScheduled), status)

	// Funds arrive; the next cycle releases the held disbursement.
	fundEscrow(t, ledgerSvc, testutil.TestLoanID, "2025-04-06", 150_000)

	posted, err = d.PostDue(ctx, testutil.TestLoanID, day("2025-04-07"))
	require.NoError(t, err)
	assert.Equal(t, 1, posted)

	require.NoError(t, pool.QueryRow(ctx,
		"SELECT status FROM escrow_disbursements WHERE id = $1", disb.ID).Scan(&status))
	assert.Equal(t, string(escrow.DisbursementPosted), status)

	balances, err := ledgerSvc.LatestBalances(ctx, testutil.TestLoanID)
	require.NoError(t, err)
	assert.Equal(t, int64(30_000), balances.EscrowLiability)
}

// The default policy advances shortfalls rather than holding the payment.
func TestDisburser_AdvancesShortfallByDefault(t *testing.T) {
	pool := setupTestDB(t)
	_, ledgerSvc := newLedger(pool)
	escrowRepo := escrow.NewRepo(pool)
	d := escrow.NewDisburser(pool, escrowRepo, ledgerSvc, payments.NewOutboxRepo(pool), escrow.DefaultPolicy(), slog.Default())
	ctx := context.Background()

	fundEscrow(t, ledgerSvc, testutil.TestLoanID, "2025-04-01", 50_000)
	disb := scheduleDisbursement(t, escrowRepo, testutil.TestLoanID, "2025-04-01", 120_000)

	posted, err := d.PostDue(ctx, testutil.TestLoanID, day("2025-04-05"))
	require.NoError(t, err)
	assert.Equal(t, 1, posted)

	var status string
	require.NoError(t, pool.QueryRow(ctx,
		"SELECT status FROM escrow_disbursements WHERE id = $1", disb.ID).Scan(&status))
	assert.Equal(t, string(escrow.DisbursementPosted), status)
}

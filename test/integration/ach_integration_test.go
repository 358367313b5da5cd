//go:build integration

package integration

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cschwartz85032/loanserve-sub003/internal/ach"
	"github.com/cschwartz85032/loanserve-sub003/pkg/events"
	"github.com/cschwartz85032/loanserve-sub003/pkg/testutil"
)

func sealedEntry(t *testing.T, repo *ach.Repo, loanScoped bool) ach.Entry {
	t.Helper()
	ctx := context.Background()

	b, err := ach.NewBatch(1, "LOANSERVE", "1234567890", ach.SECPPD, "LOAN PMT", day("2025-03-03"))
	require.NoError(t, err)

	entry := ach.Entry{
		TxnCode:        ach.TxnCheckingDebit,
		RDFIRouting:    "021000021",
		AccountNumber:  "99887766",
		AmountMinor:    150_000,
		IndividualName: "DOE JOHN",
	}
	if loanScoped {
		loanID := testutil.TestLoanID
		entry.LoanID = &loanID
	}
	b, err = b.AddEntry(entry)
	require.NoError(t, err)
	b, err = b.Seal("322271627", time.Now())
	require.NoError(t, err)
	require.NoError(t, repo.SaveBatch(ctx, b))
	return b.Entries[0]
}

// A non-retryable return on a loan-funding entry opens an operator exception
// and asks the payment pipeline for a reversal.
func TestReturnProcessor_AccountClosedOpensExceptionAndReverses(t *testing.T) {
	pool := setupTestDB(t)
	repo := ach.NewRepo(pool)
	processor := ach.NewReturnProcessor(repo, slog.Default())
	ctx := context.Background()

	entry := sealedEntry(t, repo, true)

	ret, err := processor.HandleReturn(ctx, entry.TraceNumber, ach.ReturnAccountClosed, time.Now())
	require.NoError(t, err)
	assert.Equal(t, ach.DispositionReversal, ret.Disposition)
	assert.Nil(t, ret.RetryAt)

	var status, code string
	require.NoError(t, pool.QueryRow(ctx,
		"SELECT status, code FROM ach_exceptions WHERE return_id = $1", ret.ID,
	).Scan(&status, &code))
	assert.Equal(t, ach.ExceptionOpen, status)
	assert.Equal(t, ach.ReturnAccountClosed, code)

	var payload []byte
	require.NoError(t, pool.QueryRow(ctx,
		"SELECT payload FROM outbox WHERE event_id = $1 AND topic = $2",
		ret.ID, events.TopicPaymentsSaga,
	).Scan(&payload))
	env := testutil.RequireEnvelope(t, payload, events.SchemaPaymentReversalRequested)
	var reversal ach.ReversalRequestedPayload
	testutil.RequirePayload(t, env, &reversal)
	assert.Equal(t, testutil.TestLoanID, reversal.LoanID)
	assert.Equal(t, int64(150_000), reversal.AmountMinor)
}

// Insufficient funds schedules a re-presentment without operator involvement.
func TestReturnProcessor_NSFRetriesWithoutException(t *testing.T) {
	pool := setupTestDB(t)
	repo := ach.NewRepo(pool)
	processor := ach.NewReturnProcessor(repo, slog.Default())
	ctx := context.Background()

	entry := sealedEntry(t, repo, true)

	ret, err := processor.HandleReturn(ctx, entry.TraceNumber, ach.ReturnNSF, time.Now())
	require.NoError(t, err)
	assert.Equal(t, ach.DispositionRetry, ret.Disposition)
	require.NotNil(t, ret.RetryAt)

	var exceptions int
	require.NoError(t, pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM ach_exceptions").Scan(&exceptions))
	assert.Zero(t, exceptions)
}

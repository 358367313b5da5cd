package reconcile_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cschwartz85032/loanserve-sub003/internal/ledger"
	"github.com/cschwartz85032/loanserve-sub003/internal/reconcile"
)

func reconDay(s string) time.Time {
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestScore_ExactMatchWithCorrelationInDescription(t *testing.T) {
	txn := reconcile.BankTxn{
		ID:          uuid.New(),
		PostedDate:  reconDay("2025-03-10"),
		AmountMinor: 25_000,
		Type:        reconcile.TxnCredit,
		BankRef:     "REF742",
		Description: "LOCKBOX PAYMENT:LOAN:ABC:GW:TXN9",
	}
	activity := ledger.CashActivity{
		EventID:       uuid.New(),
		CorrelationID: "payment:loan:abc:gw:txn9",
		EffectiveDate: reconDay("2025-03-10"),
		NetMinor:      25_000,
	}

	// 60 exact amount + 30 same day + 100 correlation in description.
	assert.Equal(t, 190, reconcile.Score(txn, activity))
}

func TestScore_AmountBands(t *testing.T) {
	txn := reconcile.BankTxn{PostedDate: reconDay("2025-03-10"), AmountMinor: 100_000}
	base := ledger.CashActivity{EffectiveDate: reconDay("2025-03-10")}

	tests := []struct {
		name string
		net  int64
		want int
	}{
		{"exact", 100_000, 90},
		{"within one percent", 100_500, 80},
		{"within five percent", 104_000, 60},
		{"off by more than five percent", 110_000, 30},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := base
			a.NetMinor = tt.net
			assert.Equal(t, tt.want, reconcile.Score(txn, a))
		})
	}
}

func TestScore_DateBands(t *testing.T) {
	txn := reconcile.BankTxn{PostedDate: reconDay("2025-03-10"), AmountMinor: 100_000}

	tests := []struct {
		name string
		date string
		want int
	}{
		{"same day", "2025-03-10", 90},
		{"one day apart", "2025-03-11", 85},
		{"three days apart", "2025-03-07", 70},
		{"a week apart", "2025-03-17", 60},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := ledger.CashActivity{EffectiveDate: reconDay(tt.date), NetMinor: 100_000}
			assert.Equal(t, tt.want, reconcile.Score(txn, a))
		})
	}
}

// A deposit must not score against a same-day cash outflow of equal
// magnitude: the date points alone stay far below any sane threshold.
func TestScore_OppositeDirectionEarnsNoAmountPoints(t *testing.T) {
	credit := reconcile.BankTxn{
		PostedDate:  reconDay("2025-03-10"),
		AmountMinor: 25_000,
		Type:        reconcile.TxnCredit,
	}
	outflow := ledger.CashActivity{EffectiveDate: reconDay("2025-03-10"), NetMinor: -25_000}
	assert.Equal(t, 30, reconcile.Score(credit, outflow))

	debit := reconcile.BankTxn{
		PostedDate:  reconDay("2025-03-10"),
		AmountMinor: 25_000,
		Type:        reconcile.TxnDebit,
	}
	inflow := ledger.CashActivity{EffectiveDate: reconDay("2025-03-10"), NetMinor: 25_000}
	assert.Equal(t, 30, reconcile.Score(debit, inflow))

	// Matching directions keep the full amount score.
	assert.Equal(t, 90, reconcile.Score(credit, inflow))
	assert.Equal(t, 90, reconcile.Score(debit, outflow))
}

func TestSignedAmountMinor(t *testing.T) {
	tests := []struct {
		txnType reconcile.TxnType
		want    int64
	}{
		{reconcile.TxnCredit, 1_500},
		{reconcile.TxnDebit, -1_500},
		{reconcile.TxnFee, -1_500},
		{reconcile.TxnReturn, -1_500},
	}
	for _, tt := range tests {
		txn := reconcile.BankTxn{AmountMinor: 1_500, Type: tt.txnType}
		assert.Equal(t, tt.want, txn.SignedAmountMinor(), string(tt.txnType))
	}
}

func TestScore_ReferenceOverlap(t *testing.T) {
	txn := reconcile.BankTxn{
		PostedDate:  reconDay("2025-03-10"),
		AmountMinor: 100_000,
		BankRef:     "TXN9",
	}

	inCorr := ledger.CashActivity{
		EffectiveDate: reconDay("2025-03-10"),
		NetMinor:      100_000,
		CorrelationID: "payment:loan:abc:gw:TXN9",
	}
	assert.Equal(t, 90+15, reconcile.Score(txn, inCorr))

	inMemo := ledger.CashActivity{
		EffectiveDate: reconDay("2025-03-10"),
		NetMinor:      100_000,
		Memos:         "Payment received TXN9",
	}
	assert.Equal(t, 90+10, reconcile.Score(txn, inMemo))
}

func TestRankCandidates_TopThreeBestFirst(t *testing.T) {
	txn := reconcile.BankTxn{
		ID:          uuid.New(),
		PostedDate:  reconDay("2025-03-10"),
		AmountMinor: 100_000,
	}
	activities := []ledger.CashActivity{
		{EventID: uuid.New(), EffectiveDate: reconDay("2025-03-17"), NetMinor: 50_000},
		{EventID: uuid.New(), EffectiveDate: reconDay("2025-03-10"), NetMinor: 100_000},
		{EventID: uuid.New(), EffectiveDate: reconDay("2025-03-11"), NetMinor: 100_000},
		{EventID: uuid.New(), EffectiveDate: reconDay("2025-03-12"), NetMinor: 104_000},
	}

	candidates := reconcile.RankCandidates(txn, activities)
	require.Len(t, candidates, 3)
	assert.Equal(t, activities[1].EventID, candidates[0].EventID)
	assert.Equal(t, 90, candidates[0].Score)
	assert.Equal(t, activities[2].EventID, candidates[1].EventID)
	assert.Equal(t, 85, candidates[1].Score)
	assert.Equal(t, activities[3].EventID, candidates[2].EventID)
	for _, c := range candidates {
		assert.Equal(t, txn.ID, c.BankTxnID)
	}
}

func TestRankCandidates_Empty(t *testing.T) {
	txn := reconcile.BankTxn{ID: uuid.New(), PostedDate: reconDay("2025-03-10"), AmountMinor: 100}
	assert.Empty(t, reconcile.RankCandidates(txn, nil))
}

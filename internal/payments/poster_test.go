package payments

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cschwartz85032/loanserve-sub003/internal/ledger"
	"github.com/cschwartz85032/loanserve-sub003/internal/loan"
)

func TestComputeOutstanding(t *testing.T) {
	balances := ledger.Balances{
		Principal:      24_975_000,
		FeesReceivable: 5_000,
	}
	row := &loan.ScheduleRow{PeriodNo: 3, InterestMinor: 125_000}

	out := ComputeOutstanding(balances, row, 2_000, 8_000)

	assert.Equal(t, int64(5_000), out[loan.BucketFeesDue])
	assert.Equal(t, int64(2_000), out[loan.BucketInterestPastDue])
	assert.Equal(t, int64(125_000), out[loan.BucketInterestCurrent])
	assert.Equal(t, int64(8_000), out[loan.BucketEscrow])
	assert.Equal(t, int64(24_975_000), out[loan.BucketPrincipal])
}

func TestComputeOutstanding_OmitsEmptyBuckets(t *testing.T) {
	out := ComputeOutstanding(ledger.Balances{Principal: 1_000}, nil, 0, 0)

	assert.Equal(t, loan.Outstanding{loan.BucketPrincipal: 1_000}, out)
}

func TestPaysOffPrincipal(t *testing.T) {
	out := loan.Outstanding{
		loan.BucketInterestCurrent: 125_000,
		loan.BucketPrincipal:       500_000,
	}

	full := loan.Allocate(625_000, loan.DefaultWaterfall(), out)
	assert.True(t, PaysOffPrincipal(out, full))

	partial := loan.Allocate(400_000, loan.DefaultWaterfall(), out)
	assert.False(t, PaysOffPrincipal(out, partial))

	// An overpayment still retires the full principal; the excess lands in
	// the future bucket.
	over := loan.Allocate(700_000, loan.DefaultWaterfall(), out)
	assert.True(t, PaysOffPrincipal(out, over))

	// Nothing owed means nothing to pay off.
	assert.False(t, PaysOffPrincipal(loan.Outstanding{}, nil))
}

// A partial payment against accrued interest applies the current period's
// interest first, then curtails principal, leaving past accruals receivable.
func TestAllocationAgainstAccruedInterest(t *testing.T) {
	balances := ledger.Balances{
		Principal:          25_000_000,
		InterestReceivable: 375_000,
	}
	row := &loan.ScheduleRow{PeriodNo: 3, InterestMinor: 125_000}
	out := ComputeOutstanding(balances, row, 0, 0)

	allocations := loan.Allocate(150_000, loan.DefaultWaterfall(), out)

	assert.Equal(t, []loan.Allocation{
		{Bucket: loan.BucketInterestCurrent, AmountMinor: 125_000},
		{Bucket: loan.BucketPrincipal, AmountMinor: 25_000},
	}, allocations)
}

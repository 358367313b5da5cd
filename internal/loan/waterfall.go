package loan

import (
	"fmt"

	"github.com/cschwartz85032/loanserve-sub003/internal/ledger"
)

// Bucket is one allocation priority in a payment waterfall.
type Bucket string

const (
	BucketFeesDue         Bucket = "fees_due"
	BucketInterestPastDue Bucket = "interest_past_due"
	BucketInterestCurrent Bucket = "interest_current"
	BucketPrincipal       Bucket = "principal"
	BucketEscrow          Bucket = "escrow"
	BucketFuture          Bucket = "future"
)

// DefaultWaterfall is the standard servicing order. Escrow funds ahead of
// principal so impound accounts stay whole before curtailment.
func DefaultWaterfall() []Bucket {
	return []Bucket{
		BucketFeesDue,
		BucketInterestPastDue,
		BucketInterestCurrent,
		BucketEscrow,
		BucketPrincipal,
		BucketFuture,
	}
}

// ParseBucket validates a bucket name.
func ParseBucket(s string) (Bucket, error) {
	switch Bucket(s) {
	case BucketFeesDue, BucketInterestPastDue, BucketInterestCurrent,
		BucketPrincipal, BucketEscrow, BucketFuture:
		return Bucket(s), nil
	}
	return "", fmt.Errorf("invalid waterfall bucket %q", s)
}

// bucketPosting maps a bucket to its GL credit account and memo. The mapping
// is fixed; product policy only reorders buckets.
var bucketPosting = map[Bucket]struct {
	account ledger.Account
	memo    string
}{
	BucketFeesDue:         {ledger.AccountFeesReceivable, "Fees paid"},
	BucketInterestPastDue: {ledger.AccountInterestReceivable, "Past-due interest paid"},
	BucketInterestCurrent: {ledger.AccountInterestReceivable, "Current interest paid"},
	BucketPrincipal:       {ledger.AccountLoanPrincipal, "Principal reduction"},
	BucketEscrow:          {ledger.AccountEscrowLiability, "Escrow deposit"},
	BucketFuture:          {ledger.AccountSuspense, "Prepayment / Future payment"},
}

// Outstanding is the amount due per bucket, derived from ledger balances and
// the active schedule before allocation.
type Outstanding map[Bucket]int64

// Allocation is the slice of a payment applied to one bucket.
type Allocation struct {
	Bucket      Bucket
	AmountMinor int64
}

// Allocate walks the waterfall in order, taking min(remaining, outstanding)
// per bucket; the future bucket absorbs whatever is left. Allocations are
// non-negative and sum exactly to paymentMinor.
func Allocate(paymentMinor int64, order []Bucket, outstanding Outstanding) []Allocation {
	var allocations []Allocation
	remaining := paymentMinor

	for _, bucket := range order {
		if remaining <= 0 {
			break
		}
		var take int64
		if bucket == BucketFuture {
			take = remaining
		} else {
			due := outstanding[bucket]
			if due <= 0 {
				continue
			}
			take = min64(remaining, due)
		}
		allocations = append(allocations, Allocation{Bucket: bucket, AmountMinor: take})
		remaining -= take
	}

	if remaining > 0 {
		// Waterfall without a future bucket: park the excess in suspense.
		allocations = append(allocations, Allocation{Bucket: BucketFuture, AmountMinor: remaining})
	}
	return allocations
}

// CreditLines converts allocations to the ledger credit lines of a payment
// posting. Cash is debited separately for the full payment.
func CreditLines(allocations []Allocation, currency string) []ledger.Line {
	lines := make([]ledger.Line, 0, len(allocations))
	for _, a := range allocations {
		if a.AmountMinor <= 0 {
			continue
		}
		p := bucketPosting[a.Bucket]
		lines = append(lines, ledger.Credit(p.account, a.AmountMinor, currency, p.memo))
	}
	return lines
}

// MinimumDue is the total outstanding across the non-future buckets in
// waterfall order.
func MinimumDue(order []Bucket, outstanding Outstanding) int64 {
	var due int64
	for _, bucket := range order {
		if bucket == BucketFuture {
			continue
		}
		if v := outstanding[bucket]; v > 0 {
			due += v
		}
	}
	return due
}

// Shortfall is how far a payment falls below the minimum due.
func Shortfall(paymentMinor int64, order []Bucket, outstanding Outstanding) int64 {
	due := MinimumDue(order, outstanding)
	if paymentMinor >= due {
		return 0
	}
	return due - paymentMinor
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

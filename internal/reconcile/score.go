package reconcile

import (
	"sort"
	"strings"
	"time"

	"github.com/cschwartz85032/loanserve-sub003/internal/ledger"
)

// Scoring weights. Amount closeness, date proximity, and reference overlap
// accumulate; a correlation ID quoted in the bank description dominates.
const (
	scoreAmountExact    = 60
	scoreAmountWithin1  = 50
	scoreAmountWithin5  = 30
	scoreSameDay        = 30
	scoreWithin1Day     = 25
	scoreWithin3Days    = 10
	scoreRefInCorr      = 15
	scoreRefInMemo      = 10
	scoreCorrInBankDesc = 100

	// maxCandidates is how many scored candidates are retained per txn.
	maxCandidates = 3
)

// Score rates one ledger cash event as a match for a bank transaction.
func Score(txn BankTxn, activity ledger.CashActivity) int {
	score := 0

	// A bank credit only matches cash flowing in, a debit cash flowing out.
	// Opposite-direction pairs earn no amount points regardless of magnitude.
	want := txn.SignedAmountMinor()
	net := activity.NetMinor
	if sameDirection(net, want) {
		switch {
		case net == want:
			score += scoreAmountExact
		case withinPercent(abs64(net), abs64(want), 1):
			score += scoreAmountWithin1
		case withinPercent(abs64(net), abs64(want), 5):
			score += scoreAmountWithin5
		}
	}

	dayDiff := daysApart(txn.PostedDate, activity.EffectiveDate)
	switch {
	case dayDiff == 0:
		score += scoreSameDay
	case dayDiff <= 1:
		score += scoreWithin1Day
	case dayDiff <= 3:
		score += scoreWithin3Days
	}

	if txn.BankRef != "" {
		if strings.Contains(activity.CorrelationID, txn.BankRef) {
			score += scoreRefInCorr
		}
		if strings.Contains(activity.Memos, txn.BankRef) {
			score += scoreRefInMemo
		}
	}
	if activity.CorrelationID != "" &&
		strings.Contains(strings.ToLower(txn.Description), strings.ToLower(activity.CorrelationID)) {
		score += scoreCorrInBankDesc
	}
	return score
}

// RankCandidates scores every cash event and keeps the top three, best first.
func RankCandidates(txn BankTxn, activities []ledger.CashActivity) []Candidate {
	candidates := make([]Candidate, 0, len(activities))
	for _, a := range activities {
		candidates = append(candidates, Candidate{
			BankTxnID:     txn.ID,
			EventID:       a.EventID,
			CorrelationID: a.CorrelationID,
			NetMinor:      a.NetMinor,
			Score:         Score(txn, a),
		})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})
	if len(candidates) > maxCandidates {
		candidates = candidates[:maxCandidates]
	}
	return candidates
}

func sameDirection(a, b int64) bool {
	return (a > 0 && b > 0) || (a < 0 && b < 0)
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

func withinPercent(a, b int64, pct int64) bool {
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	return diff*100 <= b*pct
}

func daysApart(a, b time.Time) int {
	diff := a.Unix() - b.Unix()
	if diff < 0 {
		diff = -diff
	}
	return int(diff / 86_400)
}

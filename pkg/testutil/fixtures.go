package testutil

import (
	"github.com/google/uuid"
)

// Fixed UUIDs for deterministic testing.
var (
	TestLoanID        = uuid.MustParse("00000000-0000-0000-0000-000000000017")
	TestLoanID2       = uuid.MustParse("00000000-0000-0000-0000-000000000018")
	TestPaymentID     = uuid.MustParse("00000000-0000-0000-0000-000000000021")
	TestBankAccountID = uuid.MustParse("00000000-0000-0000-0000-000000000030")
	TestEscrowItemID  = uuid.MustParse("00000000-0000-0000-0000-000000000040")
)

package reconcile

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// BAI2 record codes.
const (
	bai2FileHeader   = "01"
	bai2GroupHeader  = "02"
	bai2AccountIdent = "03"
	bai2TxnDetail    = "16"
	bai2Continuation = "88"
	bai2AccountTrail = "49"
	bai2GroupTrail   = "98"
	bai2FileTrail    = "99"
)

// ParseBAI2 reads a line-oriented BAI2 statement. An 03 record selects the
// current account; 16 records become transactions; 88 records continue the
// previous transaction's description. Amounts are already in minor units.
func ParseBAI2(r io.Reader) ([]BankTxn, error) {
	scanner := bufio.NewScanner(r)

	var (
		txns           []BankTxn
		currentAccount string
		defaultDate    time.Time
		lineNo         int
	)

	for scanner.Scan() {
		lineNo++
		line := strings.TrimSuffix(strings.TrimSpace(scanner.Text()), "/")
		if line == "" {
			continue
		}
		fields := strings.Split(line, ",")

		switch fields[0] {
		case bai2FileHeader:
			if len(fields) > 3 {
				if d, err := parseBAI2Date(fields[3]); err == nil {
					defaultDate = d
				}
			}
		case bai2AccountIdent:
			if len(fields) < 2 || fields[1] == "" {
				return nil, fmt.Errorf("bai2 line %d: account identifier without account", lineNo)
			}
			currentAccount = fields[1]
		case bai2TxnDetail:
			if currentAccount == "" {
				return nil, fmt.Errorf("bai2 line %d: transaction before account identifier", lineNo)
			}
			txn, err := parseBAI2Txn(fields, currentAccount, defaultDate)
			if err != nil {
				return nil, fmt.Errorf("bai2 line %d: %w", lineNo, err)
			}
			txns = append(txns, txn)
		case bai2Continuation:
			if len(txns) > 0 && len(fields) > 1 {
				txns[len(txns)-1].Description = strings.TrimSpace(
					txns[len(txns)-1].Description + " " + strings.Join(fields[1:], ","))
			}
		case bai2GroupHeader, bai2AccountTrail, bai2GroupTrail, bai2FileTrail:
			// Headers and control totals carry nothing the matcher needs.
		default:
			return nil, fmt.Errorf("bai2 line %d: unknown record code %q", lineNo, fields[0])
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read bai2: %w", err)
	}
	return txns, nil
}

func parseBAI2Txn(fields []string, account string, defaultDate time.Time) (BankTxn, error) {
	if len(fields) < 5 {
		return BankTxn{}, fmt.Errorf("transaction record has %d fields, want at least 5", len(fields))
	}

	amount, err := strconv.ParseInt(strings.TrimSpace(fields[2]), 10, 64)
	if err != nil {
		return BankTxn{}, fmt.Errorf("amount %q: %w", fields[2], err)
	}

	txnType := typeForCode(strings.TrimSpace(fields[1]))
	// A negative amount flips the direction of amount-signed codes.
	if amount < 0 {
		amount = -amount
		switch txnType {
		case TxnCredit:
			txnType = TxnDebit
		case TxnDebit:
			txnType = TxnCredit
		}
	}

	posted := defaultDate
	if len(fields) > 5 && strings.TrimSpace(fields[5]) != "" {
		posted, err = parseBAI2Date(strings.TrimSpace(fields[5]))
		if err != nil {
			return BankTxn{}, err
		}
	}
	if posted.IsZero() {
		return BankTxn{}, fmt.Errorf("transaction has no date and the file header carried none")
	}

	return BankTxn{
		Account:     account,
		PostedDate:  posted,
		AmountMinor: amount,
		Type:        txnType,
		BankRef:     strings.TrimSpace(fields[3]),
		Description: strings.TrimSpace(fields[4]),
		Status:      TxnUnmatched,
	}, nil
}

// typeForCode maps a BAI2 type code's first digit to a transaction type.
func typeForCode(code string) TxnType {
	if code == "" {
		return TxnCredit
	}
	switch code[0] {
	case '1', '2':
		return TxnCredit
	case '4', '5':
		return TxnDebit
	case '6':
		return TxnFee
	case '7':
		return TxnReturn
	default:
		return TxnCredit
	}
}

// parseBAI2Date parses YYMMDD with a pivot: YY < 50 is 20YY, else 19YY.
func parseBAI2Date(s string) (time.Time, error) {
	if len(s) != 6 {
		return time.Time{}, fmt.Errorf("date %q: want YYMMDD", s)
	}
	yy, err := strconv.Atoi(s[0:2])
	if err != nil {
		return time.Time{}, fmt.Errorf("date %q: %w", s, err)
	}
	mm, err := strconv.Atoi(s[2:4])
	if err != nil {
		return time.Time{}, fmt.Errorf("date %q: %w", s, err)
	}
	dd, err := strconv.Atoi(s[4:6])
	if err != nil {
		return time.Time{}, fmt.Errorf("date %q: %w", s, err)
	}

	year := 1900 + yy
	if yy < 50 {
		year = 2000 + yy
	}
	if mm < 1 || mm > 12 || dd < 1 || dd > 31 {
		return time.Time{}, fmt.Errorf("date %q: out of range", s)
	}
	return time.Date(year, time.Month(mm), dd, 0, 0, 0, 0, time.UTC), nil
}

package ach

import (
	"fmt"
	"strings"
	"time"
)

const (
	recordLength   = 94
	blockingFactor = 10

	serviceClassMixed   = "200"
	serviceClassCredits = "220"
	serviceClassDebits  = "225"
)

// FileParams identifies both endpoints of a generated NACHA file.
type FileParams struct {
	ImmediateDestination string
	ImmediateOrigin      string
	DestinationName      string
	OriginName           string
	ODFIRouting          string
	FileIDModifier       string
	CreatedAt            time.Time
}

// BuildFile renders sealed batches as a NACHA formatted file. Records are
// fixed at 94 characters and the file pads with 9-filled lines to a
// multiple of the blocking factor.
func BuildFile(p FileParams, batches []Batch) (string, error) {
	if !validRouting(p.ODFIRouting) {
		return "", fmt.Errorf("%w: odfi %q", ErrInvalidRouting, p.ODFIRouting)
	}
	if len(batches) == 0 {
		return "", fmt.Errorf("no batches to file")
	}
	for _, b := range batches {
		if b.Status != BatchSealed {
			return "", fmt.Errorf("%w: batch %s is %s", ErrBatchNotSealed, b.ID, b.Status)
		}
	}
	if p.FileIDModifier == "" {
		p.FileIDModifier = "A"
	}

	var lines []string
	lines = append(lines, fileHeader(p))

	var (
		totalEntries int
		totalDebit   int64
		totalCredit  int64
		totalHash    int64
	)
	for _, b := range batches {
		lines = append(lines, batchHeader(b, p.ODFIRouting))
		for _, e := range b.Entries {
			lines = append(lines, entryDetail(e))
		}
		lines = append(lines, batchControl(b, p.ODFIRouting))

		totalEntries += len(b.Entries)
		totalDebit += b.TotalDebitMinor
		totalCredit += b.TotalCreditMinor
		totalHash += b.EntryHash
	}
	totalHash %= 10_000_000_000

	blockCount := (len(lines) + 1 + blockingFactor - 1) / blockingFactor
	lines = append(lines, fileControl(len(batches), blockCount, totalEntries, totalHash, totalDebit, totalCredit))

	for len(lines)%blockingFactor != 0 {
		lines = append(lines, strings.Repeat("9", recordLength))
	}
	return strings.Join(lines, "\n") + "\n", nil
}

func fileHeader(p FileParams) string {
	created := p.CreatedAt.UTC()
	return "1" + // record type
		"01" + // priority code
		padLeft(p.ImmediateDestination, 10) +
		padLeft(p.ImmediateOrigin, 10) +
		created.Format("060102") +
		created.Format("1504") +
		padRight(p.FileIDModifier, 1) +
		"094" + // record size
		"10" + // blocking factor
		"1" + // format code
		padRight(p.DestinationName, 23) +
		padRight(p.OriginName, 23) +
		padRight("", 8) // reference code
}

func batchHeader(b Batch, odfiRouting string) string {
	return "5" +
		serviceClass(b) +
		padRight(b.CompanyName, 16) +
		padRight("", 20) + // discretionary data
		padRight(b.CompanyID, 10) +
		string(b.SEC) +
		padRight(b.Description, 10) +
		padRight("", 6) + // company descriptive date
		b.EffectiveDate.Format("060102") +
		padRight("", 3) + // settlement date, filled by the ACH operator
		"1" + // originator status code
		odfiRouting[:8] +
		zeroPad(int64(b.BatchNumber), 7)
}

func entryDetail(e Entry) string {
	individualID := ""
	if e.LoanID != nil {
		individualID = e.LoanID.String()[:15]
	}
	return "6" +
		fmt.Sprintf("%02d", e.TxnCode) +
		e.RDFIRouting[:8] +
		e.RDFIRouting[8:9] + // check digit
		padRight(e.AccountNumber, 17) +
		zeroPad(e.AmountMinor, 10) +
		padRight(individualID, 15) +
		padRight(e.IndividualName, 22) +
		padRight("", 2) + // discretionary data
		"0" + // no addenda
		e.TraceNumber
}

func batchControl(b Batch, odfiRouting string) string {
	return "8" +
		serviceClass(b) +
		zeroPad(int64(len(b.Entries)), 6) +
		zeroPad(b.EntryHash, 10) +
		zeroPad(b.TotalDebitMinor, 12) +
		zeroPad(b.TotalCreditMinor, 12) +
		padRight(b.CompanyID, 10) +
		padRight("", 19) + // message authentication code and reserved
		odfiRouting[:8] +
		zeroPad(int64(b.BatchNumber), 7)
}

func fileControl(batchCount, blockCount, entryCount int, hash, debit, credit int64) string {
	return "9" +
		zeroPad(int64(batchCount), 6) +
		zeroPad(int64(blockCount), 6) +
		zeroPad(int64(entryCount), 8) +
		zeroPad(hash, 10) +
		zeroPad(debit, 12) +
		zeroPad(credit, 12) +
		padRight("", 39) // reserved
}

func serviceClass(b Batch) string {
	switch {
	case b.TotalDebitMinor > 0 && b.TotalCreditMinor > 0:
		return serviceClassMixed
	case b.TotalDebitMinor > 0:
		return serviceClassDebits
	default:
		return serviceClassCredits
	}
}

func padRight(s string, width int) string {
	if len(s) > width {
		return s[:width]
	}
	return s + strings.Repeat(" ", width-len(s))
}

func padLeft(s string, width int) string {
	if len(s) > width {
		return s[:width]
	}
	return strings.Repeat(" ", width-len(s)) + s
}

func zeroPad(n int64, width int) string {
	return fmt.Sprintf("%0*d", width, n)
}

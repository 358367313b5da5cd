package reconcile_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cschwartz85032/loanserve-sub003/internal/reconcile"
)

const camt053Sample = `<?xml version="1.0" encoding="UTF-8"?>
<Document xmlns="urn:iso:std:iso:20022:tech:xsd:camt.053.001.02">
  <BkToCstmrStmt>
    <Stmt>
      <Acct><Id><Othr><Id>0975312468</Id></Othr></Id></Acct>
      <Ntry>
        <Amt Ccy="USD">1498.88</Amt>
        <CdtDbtInd>CRDT</CdtDbtInd>
        <BookgDt><Dt>2025-03-10</Dt></BookgDt>
        <ValDt><Dt>2025-03-11</Dt></ValDt>
        <AcctSvcrRef>REF742</AcctSvcrRef>
        <AddtlNtryInf>Lockbox deposit payment:loan:abc:gw:TXN9</AddtlNtryInf>
      </Ntry>
      <Ntry>
        <Amt Ccy="USD">35.00</Amt>
        <CdtDbtInd>DBIT</CdtDbtInd>
        <ValDt><Dt>2025-03-12</Dt></ValDt>
        <AcctSvcrRef>FEE88</AcctSvcrRef>
        <AddtlNtryInf>Monthly analysis charge</AddtlNtryInf>
      </Ntry>
    </Stmt>
  </BkToCstmrStmt>
</Document>`

func TestParseCAMT053(t *testing.T) {
	txns, err := reconcile.ParseCAMT053(strings.NewReader(camt053Sample))
	require.NoError(t, err)
	require.Len(t, txns, 2)

	// Booking date wins over value date when both appear.
	assert.Equal(t, "0975312468", txns[0].Account)
	assert.Equal(t, int64(149_888), txns[0].AmountMinor)
	assert.Equal(t, reconcile.TxnCredit, txns[0].Type)
	assert.Equal(t, time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC), txns[0].PostedDate)
	assert.Equal(t, "REF742", txns[0].BankRef)

	// Value date fills in when the booking date is absent.
	assert.Equal(t, int64(3_500), txns[1].AmountMinor)
	assert.Equal(t, reconcile.TxnDebit, txns[1].Type)
	assert.Equal(t, time.Date(2025, time.March, 12, 0, 0, 0, 0, time.UTC), txns[1].PostedDate)
}

func TestParseCAMT053_IBANAccount(t *testing.T) {
	input := `<Document><BkToCstmrStmt><Stmt>
		<Acct><Id><IBAN>DE89370400440532013000</IBAN></Id></Acct>
		<Ntry>
			<Amt Ccy="EUR">100.00</Amt>
			<CdtDbtInd>CRDT</CdtDbtInd>
			<BookgDt><Dt>2025-04-01</Dt></BookgDt>
		</Ntry>
	</Stmt></BkToCstmrStmt></Document>`
	txns, err := reconcile.ParseCAMT053(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, txns, 1)
	assert.Equal(t, "DE89370400440532013000", txns[0].Account)
	assert.Equal(t, int64(10_000), txns[0].AmountMinor)
}

func TestParseCAMT053_MissingDates(t *testing.T) {
	input := `<Document><BkToCstmrStmt><Stmt>
		<Acct><Id><Othr><Id>X</Id></Othr></Id></Acct>
		<Ntry><Amt Ccy="USD">1.00</Amt><CdtDbtInd>CRDT</CdtDbtInd></Ntry>
	</Stmt></BkToCstmrStmt></Document>`
	_, err := reconcile.ParseCAMT053(strings.NewReader(input))
	assert.ErrorContains(t, err, "neither booking nor value date")
}

func TestParseCAMT053_MissingAccount(t *testing.T) {
	input := `<Document><BkToCstmrStmt><Stmt><Ntry>
		<Amt Ccy="USD">1.00</Amt><CdtDbtInd>CRDT</CdtDbtInd>
		<BookgDt><Dt>2025-04-01</Dt></BookgDt>
	</Ntry></Stmt></BkToCstmrStmt></Document>`
	_, err := reconcile.ParseCAMT053(strings.NewReader(input))
	assert.ErrorContains(t, err, "without account id")
}

package reconcile

import (
	"encoding/xml"
	"fmt"
	"io"

	"github.com/shopspring/decimal"

	"github.com/cschwartz85032/loanserve-sub003/pkg/money"
)

// camt053Document mirrors the subset of the ISO 20022 bank-to-customer
// statement the matcher consumes.
type camt053Document struct {
	XMLName    xml.Name           `xml:"Document"`
	Statements []camt053Statement `xml:"BkToCstmrStmt>Stmt"`
}

type camt053Statement struct {
	Account camt053Account `xml:"Acct"`
	Entries []camt053Entry `xml:"Ntry"`
}

type camt053Account struct {
	IBAN  string `xml:"Id>IBAN"`
	Other string `xml:"Id>Othr>Id"`
}

func (a camt053Account) id() string {
	if a.IBAN != "" {
		return a.IBAN
	}
	return a.Other
}

type camt053Entry struct {
	Amount       camt053Amount `xml:"Amt"`
	CdtDbtInd    string        `xml:"CdtDbtInd"`
	BookingDate  string        `xml:"BookgDt>Dt"`
	ValueDate    string        `xml:"ValDt>Dt"`
	ServicerRef  string        `xml:"AcctSvcrRef"`
	AdditionalNf string        `xml:"AddtlNtryInf"`
}

type camt053Amount struct {
	Currency string `xml:"Ccy,attr"`
	Value    string `xml:",chardata"`
}

// ParseCAMT053 reads an ISO 20022 camt.053 statement. Booking date wins over
// value date; amounts convert from decimal major units to minor.
func ParseCAMT053(r io.Reader) ([]BankTxn, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read camt053: %w", err)
	}

	var doc camt053Document
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal camt053: %w", err)
	}

	var txns []BankTxn
	for _, stmt := range doc.Statements {
		account := stmt.Account.id()
		if account == "" {
			return nil, fmt.Errorf("camt053 statement without account id")
		}
		for i, entry := range stmt.Entries {
			txn, err := entry.toBankTxn(account)
			if err != nil {
				return nil, fmt.Errorf("camt053 entry %d: %w", i+1, err)
			}
			txns = append(txns, txn)
		}
	}
	return txns, nil
}

func (e camt053Entry) toBankTxn(account string) (BankTxn, error) {
	amount, err := decimal.NewFromString(e.Amount.Value)
	if err != nil {
		return BankTxn{}, fmt.Errorf("amount %q: %w", e.Amount.Value, err)
	}
	minor := amount.Shift(2).Round(0).IntPart()
	if minor < 0 {
		minor = -minor
	}

	txnType := TxnDebit
	if e.CdtDbtInd == "CRDT" {
		txnType = TxnCredit
	}

	dateStr := e.BookingDate
	if dateStr == "" {
		dateStr = e.ValueDate
	}
	if dateStr == "" {
		return BankTxn{}, fmt.Errorf("entry has neither booking nor value date")
	}
	posted, err := money.ParseDate(dateStr)
	if err != nil {
		return BankTxn{}, err
	}

	return BankTxn{
		Account:     account,
		PostedDate:  posted,
		AmountMinor: minor,
		Type:        txnType,
		BankRef:     e.ServicerRef,
		Description: e.AdditionalNf,
		Status:      TxnUnmatched,
	}, nil
}

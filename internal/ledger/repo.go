package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	pgpkg "github.com/cschwartz85032/loanserve-sub003/pkg/postgres"
)

// Repo persists ledger events and derives balances with PostgreSQL.
// Write methods take a Querier so callers can compose them into their own
// transaction together with stage tables and the outbox.
type Repo struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

// Pool exposes the underlying pool for callers that open their own transactions.
func (r *Repo) Pool() *pgxpool.Pool {
	return r.pool
}

// InsertEvent writes the event row. A duplicate correlation id surfaces as
// ErrDuplicateCorrelation.
func (r *Repo) InsertEvent(ctx context.Context, q pgpkg.Querier, ev Event) error {
	_, err := q.Exec(ctx, `
		INSERT INTO ledger_events (event_id, loan_id, effective_date, schema, correlation_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, ev.EventID, ev.LoanID, ev.EffectiveDate, ev.Schema, ev.CorrelationID, ev.CreatedAt)
	if err != nil {
		if pgpkg.IsUniqueViolation(err, "ledger_events_correlation_id_key") {
			return fmt.Errorf("%w: %s", ErrDuplicateCorrelation, ev.CorrelationID)
		}
		return fmt.Errorf("insert ledger event: %w", err)
	}
	return nil
}

// InsertLines writes the entry rows for an event.
func (r *Repo) InsertLines(ctx context.Context, q pgpkg.Querier, eventID uuid.UUID, lines []Line) error {
	for i, l := range lines {
		_, err := q.Exec(ctx, `
			INSERT INTO ledger_entries (event_id, seq_num, account, debit_minor, credit_minor, currency, memo)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, eventID, i+1, string(l.Account), l.DebitMinor, l.CreditMinor, l.Currency, l.Memo)
		if err != nil {
			return fmt.Errorf("insert ledger entry %d: %w", i, err)
		}
	}
	return nil
}

// Finalize marks the event finalized via the ledger_finalize_event function,
// which repeats the balance check inside the same transaction.
func (r *Repo) Finalize(ctx context.Context, q pgpkg.Querier, eventID uuid.UUID) (time.Time, error) {
	var finalizedAt time.Time
	err := q.QueryRow(ctx, `SELECT ledger_finalize_event($1)`, eventID).Scan(&finalizedAt)
	if err != nil {
		return time.Time{}, fmt.Errorf("finalize ledger event %s: %w", eventID, err)
	}
	return finalizedAt, nil
}

// FindByCorrelation loads a finalized event by its correlation id.
func (r *Repo) FindByCorrelation(ctx context.Context, correlationID string) (Event, error) {
	var ev Event
	err := r.pool.QueryRow(ctx, `
		SELECT event_id, loan_id, effective_date, schema, correlation_id, finalized_at, created_at
		FROM ledger_events
		WHERE correlation_id = $1 AND finalized_at IS NOT NULL
	`, correlationID).Scan(&ev.EventID, &ev.LoanID, &ev.EffectiveDate, &ev.Schema,
		&ev.CorrelationID, &ev.FinalizedAt, &ev.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Event{}, ErrEventNotFound
		}
		return Event{}, fmt.Errorf("query event by correlation: %w", err)
	}

	lines, err := r.loadLines(ctx, ev.EventID)
	if err != nil {
		return Event{}, err
	}
	ev.Lines = lines
	return ev, nil
}

// FindByID loads an event with its lines.
func (r *Repo) FindByID(ctx context.Context, eventID uuid.UUID) (Event, error) {
	var ev Event
	err := r.pool.QueryRow(ctx, `
		SELECT event_id, loan_id, effective_date, schema, correlation_id, finalized_at, created_at
		FROM ledger_events
		WHERE event_id = $1
	`, eventID).Scan(&ev.EventID, &ev.LoanID, &ev.EffectiveDate, &ev.Schema,
		&ev.CorrelationID, &ev.FinalizedAt, &ev.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Event{}, ErrEventNotFound
		}
		return Event{}, fmt.Errorf("query event %s: %w", eventID, err)
	}

	lines, err := r.loadLines(ctx, eventID)
	if err != nil {
		return Event{}, err
	}
	ev.Lines = lines
	return ev, nil
}

func (r *Repo) loadLines(ctx context.Context, eventID uuid.UUID) ([]Line, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT account, debit_minor, credit_minor, currency, memo
		FROM ledger_entries WHERE event_id = $1 ORDER BY seq_num
	`, eventID)
	if err != nil {
		return nil, fmt.Errorf("query ledger entries: %w", err)
	}
	defer rows.Close()

	var lines []Line
	for rows.Next() {
		var l Line
		var account string
		if err := rows.Scan(&account, &l.DebitMinor, &l.CreditMinor, &l.Currency, &l.Memo); err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		l.Account = Account(account)
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

// AccountBalance derives sum(debit) - sum(credit) for one loan and account
// over finalized entries only.
func (r *Repo) AccountBalance(ctx context.Context, loanID uuid.UUID, account Account) (int64, error) {
	var balance int64
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(le.debit_minor - le.credit_minor), 0)
		FROM ledger_entries le
		JOIN ledger_events ev ON ev.event_id = le.event_id
		WHERE ev.loan_id = $1 AND le.account = $2 AND ev.finalized_at IS NOT NULL
	`, loanID, string(account)).Scan(&balance)
	if err != nil {
		return 0, fmt.Errorf("derive balance %s/%s: %w", loanID, account, err)
	}
	return balance, nil
}

// LoanBalances derives the standard per-loan balance set in one pass.
func (r *Repo) LoanBalances(ctx context.Context, loanID uuid.UUID) (Balances, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT le.account, COALESCE(SUM(le.debit_minor - le.credit_minor), 0)
		FROM ledger_entries le
		JOIN ledger_events ev ON ev.event_id = le.event_id
		WHERE ev.loan_id = $1 AND ev.finalized_at IS NOT NULL
		GROUP BY le.account
	`, loanID)
	if err != nil {
		return Balances{}, fmt.Errorf("derive loan balances: %w", err)
	}
	defer rows.Close()

	var b Balances
	for rows.Next() {
		var account string
		var net int64
		if err := rows.Scan(&account, &net); err != nil {
			return Balances{}, fmt.Errorf("scan loan balance: %w", err)
		}
		switch Account(account) {
		case AccountLoanPrincipal:
			b.Principal = net
		case AccountInterestReceivable:
			b.InterestReceivable = net
		case AccountEscrowLiability:
			// Liability accounts are credit-normal; report the credit balance.
			b.EscrowLiability = -net
		case AccountFeesReceivable:
			b.FeesReceivable = net
		case AccountCash:
			b.Cash = net
		}
	}
	return b, rows.Err()
}

// TrialBalance aggregates all finalized entries grouped by account.
func (r *Repo) TrialBalance(ctx context.Context) ([]TrialBalanceRow, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT le.account, COALESCE(SUM(le.debit_minor), 0), COALESCE(SUM(le.credit_minor), 0)
		FROM ledger_entries le
		JOIN ledger_events ev ON ev.event_id = le.event_id
		WHERE ev.finalized_at IS NOT NULL
		GROUP BY le.account
		ORDER BY le.account
	`)
	if err != nil {
		return nil, fmt.Errorf("trial balance: %w", err)
	}
	defer rows.Close()

	var out []TrialBalanceRow
	for rows.Next() {
		var row TrialBalanceRow
		var account string
		if err := rows.Scan(&account, &row.DebitMinor, &row.CreditMinor); err != nil {
			return nil, fmt.Errorf("scan trial balance row: %w", err)
		}
		row.Account = Account(account)
		out = append(out, row)
	}
	return out, rows.Err()
}

// CashActivity is the per-event net cash movement used for reconciliation
// candidate scoring.
type CashActivity struct {
	EventID       uuid.UUID
	CorrelationID string
	EffectiveDate time.Time
	NetMinor      int64
	Memos         string
}

// CashActivityBetween sums cash-account entries per finalized event inside
// the date window.
func (r *Repo) CashActivityBetween(ctx context.Context, from, to time.Time) ([]CashActivity, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT ev.event_id, ev.correlation_id, ev.effective_date,
		       COALESCE(SUM(le.debit_minor - le.credit_minor), 0),
		       COALESCE(STRING_AGG(le.memo, ' '), '')
		FROM ledger_entries le
		JOIN ledger_events ev ON ev.event_id = le.event_id
		WHERE le.account = $1
		  AND ev.finalized_at IS NOT NULL
		  AND ev.effective_date BETWEEN $2 AND $3
		GROUP BY ev.event_id, ev.correlation_id, ev.effective_date
	`, string(AccountCash), from, to)
	if err != nil {
		return nil, fmt.Errorf("query cash activity: %w", err)
	}
	defer rows.Close()

	var out []CashActivity
	for rows.Next() {
		var ca CashActivity
		if err := rows.Scan(&ca.EventID, &ca.CorrelationID, &ca.EffectiveDate, &ca.NetMinor, &ca.Memos); err != nil {
			return nil, fmt.Errorf("scan cash activity: %w", err)
		}
		out = append(out, ca)
	}
	return out, rows.Err()
}

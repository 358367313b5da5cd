package ach

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cschwartz85032/loanserve-sub003/pkg/events"
	pgpkg "github.com/cschwartz85032/loanserve-sub003/pkg/postgres"
)

// Repo persists batches, entries, and returns.
type Repo struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

// SaveBatch upserts the batch row and replaces its entries. Sealed trace
// numbers and totals land here in one transaction.
func (r *Repo) SaveBatch(ctx context.Context, b Batch) error {
	return pgpkg.WithTransaction(ctx, r.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO ach_batches (id, batch_number, company_name, company_id, sec_code,
				description, effective_date, status, total_debit_minor, total_credit_minor,
				entry_hash, created_at, sealed_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
			ON CONFLICT (id) DO UPDATE SET
				status = EXCLUDED.status,
				total_debit_minor = EXCLUDED.total_debit_minor,
				total_credit_minor = EXCLUDED.total_credit_minor,
				entry_hash = EXCLUDED.entry_hash,
				sealed_at = EXCLUDED.sealed_at
		`, b.ID, b.BatchNumber, b.CompanyName, b.CompanyID, string(b.SEC),
			b.Description, b.EffectiveDate, string(b.Status), b.TotalDebitMinor,
			b.TotalCreditMinor, b.EntryHash, b.CreatedAt, b.SealedAt)
		if err != nil {
			return fmt.Errorf("upsert ach batch: %w", err)
		}

		if _, err := tx.Exec(ctx, `DELETE FROM ach_entries WHERE batch_id = $1`, b.ID); err != nil {
			return fmt.Errorf("clear ach entries: %w", err)
		}
		for _, e := range b.Entries {
			_, err := tx.Exec(ctx, `
				INSERT INTO ach_entries (id, batch_id, loan_id, txn_code, rdfi_routing,
					account_number, amount_minor, individual_name, trace_number)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			`, e.ID, e.BatchID, e.LoanID, e.TxnCode, e.RDFIRouting,
				e.AccountNumber, e.AmountMinor, e.IndividualName, e.TraceNumber)
			if err != nil {
				return fmt.Errorf("insert ach entry: %w", err)
			}
		}
		return nil
	})
}

// FindBatch loads a batch with its entries in detail order.
func (r *Repo) FindBatch(ctx context.Context, id uuid.UUID) (Batch, error) {
	var b Batch
	var status, sec string
	err := r.pool.QueryRow(ctx, `
		SELECT id, batch_number, company_name, company_id, sec_code, description,
		       effective_date, status, total_debit_minor, total_credit_minor,
		       entry_hash, created_at, sealed_at
		FROM ach_batches WHERE id = $1
	`, id).Scan(&b.ID, &b.BatchNumber, &b.CompanyName, &b.CompanyID, &sec,
		&b.Description, &b.EffectiveDate, &status, &b.TotalDebitMinor,
		&b.TotalCreditMinor, &b.EntryHash, &b.CreatedAt, &b.SealedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Batch{}, ErrBatchNotFound
		}
		return Batch{}, fmt.Errorf("query ach batch %s: %w", id, err)
	}
	b.SEC = SECCode(sec)
	b.Status = BatchStatus(status)

	rows, err := r.pool.Query(ctx, `
		SELECT id, batch_id, loan_id, txn_code, rdfi_routing, account_number,
		       amount_minor, individual_name, trace_number
		FROM ach_entries WHERE batch_id = $1 ORDER BY trace_number, id
	`, id)
	if err != nil {
		return Batch{}, fmt.Errorf("query ach entries: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.BatchID, &e.LoanID, &e.TxnCode, &e.RDFIRouting,
			&e.AccountNumber, &e.AmountMinor, &e.IndividualName, &e.TraceNumber); err != nil {
			return Batch{}, fmt.Errorf("scan ach entry: %w", err)
		}
		b.Entries = append(b.Entries, e)
	}
	return b, rows.Err()
}

// SealedBatches lists batches awaiting file generation, oldest first.
func (r *Repo) SealedBatches(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id FROM ach_batches WHERE status = 'sealed' ORDER BY created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("query sealed ach batches: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan ach batch id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// NextBatchNumber hands out a monotonically increasing batch number.
func (r *Repo) NextBatchNumber(ctx context.Context) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(MAX(batch_number), 0) + 1 FROM ach_batches
	`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("next ach batch number: %w", err)
	}
	return n, nil
}

// UpdateStatus moves a batch along its lifecycle.
func (r *Repo) UpdateStatus(ctx context.Context, id uuid.UUID, status BatchStatus) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE ach_batches SET status = $2 WHERE id = $1
	`, id, string(status))
	if err != nil {
		return fmt.Errorf("update ach batch status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrBatchNotFound
	}
	return nil
}

// FindEntryByTrace resolves a return's trace number to its entry.
func (r *Repo) FindEntryByTrace(ctx context.Context, traceNumber string) (Entry, error) {
	var e Entry
	err := r.pool.QueryRow(ctx, `
		SELECT id, batch_id, loan_id, txn_code, rdfi_routing, account_number,
		       amount_minor, individual_name, trace_number
		FROM ach_entries WHERE trace_number = $1
	`, traceNumber).Scan(&e.ID, &e.BatchID, &e.LoanID, &e.TxnCode, &e.RDFIRouting,
		&e.AccountNumber, &e.AmountMinor, &e.IndividualName, &e.TraceNumber)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Entry{}, ErrEntryNotFound
		}
		return Entry{}, fmt.Errorf("query ach entry by trace %q: %w", traceNumber, err)
	}
	return e, nil
}

// InsertReturn records a return once per entry and code; false means it was
// already recorded.
func (r *Repo) InsertReturn(ctx context.Context, ret Return) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO ach_returns (id, entry_id, trace_number, code, disposition, retry_at, received_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (entry_id, code) DO NOTHING
	`, ret.ID, ret.EntryID, ret.TraceNumber, ret.Code, string(ret.Disposition), ret.RetryAt, ret.ReceivedAt)
	if err != nil {
		return false, fmt.Errorf("insert ach return: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// InsertException opens an exception for a return; at most one per return.
func (r *Repo) InsertException(ctx context.Context, exc ReturnException) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO ach_exceptions (id, return_id, trace_number, code, status, created_at, resolved_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (return_id) DO NOTHING
	`, exc.ID, exc.ReturnID, exc.TraceNumber, exc.Code, exc.Status, exc.CreatedAt, exc.ResolvedAt)
	if err != nil {
		return fmt.Errorf("insert ach exception: %w", err)
	}
	return nil
}

// InsertOutbox writes an outbox entry on the repo's own connection.
func (r *Repo) InsertOutbox(ctx context.Context, entry events.OutboxEntry) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO outbox (id, event_id, topic, payload, created_at, attempt_count)
		VALUES ($1, $2, $3, $4, $5, 0)
	`, entry.ID, entry.EventID, entry.Topic, entry.Payload, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert outbox entry: %w", err)
	}
	return nil
}

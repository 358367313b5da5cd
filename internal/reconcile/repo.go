package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cschwartz85032/loanserve-sub003/pkg/events"
)

var (
	ErrTxnNotFound       = errors.New("bank transaction not found")
	ErrExceptionNotFound = errors.New("reconciliation exception not found")
)

// Repo persists statement files, bank transactions, candidates, and
// exceptions.
type Repo struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

// InsertStatement records the file; false means the hash was seen before.
func (r *Repo) InsertStatement(ctx context.Context, f StatementFile) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO statement_files (id, format, sha256, txn_count, ingested_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (sha256) DO NOTHING
	`, f.ID, string(f.Format), f.SHA256, f.TxnCount, f.IngestedAt)
	if err != nil {
		return false, fmt.Errorf("insert statement file: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *Repo) InsertTxn(ctx context.Context, t BankTxn) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO bank_txns (id, statement_id, account, posted_date, amount_minor,
			type, bank_ref, description, status, matched_event_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, t.ID, t.StatementID, t.Account, t.PostedDate, t.AmountMinor,
		string(t.Type), t.BankRef, t.Description, string(t.Status), t.MatchedEventID)
	if err != nil {
		return fmt.Errorf("insert bank txn: %w", err)
	}
	return nil
}

func (r *Repo) FindTxn(ctx context.Context, id uuid.UUID) (BankTxn, error) {
	var t BankTxn
	var txnType, status string
	err := r.pool.QueryRow(ctx, `
		SELECT id, statement_id, account, posted_date, amount_minor, type,
		       bank_ref, description, status, matched_event_id
		FROM bank_txns WHERE id = $1
	`, id).Scan(&t.ID, &t.StatementID, &t.Account, &t.PostedDate, &t.AmountMinor,
		&txnType, &t.BankRef, &t.Description, &status, &t.MatchedEventID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return BankTxn{}, ErrTxnNotFound
		}
		return BankTxn{}, fmt.Errorf("query bank txn %s: %w", id, err)
	}
	t.Type = TxnType(txnType)
	t.Status = TxnStatus(status)
	return t, nil
}

// UnmatchedTxns lists transactions awaiting a match, oldest first.
func (r *Repo) UnmatchedTxns(ctx context.Context, limit int) ([]BankTxn, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, statement_id, account, posted_date, amount_minor, type,
		       bank_ref, description, status, matched_event_id
		FROM bank_txns WHERE status = 'unmatched'
		ORDER BY posted_date, id
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query unmatched txns: %w", err)
	}
	defer rows.Close()

	var out []BankTxn
	for rows.Next() {
		var t BankTxn
		var txnType, status string
		if err := rows.Scan(&t.ID, &t.StatementID, &t.Account, &t.PostedDate, &t.AmountMinor,
			&txnType, &t.BankRef, &t.Description, &status, &t.MatchedEventID); err != nil {
			return nil, fmt.Errorf("scan bank txn: %w", err)
		}
		t.Type = TxnType(txnType)
		t.Status = TxnStatus(status)
		out = append(out, t)
	}
	return out, rows.Err()
}

// MarkMatched links the transaction to its ledger event.
func (r *Repo) MarkMatched(ctx context.Context, txnID, eventID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE bank_txns SET status = 'matched', matched_event_id = $2
		WHERE id = $1 AND status = 'unmatched'
	`, txnID, eventID)
	if err != nil {
		return fmt.Errorf("mark txn matched: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("bank txn %s is not unmatched", txnID)
	}
	return nil
}

// ReplaceCandidates swaps the stored candidate set for a transaction.
func (r *Repo) ReplaceCandidates(ctx context.Context, txnID uuid.UUID, candidates []Candidate) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM match_candidates WHERE bank_txn_id = $1`, txnID); err != nil {
		return fmt.Errorf("clear match candidates: %w", err)
	}
	for _, c := range candidates {
		if _, err := tx.Exec(ctx, `
			INSERT INTO match_candidates (bank_txn_id, event_id, correlation_id, net_minor, score)
			VALUES ($1, $2, $3, $4, $5)
		`, c.BankTxnID, c.EventID, c.CorrelationID, c.NetMinor, c.Score); err != nil {
			return fmt.Errorf("insert match candidate: %w", err)
		}
	}
	return tx.Commit(ctx)
}

// UpsertException creates or refreshes the open exception for a transaction.
func (r *Repo) UpsertException(ctx context.Context, txnID uuid.UUID, varianceMinor int64) error {
	now := time.Now().UTC()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO recon_exceptions (id, bank_txn_id, variance_minor, status, created_at, updated_at)
		VALUES ($1, $2, $3, 'new', $4, $4)
		ON CONFLICT (bank_txn_id) DO UPDATE SET
			variance_minor = EXCLUDED.variance_minor,
			status = 'new',
			updated_at = EXCLUDED.updated_at
	`, uuid.New(), txnID, varianceMinor, now)
	if err != nil {
		return fmt.Errorf("upsert recon exception: %w", err)
	}
	return nil
}

// MarkInvestigating moves a fresh exception under review.
func (r *Repo) MarkInvestigating(ctx context.Context, txnID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE recon_exceptions SET status = 'investigating', updated_at = NOW()
		WHERE bank_txn_id = $1 AND status = 'new'
	`, txnID)
	if err != nil {
		return fmt.Errorf("mark recon exception investigating: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrExceptionNotFound
	}
	return nil
}

// ResolveException transitions the transaction's open exception, if any.
func (r *Repo) ResolveException(ctx context.Context, txnID uuid.UUID, status ExceptionStatus) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE recon_exceptions SET status = $2, updated_at = NOW()
		WHERE bank_txn_id = $1 AND status IN ('new', 'investigating')
	`, txnID, string(status))
	if err != nil {
		return fmt.Errorf("resolve recon exception: %w", err)
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

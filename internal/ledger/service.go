package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	pgpkg "github.com/cschwartz85032/loanserve-sub003/pkg/postgres"
)

// Service posts balanced events and serves derived reads.
type Service struct {
	repo   *Repo
	logger *slog.Logger
}

func NewService(repo *Repo, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// PostEvent validates and posts a balanced event in its own transaction.
// On any failure the transaction rolls back with no partial entries.
func (s *Service) PostEvent(ctx context.Context, req PostRequest) (uuid.UUID, error) {
	var eventID uuid.UUID
	err := pgpkg.WithTransaction(ctx, s.repo.Pool(), func(tx pgx.Tx) error {
		var txErr error
		eventID, txErr = s.PostEventTx(ctx, tx, req)
		return txErr
	})
	if err != nil {
		return uuid.Nil, err
	}
	return eventID, nil
}

// PostEventTx posts an event inside the caller's transaction, so a stage can
// commit its own rows, the ledger event, and the outbox atomically.
func (s *Service) PostEventTx(ctx context.Context, q pgpkg.Querier, req PostRequest) (uuid.UUID, error) {
	if err := req.Validate(); err != nil {
		return uuid.Nil, err
	}

	ev := Event{
		EventID:       uuid.New(),
		LoanID:        req.LoanID,
		EffectiveDate: req.EffectiveDate,
		Schema:        req.Schema,
		CorrelationID: req.CorrelationID,
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.repo.InsertEvent(ctx, q, ev); err != nil {
		return uuid.Nil, err
	}
	if err := s.repo.InsertLines(ctx, q, ev.EventID, req.Lines); err != nil {
		return uuid.Nil, err
	}
	if _, err := s.repo.Finalize(ctx, q, ev.EventID); err != nil {
		return uuid.Nil, err
	}

	s.logger.Info("ledger event posted",
		"event_id", ev.EventID,
		"loan_id", req.LoanID,
		"schema", req.Schema,
		"correlation_id", req.CorrelationID,
	)
	return ev.EventID, nil
}

// LatestBalances derives the loan's balances from finalized entries.
func (s *Service) LatestBalances(ctx context.Context, loanID uuid.UUID) (Balances, error) {
	return s.repo.LoanBalances(ctx, loanID)
}

// TrialBalance aggregates all finalized entries by account.
func (s *Service) TrialBalance(ctx context.Context) ([]TrialBalanceRow, error) {
	return s.repo.TrialBalance(ctx)
}

// ReverseEvent posts a sibling event whose lines swap debit and credit.
// The original event is untouched (append-only).
func (s *Service) ReverseEvent(ctx context.Context, eventID uuid.UUID, correlationID string) (uuid.UUID, error) {
	original, err := s.repo.FindByID(ctx, eventID)
	if err != nil {
		return uuid.Nil, err
	}
	if original.FinalizedAt == nil {
		return uuid.Nil, fmt.Errorf("cannot reverse unfinalized event %s", eventID)
	}

	lines := make([]Line, 0, len(original.Lines))
	for _, l := range original.Lines {
		lines = append(lines, Line{
			Account:     l.Account,
			DebitMinor:  l.CreditMinor,
			CreditMinor: l.DebitMinor,
			Currency:    l.Currency,
			Memo:        fmt.Sprintf("Reversal: %s", l.Memo),
		})
	}

	return s.PostEvent(ctx, PostRequest{
		LoanID:        original.LoanID,
		EffectiveDate: original.EffectiveDate,
		CorrelationID: correlationID,
		Schema:        "posting.reversal.v1",
		Currency:      currencyOf(original.Lines),
		Lines:         lines,
	})
}

func currencyOf(lines []Line) string {
	if len(lines) == 0 {
		return ""
	}
	return lines[0].Currency
}

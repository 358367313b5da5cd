package reconcile

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/cschwartz85032/loanserve-sub003/internal/ledger"
	"github.com/cschwartz85032/loanserve-sub003/pkg/events"
)

var (
	ErrDuplicateStatement = fmt.Errorf("statement already ingested")
	ErrBadStatement       = fmt.Errorf("statement failed to parse")
)

// StmtIngestedPayload announces a freshly ingested statement file.
type StmtIngestedPayload struct {
	StatementID uuid.UUID `json:"statement_id"`
	Format      string    `json:"format"`
	TxnCount    int       `json:"txn_count"`
}

// ReconciledPayload announces a bank transaction matched to a ledger event.
type ReconciledPayload struct {
	BankTxnID uuid.UUID `json:"bank_txn_id"`
	EventID   uuid.UUID `json:"event_id"`
	Score     int       `json:"score"`
	Manual    bool      `json:"manual"`
}

// Service runs statement ingestion, candidate scoring, and exception
// handling over the ledger's cash activity.
type Service struct {
	repo           *Repo
	ledgerRepo     *ledger.Repo
	ledgerSvc      *ledger.Service
	matchThreshold int
	dateWindowDays int
	logger         *slog.Logger
}

func NewService(repo *Repo, ledgerRepo *ledger.Repo, ledgerSvc *ledger.Service, matchThreshold, dateWindowDays int, logger *slog.Logger) *Service {
	return &Service{
		repo:           repo,
		ledgerRepo:     ledgerRepo,
		ledgerSvc:      ledgerSvc,
		matchThreshold: matchThreshold,
		dateWindowDays: dateWindowDays,
		logger:         logger.With(slog.String("component", "reconcile")),
	}
}

// IngestStatement parses a statement file, stores its transactions as
// unmatched, and announces the ingest. A file whose content hash was seen
// before returns ErrDuplicateStatement without storing anything.
func (s *Service) IngestStatement(ctx context.Context, format StatementFormat, content []byte) (StatementFile, error) {
	var (
		txns []BankTxn
		err  error
	)
	switch format {
	case FormatBAI2:
		txns, err = ParseBAI2(bytes.NewReader(content))
	case FormatCAMT053:
		txns, err = ParseCAMT053(bytes.NewReader(content))
	default:
		return StatementFile{}, fmt.Errorf("%w: unsupported format %q", ErrBadStatement, format)
	}
	if err != nil {
		return StatementFile{}, fmt.Errorf("%w: %v", ErrBadStatement, err)
	}

	sum := sha256.Sum256(content)
	file := StatementFile{
		ID:         uuid.New(),
		Format:     format,
		SHA256:     hex.EncodeToString(sum[:]),
		TxnCount:   len(txns),
		IngestedAt: time.Now().UTC(),
	}

	inserted, err := s.repo.InsertStatement(ctx, file)
	if err != nil {
		return StatementFile{}, err
	}
	if !inserted {
		return StatementFile{}, fmt.Errorf("%w: sha256 %s", ErrDuplicateStatement, file.SHA256)
	}

	for i := range txns {
		txns[i].ID = uuid.New()
		txns[i].StatementID = file.ID
		if err := s.repo.InsertTxn(ctx, txns[i]); err != nil {
			return StatementFile{}, err
		}
	}

	env, err := events.NewEnvelope(events.SchemaCashStmtIngested,
		fmt.Sprintf("recon:stmt:%s", file.ID), "", StmtIngestedPayload{
			StatementID: file.ID,
			Format:      string(format),
			TxnCount:    file.TxnCount,
		})
	if err != nil {
		return StatementFile{}, err
	}
	entry, err := events.NewOutboxEntry(file.ID, events.TopicCashEvents, env)
	if err != nil {
		return StatementFile{}, err
	}
	if err := s.repo.InsertOutbox(ctx, entry); err != nil {
		return StatementFile{}, err
	}

	s.logger.Info("statement ingested",
		slog.String("statement_id", file.ID.String()),
		slog.String("format", string(format)),
		slog.Int("txn_count", file.TxnCount))
	return file, nil
}

// AutoMatch scores ledger cash activity against every unmatched transaction.
// A top candidate at or above the threshold matches automatically; anything
// else leaves a refreshed exception behind.
func (s *Service) AutoMatch(ctx context.Context, limit int) error {
	txns, err := s.repo.UnmatchedTxns(ctx, limit)
	if err != nil {
		return err
	}
	for _, txn := range txns {
		if err := s.matchOne(ctx, txn); err != nil {
			s.logger.Error("auto-match failed",
				slog.String("bank_txn_id", txn.ID.String()),
				slog.String("error", err.Error()))
		}
	}
	return nil
}

func (s *Service) matchOne(ctx context.Context, txn BankTxn) error {
	window := time.Duration(s.dateWindowDays) * 24 * time.Hour
	activities, err := s.ledgerRepo.CashActivityBetween(ctx,
		txn.PostedDate.Add(-window), txn.PostedDate.Add(window))
	if err != nil {
		return err
	}

	candidates := RankCandidates(txn, activities)
	if err := s.repo.ReplaceCandidates(ctx, txn.ID, candidates); err != nil {
		return err
	}

	if len(candidates) > 0 && candidates[0].Score >= s.matchThreshold {
		return s.settleMatch(ctx, txn.ID, candidates[0].EventID, candidates[0].Score, false)
	}

	// Variance is the signed bank amount less the best candidate's ledger
	// net, so a direction mismatch shows as a large variance, not zero.
	variance := txn.SignedAmountMinor()
	if len(candidates) > 0 {
		variance -= candidates[0].NetMinor
	}
	return s.repo.UpsertException(ctx, txn.ID, variance)
}

// Investigate flags a transaction's open exception as under operator review.
func (s *Service) Investigate(ctx context.Context, txnID uuid.UUID) error {
	if _, err := s.repo.FindTxn(ctx, txnID); err != nil {
		return err
	}
	return s.repo.MarkInvestigating(ctx, txnID)
}

// ManualMatch pairs a transaction with an operator-chosen ledger event.
func (s *Service) ManualMatch(ctx context.Context, txnID, eventID uuid.UUID) error {
	if _, err := s.repo.FindTxn(ctx, txnID); err != nil {
		return err
	}
	if _, err := s.ledgerRepo.FindByID(ctx, eventID); err != nil {
		return err
	}
	return s.settleMatch(ctx, txnID, eventID, 0, true)
}

func (s *Service) settleMatch(ctx context.Context, txnID, eventID uuid.UUID, score int, manual bool) error {
	if err := s.repo.MarkMatched(ctx, txnID, eventID); err != nil {
		return err
	}
	if err := s.repo.ResolveException(ctx, txnID, ExceptionResolved); err != nil {
		return err
	}

	env, err := events.NewEnvelope(events.SchemaCashReconciled,
		fmt.Sprintf("recon:txn:%s", txnID), "", ReconciledPayload{
			BankTxnID: txnID,
			EventID:   eventID,
			Score:     score,
			Manual:    manual,
		})
	if err != nil {
		return err
	}
	entry, err := events.NewOutboxEntry(eventID, events.TopicCashEvents, env)
	if err != nil {
		return err
	}
	if err := s.repo.InsertOutbox(ctx, entry); err != nil {
		return err
	}

	s.logger.Info("bank txn reconciled",
		slog.String("bank_txn_id", txnID.String()),
		slog.String("event_id", eventID.String()),
		slog.Int("score", score),
		slog.Bool("manual", manual))
	return nil
}

// WriteOff absorbs an unmatched transaction as a servicer expense. The
// posting itself becomes the matched event so the transaction leaves the
// exception queue for good.
func (s *Service) WriteOff(ctx context.Context, txnID uuid.UUID, memo string) (uuid.UUID, error) {
	txn, err := s.repo.FindTxn(ctx, txnID)
	if err != nil {
		return uuid.Nil, err
	}
	if txn.Status != TxnUnmatched {
		return uuid.Nil, fmt.Errorf("bank txn %s is already matched", txnID)
	}
	if memo == "" {
		memo = "Bank charge write-off: " + txn.Description
	}

	req := ledger.BankCharge(txn.PostedDate,
		fmt.Sprintf("recon:writeoff:%s", txnID), "USD", memo, txn.AmountMinor)
	eventID, err := s.ledgerSvc.PostEvent(ctx, req)
	if err != nil {
		return uuid.Nil, err
	}

	if err := s.repo.MarkMatched(ctx, txnID, eventID); err != nil {
		return uuid.Nil, err
	}
	if err := s.repo.UpsertException(ctx, txnID, txn.AmountMinor); err != nil {
		return uuid.Nil, err
	}
	if err := s.repo.ResolveException(ctx, txnID, ExceptionWrittenOff); err != nil {
		return uuid.Nil, err
	}

	s.logger.Info("bank txn written off",
		slog.String("bank_txn_id", txnID.String()),
		slog.String("event_id", eventID.String()),
		slog.Int64("amount_minor", txn.AmountMinor))
	return eventID, nil
}

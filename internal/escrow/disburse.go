package escrow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cschwartz85032/loanserve-sub003/internal/ledger"
	"github.com/cschwartz85032/loanserve-sub003/pkg/events"
	"github.com/cschwartz85032/loanserve-sub003/pkg/money"
	pgpkg "github.com/cschwartz85032/loanserve-sub003/pkg/postgres"
)

// schedulingWindowDays is how far ahead forecast rows become disbursements.
const schedulingWindowDays = 30

// ErrInsufficientEscrow holds a disbursement whose amount exceeds the escrow
// balance under a policy that forbids servicer advances.
var ErrInsufficientEscrow = errors.New("escrow balance insufficient for disbursement")

// OutboxWriter inserts outbox entries inside the caller's transaction.
type OutboxWriter interface {
	Insert(ctx context.Context, q pgpkg.Querier, entry events.OutboxEntry) error
}

// Disburser turns forecast rows into scheduled disbursements and posts the
// due ones against the ledger.
type Disburser struct {
	pool   *pgxpool.Pool
	repo   *Repo
	ledger *ledger.Service
	outbox OutboxWriter
	policy Policy
	logger *slog.Logger
}

func NewDisburser(pool *pgxpool.Pool, repo *Repo, ledgerSvc *ledger.Service, outbox OutboxWriter, policy Policy, logger *slog.Logger) *Disburser {
	return &Disburser{pool: pool, repo: repo, ledger: ledgerSvc, outbox: outbox, policy: policy, logger: logger}
}

// Schedule inserts a scheduled disbursement for every forecast row inside the
// window that has no non-canceled disbursement yet. Safe to re-run.
func (d *Disburser) Schedule(ctx context.Context, loanID uuid.UUID, effectiveDate time.Time) (int, error) {
	windowEnd := effectiveDate.AddDate(0, 0, schedulingWindowDays)
	rows, err := d.repo.ForecastBetween(ctx, loanID, effectiveDate, windowEnd)
	if err != nil {
		return 0, err
	}

	scheduled := 0
	for _, row := range rows {
		inserted, err := d.repo.InsertDisbursement(ctx, Disbursement{
			ID:          uuid.New(),
			LoanID:      row.LoanID,
			EscrowID:    row.EscrowID,
			DueDate:     row.DueDate,
			AmountMinor: row.AmountMinor,
			Status:      DisbursementScheduled,
		})
		if err != nil {
			return scheduled, err
		}
		if inserted {
			scheduled++
		}
	}
	if scheduled > 0 {
		d.logger.Info("escrow disbursements scheduled", "loan_id", loanID, "count", scheduled)
	}
	return scheduled, nil
}

// PostDue posts every scheduled disbursement that has come due. A failed
// posting leaves the row scheduled; the next cycle retries it.
func (d *Disburser) PostDue(ctx context.Context, loanID uuid.UUID, asOf time.Time) (int, error) {
	due, err := d.repo.ScheduledThrough(ctx, loanID, asOf)
	if err != nil {
		return 0, err
	}

	posted := 0
	for _, disb := range due {
		if err := d.postOne(ctx, disb); err != nil {
			if errors.Is(err, ErrInsufficientEscrow) {
				d.logger.Info("escrow disbursement held, balance insufficient",
					"disbursement_id", disb.ID,
					"loan_id", disb.LoanID,
					"amount_minor", disb.AmountMinor,
				)
				continue
			}
			d.logger.Error("escrow disbursement post failed",
				"disbursement_id", disb.ID,
				"loan_id", disb.LoanID,
				"error", err,
			)
			continue
		}
		posted++
	}
	return posted, nil
}

func (d *Disburser) postOne(ctx context.Context, disb Disbursement) error {
	balances, err := d.ledger.LatestBalances(ctx, disb.LoanID)
	if err != nil {
		return err
	}
	available := balances.EscrowLiability
	if available < 0 {
		available = 0
	}
	if available < disb.AmountMinor && !d.policy.PayWhenInsufficient {
		return ErrInsufficientEscrow
	}

	correlation := fmt.Sprintf("escrow:disb:%s", disb.ID)
	memo := fmt.Sprintf("Escrow disbursement %s", money.FormatDate(disb.DueDate))
	req := ledger.EscrowDisbursementPosting(disb.LoanID, disb.DueDate, correlation,
		"USD", memo, disb.AmountMinor, available)

	return pgpkg.WithTransaction(ctx, d.pool, func(tx pgx.Tx) error {
		eventID, postErr := d.ledger.PostEventTx(ctx, tx, req)
		if postErr != nil {
			return postErr
		}
		if err := d.repo.MarkPosted(ctx, tx, disb.ID, eventID); err != nil {
			return err
		}

		env, envErr := events.NewEnvelope(events.SchemaEscrowDisbursement, correlation, "", map[string]any{
			"disbursement_id": disb.ID,
			"loan_id":         disb.LoanID,
			"escrow_id":       disb.EscrowID,
			"amount_minor":    disb.AmountMinor,
			"ledger_event_id": eventID,
		})
		if envErr != nil {
			return envErr
		}
		entry, entryErr := events.NewOutboxEntry(eventID, events.TopicEscrowEvents, env)
		if entryErr != nil {
			return entryErr
		}
		return d.outbox.Insert(ctx, tx, entry)
	})
}

package ach

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/cschwartz85032/loanserve-sub003/internal/config"
)

// ErrNoSealedBatches means there is nothing to file right now.
var ErrNoSealedBatches = fmt.Errorf("no sealed batches to file")

// Originator drives batch origination end to end: open, collect entries,
// seal, and render the NACHA file.
type Originator struct {
	repo   *Repo
	cfg    config.ACHConfig
	logger *slog.Logger
}

func NewOriginator(repo *Repo, cfg config.ACHConfig, logger *slog.Logger) *Originator {
	return &Originator{
		repo:   repo,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "ach")),
	}
}

// OpenBatch starts a new batch with the next batch number.
func (o *Originator) OpenBatch(ctx context.Context, sec SECCode, description string, effectiveDate time.Time) (Batch, error) {
	number, err := o.repo.NextBatchNumber(ctx)
	if err != nil {
		return Batch{}, err
	}
	b, err := NewBatch(number, o.cfg.CompanyName, o.cfg.CompanyID, sec, description, effectiveDate)
	if err != nil {
		return Batch{}, err
	}
	if err := o.repo.SaveBatch(ctx, b); err != nil {
		return Batch{}, err
	}
	o.logger.Info("ach batch opened",
		slog.String("batch_id", b.ID.String()),
		slog.Int("batch_number", b.BatchNumber),
		slog.String("effective_date", effectiveDate.Format("2006-01-02")))
	return b, nil
}

// AddEntry appends a detail record to an open batch.
func (o *Originator) AddEntry(ctx context.Context, batchID uuid.UUID, e Entry) (Batch, error) {
	b, err := o.repo.FindBatch(ctx, batchID)
	if err != nil {
		return Batch{}, err
	}
	b, err = b.AddEntry(e)
	if err != nil {
		return Batch{}, err
	}
	if err := o.repo.SaveBatch(ctx, b); err != nil {
		return Batch{}, err
	}
	return b, nil
}

// Seal freezes a batch and persists its trace numbers and totals.
func (o *Originator) Seal(ctx context.Context, batchID uuid.UUID) (Batch, error) {
	b, err := o.repo.FindBatch(ctx, batchID)
	if err != nil {
		return Batch{}, err
	}
	b, err = b.Seal(o.cfg.ODFIRouting, time.Now())
	if err != nil {
		return Batch{}, err
	}
	if err := o.repo.SaveBatch(ctx, b); err != nil {
		return Batch{}, err
	}
	o.logger.Info("ach batch sealed",
		slog.String("batch_id", b.ID.String()),
		slog.Int("entries", len(b.Entries)),
		slog.Int64("total_debit_minor", b.TotalDebitMinor),
		slog.Int64("total_credit_minor", b.TotalCreditMinor))
	return b, nil
}

// GenerateFile renders every sealed batch into one NACHA file and marks
// them filed.
func (o *Originator) GenerateFile(ctx context.Context, now time.Time) (string, error) {
	ids, err := o.repo.SealedBatches(ctx)
	if err != nil {
		return "", err
	}
	if len(ids) == 0 {
		return "", ErrNoSealedBatches
	}

	batches := make([]Batch, 0, len(ids))
	for _, id := range ids {
		b, err := o.repo.FindBatch(ctx, id)
		if err != nil {
			return "", err
		}
		batches = append(batches, b)
	}

	file, err := BuildFile(FileParams{
		ImmediateDestination: o.cfg.ImmediateDestination,
		ImmediateOrigin:      o.cfg.ImmediateOrigin,
		DestinationName:      o.cfg.DestinationName,
		OriginName:           o.cfg.OriginName,
		ODFIRouting:          o.cfg.ODFIRouting,
		CreatedAt:            now,
	}, batches)
	if err != nil {
		return "", err
	}

	for _, b := range batches {
		filed, err := b.MarkFiled()
		if err != nil {
			return "", err
		}
		if err := o.repo.UpdateStatus(ctx, filed.ID, filed.Status); err != nil {
			return "", err
		}
	}
	o.logger.Info("nacha file generated", slog.Int("batches", len(batches)))
	return file, nil
}

// ConfirmSettlement marks a filed batch settled or failed.
func (o *Originator) ConfirmSettlement(ctx context.Context, batchID uuid.UUID, ok bool) error {
	b, err := o.repo.FindBatch(ctx, batchID)
	if err != nil {
		return err
	}
	if ok {
		b, err = b.MarkSettled()
	} else {
		b, err = b.MarkFailed()
	}
	if err != nil {
		return err
	}
	return o.repo.UpdateStatus(ctx, b.ID, b.Status)
}

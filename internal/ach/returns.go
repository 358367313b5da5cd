package ach

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/cschwartz85032/loanserve-sub003/pkg/events"
)

// Return codes the processor recognizes by name. Unlisted R-codes still
// process as non-retryable.
const (
	ReturnNSF               = "R01"
	ReturnAccountClosed     = "R02"
	ReturnNoAccount         = "R03"
	ReturnInvalidAccount    = "R04"
	ReturnUnauthorizedDebit = "R05"
	ReturnUncollected       = "R09"
	ReturnStopPayment       = "R08"
	ReturnAuthorityRevoked  = "R07"
	ReturnPaymentStopped    = "R10"
)

// retryableCodes are funds-availability failures worth re-presenting.
var retryableCodes = map[string]struct{}{
	ReturnNSF:         {},
	ReturnUncollected: {},
}

// RetryableReturn reports whether a return code allows re-presentment.
func RetryableReturn(code string) bool {
	_, ok := retryableCodes[code]
	return ok
}

const retryDelayDays = 2

// Disposition is the outcome the processor chose for a return.
type Disposition string

const (
	DispositionRetry     Disposition = "retry"
	DispositionReversal  Disposition = "reversal"
	DispositionException Disposition = "exception"
)

// RouteReturn decides the disposition for a return code and whether an
// operator exception must be opened. Non-retryable codes always open an
// exception; loan-scoped ones additionally request a payment reversal.
func RouteReturn(code string, loanScoped bool) (Disposition, bool) {
	if RetryableReturn(code) {
		return DispositionRetry, false
	}
	if loanScoped {
		return DispositionReversal, true
	}
	return DispositionException, true
}

// Return is one received return entry, at most one per entry and code.
type Return struct {
	ID          uuid.UUID
	EntryID     uuid.UUID
	TraceNumber string
	Code        string
	Disposition Disposition
	RetryAt     *time.Time
	ReceivedAt  time.Time
}

// ExceptionOpen marks an exception awaiting operator review.
const ExceptionOpen = "open"

// ReturnException is the operator work item opened for a non-retryable
// return, one per return row.
type ReturnException struct {
	ID          uuid.UUID
	ReturnID    uuid.UUID
	TraceNumber string
	Code        string
	Status      string
	CreatedAt   time.Time
	ResolvedAt  *time.Time
}

// ReversalRequestedPayload asks the payment pipeline to back out a posted
// payment whose funding draft came back.
type ReversalRequestedPayload struct {
	LoanID      uuid.UUID `json:"loan_id"`
	EntryID     uuid.UUID `json:"entry_id"`
	TraceNumber string    `json:"trace_number"`
	ReturnCode  string    `json:"return_code"`
	AmountMinor int64     `json:"amount_minor"`
}

// ReturnProcessor resolves incoming returns against originated entries.
type ReturnProcessor struct {
	repo   *Repo
	logger *slog.Logger
}

func NewReturnProcessor(repo *Repo, logger *slog.Logger) *ReturnProcessor {
	return &ReturnProcessor{
		repo:   repo,
		logger: logger.With(slog.String("component", "ach_returns")),
	}
}

// HandleReturn looks the entry up by trace number and records the return.
// Retryable codes schedule a re-presentment. Every non-retryable code opens
// an operator exception, and loan-scoped ones also ask the payment pipeline
// for a reversal. Duplicate returns are dropped.
func (p *ReturnProcessor) HandleReturn(ctx context.Context, traceNumber, code string, receivedAt time.Time) (Return, error) {
	entry, err := p.repo.FindEntryByTrace(ctx, traceNumber)
	if err != nil {
		return Return{}, err
	}

	ret := Return{
		ID:          uuid.New(),
		EntryID:     entry.ID,
		TraceNumber: traceNumber,
		Code:        code,
		ReceivedAt:  receivedAt.UTC(),
	}
	disposition, openException := RouteReturn(code, entry.LoanID != nil)
	ret.Disposition = disposition
	if disposition == DispositionRetry {
		retryAt := receivedAt.UTC().AddDate(0, 0, retryDelayDays)
		ret.RetryAt = &retryAt
	}

	inserted, err := p.repo.InsertReturn(ctx, ret)
	if err != nil {
		return Return{}, err
	}
	if !inserted {
		p.logger.Info("duplicate ach return dropped",
			slog.String("trace_number", traceNumber),
			slog.String("code", code))
		return ret, nil
	}

	if openException {
		exc := ReturnException{
			ID:          uuid.New(),
			ReturnID:    ret.ID,
			TraceNumber: traceNumber,
			Code:        code,
			Status:      ExceptionOpen,
			CreatedAt:   time.Now().UTC(),
		}
		if err := p.repo.InsertException(ctx, exc); err != nil {
			return Return{}, err
		}
		p.logger.Warn("ach return exception opened",
			slog.String("trace_number", traceNumber),
			slog.String("code", code))
	}

	if ret.Disposition == DispositionReversal {
		env, err := events.NewEnvelope(events.SchemaPaymentReversalRequested,
			fmt.Sprintf("ach:return:%s:%s", traceNumber, code), "", ReversalRequestedPayload{
				LoanID:      *entry.LoanID,
				EntryID:     entry.ID,
				TraceNumber: traceNumber,
				ReturnCode:  code,
				AmountMinor: entry.AmountMinor,
			})
		if err != nil {
			return Return{}, err
		}
		outboxEntry, err := events.NewOutboxEntry(ret.ID, events.TopicPaymentsSaga, env)
		if err != nil {
			return Return{}, err
		}
		if err := p.repo.InsertOutbox(ctx, outboxEntry); err != nil {
			return Return{}, err
		}
	}

	p.logger.Info("ach return processed",
		slog.String("trace_number", traceNumber),
		slog.String("code", code),
		slog.String("disposition", string(ret.Disposition)),
		slog.String("account", MaskAccount(entry.AccountNumber)))
	return ret, nil
}

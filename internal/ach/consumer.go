package ach

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cschwartz85032/loanserve-sub003/pkg/kafka"
)

// ReturnMessage is the raw ingress format for received return entries.
type ReturnMessage struct {
	TraceNumber string `json:"trace_number"`
	Code        string `json:"code"`
	ReceivedAt  string `json:"received_at"`
}

// Handler adapts the return processor to a broker consumer. A trace number
// that matches no originated entry is a permanent failure.
func (p *ReturnProcessor) Handler() kafka.Handler {
	return func(ctx context.Context, msg kafka.Message) error {
		var rm ReturnMessage
		if err := json.Unmarshal(msg.Value, &rm); err != nil {
			return kafka.Permanent(fmt.Errorf("decode ach return message: %w", err))
		}
		if rm.TraceNumber == "" || rm.Code == "" {
			return kafka.Permanent(fmt.Errorf("ach return message missing trace number or code"))
		}

		receivedAt := time.Now().UTC()
		if rm.ReceivedAt != "" {
			t, err := time.Parse(time.RFC3339, rm.ReceivedAt)
			if err != nil {
				return kafka.Permanent(fmt.Errorf("ach return received_at %q: %w", rm.ReceivedAt, err))
			}
			receivedAt = t
		}

		_, err := p.HandleReturn(ctx, rm.TraceNumber, rm.Code, receivedAt)
		if errors.Is(err, ErrEntryNotFound) {
			return kafka.Permanent(err)
		}
		return err
	}
}

package payments

import (
	"context"
	"errors"

	"github.com/cschwartz85032/loanserve-sub003/internal/loan"
)

// PolicyReader loads stored product policies.
type PolicyReader interface {
	FindPolicy(ctx context.Context, productCode string) (loan.ProductPolicy, error)
}

// StoredPolicies resolves policies from storage, falling back to the product
// default when no row exists for the code.
type StoredPolicies struct {
	reader PolicyReader
}

func NewStoredPolicies(reader PolicyReader) *StoredPolicies {
	return &StoredPolicies{reader: reader}
}

func (p *StoredPolicies) PolicyFor(ctx context.Context, l loan.Loan) (loan.ProductPolicy, error) {
	policy, err := p.reader.FindPolicy(ctx, l.ProductCode)
	if err != nil {
		if errors.Is(err, loan.ErrPolicyNotFound) {
			return loan.DefaultProductPolicy(l.ProductCode), nil
		}
		return loan.ProductPolicy{}, err
	}
	return policy, nil
}

package loan

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/cschwartz85032/loanserve-sub003/pkg/money"
)

var ErrPolicyNotFound = errors.New("product policy not found")

// FindPolicy loads the posting policy for a product code.
func (r *Repo) FindPolicy(ctx context.Context, productCode string) (ProductPolicy, error) {
	var (
		p         ProductPolicy
		rounding  string
		dayCount  string
		waterfall []string
	)
	err := r.pool.QueryRow(ctx, `
		SELECT product_code, currency, rounding, day_count, min_payment_minor, waterfall,
		       late_fee_type, late_fee_amount_minor, late_fee_percent_bps,
		       late_fee_grace_days, late_fee_cap_minor, late_fee_base
		FROM product_policies WHERE product_code = $1
	`, productCode).Scan(&p.ProductCode, &p.Currency, &rounding, &dayCount, &p.MinPaymentMinor, &waterfall,
		&p.LateFee.Type, &p.LateFee.AmountMinor, &p.LateFee.PercentBps,
		&p.LateFee.GraceDays, &p.LateFee.CapMinor, &p.LateFee.Base)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ProductPolicy{}, ErrPolicyNotFound
		}
		return ProductPolicy{}, fmt.Errorf("query product policy %s: %w", productCode, err)
	}

	if p.Rounding, err = money.ParseRounding(rounding); err != nil {
		return ProductPolicy{}, fmt.Errorf("product policy %s: %w", productCode, err)
	}
	if p.DayCount, err = money.ParseConvention(dayCount); err != nil {
		return ProductPolicy{}, fmt.Errorf("product policy %s: %w", productCode, err)
	}
	p.Waterfall = make([]Bucket, 0, len(waterfall))
	for _, name := range waterfall {
		b, err := ParseBucket(name)
		if err != nil {
			return ProductPolicy{}, fmt.Errorf("product policy %s: %w", productCode, err)
		}
		p.Waterfall = append(p.Waterfall, b)
	}
	return p, nil
}

// SavePolicy upserts a product policy.
func (r *Repo) SavePolicy(ctx context.Context, p ProductPolicy) error {
	waterfall := make([]string, 0, len(p.Waterfall))
	for _, b := range p.Waterfall {
		waterfall = append(waterfall, string(b))
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO product_policies (product_code, currency, rounding, day_count, min_payment_minor, waterfall,
			late_fee_type, late_fee_amount_minor, late_fee_percent_bps,
			late_fee_grace_days, late_fee_cap_minor, late_fee_base)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (product_code) DO UPDATE SET
			currency = EXCLUDED.currency,
			rounding = EXCLUDED.rounding,
			day_count = EXCLUDED.day_count,
			min_payment_minor = EXCLUDED.min_payment_minor,
			waterfall = EXCLUDED.waterfall,
			late_fee_type = EXCLUDED.late_fee_type,
			late_fee_amount_minor = EXCLUDED.late_fee_amount_minor,
			late_fee_percent_bps = EXCLUDED.late_fee_percent_bps,
			late_fee_grace_days = EXCLUDED.late_fee_grace_days,
			late_fee_cap_minor = EXCLUDED.late_fee_cap_minor,
			late_fee_base = EXCLUDED.late_fee_base
	`, p.ProductCode, p.Currency, string(p.Rounding), string(p.DayCount), p.MinPaymentMinor, waterfall,
		p.LateFee.Type, p.LateFee.AmountMinor, p.LateFee.PercentBps,
		p.LateFee.GraceDays, p.LateFee.CapMinor, p.LateFee.Base)
	if err != nil {
		return fmt.Errorf("upsert product policy: %w", err)
	}
	return nil
}

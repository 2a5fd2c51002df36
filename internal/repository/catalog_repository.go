package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iliyamo/cinema-booking-engine/internal/model"
)

// FoodRepo reads and adjusts the concession inventory.
type FoodRepo struct {
	db *sql.DB
}

// NewFoodRepo constructs a FoodRepo.
func NewFoodRepo(db *sql.DB) *FoodRepo { return &FoodRepo{db: db} }

// GetByIDsTx loads the given foods keyed by id.  Unknown ids are absent.
func (r *FoodRepo) GetByIDsTx(ctx context.Context, tx *sql.Tx, ids []uint64) (map[uint64]model.Food, error) {
	out := make(map[uint64]model.Food, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	q := `SELECT id, name, price, stock, is_active FROM foods WHERE id IN (` + placeholders(len(ids)) + `)`
	rows, err := tx.QueryContext(ctx, q, idArgs(ids)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var f model.Food
		if err := rows.Scan(&f.ID, &f.Name, &f.Price, &f.Stock, &f.IsActive); err != nil {
			return nil, err
		}
		out[f.ID] = f
	}
	return out, rows.Err()
}

// DecrementStockTx takes qty units off an active item.  The update is
// guarded by the current stock, so it reports false instead of driving
// stock negative.
func (r *FoodRepo) DecrementStockTx(ctx context.Context, tx *sql.Tx, id uint64, qty uint32) (bool, error) {
	const q = `UPDATE foods SET stock = stock - ? WHERE id = ? AND is_active = 1 AND stock >= ?`
	res, err := tx.ExecContext(ctx, q, qty, id, qty)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// RestockTx returns qty units to an item.
func (r *FoodRepo) RestockTx(ctx context.Context, tx *sql.Tx, id uint64, qty uint32) error {
	_, err := tx.ExecContext(ctx, `UPDATE foods SET stock = stock + ? WHERE id = ?`, qty, id)
	return err
}

// VoucherRepo manages voucher usages.
type VoucherRepo struct {
	db *sql.DB
}

// NewVoucherRepo constructs a VoucherRepo.
func NewVoucherRepo(db *sql.DB) *VoucherRepo { return &VoucherRepo{db: db} }

// GetUsageTx loads a voucher usage together with its voucher's discount,
// activity flag and usage counters.
func (r *VoucherRepo) GetUsageTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.VoucherUsage, error) {
	const q = `SELECT vu.id, vu.voucher_id, vu.user_id, vu.status, vu.used_at,
	                  v.discount_value, v.is_active, v.usage_limit, v.used_count
	           FROM voucher_usages vu
	           JOIN vouchers v ON v.id = vu.voucher_id
	           WHERE vu.id = ?`
	var u model.VoucherUsage
	var usedAt sql.NullTime
	err := tx.QueryRowContext(ctx, q, id).Scan(&u.ID, &u.VoucherID, &u.UserID, &u.Status, &usedAt,
		&u.DiscountValue, &u.VoucherActive, &u.UsageLimit, &u.UsedCount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if usedAt.Valid {
		t := usedAt.Time
		u.UsedAt = &t
	}
	return &u, nil
}

// RedeemTx marks an ACTIVE usage USED and bumps the voucher's used_count.
// It reports false when the usage was not ACTIVE any more, or when the
// voucher is inactive or has reached its usage limit.
func (r *VoucherRepo) RedeemTx(ctx context.Context, tx *sql.Tx, usage *model.VoucherUsage, at time.Time) (bool, error) {
	res, err := tx.ExecContext(ctx,
		`UPDATE voucher_usages SET status = ?, used_at = ? WHERE id = ? AND status = ?`,
		model.VoucherUsageUsed, dbTime(at), usage.ID, model.VoucherUsageActive)
	if err != nil {
		return false, err
	}
	if n, err := res.RowsAffected(); err != nil || n != 1 {
		return false, err
	}
	res, err = tx.ExecContext(ctx,
		`UPDATE vouchers SET used_count = used_count + 1 WHERE id = ? AND is_active = 1 AND used_count < usage_limit`,
		usage.VoucherID)
	if err != nil {
		return false, err
	}
	if n, err := res.RowsAffected(); err != nil || n != 1 {
		return false, err
	}
	return true, nil
}

// RestoreTx reverses RedeemTx.
func (r *VoucherRepo) RestoreTx(ctx context.Context, tx *sql.Tx, usageID uint64) error {
	var voucherID uint64
	err := tx.QueryRowContext(ctx, `SELECT voucher_id FROM voucher_usages WHERE id = ? AND status = ?`,
		usageID, model.VoucherUsageUsed).Scan(&voucherID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE voucher_usages SET status = ?, used_at = NULL WHERE id = ?`,
		model.VoucherUsageActive, usageID); err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `UPDATE vouchers SET used_count = used_count - 1 WHERE id = ? AND used_count > 0`, voucherID)
	return err
}

// PriceRuleRepo reads seat prices.
type PriceRuleRepo struct {
	db *sql.DB
}

// NewPriceRuleRepo constructs a PriceRuleRepo.
func NewPriceRuleRepo(db *sql.DB) *PriceRuleRepo { return &PriceRuleRepo{db: db} }

// PricesForFormatTx returns the seat price per seat type for a format.
func (r *PriceRuleRepo) PricesForFormatTx(ctx context.Context, tx *sql.Tx, format string) (map[string]decimal.Decimal, error) {
	rows, err := tx.QueryContext(ctx, `SELECT seat_type, price FROM price_rules WHERE format = ?`, format)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	prices := make(map[string]decimal.Decimal)
	for rows.Next() {
		var seatType string
		var price decimal.Decimal
		if err := rows.Scan(&seatType, &price); err != nil {
			return nil, err
		}
		prices[seatType] = price
	}
	return prices, rows.Err()
}

// PaymentMethodRepo reads payment methods.
type PaymentMethodRepo struct {
	db *sql.DB
}

// NewPaymentMethodRepo constructs a PaymentMethodRepo.
func NewPaymentMethodRepo(db *sql.DB) *PaymentMethodRepo { return &PaymentMethodRepo{db: db} }

// GetByIDTx returns a payment method or ErrNotFound.
func (r *PaymentMethodRepo) GetByIDTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.PaymentMethod, error) {
	var m model.PaymentMethod
	err := tx.QueryRowContext(ctx, `SELECT id, code, is_active FROM payment_methods WHERE id = ?`, id).
		Scan(&m.ID, &m.Code, &m.IsActive)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &m, nil
}

package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Food is a concession item with a stock counter.
type Food struct {
	ID       uint64          // foods.id
	Name     string          // foods.name
	Price    decimal.Decimal // foods.price
	Stock    uint32          // foods.stock
	IsActive bool            // foods.is_active
}

// PriceRule maps a (seat type, format) pair to a seat price.
type PriceRule struct {
	ID       uint64          // price_rules.id
	SeatType string          // price_rules.seat_type
	Format   string          // price_rules.format
	Price    decimal.Decimal // price_rules.price
}

// PaymentMethod is a payment option offered at checkout.
type PaymentMethod struct {
	ID       uint64 // payment_methods.id
	Code     string // payment_methods.code
	IsActive bool   // payment_methods.is_active
}

// Voucher usage statuses.
const (
	VoucherUsageActive = "ACTIVE"
	VoucherUsageUsed   = "USED"
)

// VoucherUsage is a voucher claimed by a user and not yet (or already)
// redeemed against a ticket.  The voucher columns are copied when loaded.
type VoucherUsage struct {
	ID            uint64          // voucher_usages.id
	VoucherID     uint64          // voucher_usages.voucher_id
	UserID        uint64          // voucher_usages.user_id
	Status        string          // voucher_usages.status
	UsedAt        *time.Time      // voucher_usages.used_at (nullable)
	DiscountValue decimal.Decimal // vouchers.discount_value
	VoucherActive bool            // vouchers.is_active
	UsageLimit    uint32          // vouchers.usage_limit
	UsedCount     uint32          // vouchers.used_count
}

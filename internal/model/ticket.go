package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Payment and booking statuses of a ticket.
const (
	PaymentPending = "PENDING"
	PaymentPaid    = "PAID"
	PaymentFailed  = "FAILED"

	BookingPending   = "PENDING"
	BookingConfirmed = "CONFIRMED"
	BookingCancelled = "CANCELLED"
)

// Ticket records a user's booking for a specific showtime.  It aggregates
// one or more seats and zero or more food items booked under a single
// transaction.  A ticket never exists partially: it is written together
// with its line items, the seat status flips and the inventory updates.
//
// Fields:
//  ID              – primary key identifier.
//  Code            – public ticket code (uuid).
//  UserID          – user who booked.
//  ShowtimeID      – showtime being booked.
//  PaymentMethodID – payment method chosen by the user.
//  VoucherUsageID  – redeemed voucher usage, if any.
//  TotalAmount     – amount due after discount, never negative.
//  PaymentStatus   – PENDING, PAID or FAILED.
//  BookingStatus   – PENDING, CONFIRMED or CANCELLED.
//  PaymentRef      – reference returned by the payment collaborator.
//  BookingDate     – commit timestamp.
type Ticket struct {
	ID              uint64          // tickets.id
	Code            string          // tickets.code
	UserID          uint64          // tickets.user_id
	ShowtimeID      uint64          // tickets.showtime_id
	PaymentMethodID uint64          // tickets.payment_method_id
	VoucherUsageID  *uint64         // tickets.voucher_usage_id (nullable)
	TotalAmount     decimal.Decimal // tickets.total_amount
	PaymentStatus   string          // tickets.payment_status
	BookingStatus   string          // tickets.booking_status
	PaymentRef      *string         // tickets.payment_ref (nullable)
	BookingDate     time.Time       // tickets.booking_date
}

// TicketSeat is a seat line item with its price locked at booking time.
type TicketSeat struct {
	TicketID uint64          // ticket_seats.ticket_id
	SeatID   uint64          // ticket_seats.seat_id
	Price    decimal.Decimal // ticket_seats.price
}

// TicketFood is a food line item with price and quantity locked at purchase.
type TicketFood struct {
	TicketID  uint64          // ticket_foods.ticket_id
	FoodID    uint64          // ticket_foods.food_id
	UnitPrice decimal.Decimal // ticket_foods.unit_price
	Quantity  uint32          // ticket_foods.quantity
}

package booking

import (
	"time"

	"github.com/shopspring/decimal"
)

// ReceiptSeat is a booked seat as shown to the buyer.
type ReceiptSeat struct {
	SeatID uint64          `json:"seatId"`
	Label  string          `json:"label"`
	Price  decimal.Decimal `json:"price"`
}

// ReceiptFood is a booked food line as shown to the buyer.
type ReceiptFood struct {
	FoodID    uint64          `json:"foodId"`
	Quantity  uint32          `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
}

// Receipt is the JSON view of a committed booking, returned over HTTP and
// in the socket booked event.
type Receipt struct {
	TicketID      uint64          `json:"ticketId"`
	Code          string          `json:"code"`
	ShowtimeID    uint64          `json:"showtimeId"`
	Seats         []ReceiptSeat   `json:"seats"`
	Foods         []ReceiptFood   `json:"foods"`
	Discount      decimal.Decimal `json:"discount"`
	TotalAmount   decimal.Decimal `json:"totalAmount"`
	PaymentStatus string          `json:"paymentStatus"`
	BookingStatus string          `json:"bookingStatus"`
	BookedAt      time.Time       `json:"bookedAt"`
}

// Receipt renders the result for clients.
func (r *Result) Receipt() Receipt {
	seats := make([]ReceiptSeat, 0, len(r.Seats))
	for i, s := range r.Seats {
		rs := ReceiptSeat{SeatID: s.SeatID, Price: s.Price}
		if i < len(r.SeatLabels) {
			rs.Label = r.SeatLabels[i]
		}
		seats = append(seats, rs)
	}
	foods := make([]ReceiptFood, 0, len(r.Foods))
	for _, f := range r.Foods {
		foods = append(foods, ReceiptFood{FoodID: f.FoodID, Quantity: f.Quantity, UnitPrice: f.UnitPrice})
	}
	return Receipt{
		TicketID:      r.Ticket.ID,
		Code:          r.Ticket.Code,
		ShowtimeID:    r.Ticket.ShowtimeID,
		Seats:         seats,
		Foods:         foods,
		Discount:      r.Discount,
		TotalAmount:   r.Ticket.TotalAmount,
		PaymentStatus: r.Ticket.PaymentStatus,
		BookingStatus: r.Ticket.BookingStatus,
		BookedAt:      r.Ticket.BookingDate,
	}
}

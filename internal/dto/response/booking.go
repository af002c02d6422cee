package response

import (
	"time"

	"coiffeur-booking/internal/data/entity"
)

type BookingItemResponse struct {
	ServiceID       string `json:"service_id"`
	Name            string `json:"name"`
	Price           int64  `json:"price"`
	DurationMinutes int    `json:"duration_minutes"`
}

type BookingResponse struct {
	ID              string                 `json:"id"`
	Reference       string                 `json:"reference"`
	ClientID        string                 `json:"client_id"`
	ProviderID      string                 `json:"provider_id"`
	Date            string                 `json:"date"`
	StartTime       string                 `json:"start_time"`
	EndTime         string                 `json:"end_time"`
	StartAt         time.Time              `json:"start_at"`
	EndAt           time.Time              `json:"end_at"`
	DurationMinutes int                    `json:"duration_minutes"`
	Location        entity.BookingLocation `json:"location"`
	Address         *string                `json:"address,omitempty"`
	Items           []BookingItemResponse  `json:"items"`
	Subtotal        int64                  `json:"subtotal"`
	Fee             int64                  `json:"fee"`
	Total           int64                  `json:"total"`
	Status          entity.BookingStatus   `json:"status"`
	PaymentRef      *string                `json:"payment_ref,omitempty"`
	// ClientSecret is only returned on creation so the client can confirm the hold.
	ClientSecret string `json:"client_secret,omitempty"`

	PaymentConfirmedAt *time.Time `json:"payment_confirmed_at,omitempty"`
	AcceptedAt         *time.Time `json:"accepted_at,omitempty"`
	DeclinedAt         *time.Time `json:"declined_at,omitempty"`
	CancelledAt        *time.Time `json:"cancelled_at,omitempty"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`
	NoShowAt           *time.Time `json:"no_show_at,omitempty"`
	CancelReason       *string    `json:"cancel_reason,omitempty"`
	RefundAmount       *int64     `json:"refund_amount,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BookingToResponse renders wall-clock fields in loc.
func BookingToResponse(b *entity.Booking, loc *time.Location) BookingResponse {
	items := make([]BookingItemResponse, len(b.Items))
	for i, it := range b.Items {
		items[i] = BookingItemResponse{
			ServiceID:       it.ServiceID.String(),
			Name:            it.Name,
			Price:           it.Price,
			DurationMinutes: it.DurationMinutes,
		}
	}

	start := b.StartAt.In(loc)
	end := b.EndAt.In(loc)

	return BookingResponse{
		ID:                 b.ID.String(),
		Reference:          b.Reference,
		ClientID:           b.ClientID.String(),
		ProviderID:         b.ProviderID.String(),
		Date:               start.Format("2006-01-02"),
		StartTime:          start.Format("15:04"),
		EndTime:            end.Format("15:04"),
		StartAt:            start,
		EndAt:              end,
		DurationMinutes:    b.DurationMinutes,
		Location:           b.Location,
		Address:            b.Address,
		Items:              items,
		Subtotal:           b.Subtotal,
		Fee:                b.Fee,
		Total:              b.Total,
		Status:             b.Status,
		PaymentRef:         b.PaymentRef,
		PaymentConfirmedAt: b.PaymentConfirmedAt,
		AcceptedAt:         b.AcceptedAt,
		DeclinedAt:         b.DeclinedAt,
		CancelledAt:        b.CancelledAt,
		CompletedAt:        b.CompletedAt,
		NoShowAt:           b.NoShowAt,
		CancelReason:       b.CancelReason,
		RefundAmount:       b.RefundAmount,
		CreatedAt:          b.CreatedAt,
		UpdatedAt:          b.UpdatedAt,
	}
}

package request

type CreateBookingRequest struct {
	ProviderID string   `json:"provider_id" validate:"required,uuid"`
	ServiceIDs []string `json:"service_ids" validate:"required,min=1,max=10,dive,uuid"`
	Date       string   `json:"date" validate:"required,datetime=2006-01-02"`
	StartTime  string   `json:"start_time" validate:"required,datetime=15:04"`
	Location   string   `json:"location" validate:"required,oneof=salon home_service"`
	Address    *string  `json:"address,omitempty" validate:"required_if=Location home_service,omitempty,min=5,max=255"`
}

// ConfirmPaymentRequest is posted by the payment webhook relay.
type ConfirmPaymentRequest struct {
	BookingID  string `json:"booking_id" validate:"required,uuid"`
	PaymentRef string `json:"payment_ref" validate:"required,max=255"`
}

type ProviderBookingsRequest struct {
	ProviderID string `json:"provider_id" validate:"required,uuid"`
	Date       string `json:"date" validate:"required,datetime=2006-01-02"`
}

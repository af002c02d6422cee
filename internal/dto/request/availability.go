package request

// AvailabilityRequest asks for free start times. Either Duration or
// ServiceIDs must be given; ServiceIDs wins when both are present.
type AvailabilityRequest struct {
	ProviderID string   `json:"provider_id" validate:"required,uuid"`
	Date       string   `json:"date" validate:"required,datetime=2006-01-02"`
	Duration   int      `json:"duration" validate:"omitempty,min=1,max=720"`
	ServiceIDs []string `json:"service_ids" validate:"omitempty,max=10,dive,uuid"`
}

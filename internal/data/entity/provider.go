package entity

import "github.com/google/uuid"

// Provider is a coiffeur offering appointments. Its id is the provider's user id.
type Provider struct {
	BaseNoDelete
	Name              string `db:"name"`
	OffersHomeService bool   `db:"offers_home_service"`
	HomeServiceFee    int64  `db:"home_service_fee"`
	Active            bool   `db:"active"`
}

// Service is an entry of a provider's catalog. Prices are minor currency units.
type Service struct {
	BaseNoDelete
	ProviderID      uuid.UUID `db:"provider_id"`
	Name            string    `db:"name"`
	Price           int64     `db:"price"`
	DurationMinutes int       `db:"duration_minutes"`
	Active          bool      `db:"active"`
}

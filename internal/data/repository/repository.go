package repository

import (
	"coiffeur-booking/pkg/database"

	"go.uber.org/zap"
)

type Repository struct {
	Session    SessionRepository
	Provider   ProviderRepository
	Service    ServiceRepository
	Booking    BookingRepository
	Settlement SettlementRepository
}

func NewRepository(db database.PgxIface, log *zap.Logger) *Repository {
	return &Repository{
		Session:    NewSessionRepository(db, log),
		Provider:   NewProviderRepository(db, log),
		Service:    NewServiceRepository(db, log),
		Booking:    NewBookingRepository(db, log),
		Settlement: NewSettlementRepository(db, log),
	}
}

package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"coiffeur-booking/internal/data/entity"
	"coiffeur-booking/pkg/database"
)

// ServiceRepository reads a provider's catalog of services.
type ServiceRepository interface {
	FindByProviderID(ctx context.Context, providerID uuid.UUID) ([]*entity.Service, error)
	FindByIDs(ctx context.Context, providerID uuid.UUID, ids []uuid.UUID) ([]*entity.Service, error)
}

type serviceRepository struct {
	db  database.PgxIface
	log *zap.Logger
}

func NewServiceRepository(db database.PgxIface, log *zap.Logger) ServiceRepository {
	return &serviceRepository{
		db:  db,
		log: log.With(zap.String("repository", "service")),
	}
}

const serviceColumns = `id, provider_id, name, price, duration_minutes, active, created_at, updated_at`

func (r *serviceRepository) FindByProviderID(ctx context.Context, providerID uuid.UUID) ([]*entity.Service, error) {
	query := `
		SELECT ` + serviceColumns + `
		FROM services
		WHERE provider_id = $1 AND active
		ORDER BY name
	`

	rows, err := r.db.Query(ctx, query, providerID)
	if err != nil {
		r.log.Error("Failed to find services by provider",
			zap.Error(err),
			zap.String("provider_id", providerID.String()),
		)
		return nil, fmt.Errorf("find services by provider %s: %w", providerID.String(), err)
	}
	defer rows.Close()

	return scanServices(rows)
}

// FindByIDs returns the active services among ids that belong to providerID.
// Missing or foreign ids are simply absent from the result.
func (r *serviceRepository) FindByIDs(ctx context.Context, providerID uuid.UUID, ids []uuid.UUID) ([]*entity.Service, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := `
		SELECT ` + serviceColumns + `
		FROM services
		WHERE provider_id = $1 AND id = ANY($2) AND active
	`

	rows, err := r.db.Query(ctx, query, providerID, ids)
	if err != nil {
		r.log.Error("Failed to find services by IDs",
			zap.Error(err),
			zap.String("provider_id", providerID.String()),
			zap.Int("count", len(ids)),
		)
		return nil, fmt.Errorf("find services for provider %s: %w", providerID.String(), err)
	}
	defer rows.Close()

	return scanServices(rows)
}

type rowScanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanServices(rows rowScanner) ([]*entity.Service, error) {
	var services []*entity.Service
	for rows.Next() {
		var s entity.Service
		if err := rows.Scan(
			&s.ID,
			&s.ProviderID,
			&s.Name,
			&s.Price,
			&s.DurationMinutes,
			&s.Active,
			&s.CreatedAt,
			&s.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan service row: %w", err)
		}
		services = append(services, &s)
	}
	return services, rows.Err()
}

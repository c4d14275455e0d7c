package tasks

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/google/uuid"

	"github.com/fintrackhq/fintrack/services/providers"
	"github.com/fintrackhq/fintrack/storage"
	"github.com/fintrackhq/fintrack/types"
	"github.com/fintrackhq/fintrack/utils/logger"
)

// SyncInstitutions refreshes the institution catalog of every registered
// provider: upserts what the provider reports and disables local rows
// the provider no longer lists.
func SyncInstitutions(ctx context.Context, db *sql.DB, registry *providers.Registry) error {
	providerRepo := storage.NewProviderRepository(db)
	institutionRepo := storage.NewInstitutionRepository(db)

	for _, adapter := range registry.All() {
		provider, err := providerRepo.GetByName(ctx, adapter.Name())
		if err != nil {
			logger.Errorf("SyncInstitutions: resolve provider %s: %v", adapter.Name(), err)
			continue
		}

		listed, err := adapter.GetInstitutions(ctx)
		if err != nil {
			logger.Errorf("SyncInstitutions: list %s institutions: %v", adapter.Name(), err)
			continue
		}

		seen := make([]string, 0, len(listed))
		for _, inst := range listed {
			seen = append(seen, inst.ProviderInstitutionID)
			if _, err := institutionRepo.Upsert(ctx, types.Institution{
				ID:                    uuid.New(),
				ProviderID:            provider.ID,
				ProviderInstitutionID: inst.ProviderInstitutionID,
				Name:                  inst.Name,
				LogoURL:               inst.LogoURL,
				Country:               inst.Country,
				Enabled:               inst.Enabled,
			}); err != nil {
				logger.Errorf("SyncInstitutions: upsert %s institution %s: %v", adapter.Name(), inst.ProviderInstitutionID, err)
			}
		}

		if len(seen) > 0 {
			if err := institutionRepo.DisableMissing(ctx, provider.ID, seen); err != nil {
				logger.Errorf("SyncInstitutions: disable missing %s institutions: %v", adapter.Name(), err)
			}
		}
	}
	return nil
}

// RefreshStaleConnections asks every provider for an on-demand refresh
// of each healthy connection. Providers without a refresh operation are
// skipped.
func RefreshStaleConnections(ctx context.Context, db *sql.DB, registry *providers.Registry) error {
	providerRepo := storage.NewProviderRepository(db)
	pcRepo := storage.NewProviderConnectionRepository(db)
	icRepo := storage.NewInstitutionConnectionRepository(db)

	for _, adapter := range registry.All() {
		provider, err := providerRepo.GetByName(ctx, adapter.Name())
		if err != nil {
			logger.Errorf("RefreshStaleConnections: resolve provider %s: %v", adapter.Name(), err)
			continue
		}

		pcs, err := pcRepo.ListByProvider(ctx, provider.ID)
		if err != nil {
			logger.Errorf("RefreshStaleConnections: list %s registrations: %v", adapter.Name(), err)
			continue
		}

		for _, pc := range pcs {
			links, err := icRepo.ListByProviderConnection(ctx, pc.ID)
			if err != nil {
				logger.Errorf("RefreshStaleConnections: list connections for %s: %v", pc.ID, err)
				continue
			}

			for _, link := range links {
				if link.Broken {
					continue
				}
				err := adapter.RefreshConnection(ctx, pc.UserID, link.ConnectionID)
				if errors.Is(err, providers.ErrNotSupported) {
					break
				}
				if err != nil {
					logger.Errorf("RefreshStaleConnections: refresh %s connection %s: %v", adapter.Name(), link.ConnectionID, err)
				}
			}
		}
	}
	return nil
}

// StartCronJobs starts cron jobs
func StartCronJobs(db *sql.DB, registry *providers.Registry) {
	scheduler := gocron.NewScheduler(time.Local)
	ctx := context.Background()

	// Seed the catalog at startup so a fresh deployment serves
	// institutions immediately.
	if err := SyncInstitutions(ctx, db, registry); err != nil {
		logger.Errorf("StartCronJobs for SyncInstitutions: %v", err)
	}

	_, err := scheduler.Every(24).Hours().Do(func() {
		if err := SyncInstitutions(ctx, db, registry); err != nil {
			logger.Errorf("SyncInstitutions: %v", err)
		}
	})
	if err != nil {
		logger.Errorf("StartCronJobs for SyncInstitutions: %v", err)
	}

	_, err = scheduler.Every(6).Hours().Do(func() {
		if err := RefreshStaleConnections(ctx, db, registry); err != nil {
			logger.Errorf("RefreshStaleConnections: %v", err)
		}
	})
	if err != nil {
		logger.Errorf("StartCronJobs for RefreshStaleConnections: %v", err)
	}

	scheduler.StartAsync()
}

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fintrackhq/fintrack/config"
	"github.com/fintrackhq/fintrack/routers"
	"github.com/fintrackhq/fintrack/services"
	"github.com/fintrackhq/fintrack/services/enrichment"
	"github.com/fintrackhq/fintrack/services/providers"
	"github.com/fintrackhq/fintrack/services/providers/enablebanking"
	"github.com/fintrackhq/fintrack/services/providers/saltedge"
	"github.com/fintrackhq/fintrack/services/providers/snaptrade"
	"github.com/fintrackhq/fintrack/services/providers/tink"
	"github.com/fintrackhq/fintrack/services/reconciler"
	"github.com/fintrackhq/fintrack/storage"
	"github.com/fintrackhq/fintrack/tasks"
	"github.com/fintrackhq/fintrack/types"
	"github.com/fintrackhq/fintrack/utils"
	"github.com/fintrackhq/fintrack/utils/logger"
)

// providerCatalog seeds the static provider rows.
var providerCatalog = []types.Provider{
	{Name: providers.SnapTrade, LogoURL: "https://assets.fintrack.app/providers/snaptrade.png"},
	{Name: providers.SaltEdge, LogoURL: "https://assets.fintrack.app/providers/saltedge.png"},
	{Name: providers.EnableBanking, LogoURL: "https://assets.fintrack.app/providers/enablebanking.png"},
	{Name: providers.Tink, LogoURL: "https://assets.fintrack.app/providers/tink.png"},
}

func main() {
	conf := config.ServerConfig()
	loc, _ := time.LoadLocation(conf.Timezone)
	time.Local = loc

	// Connect to the database
	if err := storage.DBConnection(config.DBConfig()); err != nil {
		logger.Fatalf("database DBConnection: %s", err)
	}
	db := storage.GetDB()
	defer db.Close()
	defer utils.CloseHTTPClient()

	// Initialize Redis
	if err := storage.InitializeRedis(); err != nil {
		logger.Fatalf("Redis initialization: %v", err)
	}

	// Seed the provider catalog
	ctx := context.Background()
	providerRepo := storage.NewProviderRepository(db)
	for _, p := range providerCatalog {
		p.ID = uuid.New()
		if _, err := providerRepo.Upsert(ctx, p); err != nil {
			logger.Fatalf("seed provider %s: %v", p.Name, err)
		}
	}

	// Build the provider registry
	tokens := storage.NewTokenCache()
	registry := providers.NewRegistry()
	registry.Register(snaptrade.NewAdapter(db, config.SnapTradeConfig()))
	registry.Register(saltedge.NewAdapter(db, config.SaltEdgeConfig()))
	registry.Register(enablebanking.NewAdapter(db, config.EnableBankingConfig(), tokens))
	registry.Register(tink.NewAdapter(db, config.TinkConfig(), tokens))

	// Notifications and enrichment behind the reconciler
	notificationConf := config.NotificationConfig()
	emailService := services.NewEmailService(
		services.MailProvider(notificationConf.EmailProvider),
		services.HTTPUserDirectory(notificationConf),
	)
	pipeline := enrichment.NewPipeline(db, config.EnrichmentConfig(), tokens)
	recon := reconciler.NewService(db, registry, emailService, pipeline)

	// Start cron jobs
	tasks.StartCronJobs(db, registry)

	// Run the server
	router := routers.Routes(db, registry, recon)

	appServer := fmt.Sprintf("%s:%s", conf.Host, conf.Port)
	logger.Infof("Server Running at :%v", appServer)

	logger.Fatalf("%v", router.Run(appServer))
}

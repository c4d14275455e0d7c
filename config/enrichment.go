package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// EnrichmentConfiguration defines the transaction enrichment settings
type EnrichmentConfiguration struct {
	BaseURL          string
	APIKey           string
	CategoryCacheTTL time.Duration
}

// EnrichmentConfig returns the enrichment configurations
func EnrichmentConfig() *EnrichmentConfiguration {
	viper.SetDefault("ENRICHMENT_BASE_URL", "https://api.ntropy.com/v2")
	viper.SetDefault("ENRICHMENT_CATEGORY_CACHE_TTL", 60)

	return &EnrichmentConfiguration{
		BaseURL:          viper.GetString("ENRICHMENT_BASE_URL"),
		APIKey:           viper.GetString("ENRICHMENT_API_KEY"),
		CategoryCacheTTL: time.Duration(viper.GetInt("ENRICHMENT_CATEGORY_CACHE_TTL")) * time.Minute,
	}
}

func init() {
	if err := SetupConfig(); err != nil {
		panic(fmt.Sprintf("config SetupConfig() error: %s", err))
	}
}

package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// ServerConfiguration defines the HTTP server settings
type ServerConfiguration struct {
	Debug                    bool
	Host                     string
	Port                     string
	Timezone                 string
	Environment              string
	SentryDSN                string
	CallbackBaseURL          string
	RateLimitUnauthenticated int
	RateLimitAuthenticated   int
	RedisHost                string
	RedisPort                string
	RedisPassword            string
	RedisDB                  int
}

// ServerConfig returns the server configurations
func ServerConfig() *ServerConfiguration {
	viper.SetDefault("DEBUG", false)
	viper.SetDefault("SERVER_HOST", "0.0.0.0")
	viper.SetDefault("SERVER_PORT", "8000")
	viper.SetDefault("SERVER_TIMEZONE", "UTC")
	viper.SetDefault("ENVIRONMENT", "local")
	viper.SetDefault("CALLBACK_BASE_URL", "http://localhost:8000")
	viper.SetDefault("RATE_LIMIT_UNAUTHENTICATED", 5)
	viper.SetDefault("RATE_LIMIT_AUTHENTICATED", 50)
	viper.SetDefault("REDIS_HOST", "localhost")
	viper.SetDefault("REDIS_PORT", "6379")
	viper.SetDefault("REDIS_DB", 0)

	return &ServerConfiguration{
		Debug:                    viper.GetBool("DEBUG"),
		Host:                     viper.GetString("SERVER_HOST"),
		Port:                     viper.GetString("SERVER_PORT"),
		Timezone:                 viper.GetString("SERVER_TIMEZONE"),
		Environment:              viper.GetString("ENVIRONMENT"),
		SentryDSN:                viper.GetString("SENTRY_DSN"),
		CallbackBaseURL:          viper.GetString("CALLBACK_BASE_URL"),
		RateLimitUnauthenticated: viper.GetInt("RATE_LIMIT_UNAUTHENTICATED"),
		RateLimitAuthenticated:   viper.GetInt("RATE_LIMIT_AUTHENTICATED"),
		RedisHost:                viper.GetString("REDIS_HOST"),
		RedisPort:                viper.GetString("REDIS_PORT"),
		RedisPassword:            viper.GetString("REDIS_PASSWORD"),
		RedisDB:                  viper.GetInt("REDIS_DB"),
	}
}

func init() {
	if err := SetupConfig(); err != nil {
		panic(fmt.Sprintf("config SetupConfig() error: %s", err))
	}
}

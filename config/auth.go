package config

import (
	"fmt"
	"sync"
	"time"

	"github.com/spf13/viper"
)

// AuthConfiguration defines the authentication & authorization settings
type AuthConfiguration struct {
	Secret            string
	JwtAccessLifespan time.Duration
}

var (
	authDefaultsOnce sync.Once
	authConfigOnce   sync.Once
	authConfig       *AuthConfiguration
)

// initAuthDefaults sets the default values for auth configuration.
// Called once during initialization to avoid concurrent map writes.
func initAuthDefaults() {
	authDefaultsOnce.Do(func() {
		viper.SetDefault("JWT_ACCESS_LIFESPAN", 15) // 15 minutes
	})
}

// AuthConfig returns the authentication & authorization configurations.
// The config is initialized once and cached to avoid concurrent map writes.
func AuthConfig() *AuthConfiguration {
	initAuthDefaults()

	authConfigOnce.Do(func() {
		authConfig = &AuthConfiguration{
			Secret:            viper.GetString("SECRET"),
			JwtAccessLifespan: time.Duration(viper.GetInt("JWT_ACCESS_LIFESPAN")) * time.Minute,
		}
	})
	return authConfig
}

func init() {
	initAuthDefaults()

	if err := SetupConfig(); err != nil {
		panic(fmt.Sprintf("config SetupConfig() error: %s", err))
	}
}

package config

import (
	"fmt"
	"os"

	"github.com/spf13/viper"
)

// Configuration holds every configuration section of the service.
type Configuration struct {
	Server        ServerConfiguration
	Database      DatabaseConfiguration
	Auth          AuthConfiguration
	Notification  NotificationConfiguration
	SnapTrade     SnapTradeConfiguration
	SaltEdge      SaltEdgeConfiguration
	EnableBanking EnableBankingConfiguration
	Tink          TinkConfiguration
	Enrichment    EnrichmentConfiguration
}

// SetupConfig reads the env file and environment into viper. It is safe to
// call from every config accessor's init guard.
func SetupConfig() error {
	var configuration *Configuration

	viper.AddConfigPath("../../../..")
	viper.AddConfigPath("../../..")
	viper.AddConfigPath("../..")
	viper.AddConfigPath("..")
	viper.AddConfigPath(".")

	envFilePath := os.Getenv("ENV_FILE_PATH")
	if envFilePath == "" {
		envFilePath = ".env"
	}

	viper.SetConfigName(envFilePath)
	viper.SetConfigType("env")

	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		fmt.Printf("Error reading config file, %s", err)
		return err
	}

	if err := viper.Unmarshal(&configuration); err != nil {
		fmt.Printf("error decoding config, %v", err)
		return err
	}

	return nil
}

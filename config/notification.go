package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// NotificationConfiguration defines the email service configurations
type NotificationConfiguration struct {
	EmailDomain       string
	EmailAPIKey       string
	EmailFromAddress  string
	EmailProvider     string
	UserServiceURL    string
	UserServiceAPIKey string
}

// NotificationConfig sets the email configurations
func NotificationConfig() (config *NotificationConfiguration) {
	viper.SetDefault("EMAIL_FROM_ADDRESS", "Fintrack <no-reply@fintrack.app>")
	viper.SetDefault("EMAIL_PROVIDER", "sendgrid")

	return &NotificationConfiguration{
		EmailDomain:       viper.GetString("EMAIL_DOMAIN"),
		EmailAPIKey:       viper.GetString("EMAIL_API_KEY"),
		EmailFromAddress:  viper.GetString("EMAIL_FROM_ADDRESS"),
		EmailProvider:     viper.GetString("EMAIL_PROVIDER"),
		UserServiceURL:    viper.GetString("USER_SERVICE_URL"),
		UserServiceAPIKey: viper.GetString("USER_SERVICE_API_KEY"),
	}
}

func init() {
	if err := SetupConfig(); err != nil {
		panic(fmt.Sprintf("config SetupConfig() error: %s", err))
	}
}

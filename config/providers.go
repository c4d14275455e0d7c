package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// SnapTradeConfiguration defines the SnapTrade integration settings.
// ConsumerKey signs every request; WebhookSecret authenticates callbacks.
type SnapTradeConfiguration struct {
	BaseURL       string
	ClientID      string
	ConsumerKey   string
	WebhookSecret string
	RedirectURI   string
}

// SnapTradeConfig returns the SnapTrade configurations
func SnapTradeConfig() *SnapTradeConfiguration {
	viper.SetDefault("SNAPTRADE_BASE_URL", "https://api.snaptrade.com/api/v1")

	return &SnapTradeConfiguration{
		BaseURL:       viper.GetString("SNAPTRADE_BASE_URL"),
		ClientID:      viper.GetString("SNAPTRADE_CLIENT_ID"),
		ConsumerKey:   viper.GetString("SNAPTRADE_CONSUMER_KEY"),
		WebhookSecret: viper.GetString("SNAPTRADE_WEBHOOK_SECRET"),
		RedirectURI:   viper.GetString("SNAPTRADE_REDIRECT_URI"),
	}
}

// SaltEdgeConfiguration defines the Salt Edge integration settings.
// CallbackPublicKey is the PEM-encoded key Salt Edge signs callbacks with.
type SaltEdgeConfiguration struct {
	BaseURL           string
	AppID             string
	Secret            string
	CallbackUser      string
	CallbackPassword  string
	CallbackPublicKey string
	ReturnURL         string
}

// SaltEdgeConfig returns the Salt Edge configurations
func SaltEdgeConfig() *SaltEdgeConfiguration {
	viper.SetDefault("SALTEDGE_BASE_URL", "https://www.saltedge.com/api/v5")

	return &SaltEdgeConfiguration{
		BaseURL:           viper.GetString("SALTEDGE_BASE_URL"),
		AppID:             viper.GetString("SALTEDGE_APP_ID"),
		Secret:            viper.GetString("SALTEDGE_SECRET"),
		CallbackUser:      viper.GetString("SALTEDGE_CALLBACK_USER"),
		CallbackPassword:  viper.GetString("SALTEDGE_CALLBACK_PASSWORD"),
		CallbackPublicKey: viper.GetString("SALTEDGE_CALLBACK_PUBLIC_KEY"),
		ReturnURL:         viper.GetString("SALTEDGE_RETURN_URL"),
	}
}

// EnableBankingConfiguration defines the Enable Banking integration
// settings. PrivateKey is the PEM-encoded RSA key used to sign request
// JWTs; ApplicationID doubles as the JWT kid header.
type EnableBankingConfiguration struct {
	BaseURL       string
	ApplicationID string
	PrivateKey    string
	WebhookSecret string
	RedirectURL   string
}

// EnableBankingConfig returns the Enable Banking configurations
func EnableBankingConfig() *EnableBankingConfiguration {
	viper.SetDefault("ENABLEBANKING_BASE_URL", "https://api.enablebanking.com")

	return &EnableBankingConfiguration{
		BaseURL:       viper.GetString("ENABLEBANKING_BASE_URL"),
		ApplicationID: viper.GetString("ENABLEBANKING_APPLICATION_ID"),
		PrivateKey:    viper.GetString("ENABLEBANKING_PRIVATE_KEY"),
		WebhookSecret: viper.GetString("ENABLEBANKING_WEBHOOK_SECRET"),
		RedirectURL:   viper.GetString("ENABLEBANKING_REDIRECT_URL"),
	}
}

// TinkConfiguration defines the Tink integration settings
type TinkConfiguration struct {
	BaseURL       string
	LinkBaseURL   string
	ClientID      string
	ClientSecret  string
	WebhookSecret string
	RedirectURI   string
	Market        string
}

// TinkConfig returns the Tink configurations
func TinkConfig() *TinkConfiguration {
	viper.SetDefault("TINK_BASE_URL", "https://api.tink.com")
	viper.SetDefault("TINK_LINK_BASE_URL", "https://link.tink.com")
	viper.SetDefault("TINK_MARKET", "GB")

	return &TinkConfiguration{
		BaseURL:       viper.GetString("TINK_BASE_URL"),
		LinkBaseURL:   viper.GetString("TINK_LINK_BASE_URL"),
		ClientID:      viper.GetString("TINK_CLIENT_ID"),
		ClientSecret:  viper.GetString("TINK_CLIENT_SECRET"),
		WebhookSecret: viper.GetString("TINK_WEBHOOK_SECRET"),
		RedirectURI:   viper.GetString("TINK_REDIRECT_URI"),
		Market:        viper.GetString("TINK_MARKET"),
	}
}

func init() {
	if err := SetupConfig(); err != nil {
		panic(fmt.Sprintf("config SetupConfig() error: %s", err))
	}
}

package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix            = "WARDVIEW"
	defaultHTTPAddress   = "0.0.0.0:8080"
	defaultDatabasePath  = "wardview.db"
	defaultLogLevel      = "info"
	defaultPredictorURL  = "http://localhost:5000"
	defaultPredictorWait = 10 * time.Second
	defaultTokenTTL      = 12 * time.Hour
	defaultTokenIssuer   = "wardview-auth"
	defaultTokenAudience = "wardview-api"
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress      string
	DatabasePath     string
	PredictorBaseURL string
	PredictorTimeout time.Duration
	SigningSecret    string
	TokenIssuer      string
	TokenAudience    string
	TokenTTL         time.Duration
	LogLevel         string
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("predictor.base_url", defaultPredictorURL)
	configViper.SetDefault("predictor.timeout", defaultPredictorWait)
	configViper.SetDefault("token.issuer", defaultTokenIssuer)
	configViper.SetDefault("token.audience", defaultTokenAudience)
	configViper.SetDefault("token.ttl", defaultTokenTTL)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:      configViper.GetString("http.address"),
		DatabasePath:     configViper.GetString("database.path"),
		PredictorBaseURL: configViper.GetString("predictor.base_url"),
		PredictorTimeout: configViper.GetDuration("predictor.timeout"),
		SigningSecret:    configViper.GetString("token.signing_secret"),
		TokenIssuer:      configViper.GetString("token.issuer"),
		TokenAudience:    configViper.GetString("token.audience"),
		TokenTTL:         configViper.GetDuration("token.ttl"),
		LogLevel:         configViper.GetString("log.level"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.SigningSecret) == "" {
		return fmt.Errorf("token.signing_secret is required")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if strings.TrimSpace(c.PredictorBaseURL) == "" {
		return fmt.Errorf("predictor.base_url is required")
	}
	if c.PredictorTimeout <= 0 {
		return fmt.Errorf("predictor.timeout must be positive")
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("token.ttl must be positive")
	}
	return nil
}

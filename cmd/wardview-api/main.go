package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/wardview/backend/internal/alerts"
	"github.com/wardview/backend/internal/auth"
	"github.com/wardview/backend/internal/clinicians"
	"github.com/wardview/backend/internal/config"
	"github.com/wardview/backend/internal/dashboard"
	"github.com/wardview/backend/internal/database"
	"github.com/wardview/backend/internal/logging"
	"github.com/wardview/backend/internal/patients"
	"github.com/wardview/backend/internal/risk"
	"github.com/wardview/backend/internal/server"
	"go.uber.org/zap"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "wardview-api",
		Short: "WardView ICU dashboard backend service",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().String("predictor-base-url", defaults.GetString("predictor.base_url"), "Deterioration prediction service base URL")
	cmd.PersistentFlags().Duration("predictor-timeout", defaults.GetDuration("predictor.timeout"), "Prediction request timeout")
	cmd.PersistentFlags().Duration("token-ttl", defaults.GetDuration("token.ttl"), "Session token TTL")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("signing-secret", "", "Session token signing secret (overrides env)")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "predictor.base_url", "predictor-base-url")
	bindFlag(cmd, "predictor.timeout", "predictor-timeout")
	bindFlag(cmd, "token.ttl", "token-ttl")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "token.signing_secret", "signing-secret")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	tokenManager, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(appConfig.SigningSecret),
		Issuer:        appConfig.TokenIssuer,
		Audience:      appConfig.TokenAudience,
		TokenTTL:      appConfig.TokenTTL,
	})
	if err != nil {
		return err
	}

	clinicianService, err := clinicians.NewService(clinicians.ServiceConfig{
		Database:   db,
		Clock:      time.Now,
		IDProvider: clinicians.NewUUIDProvider(),
	})
	if err != nil {
		return err
	}

	predictor, err := risk.NewPredictorClient(risk.PredictorClientConfig{
		BaseURL: appConfig.PredictorBaseURL,
		Timeout: appConfig.PredictorTimeout,
		Logger:  logger,
	})
	if err != nil {
		return err
	}

	riskStore, err := risk.NewStore(risk.StoreConfig{
		Database:  db,
		Predictor: predictor,
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	alertEngine, err := alerts.NewEngine(alerts.EngineConfig{
		Database: db,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	roster := patients.NewRoster(patients.RosterConfig{Logger: logger})
	roster.Load(patients.SeedRoster())

	dispatcher := server.NewRealtimeDispatcher()
	session, err := dashboard.NewSession(dashboard.SessionConfig{
		Roster:    roster,
		Risks:     riskStore,
		Alerts:    alertEngine,
		Publisher: dispatcher,
		Logger:    logger,
	})
	if err != nil {
		return err
	}
	session.LoadKnownScores(ctx)

	handler, err := server.NewHTTPHandler(server.Dependencies{
		TokenManager: tokenManager,
		Clinicians:   clinicianService,
		Session:      session,
		Realtime:     dispatcher,
		Logger:       logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:    appConfig.HTTPAddress,
		Handler: handler,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("address", appConfig.HTTPAddress))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

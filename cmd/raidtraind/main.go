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
	"go.uber.org/zap"

	"github.com/voyagerlabs/raidtrain/internal/catalog"
	"github.com/voyagerlabs/raidtrain/internal/config"
	"github.com/voyagerlabs/raidtrain/internal/database"
	"github.com/voyagerlabs/raidtrain/internal/logging"
	"github.com/voyagerlabs/raidtrain/internal/platform"
	"github.com/voyagerlabs/raidtrain/internal/rsvp"
	"github.com/voyagerlabs/raidtrain/internal/server"
	"github.com/voyagerlabs/raidtrain/internal/train"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "raidtraind",
		Short: "Raid train session coordinator service",
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
	cmd.PersistentFlags().Int("end-grace-seconds", defaults.GetInt("train.end_grace_seconds"), "Delay before an empty train's channel is deleted")
	cmd.PersistentFlags().Int("choice-page-size", defaults.GetInt("train.choice_page_size"), "Candidates per choice card")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "train.end_grace_seconds", "end-grace-seconds")
	bindFlag(cmd, "train.choice_page_size", "choice-page-size")
	bindFlag(cmd, "log.level", "log-level")
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

	trainStore, err := train.NewStore(db)
	if err != nil {
		return err
	}
	rsvpStore, err := rsvp.NewStore(rsvp.StoreConfig{Database: db})
	if err != nil {
		return err
	}

	// The chat platform and event catalog are external systems; the in-process
	// implementations back the standalone deployment used for development and
	// driving everything through the HTTP surface.
	trainService, err := train.NewService(train.ServiceConfig{
		Chat:           platform.NewMemoryChat(),
		Catalog:        catalog.NewMemoryCatalog(),
		Trains:         trainStore,
		RSVPs:          rsvpStore,
		IDs:            train.NewSnowflakeProvider(1),
		Logger:         logger,
		EndGrace:       appConfig.EndGrace,
		ChoicePageSize: appConfig.ChoicePageSize,
	})
	if err != nil {
		return err
	}

	if err := trainService.Recover(ctx); err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		TrainService: trainService,
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

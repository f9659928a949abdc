package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pancudaniel7/blocksub-ethereum-service/internal/infra"
	"github.com/pancudaniel7/blocksub-ethereum-service/internal/pkg/applog"
)

var (
	cfgFile  string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:           "blocksub",
	Short:         "Subscribes to Ethereum nodes and delivers every new block to listeners",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          run,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "configs/config.yaml", "config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (trace|debug|info|warn|error)")
	_ = viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func run(cmd *cobra.Command, _ []string) error {
	if err := infra.LoadConfig(cfgFile); err != nil {
		return err
	}
	logger := applog.NewAppDefaultLogger()

	app, err := infra.NewApp(logger)
	if err != nil {
		logger.Error("Failed to initialize service", "err", err)
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	startErr := app.Start()
	if startErr != nil {
		logger.Error("Failed to start service", "err", startErr)
	} else {
		<-ctx.Done()
		logger.Info("Shutdown signal received")
	}

	timeout := time.Duration(viper.GetInt("service.shutdown_timeout_seconds")) * time.Second
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := app.Stop(shutdownCtx); err != nil {
		logger.Warn("Shutdown finished with errors", "err", err)
	}
	return startErr
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// Command broker runs the Room Broker (C6): the authoritative WebSocket
// server renderers and controllers connect to.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rapidaai/padbroker/internal/broker"
	"github.com/rapidaai/padbroker/internal/config"
	"github.com/rapidaai/padbroker/internal/hub"
	"github.com/rapidaai/padbroker/internal/log"
	"github.com/rapidaai/padbroker/internal/version"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var v = viper.New()

var rootCmd = &cobra.Command{
	Use:     "broker",
	Short:   "Room broker for padbroker jam sessions",
	Version: version.String(),
	RunE:    run,
}

func init() {
	config.BindFlags(rootCmd.PersistentFlags(), v)
	v.SetEnvPrefix("PADBROKER")
	v.AutomaticEnv()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load(v)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := log.New(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer logger.Sync()

	var h hub.Hub
	if cfg.RedisAddr != "" {
		h = hub.NewRedis(cfg.RedisAddr)
		logger.Info("using redis-backed hub", zap.String("addr", cfg.RedisAddr))
	} else {
		h = hub.NewMemory()
		logger.Info("using in-memory hub")
	}
	defer h.Close()

	b := broker.New(h, logger, time.Duration(cfg.HeartbeatTimeoutMS)*time.Millisecond)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.WSPort),
		Handler: b.Engine(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("broker listening", zap.Int("port", cfg.WSPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// Command controller is the input-side end of a padbroker session: it joins
// a room as a controller and sends pad-hit / tempo-change frames typed at
// its stdin, printing whatever the renderer reports back.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rapidaai/padbroker/internal/client"
	"github.com/rapidaai/padbroker/internal/config"
	"github.com/rapidaai/padbroker/internal/log"
	"github.com/rapidaai/padbroker/internal/version"
	"github.com/rapidaai/padbroker/internal/wire"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var v = viper.New()

var (
	brokerURL string
	roomID    string
)

var rootCmd = &cobra.Command{
	Use:     "controller",
	Short:   "Controller: joins a room and sends pad hits typed at stdin",
	Version: version.String(),
	RunE:    run,
}

func init() {
	config.BindFlags(rootCmd.PersistentFlags(), v)
	rootCmd.PersistentFlags().StringVar(&brokerURL, "broker-url", "ws://localhost:5174/ws", "room broker websocket URL")
	rootCmd.PersistentFlags().StringVar(&roomID, "room", "default", "room to join")
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

	tr := client.New(client.Options{
		URL:              brokerURL,
		RoomID:           roomID,
		Role:             wire.RoleController,
		ReconnectInitial: time.Duration(cfg.ReconnectInitialMS) * time.Millisecond,
		ReconnectMax:     time.Duration(cfg.ReconnectMaxMS) * time.Millisecond,
		HeartbeatEvery:   time.Duration(cfg.HeartbeatIntervalMS) * time.Millisecond,
		MaxQueueSize:     cfg.MaxQueueSize,
		Logger:           logger,
	})

	tr.OnMessage(wire.TypeSyncState, func(m *wire.Message) {
		fmt.Printf("sync-state: tempo=%d mappings=%v\n", *m.Tempo, m.PadMappings)
	})
	tr.OnMessage(wire.TypeError, func(m *wire.Message) {
		fmt.Printf("error: %s\n", m.ErrorMessage)
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tr.Run(ctx)
	defer tr.Close()

	fmt.Println("commands: hit <pad-index> [velocity] | tempo <bpm> | quit")
	go readCommands(ctx, tr, logger)

	<-ctx.Done()
	logger.Info("shutting down")
	return nil
}

func readCommands(ctx context.Context, tr *client.Transport, logger *zap.Logger) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "hit":
			if len(fields) < 2 {
				fmt.Println("usage: hit <pad-index> [velocity]")
				continue
			}
			idx, err := strconv.Atoi(fields[1])
			if err != nil {
				fmt.Println("pad-index must be an integer")
				continue
			}
			var velocity *int
			if len(fields) >= 3 {
				v, err := strconv.Atoi(fields[2])
				if err != nil {
					fmt.Println("velocity must be an integer")
					continue
				}
				velocity = &v
			}
			if err := tr.Send(wire.NewPadHit(idx, velocity)); err != nil {
				logger.Warn("send pad-hit failed", zap.Error(err))
			}
		case "tempo":
			if len(fields) < 2 {
				fmt.Println("usage: tempo <bpm>")
				continue
			}
			bpm, err := strconv.Atoi(fields[1])
			if err != nil {
				fmt.Println("bpm must be an integer")
				continue
			}
			if err := tr.Send(wire.NewTempoChange(bpm)); err != nil {
				logger.Warn("send tempo-change failed", zap.Error(err))
			}
		case "quit":
			return
		default:
			fmt.Println("unknown command:", fields[0])
		}
	}
}

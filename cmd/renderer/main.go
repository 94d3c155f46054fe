// Command renderer is the audio-producing end of a padbroker session: it
// connects to a room as a renderer, loads samples, and triggers voices in
// response to pad-hit frames from any controller in the room.
package main

import (
	"context"
	"fmt"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rapidaai/padbroker/internal/audiohost"
	"github.com/rapidaai/padbroker/internal/client"
	"github.com/rapidaai/padbroker/internal/config"
	"github.com/rapidaai/padbroker/internal/log"
	"github.com/rapidaai/padbroker/internal/mixer"
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
	fake      bool
)

var rootCmd = &cobra.Command{
	Use:     "renderer",
	Short:   "Renderer: joins a room and plays back pad hits",
	Version: version.String(),
	RunE:    run,
}

func init() {
	config.BindFlags(rootCmd.PersistentFlags(), v)
	rootCmd.PersistentFlags().StringVar(&brokerURL, "broker-url", "ws://localhost:5174/ws", "room broker websocket URL")
	rootCmd.PersistentFlags().StringVar(&roomID, "room", "default", "room to join")
	rootCmd.PersistentFlags().BoolVar(&fake, "fake", false, "use the ticker-driven fake audio bridge instead of a real device")
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

	policy := mixer.StealOldest
	if cfg.VoiceStealing == config.StealQuietest {
		policy = mixer.StealQuietest
	}

	var bridge audiohost.Bridge
	if fake {
		bridge = audiohost.NewFakeBridge(48000, 128, 2*time.Millisecond, cfg.MaxPolyphony, cfg.AttackMS, cfg.ReleaseMS, policy)
	} else {
		logf := func(format string, args ...any) { logger.Sugar().Debugf(format, args...) }
		bridge = audiohost.NewPortAudioBridge(48000, 512, 2, cfg.MaxPolyphony, cfg.AttackMS, cfg.ReleaseMS, policy, logf)
	}
	if err := bridge.Start(); err != nil {
		return fmt.Errorf("start audio bridge: %w", err)
	}
	defer bridge.Stop()

	loadDemoKit(bridge)

	var tempo = 120
	padMappings := map[int]string{
		0: "kick", 1: "snare", 2: "hat-closed", 3: "hat-open",
	}

	tr := client.New(client.Options{
		URL:              brokerURL,
		RoomID:           roomID,
		Role:             wire.RoleRenderer,
		ReconnectInitial: time.Duration(cfg.ReconnectInitialMS) * time.Millisecond,
		ReconnectMax:     time.Duration(cfg.ReconnectMaxMS) * time.Millisecond,
		HeartbeatEvery:   time.Duration(cfg.HeartbeatIntervalMS) * time.Millisecond,
		MaxQueueSize:     cfg.MaxQueueSize,
		Logger:           logger,
	})

	tr.OnMessage(wire.TypePadHit, func(m *wire.Message) {
		soundID, ok := padMappings[*m.PadIndex]
		if !ok {
			return
		}
		bridge.Trigger(soundID)
	})
	tr.OnMessage(wire.TypeTempoChange, func(m *wire.Message) {
		tempo = *m.Tempo
		logger.Info("tempo changed", zap.Int("bpm", tempo))
	})
	tr.OnMessage(wire.TypeRequestSync, func(_ *wire.Message) {
		if err := tr.Send(wire.NewSyncState(tempo, padMappings)); err != nil {
			logger.Warn("failed to reply to request-sync", zap.Error(err))
		}
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tr.Run(ctx)
	<-ctx.Done()
	logger.Info("shutting down")
	return tr.Close()
}

// loadDemoKit loads a handful of short synthesized tones so the renderer has
// something audible before a real sample library is wired up.
func loadDemoKit(bridge audiohost.Bridge) {
	kit := map[string]float64{
		"kick":       90,
		"snare":      220,
		"hat-closed": 800,
		"hat-open":   900,
	}
	const rate = 48000.0
	const durationSec = 0.25
	frames := int(rate * durationSec)

	for soundID, freq := range kit {
		left := make([]float32, frames)
		right := make([]float32, frames)
		for i := 0; i < frames; i++ {
			decay := float32(1.0 - float64(i)/float64(frames))
			sample := float32(math.Sin(2*math.Pi*freq*float64(i)/rate)) * decay
			left[i] = sample
			right[i] = sample
		}
		bridge.Load(soundID, left, right, frames)
	}
}

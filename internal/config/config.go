// Package config loads and validates the options from spec section 6
// (Configuration) shared by the broker, renderer, and controller binaries.
package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// VoiceStealing selects the policy C2 uses when the voice pool is full.
type VoiceStealing string

const (
	StealOldest   VoiceStealing = "oldest"
	StealQuietest VoiceStealing = "quietest"
)

// Config holds every option in spec.md section 6, with its documented
// default. All three binaries (broker/renderer/controller) load the same
// struct; each only reads the fields relevant to it.
type Config struct {
	MaxPolyphony  int           `mapstructure:"max_polyphony" validate:"required,gt=0"`
	AttackMS      float64       `mapstructure:"attack_ms" validate:"required,gte=1,lte=3"`
	ReleaseMS     float64       `mapstructure:"release_ms" validate:"required,gte=1,lte=3"`
	VoiceStealing VoiceStealing `mapstructure:"voice_stealing" validate:"required,oneof=oldest quietest"`

	HeartbeatIntervalMS int `mapstructure:"heartbeat_interval_ms" validate:"required,gt=0"`
	HeartbeatTimeoutMS  int `mapstructure:"heartbeat_timeout_ms" validate:"required,gt=0"`

	ReconnectInitialMS int `mapstructure:"reconnect_initial_ms" validate:"required,gt=0"`
	ReconnectMaxMS     int `mapstructure:"reconnect_max_ms" validate:"required,gtefield=ReconnectInitialMS"`

	WSPort int `mapstructure:"ws_port" validate:"required,gt=0,lte=65535"`

	// MaxQueueSize bounds the client transport's outbound queue; see
	// DESIGN.md's Open Question Decisions for why this isn't unbounded.
	MaxQueueSize int `mapstructure:"max_queue_size" validate:"required,gt=0"`

	LogLevel string `mapstructure:"log_level" validate:"required"`

	// RedisAddr, when non-empty, switches the broker's room hub from the
	// in-memory implementation to the Redis-backed one (see internal/hub).
	RedisAddr string `mapstructure:"redis_addr"`
}

// Default returns the configuration with every documented default applied.
func Default() Config {
	return Config{
		MaxPolyphony:        32,
		AttackMS:            2,
		ReleaseMS:           3,
		VoiceStealing:       StealOldest,
		HeartbeatIntervalMS: 25000,
		HeartbeatTimeoutMS:  30000,
		ReconnectInitialMS:  1000,
		ReconnectMaxMS:      30000,
		WSPort:              5174,
		MaxQueueSize:        10000,
		LogLevel:            "info",
	}
}

// BindFlags registers every option as a persistent flag on fs and binds it
// into v, so cobra commands across cmd/broker, cmd/renderer, and
// cmd/controller share one definition of the option set.
func BindFlags(fs *pflag.FlagSet, v *viper.Viper) {
	def := Default()

	fs.Int("max-polyphony", def.MaxPolyphony, "voice pool size")
	fs.Float64("attack-ms", def.AttackMS, "envelope attack in milliseconds")
	fs.Float64("release-ms", def.ReleaseMS, "envelope release in milliseconds")
	fs.String("voice-stealing", string(def.VoiceStealing), "voice stealing policy: oldest|quietest")
	fs.Int("heartbeat-interval-ms", def.HeartbeatIntervalMS, "client heartbeat cadence")
	fs.Int("heartbeat-timeout-ms", def.HeartbeatTimeoutMS, "server liveness window")
	fs.Int("reconnect-initial-ms", def.ReconnectInitialMS, "initial reconnect backoff")
	fs.Int("reconnect-max-ms", def.ReconnectMaxMS, "reconnect backoff ceiling")
	fs.Int("ws-port", def.WSPort, "broker listen port")
	fs.Int("max-queue-size", def.MaxQueueSize, "outbound queue cap while disconnected")
	fs.String("log-level", def.LogLevel, "debug|info|warn|error")
	fs.String("redis-addr", "", "optional redis address for cross-process room fan-out")

	fs.VisitAll(func(f *pflag.Flag) {
		key := strings.ReplaceAll(f.Name, "-", "_")
		_ = v.BindPFlag(key, f)
	})
}

// Load builds a Config from v (after BindFlags has registered defaults and
// flags have been parsed) and validates it.
func Load(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

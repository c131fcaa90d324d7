// Package config reads the server configuration from command line flags,
// RDB_* environment variables and .env files.
package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/VoolFI71/go-rdb/internal/logging"
	"github.com/VoolFI71/go-rdb/internal/persist"
	"github.com/VoolFI71/go-rdb/internal/server"
)

const (
	EnvPrefix   = "rdb"
	DefaultPort = 6379
	DefaultDump = "dump.my_rdb"
)

type Config struct {
	Addr   string
	Port   int
	Engine string

	DumpFile        string
	SaveInterval    time.Duration
	JanitorInterval time.Duration

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	RateLimit    float64
	MaxConns     int

	MetricsAddr     string
	ShutdownTimeout time.Duration

	Log logging.Config
}

// ListenAddr joins Addr and Port.
func (c Config) ListenAddr() string {
	return net.JoinHostPort(c.Addr, strconv.Itoa(c.Port))
}

// Init loads .env files and makes viper read RDB_* variables.
func Init() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

// SetupFlags registers every server flag on cmd.
func SetupFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("addr", "0.0.0.0", "interface to listen on")
	f.Int("port", DefaultPort, "TCP port (the first positional argument overrides it)")
	f.String("engine", server.EngineNet, "connection engine (net, gnet)")
	f.String("dump-file", DefaultDump, "snapshot file loaded at start and written periodically (empty disables)")
	f.Duration("save-interval", persist.DefaultInterval, "period between background snapshots")
	f.Duration("janitor-interval", 100*time.Millisecond, "period of the expired key sweep (0 disables)")
	f.Duration("read-timeout", 0, "per read deadline (0 disables)")
	f.Duration("write-timeout", 0, "per write deadline (0 disables)")
	f.Duration("idle-timeout", 0, "close connections idle for this long (0 disables)")
	f.Float64("rate-limit", 0, "commands per second allowed per client IP (0 disables)")
	f.Int("max-conns", 0, "maximum concurrently served connections (0 unbounded)")
	f.String("metrics-addr", "", "address of the /metrics and pprof endpoint (empty disables)")
	f.Duration("shutdown-timeout", 10*time.Second, "time allowed for connections to finish on shutdown")
	f.String("log-level", "info", "log level (debug, info, warn, error)")
	f.String("log-format", "console", "log format (console, json)")
	f.String("log-file", "", "write logs to this file with rotation instead of stderr")
}

// Load binds cmd's flags to viper and resolves the configuration. A first
// positional argument is taken as the port.
func Load(cmd *cobra.Command, args []string) (Config, error) {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return Config{}, err
	}

	cfg := Config{
		Addr:            viper.GetString("addr"),
		Port:            viper.GetInt("port"),
		Engine:          strings.ToLower(viper.GetString("engine")),
		DumpFile:        viper.GetString("dump-file"),
		SaveInterval:    viper.GetDuration("save-interval"),
		JanitorInterval: viper.GetDuration("janitor-interval"),
		ReadTimeout:     viper.GetDuration("read-timeout"),
		WriteTimeout:    viper.GetDuration("write-timeout"),
		IdleTimeout:     viper.GetDuration("idle-timeout"),
		RateLimit:       viper.GetFloat64("rate-limit"),
		MaxConns:        viper.GetInt("max-conns"),
		MetricsAddr:     viper.GetString("metrics-addr"),
		ShutdownTimeout: viper.GetDuration("shutdown-timeout"),
		Log:             logging.DefaultConfig(),
	}
	cfg.Log.Level = viper.GetString("log-level")
	cfg.Log.Format = viper.GetString("log-format")
	cfg.Log.File = viper.GetString("log-file")

	if len(args) > 0 {
		port, err := strconv.Atoi(args[0])
		if err != nil {
			return Config{}, fmt.Errorf("invalid port %q: %w", args[0], err)
		}
		cfg.Port = port
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	switch c.Engine {
	case server.EngineNet, server.EngineGnet:
	default:
		return fmt.Errorf("invalid engine %s (expected net or gnet)", c.Engine)
	}
	if c.SaveInterval <= 0 {
		return fmt.Errorf("save-interval must be positive")
	}
	if c.RateLimit < 0 || c.MaxConns < 0 {
		return fmt.Errorf("rate-limit and max-conns must not be negative")
	}
	return nil
}

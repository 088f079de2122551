// control/config.go
// Author: momentics <momentics@gmail.com>
//
// Layered configuration with reload propagation.

package control

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/momentics/evsock/api"
)

// EnvPrefix prefixes every environment override, e.g. EVSOCK_PORT.
const EnvPrefix = "EVSOCK"

// Config holds the tunables shared by the CLI, servers and sockets.
type Config struct {
	Host             string        `mapstructure:"host"`
	Port             string        `mapstructure:"port"`
	RecvBufferSize   int           `mapstructure:"recv_buffer_size"`
	MaxPendingChunks int           `mapstructure:"max_pending_chunks"`
	ListenBacklog    int           `mapstructure:"listen_backlog"`
	AcceptInterval   time.Duration `mapstructure:"accept_interval"`
	LogLevel         string        `mapstructure:"log_level"`
	MetricsAddr      string        `mapstructure:"metrics_addr"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		Host:             "*",
		Port:             "2212",
		RecvBufferSize:   4096,
		MaxPendingChunks: 64,
		ListenBacklog:    100,
		AcceptInterval:   100 * time.Millisecond,
		LogLevel:         "info",
		MetricsAddr:      "",
	}
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	switch {
	case c.RecvBufferSize <= 0:
		return fmt.Errorf("%w: recv_buffer_size must be positive", api.ErrInvalidArgument)
	case c.MaxPendingChunks <= 0:
		return fmt.Errorf("%w: max_pending_chunks must be positive", api.ErrInvalidArgument)
	case c.ListenBacklog <= 0:
		return fmt.Errorf("%w: listen_backlog must be positive", api.ErrInvalidArgument)
	case c.AcceptInterval <= 0:
		return fmt.Errorf("%w: accept_interval must be positive", api.ErrInvalidArgument)
	case c.Port == "":
		return fmt.Errorf("%w: port is required", api.ErrInvalidArgument)
	}
	return nil
}

// LoadOptions selects the sources layered over the defaults.
type LoadOptions struct {
	// ConfigFile is an explicit config path; any format viper reads.
	ConfigFile string
	// Flags are bound by name, dashes mapping to underscores.
	Flags *pflag.FlagSet
}

// Loader owns the viper instance and its reload listeners.
type Loader struct {
	v         *viper.Viper
	mu        sync.Mutex
	listeners []func(*Config)
	watching  bool
}

// NewLoader layers defaults, the optional file, env and flags.
func NewLoader(opts LoadOptions) (*Loader, error) {
	v := viper.New()

	defaults := DefaultConfig()
	v.SetDefault("host", defaults.Host)
	v.SetDefault("port", defaults.Port)
	v.SetDefault("recv_buffer_size", defaults.RecvBufferSize)
	v.SetDefault("max_pending_chunks", defaults.MaxPendingChunks)
	v.SetDefault("listen_backlog", defaults.ListenBacklog)
	v.SetDefault("accept_interval", defaults.AcceptInterval)
	v.SetDefault("log_level", defaults.LogLevel)
	v.SetDefault("metrics_addr", defaults.MetricsAddr)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", opts.ConfigFile, err)
		}
	}

	if opts.Flags != nil {
		var bindErr error
		opts.Flags.VisitAll(func(f *pflag.Flag) {
			key := strings.ReplaceAll(f.Name, "-", "_")
			if !isKnownKey(key) {
				return
			}
			if err := v.BindPFlag(key, f); err != nil && bindErr == nil {
				bindErr = fmt.Errorf("bind flag %s: %w", f.Name, err)
			}
		})
		if bindErr != nil {
			return nil, bindErr
		}
	}

	return &Loader{v: v}, nil
}

// Load is a shorthand for NewLoader followed by Config.
func Load(opts LoadOptions) (*Config, error) {
	l, err := NewLoader(opts)
	if err != nil {
		return nil, err
	}
	return l.Config()
}

// Config decodes and validates the current layered values.
func (l *Loader) Config() (*Config, error) {
	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// OnReload registers fn to run with the new Config whenever the config file
// changes. Invalid edits are skipped. Without a config file this is a no-op.
func (l *Loader) OnReload(fn func(*Config)) {
	if l.v.ConfigFileUsed() == "" {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.listeners = append(l.listeners, fn)
	if l.watching {
		return
	}
	l.watching = true
	l.v.OnConfigChange(func(fsnotify.Event) { l.dispatchReload() })
	l.v.WatchConfig()
}

// dispatchReload invokes all listeners.
func (l *Loader) dispatchReload() {
	cfg, err := l.Config()
	if err != nil {
		return
	}
	l.mu.Lock()
	listeners := append([]func(*Config){}, l.listeners...)
	l.mu.Unlock()
	for _, fn := range listeners {
		fn(cfg)
	}
}

func isKnownKey(key string) bool {
	switch key {
	case "host", "port", "recv_buffer_size", "max_pending_chunks",
		"listen_backlog", "accept_interval", "log_level", "metrics_addr":
		return true
	}
	return false
}

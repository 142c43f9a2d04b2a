// Package config loads the configuration of the dflow server from a config file, environment
// variables and command line flags.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/l7mp/dflow/pkg/dataflow"
)

// EnvPrefix is the prefix of the environment variables, e.g., DFLOW_ADDR.
const EnvPrefix = "DFLOW"

// Keys of the configuration. Command line flags use the same names.
const (
	AddrKey         = "addr"
	GraphKey        = "graph"
	SinkBufferKey   = "sink-buffer"
	PublicKeyKey    = "public-key"
	MessageRateKey  = "message-rate"
	MessageBurstKey = "message-burst"
)

const (
	DefaultAddr         = ":8080"
	DefaultMessageBurst = 32
)

// Config is the server configuration.
type Config struct {
	// Addr is the listen address of the transport.
	Addr string `mapstructure:"addr" validate:"required"`
	// Graph is the path of the graph spec file.
	Graph string `mapstructure:"graph" validate:"required"`
	// SinkBuffer is the number of envelopes queued per session before it is dropped.
	SinkBuffer int `mapstructure:"sink-buffer" validate:"min=1"`
	// PublicKey is the path of the PEM-encoded RSA key used to validate bearer tokens. When
	// empty, authentication is disabled.
	PublicKey string `mapstructure:"public-key"`
	// MessageRate limits the inbound envelopes per second of each session. Zero means no limit.
	MessageRate float64 `mapstructure:"message-rate" validate:"min=0"`
	// MessageBurst is the burst of the per-session rate limit.
	MessageBurst int `mapstructure:"message-burst" validate:"min=1"`
}

// New returns a viper instance with the defaults and the environment bindings set up.
func New() *viper.Viper {
	v := viper.New()
	v.SetDefault(AddrKey, DefaultAddr)
	v.SetDefault(GraphKey, "")
	v.SetDefault(SinkBufferKey, dataflow.DefaultSinkBuffer)
	v.SetDefault(PublicKeyKey, "")
	v.SetDefault(MessageRateKey, 0.0)
	v.SetDefault(MessageBurstKey, DefaultMessageBurst)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	return v
}

// Load reads the optional config file into v and returns the validated configuration. Flags bound
// to v take precedence over environment variables, which take precedence over the file.
func Load(v *viper.Viper, file string) (*Config, error) {
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if errors.As(err, &notFound) {
				return nil, fmt.Errorf("config file %q not found: %w", file, err)
			}
			return nil, fmt.Errorf("failed to read config file %q: %w", file, err)
		}
	}

	c := &Config{}
	if err := v.Unmarshal(c); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validator.New().Struct(c); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return c, nil
}

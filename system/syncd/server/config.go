package server

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/signadot/docsync/system/syncd/auth"
	"github.com/signadot/docsync/system/syncd/kv"
	"github.com/signadot/docsync/system/syncd/model"
)

// Store kinds.
const (
	StoreMemory = "memory"
	StoreBolt   = "bolt"
)

// Authenticator kinds.
const (
	AuthNone = "none"
	AuthExpr = "expr"
	AuthJWT  = "jwt"
)

// Config represents the server configuration file structure.
type Config struct {
	// TCP is the listen address of the newline-delimited JSON binding.
	TCP string `yaml:"tcp"`
	// WebSocket is the listen address of the WebSocket binding; empty
	// disables it.
	WebSocket string `yaml:"websocket"`
	// CloseOnError closes a connection after reporting a failed handshake
	// instead of leaving it idle.
	CloseOnError bool `yaml:"closeOnError"`
	// TrackConsumers stores the last update seen by each consumer id.
	// Defaults to true.
	TrackConsumers *bool `yaml:"trackConsumers"`

	Store        *StoreConfig  `yaml:"store"`
	SessionStore *StoreConfig  `yaml:"sessionStore"`
	Auth         *AuthConfig   `yaml:"auth"`
	Stream       *StreamConfig `yaml:"stream"`
	Model        *ModelConfig  `yaml:"model"`
}

// StoreConfig selects a kv backend.
type StoreConfig struct {
	Kind string `yaml:"kind"`
	// Path is the database file of the bolt backend.
	Path string `yaml:"path"`
}

// AuthConfig selects an authenticator.
type AuthConfig struct {
	Kind string `yaml:"kind"`
	// Expr is a boolean expression over auth, for kind expr.
	Expr string `yaml:"expr"`
	// Secret is the HMAC key, for kind jwt.
	Secret string `yaml:"secret"`
	// Issuer, if set, is required in jwt tokens.
	Issuer string `yaml:"issuer"`
}

// StreamConfig tunes per-connection update delivery.
type StreamConfig struct {
	// Buffer is the number of updates queued per connection.
	Buffer int `yaml:"buffer"`
	// BroadcastTimeout is how long a full queue may stall before the
	// connection is failed, as a Go duration string.
	BroadcastTimeout string `yaml:"broadcastTimeout"`
}

// ModelConfig tunes document models.
type ModelConfig struct {
	// HistoryLimit is the number of patches kept for catch-up.
	HistoryLimit int `yaml:"historyLimit"`
}

// LoadConfig loads a YAML configuration file. Unset fields take their
// defaults and the result is validated.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig parses YAML configuration data.
func ParseConfig(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.UnmarshalWithOptions(data, cfg, yaml.DisallowUnknownField()); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	cfg.fillDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	track := true
	return &Config{
		TCP:            "localhost:9125",
		TrackConsumers: &track,
		Store:          &StoreConfig{Kind: StoreMemory},
		Auth:           &AuthConfig{Kind: AuthNone},
		Stream: &StreamConfig{
			Buffer:           100,
			BroadcastTimeout: model.DefaultBroadcastTimeout.String(),
		},
		Model: &ModelConfig{HistoryLimit: model.DefaultHistoryLimit},
	}
}

// fillDefaults restores sections a config file set to null.
func (c *Config) fillDefaults() {
	d := DefaultConfig()
	if c.TrackConsumers == nil {
		c.TrackConsumers = d.TrackConsumers
	}
	if c.Store == nil {
		c.Store = d.Store
	}
	if c.Store.Kind == "" {
		c.Store.Kind = StoreMemory
	}
	if c.Auth == nil {
		c.Auth = d.Auth
	}
	if c.Auth.Kind == "" {
		c.Auth.Kind = AuthNone
	}
	if c.Stream == nil {
		c.Stream = d.Stream
	}
	if c.Stream.BroadcastTimeout == "" {
		c.Stream.BroadcastTimeout = d.Stream.BroadcastTimeout
	}
	if c.Model == nil {
		c.Model = d.Model
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error
	if err := c.Store.validate(); err != nil {
		errs = append(errs, fmt.Errorf("store: %w", err))
	}
	if c.SessionStore != nil {
		if err := c.SessionStore.validate(); err != nil {
			errs = append(errs, fmt.Errorf("sessionStore: %w", err))
		}
	}
	if err := c.Auth.validate(); err != nil {
		errs = append(errs, fmt.Errorf("auth: %w", err))
	}
	if c.Stream.Buffer < 0 {
		errs = append(errs, fmt.Errorf("stream: buffer must not be negative"))
	}
	if _, err := c.Stream.Timeout(); err != nil {
		errs = append(errs, fmt.Errorf("stream: %w", err))
	}
	if c.Model.HistoryLimit < 0 {
		errs = append(errs, fmt.Errorf("model: historyLimit must not be negative"))
	}
	return errors.Join(errs...)
}

// Tracking reports whether consumer tracking is enabled.
func (c *Config) Tracking() bool {
	return c.TrackConsumers == nil || *c.TrackConsumers
}

func (s *StoreConfig) validate() error {
	switch s.Kind {
	case "", StoreMemory:
		return nil
	case StoreBolt:
		if s.Path == "" {
			return fmt.Errorf("bolt store requires a path")
		}
		return nil
	}
	return fmt.Errorf("unknown store kind %q", s.Kind)
}

// Open returns a factory for the configured backend. The closer, if non-nil,
// releases the backend.
func (s *StoreConfig) Open() (kv.Factory, io.Closer, error) {
	switch s.Kind {
	case "", StoreMemory:
		return kv.MemoryFactory(), nil, nil
	case StoreBolt:
		db, err := kv.OpenBolt(s.Path)
		if err != nil {
			return nil, nil, err
		}
		return db.Factory(), db, nil
	}
	return nil, nil, fmt.Errorf("unknown store kind %q", s.Kind)
}

func (a *AuthConfig) validate() error {
	switch a.Kind {
	case "", AuthNone:
		return nil
	case AuthExpr:
		if a.Expr == "" {
			return fmt.Errorf("%w: expr authenticator requires an expression", auth.ErrInvalidAuthenticator)
		}
		return nil
	case AuthJWT:
		if a.Secret == "" {
			return fmt.Errorf("%w: jwt authenticator requires a secret", auth.ErrInvalidAuthenticator)
		}
		return nil
	}
	return fmt.Errorf("%w: unknown kind %q", auth.ErrInvalidAuthenticator, a.Kind)
}

// Authenticator builds the configured authenticator. It returns nil for
// kind none.
func (a *AuthConfig) Authenticator() (auth.Authenticator, error) {
	if err := a.validate(); err != nil {
		return nil, err
	}
	switch a.Kind {
	case AuthExpr:
		ea, err := auth.NewExprAuthenticator(a.Expr)
		if err != nil {
			return nil, err
		}
		return ea, nil
	case AuthJWT:
		ja, err := auth.NewJWTAuthenticator([]byte(a.Secret), a.Issuer)
		if err != nil {
			return nil, err
		}
		return ja, nil
	}
	return nil, nil
}

// Timeout parses BroadcastTimeout.
func (s *StreamConfig) Timeout() (time.Duration, error) {
	if s.BroadcastTimeout == "" {
		return model.DefaultBroadcastTimeout, nil
	}
	d, err := time.ParseDuration(s.BroadcastTimeout)
	if err != nil {
		return 0, fmt.Errorf("invalid broadcastTimeout: %w", err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("broadcastTimeout must be positive")
	}
	return d, nil
}

// Package config loads and validates the responder's startup
// configuration, grounded on pkg/common/config.LoadConfig's
// viper+mapstructure shape (github.com/spf13/viper,
// github.com/mitchellh/mapstructure) and validated the way
// internal/msggateway validates request bodies, with a
// *validator.Validate built once and reused
// (github.com/go-playground/validator/v10).
package config

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/openimsdk/tools/errs"
	"github.com/spf13/viper"
)

// DomainConfig is one statically configured domain (spec.md §3).
type DomainConfig struct {
	Name          string  `mapstructure:"name" validate:"required"`
	SID           string  `mapstructure:"sid"`
	IDMin         uint32  `mapstructure:"idMin" validate:"required"`
	IDMax         uint32  `mapstructure:"idMax" validate:"required,gtfield=IDMin"`
	Enumerate     bool    `mapstructure:"enumerate"`
	FQNames       bool    `mapstructure:"fqNames"`
	CaseSensitive bool    `mapstructure:"caseSensitive"`
	MPG           bool    `mapstructure:"mpg"`
	OverrideGID   *uint32 `mapstructure:"overrideGID"`
	OverrideHomedir string `mapstructure:"overrideHomedir"`
	OverrideShell   string `mapstructure:"overrideShell"`
	DefaultShell    string `mapstructure:"defaultShell"`
	FallbackHomedir string `mapstructure:"fallbackHomedir"`
	FQNameTemplate  string `mapstructure:"fqNameTemplate"`
}

// ProviderConfig selects and configures the provider.Bus transport.
type ProviderConfig struct {
	// Transport is "inproc" or "kafka".
	Transport   string   `mapstructure:"transport" validate:"required,oneof=inproc kafka"`
	KafkaBrokers []string `mapstructure:"kafkaBrokers" validate:"required_if=Transport kafka"`
	RequestTopic string   `mapstructure:"requestTopic" validate:"required_if=Transport kafka"`
	UpdateTopic  string   `mapstructure:"updateTopic" validate:"required_if=Transport kafka"`
}

// DiscoveryConfig is the etcd endpoint backing domain discovery.
type DiscoveryConfig struct {
	Endpoints     []string `mapstructure:"endpoints" validate:"required,min=1"`
	DomainsPrefix string   `mapstructure:"domainsPrefix" validate:"required"`
}

// MetricsConfig gates the Prometheus HTTP endpoint.
type MetricsConfig struct {
	Enable bool   `mapstructure:"enable"`
	Addr   string `mapstructure:"addr" validate:"required_if=Enable true"`
}

// ShmCacheConfig sizes the shared-memory arena (spec.md §6.3).
type ShmCacheConfig struct {
	Path         string `mapstructure:"path" validate:"required"`
	SlotCount    uint32 `mapstructure:"slotCount" validate:"required,min=1"`
	PayloadBytes uint32 `mapstructure:"payloadBytes" validate:"required,min=1"`
}

// Config is the responder's top-level startup configuration.
type Config struct {
	SocketPath string `mapstructure:"socketPath" validate:"required"`

	RefreshWindow  time.Duration `mapstructure:"refreshWindow" validate:"required"`
	NegCacheTTL    time.Duration `mapstructure:"negCacheTTL" validate:"required"`
	EnumCacheTTL   time.Duration `mapstructure:"enumCacheTTL" validate:"required"`
	MemcacheSweep  time.Duration `mapstructure:"memcacheSweep" validate:"required"`

	Domains   []DomainConfig  `mapstructure:"domains" validate:"required,min=1,dive"`
	Provider  ProviderConfig  `mapstructure:"provider" validate:"required"`
	Discovery DiscoveryConfig `mapstructure:"discovery" validate:"required"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	ShmCache  ShmCacheConfig  `mapstructure:"shmCache" validate:"required"`

	GlobalOverrideHomedir string `mapstructure:"globalOverrideHomedir"`
	GlobalOverrideShell   string `mapstructure:"globalOverrideShell"`

	// NameSeparator joins the local name and domain name in an
	// unqualified-to-FQ expansion when a domain defines no
	// FQNameTemplate of its own. Defaults to "@" (sss_idmap_ctx_set_separator's
	// default) when left unset.
	NameSeparator string `mapstructure:"nameSeparator"`

	// GlobalIDMin/GlobalIDMax back domain.Domain.EffectiveRange's
	// fallback window for domains that configure neither bound
	// (discovered subdomains announced without an explicit range).
	// Left zero, the fallback resolves to "never in range" rather than
	// silently admitting every id.
	GlobalIDMin uint32 `mapstructure:"globalIDMin"`
	GlobalIDMax uint32 `mapstructure:"globalIDMax" validate:"omitempty,gtfield=GlobalIDMin"`
}

// Load reads path as YAML, applies EnvPrefix-scoped environment
// overrides, and validates the result — the same three steps
// pkg/common/config.LoadConfig performs, plus the validator pass
// internal/msggateway applies to request bodies, here applied once to
// the whole configuration at startup instead of per-request.
func Load(path, envPrefix string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, errs.WrapMsg(err, "failed to read config file", "path", path)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
	}); err != nil {
		return nil, errs.WrapMsg(err, "failed to unmarshal config", "path", path)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, errs.WrapMsg(err, "config validation failed", "path", path)
	}

	if cfg.NameSeparator == "" {
		cfg.NameSeparator = "@"
	}

	return &cfg, nil
}

package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Well-known payment contract addresses used when none is configured.
const (
	DefaultPreprodAddress = "addr_test1wzlwhustapq9ck0zdz8dahhwd350nzlpg785nz7hs0tqjtgdy4230"
	DefaultMainnetAddress = "addr1wyv9sc853kpurfdqv5f02tmmlscez20ks0p5p6aj76j0xac365skm"
)

const defaultRequestTimeout = 30 * time.Second

// ErrConfiguration is matched by every *Error returned from New and Load.
var ErrConfiguration = errors.New("configuration error")

// Error lists every required setting that was empty.
type Error struct {
	Missing []string
}

func (e *Error) Error() string {
	return "required config missing: " + strings.Join(e.Missing, ", ")
}

func (e *Error) Is(target error) bool { return target == ErrConfiguration }

type Config struct {
	Payment  PaymentConfig
	Registry RegistryConfig
	Contract ContractConfig
	Agent    AgentConfig
	Monitor  MonitorConfig
	Redis    RedisConfig
	Server   ServerConfig
	Log      LogConfig
}

type PaymentConfig struct {
	ServiceURL     string        `mapstructure:"service_url"`
	APIKey         string        `mapstructure:"api_key"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

type RegistryConfig struct {
	ServiceURL string `mapstructure:"service_url"`
	APIKey     string `mapstructure:"api_key"`
}

type ContractConfig struct {
	PreprodAddress string `mapstructure:"preprod_address"`
	MainnetAddress string `mapstructure:"mainnet_address"`
}

type AgentConfig struct {
	Identifier          string `mapstructure:"identifier"`
	Network             string `mapstructure:"network"`
	PurchaserIdentifier string `mapstructure:"purchaser_identifier"`
	// Amounts is a comma separated list of <quantity>:<unit> pairs.
	Amounts string `mapstructure:"amounts"`
}

type MonitorConfig struct {
	PollIntervalSec int64 `mapstructure:"poll_interval_sec"`
	IdleIntervalSec int64 `mapstructure:"idle_interval_sec"`
	StatusLimit     int   `mapstructure:"status_limit"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
}

type ServerConfig struct {
	Port              int    `mapstructure:"port"`
	GRPCHealthPort    int    `mapstructure:"grpc_health_port"`
	OperatorAddresses string `mapstructure:"operator_addresses"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// Option customises a Config built with New.
type Option func(*Config)

// WithRegistry sets the optional registry service endpoint and key.
func WithRegistry(url, apiKey string) Option {
	return func(c *Config) {
		c.Registry.ServiceURL = url
		c.Registry.APIKey = apiKey
	}
}

// WithPreprodAddress overrides the Preprod payment contract address.
// An empty address keeps the default.
func WithPreprodAddress(addr string) Option {
	return func(c *Config) { c.Contract.PreprodAddress = addr }
}

// WithMainnetAddress overrides the Mainnet payment contract address.
// An empty address keeps the default.
func WithMainnetAddress(addr string) Option {
	return func(c *Config) { c.Contract.MainnetAddress = addr }
}

// WithRequestTimeout bounds each call to the payment service. A
// non-positive d keeps the default.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *Config) { c.Payment.RequestTimeout = d }
}

// New builds a Config for library use. The payment service URL and API key
// are required; contract addresses fall back to the well-known defaults.
func New(serviceURL, apiKey string, opts ...Option) (*Config, error) {
	cfg := &Config{
		Payment: PaymentConfig{
			ServiceURL: serviceURL,
			APIKey:     apiKey,
		},
	}
	for _, opt := range opts {
		opt(cfg)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load reads configuration from an optional masumi.yaml and the environment.
func Load() (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("payment.request_timeout", defaultRequestTimeout)
	v.SetDefault("contract.preprod_address", DefaultPreprodAddress)
	v.SetDefault("contract.mainnet_address", DefaultMainnetAddress)
	v.SetDefault("agent.network", "Preprod")
	v.SetDefault("agent.amounts", "10000000:lovelace")
	v.SetDefault("monitor.poll_interval_sec", 60)
	v.SetDefault("monitor.idle_interval_sec", 60)
	v.SetDefault("monitor.status_limit", 10)
	v.SetDefault("redis.addr", "redis:6379")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.grpc_health_port", 9090)
	v.SetDefault("log.level", "info")

	// Config file (optional)
	v.SetConfigName("masumi")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")
	_ = v.ReadInConfig()

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Explicit env bindings
	bindings := map[string]string{
		"payment.service_url":        "PAYMENT_SERVICE_URL",
		"payment.api_key":            "PAYMENT_API_KEY",
		"payment.request_timeout":    "REQUEST_TIMEOUT",
		"registry.service_url":       "REGISTRY_SERVICE_URL",
		"registry.api_key":           "REGISTRY_API_KEY",
		"contract.preprod_address":   "PREPROD_CONTRACT_ADDRESS",
		"contract.mainnet_address":   "MAINNET_CONTRACT_ADDRESS",
		"agent.identifier":           "AGENT_IDENTIFIER",
		"agent.network":              "NETWORK",
		"agent.purchaser_identifier": "PURCHASER_IDENTIFIER",
		"agent.amounts":              "PAYMENT_AMOUNTS",
		"monitor.poll_interval_sec":  "POLL_INTERVAL_SEC",
		"monitor.idle_interval_sec":  "IDLE_INTERVAL_SEC",
		"monitor.status_limit":       "STATUS_LIMIT",
		"redis.addr":                 "REDIS_ADDR",
		"redis.password":             "REDIS_PASSWORD",
		"server.port":                "PORT",
		"server.grpc_health_port":    "GRPC_HEALTH_PORT",
		"server.operator_addresses":  "OPERATOR_ADDRESSES",
		"log.level":                  "LOG_LEVEL",
	}
	for key, env := range bindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", env, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.applyDefaults()

	return cfg, cfg.validate()
}

func (c *Config) applyDefaults() {
	if c.Contract.PreprodAddress == "" {
		c.Contract.PreprodAddress = DefaultPreprodAddress
	}
	if c.Contract.MainnetAddress == "" {
		c.Contract.MainnetAddress = DefaultMainnetAddress
	}
	if c.Payment.RequestTimeout <= 0 {
		c.Payment.RequestTimeout = defaultRequestTimeout
	}
}

func (c *Config) validate() error {
	type req struct {
		val  string
		name string
	}
	var missing []string
	for _, r := range []req{
		{c.Payment.ServiceURL, "PAYMENT_SERVICE_URL"},
		{c.Payment.APIKey, "PAYMENT_API_KEY"},
	} {
		if strings.TrimSpace(r.val) == "" {
			missing = append(missing, r.name)
		}
	}
	if len(missing) > 0 {
		return &Error{Missing: missing}
	}
	return nil
}

// ContractAddress returns the payment contract address for network.
// Anything other than Mainnet resolves to the Preprod address.
func (c *Config) ContractAddress(network string) string {
	if strings.EqualFold(network, "Mainnet") {
		return c.Contract.MainnetAddress
	}
	return c.Contract.PreprodAddress
}

// RequestTimeout is the per-call bound applied by the payment service client.
func (c *Config) RequestTimeout() time.Duration {
	return c.Payment.RequestTimeout
}

// Operators returns the comma separated OPERATOR_ADDRESSES as a list.
func (c *Config) Operators() []string {
	var out []string
	for _, a := range strings.Split(c.Server.OperatorAddresses, ",") {
		if a = strings.TrimSpace(a); a != "" {
			out = append(out, a)
		}
	}
	return out
}

package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Amount is a TRX quantity read from YAML or the environment.
type Amount struct {
	decimal.Decimal
}

func (a *Amount) UnmarshalYAML(node *yaml.Node) error {
	d, err := decimal.NewFromString(strings.TrimSpace(node.Value))
	if err != nil {
		return fmt.Errorf("line %d: invalid amount %q", node.Line, node.Value)
	}
	a.Decimal = d
	return nil
}

// Config is built once at start-up and never mutated afterwards.
type Config struct {
	Server struct {
		Port          int           `yaml:"port"`
		SigningSecret string        `yaml:"signing_secret"`
		SigningSkew   time.Duration `yaml:"signing_skew"`
	} `yaml:"server"`
	Chain struct {
		NodeURL string        `yaml:"node_url"`
		APIKey  string        `yaml:"api_key"`
		Timeout time.Duration `yaml:"timeout"`
	} `yaml:"chain"`
	Funder struct {
		PrivateKey string `yaml:"private_key"`
	} `yaml:"funder"`
	Funding struct {
		MinBalanceTRX  Amount `yaml:"min_balance_trx"`
		TopupAmountTRX Amount `yaml:"topup_amount_trx"`
	} `yaml:"funding"`
	Confirm struct {
		PollInterval time.Duration `yaml:"poll_interval"`
		Window       time.Duration `yaml:"window"`
	} `yaml:"confirm"`
	Telegram struct {
		BotToken      string        `yaml:"bot_token"`
		ChatID        string        `yaml:"chat_id"`
		APIBase       string        `yaml:"api_base"`
		SendTimeout   time.Duration `yaml:"send_timeout"`
		RatePerSecond float64       `yaml:"rate_per_second"`
	} `yaml:"telegram"`
	Monitor struct {
		Schedule string `yaml:"schedule"`
	} `yaml:"monitor"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

const (
	DefaultPath = "config.yaml"

	defaultPort         = 8080
	defaultNodeURL      = "https://api.trongrid.io"
	defaultRPCTimeout   = 15 * time.Second
	defaultPollInterval = 2500 * time.Millisecond
	defaultWindow       = 120 * time.Second
	defaultTelegramAPI  = "https://api.telegram.org"
	defaultSendTimeout  = 10 * time.Second
	defaultSigningSkew  = 60 * time.Second
	defaultSchedule     = "@every 5m"
)

// Path returns the config file location, honouring CONFIG_PATH.
func Path() string {
	return envOr("CONFIG_PATH", DefaultPath)
}

// Load starts from the defaults, overlays the optional YAML file at path and
// then the environment. A missing file is not an error. Values set
// explicitly, zero included, are kept as given and left to Validate.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if len(data) > 0 {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	c := &Config{}
	c.Server.Port = defaultPort
	c.Server.SigningSkew = defaultSigningSkew
	c.Chain.NodeURL = defaultNodeURL
	c.Chain.Timeout = defaultRPCTimeout
	c.Funding.MinBalanceTRX = Amount{decimal.NewFromInt(15)}
	c.Funding.TopupAmountTRX = Amount{decimal.NewFromInt(16)}
	c.Confirm.PollInterval = defaultPollInterval
	c.Confirm.Window = defaultWindow
	c.Telegram.APIBase = defaultTelegramAPI
	c.Telegram.SendTimeout = defaultSendTimeout
	c.Telegram.RatePerSecond = 1
	c.Monitor.Schedule = defaultSchedule
	c.Log.Level = "info"
	c.Log.Format = "text"
	return c
}

func (c *Config) applyEnv() error {
	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	collect(envInt("PORT", &c.Server.Port))
	envString("API_SIGNING_SECRET", &c.Server.SigningSecret)
	collect(envDuration("API_SIGNING_SKEW", &c.Server.SigningSkew))

	envString("TRON_NODE", &c.Chain.NodeURL)
	envString("TRON_API_KEY", &c.Chain.APIKey)
	collect(envDuration("TRON_RPC_TIMEOUT", &c.Chain.Timeout))

	envString("FUNDER_PRIVKEY", &c.Funder.PrivateKey)

	collect(envAmount("MIN_BALANCE_TRX", &c.Funding.MinBalanceTRX))
	collect(envAmount("TOPUP_AMOUNT_TRX", &c.Funding.TopupAmountTRX))

	collect(envDuration("CONFIRM_POLL_INTERVAL", &c.Confirm.PollInterval))
	collect(envDuration("CONFIRM_WINDOW", &c.Confirm.Window))

	envString("TG_BOT_TOKEN", &c.Telegram.BotToken)
	envString("TG_CHAT_ID", &c.Telegram.ChatID)
	envString("TG_API_BASE", &c.Telegram.APIBase)
	collect(envDuration("TG_SEND_TIMEOUT", &c.Telegram.SendTimeout))
	collect(envFloat("TG_RATE_PER_SECOND", &c.Telegram.RatePerSecond))

	envString("FUNDER_MONITOR_SCHEDULE", &c.Monitor.Schedule)
	envString("LOG_LEVEL", &c.Log.Level)
	envString("LOG_FORMAT", &c.Log.Format)

	return errors.Join(errs...)
}

// Validate rejects values the gateway cannot run with. Optional
// capabilities (funder key, Telegram, request signing) are never required.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Server.SigningSkew < 0 {
		return fmt.Errorf("server.signing_skew must not be negative")
	}
	if c.Chain.NodeURL == "" {
		return fmt.Errorf("chain.node_url is required")
	}
	if c.Chain.Timeout < 0 {
		return fmt.Errorf("chain.timeout must not be negative")
	}
	if !c.Funding.MinBalanceTRX.IsPositive() {
		return fmt.Errorf("funding.min_balance_trx must be positive")
	}
	if !c.Funding.TopupAmountTRX.IsPositive() {
		return fmt.Errorf("funding.topup_amount_trx must be positive")
	}
	if c.Confirm.PollInterval <= 0 {
		return fmt.Errorf("confirm.poll_interval must be positive")
	}
	if c.Confirm.Window < c.Confirm.PollInterval {
		return fmt.Errorf("confirm.window %s is shorter than confirm.poll_interval %s", c.Confirm.Window, c.Confirm.PollInterval)
	}
	if c.Telegram.RatePerSecond < 0 {
		return fmt.Errorf("telegram.rate_per_second must not be negative")
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	return nil
}

// TelegramEnabled reports whether both Telegram credentials are present.
// A half-configured channel counts as disabled.
func (c *Config) TelegramEnabled() bool {
	return c.Telegram.BotToken != "" && c.Telegram.ChatID != ""
}

func (c *Config) FundingEnabled() bool {
	return strings.TrimSpace(c.Funder.PrivateKey) != ""
}

func envOr(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		return val
	}
	return fallback
}

func envString(key string, dst *string) {
	*dst = envOr(key, *dst)
}

func envInt(key string, dst *int) error {
	val := envOr(key, "")
	if val == "" {
		return nil
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = parsed
	return nil
}

func envFloat(key string, dst *float64) error {
	val := envOr(key, "")
	if val == "" {
		return nil
	}
	parsed, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = parsed
	return nil
}

// envDuration accepts Go durations ("2.5s") and bare seconds ("120").
func envDuration(key string, dst *time.Duration) error {
	val := envOr(key, "")
	if val == "" {
		return nil
	}
	if secs, err := strconv.ParseFloat(val, 64); err == nil {
		*dst = time.Duration(secs * float64(time.Second))
		return nil
	}
	parsed, err := time.ParseDuration(val)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = parsed
	return nil
}

func envAmount(key string, dst *Amount) error {
	val := envOr(key, "")
	if val == "" {
		return nil
	}
	parsed, err := decimal.NewFromString(val)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	dst.Decimal = parsed
	return nil
}

// Package config loads the checkout server configuration from YAML.
//
// A missing file is not an error: Load returns Default. Values present in the
// file override the defaults field by field.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/gitarcode-test/opencollective-frontend-sub001/internal/amount"
	"github.com/gitarcode-test/opencollective-frontend-sub001/internal/service/directory"
)

// Storage drivers.
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
)

// Config is the full server configuration.
type Config struct {
	HTTP     HTTP     `yaml:"http"`
	Checkout Checkout `yaml:"checkout"`
	Storage  Storage  `yaml:"storage"`
	Sandbox  Sandbox  `yaml:"sandbox"`
	Log      Log      `yaml:"log"`
}

type HTTP struct {
	Addr           string        `yaml:"addr"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

type Checkout struct {
	BaseURL           string        `yaml:"base_url"`
	SuccessRedirect   string        `yaml:"success_redirect"`
	CallTimeout       time.Duration `yaml:"call_timeout"`
	SessionTTL        time.Duration `yaml:"session_ttl"`
	TipPercentages    []int64       `yaml:"tip_percentages"`
	DefaultTipIndex   int           `yaml:"default_tip_index"`
	MaxChargeAttempts int           `yaml:"max_charge_attempts"`
}

type Storage struct {
	Driver string `yaml:"driver"`
	// Path is the sqlite database file.
	Path string `yaml:"path"`
}

// Sandbox configures the in-process collaborators.
type Sandbox struct {
	ProviderAccount string            `yaml:"provider_account"`
	AllowedTypes    []string          `yaml:"allowed_types"`
	DelaysMS        map[string]int64  `yaml:"delays_ms"`
	Catalog         directory.Catalog `yaml:",inline"`
}

type Log struct {
	Development bool `yaml:"development"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		HTTP: HTTP{
			Addr:           ":8080",
			ReadTimeout:    10 * time.Second,
			WriteTimeout:   30 * time.Second,
			RequestTimeout: 20 * time.Second,
		},
		Checkout: Checkout{
			BaseURL:           "http://localhost:8080",
			CallTimeout:       10 * time.Second,
			SessionTTL:        2 * time.Hour,
			TipPercentages:    append([]int64(nil), amount.DefaultTipPercentages...),
			DefaultTipIndex:   amount.DefaultTipIndex,
			MaxChargeAttempts: 5,
		},
		Storage: Storage{Driver: DriverMemory},
		Sandbox: Sandbox{ProviderAccount: "acct_sandbox"},
	}
}

// Load reads path over Default and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if c.HTTP.Addr == "" {
		return errors.New("http.addr is required")
	}
	u, err := url.Parse(c.Checkout.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("checkout.base_url %q must be an absolute URL", c.Checkout.BaseURL)
	}
	if len(c.Checkout.TipPercentages) == 0 {
		return errors.New("checkout.tip_percentages must not be empty")
	}
	for _, p := range c.Checkout.TipPercentages {
		if p <= 0 || p > 100 {
			return fmt.Errorf("checkout.tip_percentages: %d is out of range", p)
		}
	}
	if i := c.Checkout.DefaultTipIndex; i < 0 || i >= len(c.Checkout.TipPercentages) {
		return fmt.Errorf("checkout.default_tip_index %d is out of range", i)
	}
	if c.Checkout.MaxChargeAttempts < 0 {
		return errors.New("checkout.max_charge_attempts must not be negative")
	}
	if c.Checkout.CallTimeout < 0 || c.Checkout.SessionTTL < 0 {
		return errors.New("checkout timeouts must not be negative")
	}
	switch c.Storage.Driver {
	case DriverMemory:
	case DriverSQLite:
		if c.Storage.Path == "" {
			return errors.New("storage.path is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("unknown storage.driver %q", c.Storage.Driver)
	}
	return nil
}

// TipMenu returns the configured tip presets.
func (c Checkout) TipMenu() amount.TipMenu {
	return amount.NewTipMenu(c.TipPercentages, c.DefaultTipIndex)
}

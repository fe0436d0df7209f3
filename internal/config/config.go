package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"

	"marketfeed/internal/batch"
	"marketfeed/internal/httpx"
)

type Server struct {
	Port              string `mapstructure:"port"`
	RequestTimeoutSec int    `mapstructure:"request_timeout_sec"`
	// MaxParams caps how many requests one call may carry.
	MaxParams int `mapstructure:"max_params"`
}

// HTTP tunes the outbound client shared by all providers.
type HTTP struct {
	UserAgent                string            `mapstructure:"user_agent"`
	ResponseHeaderTimeoutSec int               `mapstructure:"response_header_timeout_sec"`
	MaxConnsPerHost          int               `mapstructure:"max_conns_per_host"`
	Headers                  map[string]string `mapstructure:"headers"`
}

// Endpoint describes one batchable provider endpoint.
type Endpoint struct {
	Path            string            `mapstructure:"path"`
	Mode            string            `mapstructure:"mode"`
	MaxBatchSize    int               `mapstructure:"max_batch_size"`
	PrimaryParams   []string          `mapstructure:"primary_params"`
	SecondaryParams []string          `mapstructure:"secondary_params"`
	PairParams      []string          `mapstructure:"pair_params"`
	Query           map[string]string `mapstructure:"query"`
	UpperCase       bool              `mapstructure:"upper_case"`
	Shape           string            `mapstructure:"shape"`
	ErrorField      string            `mapstructure:"error_field"`
	Object          string            `mapstructure:"object"`
	Field           string            `mapstructure:"field"`
	PrimaryField    string            `mapstructure:"primary_field"`
	SecondaryField  string            `mapstructure:"secondary_field"`
	ValuePath       string            `mapstructure:"value_path"`
	// ZeroIsValue accepts a literal 0 from the provider as a price.
	ZeroIsValue bool `mapstructure:"zero_is_value"`
}

// ShapeConfig returns the response shape settings of the endpoint.
func (e Endpoint) ShapeConfig() batch.ShapeConfig {
	return batch.ShapeConfig{
		Kind:           e.Shape,
		ErrorField:     e.ErrorField,
		Object:         e.Object,
		Field:          e.Field,
		PrimaryField:   e.PrimaryField,
		SecondaryField: e.SecondaryField,
		ValuePath:      e.ValuePath,
	}
}

type Provider struct {
	Enabled bool   `mapstructure:"enabled"`
	Name    string `mapstructure:"name"`
	BaseURL string `mapstructure:"base_url"`
	// ProBaseURL replaces BaseURL when an API key is set.
	ProBaseURL            string              `mapstructure:"pro_base_url"`
	APIKey                string              `mapstructure:"api_key"`
	APIKeyParam           string              `mapstructure:"api_key_param"`
	Headers               map[string]string   `mapstructure:"headers"`
	MaxRequestsPerMinute  int                 `mapstructure:"max_requests_per_minute"`
	Burst                 int                 `mapstructure:"burst"`
	MinRequestIntervalSec int                 `mapstructure:"min_request_interval_sec"`
	MaxConcurrency        int                 `mapstructure:"max_concurrency"`
	CacheTTLSeconds       int                 `mapstructure:"cache_ttl_sec"`
	CacheMaxItems         int                 `mapstructure:"cache_max_items"`
	Aliases               map[string]string   `mapstructure:"aliases"`
	Endpoints             map[string]Endpoint `mapstructure:"endpoints"`
}

// URL returns the base URL to call, preferring the pro URL when keyed.
func (p Provider) URL() string {
	if p.APIKey != "" && p.ProBaseURL != "" {
		return p.ProBaseURL
	}
	return p.BaseURL
}

type Config struct {
	Server    Server              `mapstructure:"server"`
	HTTP      HTTP                `mapstructure:"http"`
	Providers map[string]Provider `mapstructure:"providers"`
}

// HTTPOptions returns the outbound client settings. The server request
// timeout also bounds each provider call.
func (c Config) HTTPOptions() []httpx.Option {
	return []httpx.Option{
		httpx.WithTimeout(time.Duration(c.Server.RequestTimeoutSec) * time.Second),
		httpx.WithResponseHeaderTimeout(time.Duration(c.HTTP.ResponseHeaderTimeoutSec) * time.Second),
		httpx.WithMaxConnsPerHost(c.HTTP.MaxConnsPerHost),
		httpx.WithUserAgent(c.HTTP.UserAgent),
		httpx.WithHeaders(c.HTTP.Headers),
	}
}

// ProviderNames returns the enabled provider keys in sorted order.
func (c Config) ProviderNames() []string {
	names := make([]string, 0, len(c.Providers))
	for name, p := range c.Providers {
		if p.Enabled {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// defaults holds the built-in provider presets. Every leaf becomes a viper
// default, so a config file or env var can override single fields without
// restating the rest.
func defaults() map[string]any {
	return map[string]any{
		"server": map[string]any{
			"port":                "8080",
			"request_timeout_sec": 10,
			"max_params":          1000,
		},
		"http": map[string]any{
			"user_agent":                  "marketfeed/1.0",
			"response_header_timeout_sec": 5,
			"max_conns_per_host":          100,
		},
		"providers": map[string]any{
			"coingecko": map[string]any{
				"enabled":                 true,
				"name":                    "Coingecko",
				"base_url":                "https://api.coingecko.com/api/v3",
				"pro_base_url":            "https://pro-api.coingecko.com/api/v3",
				"api_key":                 "",
				"api_key_param":           "x_cg_pro_api_key",
				"max_requests_per_minute": 30,
				"burst":                   5,
				"max_concurrency":         2,
				"cache_ttl_sec":           0,
				"cache_max_items":         10000,
				"endpoints": map[string]any{
					"crypto": map[string]any{
						"path":             "/simple/price",
						"mode":             "multi",
						"max_batch_size":   250,
						"primary_params":   []string{"ids"},
						"secondary_params": []string{"vs_currencies"},
						"query":            map[string]any{"precision": "full"},
						"shape":            "flat",
					},
				},
			},
			"alphavantage": map[string]any{
				"enabled":                 false,
				"name":                    "Alphavantage",
				"base_url":                "https://www.alphavantage.co",
				"api_key":                 "",
				"api_key_param":           "apikey",
				"max_requests_per_minute": 5,
				"burst":                   1,
				"max_concurrency":         1,
				"endpoints": map[string]any{
					"forex": map[string]any{
						"path":             "/query",
						"mode":             "pair",
						"primary_params":   []string{"from_currency", "from_symbol", "symbol"},
						"secondary_params": []string{"to_currency", "to_symbol", "market"},
						"query":            map[string]any{"function": "CURRENCY_EXCHANGE_RATE"},
						"upper_case":       true,
						"shape":            "nested",
						"error_field":      "Error Message",
						"object":           "Realtime Currency Exchange Rate",
						"field":            "5. Exchange Rate",
					},
				},
			},
			"tiingo": map[string]any{
				"enabled":                 false,
				"name":                    "Tiingo",
				"base_url":                "https://api.tiingo.com",
				"api_key":                 "",
				"api_key_param":           "token",
				"max_requests_per_minute": 50,
				"burst":                   5,
				"max_concurrency":         2,
				"endpoints": map[string]any{
					"crypto": map[string]any{
						"path":            "/tiingo/crypto/top",
						"mode":            "multi",
						"max_batch_size":  100,
						"pair_params":     []string{"tickers"},
						"shape":           "records",
						"error_field":     "detail",
						"primary_field":   "baseCurrency",
						"secondary_field": "quoteCurrency",
						"value_path":      "topOfBookData.0.lastPrice",
					},
				},
			},
			"deribit": map[string]any{
				"enabled":                 false,
				"name":                    "Deribit",
				"base_url":                "https://www.deribit.com/api/v2",
				"api_key":                 "",
				"max_requests_per_minute": 20,
				"burst":                   5,
				"max_concurrency":         2,
				"endpoints": map[string]any{
					"volatility": map[string]any{
						"path":           "/public/get_historical_volatility",
						"mode":           "pair",
						"primary_params": []string{"currency"},
						"upper_case":     true,
						"shape":          "series",
						"error_field":    "error.message",
						"object":         "result",
					},
				},
			},
		},
	}
}

// secrets binds the conventional provider env vars on top of the
// MARKETFEED_ prefixed ones.
var secrets = map[string]string{
	"providers.coingecko.api_key":    "COINGECKO_API_KEY",
	"providers.alphavantage.api_key": "ALPHAVANTAGE_API_KEY",
	"providers.tiingo.api_key":       "TIINGO_API_KEY",
	"server.port":                    "PORT",
}

// Load reads configuration with the following precedence (lowest first):
//  1. built-in defaults
//  2. the config file at path, or ./config.{yaml,json} when path is empty
//  3. environment variables (MARKETFEED_SERVER_PORT, MARKETFEED_PROVIDERS_COINGECKO_API_KEY, COINGECKO_API_KEY, ...)
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v, "", defaults())

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	v.SetEnvPrefix("MARKETFEED")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range secrets {
		prefixed := "MARKETFEED_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, env); err != nil {
			return Config{}, fmt.Errorf("bind env %s: %w", env, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, prefix string, m map[string]any) {
	for k, val := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		// query maps stay whole: their keys are provider parameter names,
		// not config fields.
		if sub, ok := val.(map[string]any); ok && k != "query" {
			setDefaults(v, key, sub)
			continue
		}
		v.SetDefault(key, val)
	}
}

// Validate checks every enabled provider and its endpoints.
func (c Config) Validate() error {
	if c.Server.Port == "" {
		return errors.New("server.port is required")
	}
	var errs []error
	for _, name := range c.ProviderNames() {
		p := c.Providers[name]
		if p.URL() == "" {
			errs = append(errs, fmt.Errorf("provider %s: base_url is required", name))
		}
		if len(p.Endpoints) == 0 {
			errs = append(errs, fmt.Errorf("provider %s: at least one endpoint is required", name))
		}
		for epName, ep := range p.Endpoints {
			mode, err := batch.ParseMode(ep.Mode)
			if err != nil {
				errs = append(errs, fmt.Errorf("provider %s, endpoint %s: %w", name, epName, err))
			} else if _, err := ep.ShapeConfig().BuildFor(mode); err != nil {
				errs = append(errs, fmt.Errorf("provider %s, endpoint %s: %w", name, epName, err))
			}
			if len(ep.PrimaryParams) == 0 && len(ep.PairParams) == 0 {
				errs = append(errs, fmt.Errorf("provider %s, endpoint %s: primary_params or pair_params is required", name, epName))
			}
		}
	}
	return errors.Join(errs...)
}

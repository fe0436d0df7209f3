// Command fetch runs one batch against a configured provider endpoint and
// prints the outcomes as JSON.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"marketfeed/internal/batch"
	"marketfeed/internal/config"
	"marketfeed/internal/httpx"
	"marketfeed/internal/logger"
	"marketfeed/internal/provider"
)

func main() {
	var (
		configPath   string
		providerName string
		endpoint     string
		pairsCSV     string
		coinIDsCSV   string
		quote        string
		timeout      int
	)
	flag.StringVar(&configPath, "config", getenv("CONFIG_FILE", ""), "path to config file (optional)")
	flag.StringVar(&providerName, "provider", getenv("PROVIDER", "coingecko"), "provider name")
	flag.StringVar(&endpoint, "endpoint", getenv("ENDPOINT", "crypto"), "provider endpoint")
	flag.StringVar(&pairsCSV, "pairs", getenv("PAIRS", "BTC/USD,ETH/USD"), "comma-separated BASE/QUOTE pairs")
	flag.StringVar(&coinIDsCSV, "coinids", getenv("COINIDS", ""), "comma-separated provider coin ids, priced in -quote")
	flag.StringVar(&quote, "quote", getenv("QUOTE", "usd"), "quote used with -coinids")
	flag.IntVar(&timeout, "timeout", getenvInt("REQUEST_TIMEOUT_SEC", 15), "request timeout seconds")
	flag.Parse()

	logger.Init()
	log := logger.Component("fetch")

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}
	// the CLI may target a provider the config leaves disabled
	if p, ok := cfg.Providers[providerName]; ok {
		p.Enabled = true
		cfg.Providers[providerName] = p
	}

	registry, err := provider.Build(cfg, httpx.New(append(cfg.HTTPOptions(), httpx.WithTimeout(time.Duration(timeout)*time.Second))...), logger.Component("provider"))
	if err != nil {
		log.Fatal().Err(err).Msg("providers")
	}
	engine, ok := registry.Lookup(providerName, endpoint)
	if !ok {
		log.Fatal().Str("provider", providerName).Str("endpoint", endpoint).Strs("known", registry.Names()).Msg("unknown provider endpoint")
	}

	params, err := parsePairs(pairsCSV)
	if err != nil {
		log.Fatal().Err(err).Msg("pairs")
	}
	for _, id := range splitCSV(coinIDsCSV) {
		params = append(params, batch.Params{CoinID: id, Quote: quote})
	}
	if len(params) == 0 {
		log.Fatal().Msg("no pairs or coin ids provided")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeout)*time.Second)
	defer cancel()

	start := time.Now()
	outcomes := engine.Run(ctx, params)
	failed := 0
	for _, o := range outcomes {
		if !o.OK() {
			failed++
		}
	}
	log.Info().Int("requests", len(outcomes)).Int("failed", failed).Dur("took", time.Since(start)).Msg("batch done")

	b, _ := json.MarshalIndent(struct {
		Outcomes []batch.Outcome `json:"outcomes"`
	}{outcomes}, "", "  ")
	fmt.Println(string(b))
	if failed == len(outcomes) {
		os.Exit(1)
	}
}

// parsePairs reads "BTC/USD,ETH" into params. A pair without a quote asks
// for the provider's scalar value.
func parsePairs(s string) ([]batch.Params, error) {
	var out []batch.Params
	for _, pair := range splitCSV(s) {
		base, quote, _ := strings.Cut(pair, "/")
		base, quote = strings.TrimSpace(base), strings.TrimSpace(quote)
		if base == "" {
			return nil, fmt.Errorf("invalid pair %q", pair)
		}
		out = append(out, batch.Params{Base: base, Quote: quote})
	}
	return out, nil
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if x, err := strconv.Atoi(v); err == nil && x > 0 {
			return x
		}
	}
	return def
}

// Package config loads and validates the plugin's JSON configuration.
// The file may carry comments and trailing commas; it is standardized to
// plain JSON before decoding.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"

	"github.com/tailscale/hujson"
)

var (
	ErrCursorFileRequired = errors.New("cursor_file is required unless noop is set")
	ErrInvalidEndpoint    = errors.New("rpc endpoint must be an http(s) url")
	ErrLocalRPCRequired   = errors.New("local_rpc_client.endpoint is required")
)

// RPCClient names one JSON-RPC endpoint.
type RPCClient struct {
	Endpoint string `json:"endpoint"`
}

// Log configures logging. Level defaults to "info"; an empty File logs to
// stderr, otherwise output rotates at the named path.
type Log struct {
	Level string `json:"level"`
	File  string `json:"file,omitempty"`
}

// Config holds all recognized options of the plugin config file.
type Config struct {
	// Libpath locates the shared object for the host loader. The plugin
	// itself ignores it.
	Libpath string `json:"libpath,omitempty"`

	LocalRPCClient  RPCClient `json:"local_rpc_client"`
	RemoteRPCClient RPCClient `json:"remote_rpc_client"`

	CursorFile string `json:"cursor_file"`

	// Noop suppresses all pipe writes but preserves flow, for testing.
	Noop bool `json:"noop"`

	// SendProcessed treats Processed slot statuses as Confirmed and
	// ignores actual Confirmed ones: lower latency, weaker finality.
	SendProcessed bool `json:"send_processed"`

	Log Log `json:"log"`

	// Pipe paths. An empty string disables that pipe.
	BlockDestinationFile        string `json:"block_destination_file"`
	AccountBlockDestinationFile string `json:"account_block_destination_file"`

	// PrometheusListenAddress exposes /metrics when set.
	PrometheusListenAddress string `json:"prometheus_listen_address,omitempty"`
}

// Default returns the configuration defaults applied before the file is
// decoded on top.
func Default() Config {
	return Config{
		Log: Log{Level: "info"},
	}
}

// Load reads, standardizes, decodes and validates the config file at path.
func Load(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	return parse(raw)
}

func parse(raw []byte) (Config, error) {
	standardized, err := hujson.Standardize(raw)
	if err != nil {
		return Config{}, fmt.Errorf("invalid config file: %w", err)
	}

	cfg := Default()
	if err := json.Unmarshal(standardized, &cfg); err != nil {
		return Config{}, fmt.Errorf("invalid config file: %w", err)
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}

	if err := validate(cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func validate(cfg Config) error {
	if cfg.CursorFile == "" && !cfg.Noop {
		return ErrCursorFileRequired
	}

	if cfg.LocalRPCClient.Endpoint == "" {
		return ErrLocalRPCRequired
	}

	for _, endpoint := range []string{cfg.LocalRPCClient.Endpoint, cfg.RemoteRPCClient.Endpoint} {
		if endpoint == "" {
			continue
		}

		u, err := url.Parse(endpoint)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("%w: %q", ErrInvalidEndpoint, endpoint)
		}
	}

	return nil
}

// Package config provides functionality for managing configuration options
// for the client and the stub backend using command-line flags, a JSON
// config file and environment variables.
package config

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"time"

	"github.com/sethvargo/go-envconfig"
)

const (
	// DefaultAPIURL is the development backend used when API_URL is unset.
	DefaultAPIURL = "http://localhost:5000/api"
	// DefaultRefreshInterval is how often the session silently renews its token.
	DefaultRefreshInterval = 15 * time.Minute
	// DefaultRequestTimeout bounds a single API round trip.
	DefaultRequestTimeout = 30 * time.Second
)

// Token store kinds.
const (
	StoreFile     = "file"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
	StoreMemory   = "memory"
)

// Options holds the configuration values for the application.
type Options struct {
	// APIURL is the base URL every API path is appended to.
	APIURL string `env:"API_URL, overwrite"`
	// SocketURL is the live-tracking WebSocket address. Empty disables live tracking.
	SocketURL string `env:"SOCKET_URL, overwrite"`

	// RefreshInterval is the period of the background token refresh.
	RefreshInterval time.Duration `env:"REFRESH_INTERVAL, overwrite"`
	// RequestTimeout bounds each API request; zero disables the bound.
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT, overwrite"`
	// ForceLogoutOnUnauthorized ends the session when a user request gets 401.
	ForceLogoutOnUnauthorized bool `env:"FORCE_LOGOUT_ON_401, overwrite"`

	// TokenStore selects the token backend: file, postgres, redis or memory.
	TokenStore string `env:"TOKEN_STORE, overwrite"`
	// TokenFile is the path of the file token store.
	TokenFile string `env:"TOKEN_FILE, overwrite"`
	// TokenPassphrase seals the file token store. Environment only.
	TokenPassphrase string `env:"TOKEN_PASSPHRASE, overwrite"`
	// DatabaseDSN holds the connection string of the postgres token store.
	DatabaseDSN string `env:"DATABASE_DSN, overwrite"`
	// RedisAddr and RedisDB locate the redis token store.
	RedisAddr string `env:"REDIS_ADDR, overwrite"`
	RedisDB   int    `env:"REDIS_DB, overwrite"`

	// CAFile, CertFile and KeyFile configure optional TLS for the API transport.
	CAFile   string `env:"CA_FILE, overwrite"`
	CertFile string `env:"CERT_FILE, overwrite"`
	KeyFile  string `env:"KEY_FILE, overwrite"`

	// LogLevel is the minimum zap level.
	LogLevel string `env:"LOG_LEVEL, overwrite"`
	// MetricsAddr serves /metrics when set.
	MetricsAddr string `env:"METRICS_ADDR, overwrite"`

	// ServerAddress is the stub backend's listening address (ip:port).
	ServerAddress string `env:"SERVER_ADDRESS, overwrite"`
	// JWTSecret signs stub backend tokens. Environment only.
	JWTSecret string `env:"JWT_SECRET, overwrite"`
	// SimulateInterval is how often the stub backend moves its buses.
	SimulateInterval time.Duration `env:"SIMULATE_INTERVAL, overwrite"`

	// Config is the path to the Config file.
	Config string `env:"CONFIG, overwrite"`
}

// fileOptions is the JSON config file layout. Durations are strings such as "15m".
type fileOptions struct {
	APIURL                    *string `json:"api_url"`
	SocketURL                 *string `json:"socket_url"`
	RefreshInterval           *string `json:"refresh_interval"`
	RequestTimeout            *string `json:"request_timeout"`
	ForceLogoutOnUnauthorized *bool   `json:"force_logout_on_401"`
	TokenStore                *string `json:"token_store"`
	TokenFile                 *string `json:"token_file"`
	DatabaseDSN               *string `json:"database_dsn"`
	RedisAddr                 *string `json:"redis_addr"`
	RedisDB                   *int    `json:"redis_db"`
	CAFile                    *string `json:"ca_file"`
	CertFile                  *string `json:"cert_file"`
	KeyFile                   *string `json:"key_file"`
	LogLevel                  *string `json:"log_level"`
	MetricsAddr               *string `json:"metrics_addr"`
	ServerAddress             *string `json:"server_address"`
	SimulateInterval          *string `json:"simulate_interval"`
}

// newFlagSet registers every flag on a fresh FlagSet bound to options.
func newFlagSet(name string, options *Options) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.StringVar(&options.APIURL, "url", DefaultAPIURL, "API base URL")
	fs.StringVar(&options.SocketURL, "ws", "", "live tracking WebSocket URL")
	fs.DurationVar(&options.RefreshInterval, "refresh", DefaultRefreshInterval, "token refresh interval")
	fs.DurationVar(&options.RequestTimeout, "timeout", DefaultRequestTimeout, "per-request timeout (0 disables)")
	fs.BoolVar(&options.ForceLogoutOnUnauthorized, "logout-on-401", true, "end the session when a request is rejected with 401")
	fs.StringVar(&options.TokenStore, "store", StoreFile, "token store: file | postgres | redis | memory")
	fs.StringVar(&options.TokenFile, "token-file", "session.json", "path of the file token store")
	fs.StringVar(&options.DatabaseDSN, "d", "", "postgres DSN for the postgres token store")
	fs.StringVar(&options.RedisAddr, "redis", "localhost:6379", "redis address for the redis token store")
	fs.IntVar(&options.RedisDB, "redis-db", 0, "redis database number")
	fs.StringVar(&options.CAFile, "ca", "", "path to CA cert")
	fs.StringVar(&options.CertFile, "cert", "", "path to client cert")
	fs.StringVar(&options.KeyFile, "key", "", "path to client key")
	fs.StringVar(&options.LogLevel, "log-level", "info", "log level")
	fs.StringVar(&options.MetricsAddr, "metrics", "", "serve /metrics on this address")
	fs.StringVar(&options.ServerAddress, "a", "localhost:5000", "stub server ip:port")
	fs.DurationVar(&options.SimulateInterval, "simulate", 2*time.Second, "stub server bus movement interval")
	fs.StringVar(&options.Config, "config", "config.json", "path to config file")
	fs.StringVar(&options.Config, "c", "config.json", "path to config file (shorthand)")
	return fs
}

// Load parses args, then overlays the config file and then the environment
// read through lookuper. It returns the first error encountered.
func Load(args []string, lookuper envconfig.Lookuper) (*Options, error) {
	options := &Options{}
	fs := newFlagSet("schoolbus", options)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if v, ok := lookuper.Lookup("CONFIG"); ok && v != "" {
		options.Config = v
	}
	if options.Config != "" {
		if err := applyFile(options, options.Config); err != nil {
			return nil, err
		}
	}

	if err := envconfig.ProcessWith(context.Background(), &envconfig.Config{
		Target:   options,
		Lookuper: lookuper,
	}); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}

	if err := options.Validate(); err != nil {
		return nil, err
	}
	return options, nil
}

// Parse parses the command-line flags and environment variables to set
// configuration values. It exits the process on invalid configuration.
func Parse() *Options {
	options, err := Load(os.Args[1:], envconfig.OsLookuper())
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	return options
}

// applyFile overlays the keys present in the JSON file at path. A missing
// file is not an error.
func applyFile(options *Options, path string) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("stat config file: %w", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("error while reading config file: %w", err)
	}
	var fo fileOptions
	if err := json.Unmarshal(data, &fo); err != nil {
		return fmt.Errorf("error while parsing config file: %w", err)
	}

	setString(&options.APIURL, fo.APIURL)
	setString(&options.SocketURL, fo.SocketURL)
	setString(&options.TokenStore, fo.TokenStore)
	setString(&options.TokenFile, fo.TokenFile)
	setString(&options.DatabaseDSN, fo.DatabaseDSN)
	setString(&options.RedisAddr, fo.RedisAddr)
	setString(&options.CAFile, fo.CAFile)
	setString(&options.CertFile, fo.CertFile)
	setString(&options.KeyFile, fo.KeyFile)
	setString(&options.LogLevel, fo.LogLevel)
	setString(&options.MetricsAddr, fo.MetricsAddr)
	setString(&options.ServerAddress, fo.ServerAddress)
	if fo.RedisDB != nil {
		options.RedisDB = *fo.RedisDB
	}
	if fo.ForceLogoutOnUnauthorized != nil {
		options.ForceLogoutOnUnauthorized = *fo.ForceLogoutOnUnauthorized
	}
	for _, d := range []struct {
		dst *time.Duration
		src *string
		key string
	}{
		{&options.RefreshInterval, fo.RefreshInterval, "refresh_interval"},
		{&options.RequestTimeout, fo.RequestTimeout, "request_timeout"},
		{&options.SimulateInterval, fo.SimulateInterval, "simulate_interval"},
	} {
		if d.src == nil {
			continue
		}
		v, err := time.ParseDuration(*d.src)
		if err != nil {
			return fmt.Errorf("config file %s: %w", d.key, err)
		}
		*d.dst = v
	}
	return nil
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

// Validate reports configuration that cannot work.
func (o *Options) Validate() error {
	u, err := url.Parse(o.APIURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("api url %q must be an absolute http(s) URL", o.APIURL)
	}
	if o.RefreshInterval <= 0 {
		return errors.New("refresh interval must be positive")
	}
	if o.RequestTimeout < 0 {
		return errors.New("request timeout must not be negative")
	}
	switch o.TokenStore {
	case StoreFile, StoreMemory:
	case StorePostgres:
		if o.DatabaseDSN == "" {
			return errors.New("postgres token store requires DATABASE_DSN")
		}
	case StoreRedis:
		if o.RedisAddr == "" {
			return errors.New("redis token store requires REDIS_ADDR")
		}
	default:
		return fmt.Errorf("unknown token store %q", o.TokenStore)
	}
	if (o.CertFile == "") != (o.KeyFile == "") {
		return errors.New("client certificate and key must be set together")
	}
	return nil
}

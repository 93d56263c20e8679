package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"
)

type Config struct {
	ListenAddr string
	ListenPort int

	TTLSeconds    int64
	ChunkSize     int
	SweepInterval time.Duration

	TLSCertFile string
	TLSKeyFile  string

	// AdminAddr serves /healthz and /metrics; empty disables it. ADMIN_ADDR=off
	// disables it from the environment, where an empty value means unset.
	AdminAddr string

	UpstreamTimeout time.Duration
	MaxRetries      int

	Env      string
	LogLevel string
}

// Defaults returns the configuration used when nothing is set.
func Defaults() Config {
	return Config{
		ListenAddr:      "127.0.0.1",
		ListenPort:      8080,
		TTLSeconds:      30,
		ChunkSize:       8192,
		SweepInterval:   time.Minute,
		TLSCertFile:     "cert.pem",
		TLSKeyFile:      "key.pem",
		AdminAddr:       "127.0.0.1:9090",
		UpstreamTimeout: 30 * time.Second,
		MaxRetries:      0,
	}
}

// Load builds the configuration from the environment, then flags, then the
// optional positional arguments [listen_addr] [listen_port]. Later sources
// win. getenv is usually os.Getenv.
func Load(args []string, getenv func(string) string) (Config, error) {
	cfg := Defaults()
	if err := cfg.applyEnv(getenv); err != nil {
		return Config{}, err
	}

	fs := flag.NewFlagSet("caching-proxy", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.Int64Var(&cfg.TTLSeconds, "ttl", cfg.TTLSeconds, "cache freshness window in seconds")
	fs.IntVar(&cfg.ChunkSize, "chunk-size", cfg.ChunkSize, "largest response write in bytes")
	fs.DurationVar(&cfg.SweepInterval, "sweep-interval", cfg.SweepInterval, "expired entry sweep interval, 0 disables")
	fs.StringVar(&cfg.TLSCertFile, "tls-cert", cfg.TLSCertFile, "TLS certificate file")
	fs.StringVar(&cfg.TLSKeyFile, "tls-key", cfg.TLSKeyFile, "TLS private key file")
	fs.StringVar(&cfg.AdminAddr, "admin-addr", cfg.AdminAddr, "health and metrics listener, empty disables")
	fs.DurationVar(&cfg.UpstreamTimeout, "upstream-timeout", cfg.UpstreamTimeout, "origin fetch timeout")
	fs.IntVar(&cfg.MaxRetries, "upstream-max-retries", cfg.MaxRetries, "retries on transient network errors")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level")
	if err := fs.Parse(args); err != nil {
		return Config{}, fmt.Errorf("parse flags: %w", err)
	}

	rest := fs.Args()
	if len(rest) > 2 {
		return Config{}, fmt.Errorf("unexpected arguments: %v", rest[2:])
	}
	if len(rest) > 0 {
		cfg.ListenAddr = rest[0]
	}
	if len(rest) > 1 {
		port, err := strconv.Atoi(rest[1])
		if err != nil {
			return Config{}, fmt.Errorf("listen port %q: %w", rest[1], err)
		}
		cfg.ListenPort = port
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	if getenv == nil {
		return nil
	}

	var errs []error
	str := func(key string, dst *string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	integer := func(key string, dst *int) {
		if v := getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	duration := func(key string, dst *time.Duration) {
		if v := getenv(key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}

	str("LISTEN_ADDR", &c.ListenAddr)
	integer("LISTEN_PORT", &c.ListenPort)
	if v := getenv("CACHE_TTL_SECONDS"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("CACHE_TTL_SECONDS: %w", err))
		} else {
			c.TTLSeconds = n
		}
	}
	integer("CHUNK_SIZE", &c.ChunkSize)
	duration("CACHE_SWEEP_INTERVAL", &c.SweepInterval)
	str("TLS_CERT_FILE", &c.TLSCertFile)
	str("TLS_KEY_FILE", &c.TLSKeyFile)
	if v, ok := lookup(getenv, "ADMIN_ADDR"); ok {
		c.AdminAddr = v
	}
	duration("UPSTREAM_TIMEOUT", &c.UpstreamTimeout)
	integer("UPSTREAM_MAX_RETRIES", &c.MaxRetries)
	str("ENV", &c.Env)
	str("LOG_LEVEL", &c.LogLevel)

	return errors.Join(errs...)
}

// lookup treats the literal "off" as an explicit empty value.
func lookup(getenv func(string) string, key string) (string, bool) {
	v := getenv(key)
	switch v {
	case "":
		return "", false
	case "off":
		return "", true
	default:
		return v, true
	}
}

// Validate checks ranges only; file existence is checked when TLS loads.
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return errors.New("listen address is required")
	}
	if c.ListenPort < 1 || c.ListenPort > 65535 {
		return fmt.Errorf("listen port %d out of range", c.ListenPort)
	}
	if c.TTLSeconds < 1 {
		return fmt.Errorf("ttl %d must be at least one second", c.TTLSeconds)
	}
	if c.ChunkSize < 0 {
		return fmt.Errorf("chunk size %d must not be negative", c.ChunkSize)
	}
	if c.SweepInterval < 0 {
		return fmt.Errorf("sweep interval %s must not be negative", c.SweepInterval)
	}
	if c.TLSCertFile == "" || c.TLSKeyFile == "" {
		return errors.New("TLS certificate and key files are required")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries %d must not be negative", c.MaxRetries)
	}
	return nil
}

// Addr is the proxy listen address in host:port form.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.ListenAddr, strconv.Itoa(c.ListenPort))
}

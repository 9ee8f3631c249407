// Package config resolves the server's external interface (§6): CLI
// flags, mirrored PAGI_-prefixed environment variables, and a small
// TLS-certificate cache used to pick up rotated certificate files
// without a full server restart.
package config

import (
	"crypto/tls"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/spf13/pflag"
)

// Config is the fully resolved set of server knobs, independent of how
// each value was supplied (flag, env, or default).
type Config struct {
	Address            string
	Port               int
	WorkerCount        int
	MaxRequestsPerWork int64
	MaxConnections     int64
	ShutdownTimeout    time.Duration
	TLSCertFile        string
	TLSKeyFile         string
	BlockingPoolSize   int
	MetricsAddr        string
}

// Default returns the zero-config server: one worker, no TLS, no request
// cap, a ten-second shutdown grace period.
func Default() Config {
	return Config{
		Address:         "0.0.0.0",
		Port:            8000,
		WorkerCount:     1,
		ShutdownTimeout: 10 * time.Second,
		MetricsAddr:     "",
	}
}

// BindFlags registers every config field on fs, seeded from cfg's current
// values (so callers can layer flags over env-derived defaults).
func (c *Config) BindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&c.Address, "address", c.Address, "listen address")
	fs.IntVar(&c.Port, "port", c.Port, "listen port")
	fs.IntVar(&c.WorkerCount, "workers", c.WorkerCount, "number of pre-fork worker processes")
	fs.Int64Var(&c.MaxRequestsPerWork, "max-requests-per-worker", c.MaxRequestsPerWork, "requests served before a worker drains and is replaced (0 = unlimited)")
	fs.Int64Var(&c.MaxConnections, "max-connections", c.MaxConnections, "live connection cap per worker (0 = unlimited)")
	fs.DurationVar(&c.ShutdownTimeout, "shutdown-timeout", c.ShutdownTimeout, "grace period before killing workers that haven't exited")
	fs.StringVar(&c.TLSCertFile, "tls-cert", c.TLSCertFile, "PEM certificate file; enables TLS when set with -tls-key")
	fs.StringVar(&c.TLSKeyFile, "tls-key", c.TLSKeyFile, "PEM private key file")
	fs.IntVar(&c.BlockingPoolSize, "blocking-pool-size", c.BlockingPoolSize, "subprocess pool size for run_blocking (0 disables the pool)")
	fs.StringVar(&c.MetricsAddr, "metrics-address", c.MetricsAddr, "address to serve /metrics on (empty disables it)")
}

// ApplyEnv overrides each field whose PAGI_-prefixed environment variable
// is present, whatever the field's current value. Flags set explicitly
// on the command line still win over env: callers call ApplyEnv against
// the defaults before fs.Parse runs, so a later explicit flag always
// overrides whatever the environment set.
func ApplyEnv(c *Config) {
	if v, ok := os.LookupEnv("PAGI_ADDRESS"); ok {
		c.Address = v
	}
	if v, ok := lookupInt("PAGI_PORT"); ok {
		c.Port = v
	}
	if v, ok := lookupInt("PAGI_WORKERS"); ok {
		c.WorkerCount = v
	}
	if v, ok := lookupInt64("PAGI_MAX_REQUESTS_PER_WORKER"); ok {
		c.MaxRequestsPerWork = v
	}
	if v, ok := lookupInt64("PAGI_MAX_CONNECTIONS"); ok {
		c.MaxConnections = v
	}
	if v, ok := lookupDuration("PAGI_SHUTDOWN_TIMEOUT"); ok {
		c.ShutdownTimeout = v
	}
	if v, ok := os.LookupEnv("PAGI_TLS_CERT"); ok {
		c.TLSCertFile = v
	}
	if v, ok := os.LookupEnv("PAGI_TLS_KEY"); ok {
		c.TLSKeyFile = v
	}
	if v, ok := lookupInt("PAGI_BLOCKING_POOL_SIZE"); ok {
		c.BlockingPoolSize = v
	}
	if v, ok := os.LookupEnv("PAGI_METRICS_ADDRESS"); ok {
		c.MetricsAddr = v
	}
}

func (c Config) TLSEnabled() bool { return c.TLSCertFile != "" && c.TLSKeyFile != "" }

// ToEnv serializes c as PAGI_-prefixed KEY=VALUE pairs so a supervisor can
// hand its fully-resolved configuration (flags already layered over env)
// down to re-exec'd worker processes without those workers re-parsing a
// command line that never included the flags in the first place.
func (c Config) ToEnv() []string {
	env := []string{
		"PAGI_ADDRESS=" + c.Address,
		"PAGI_PORT=" + strconv.Itoa(c.Port),
		"PAGI_WORKERS=" + strconv.Itoa(c.WorkerCount),
		"PAGI_MAX_REQUESTS_PER_WORKER=" + strconv.FormatInt(c.MaxRequestsPerWork, 10),
		"PAGI_MAX_CONNECTIONS=" + strconv.FormatInt(c.MaxConnections, 10),
		"PAGI_SHUTDOWN_TIMEOUT=" + c.ShutdownTimeout.String(),
		"PAGI_BLOCKING_POOL_SIZE=" + strconv.Itoa(c.BlockingPoolSize),
	}
	if c.TLSCertFile != "" {
		env = append(env, "PAGI_TLS_CERT="+c.TLSCertFile)
	}
	if c.TLSKeyFile != "" {
		env = append(env, "PAGI_TLS_KEY="+c.TLSKeyFile)
	}
	if c.MetricsAddr != "" {
		env = append(env, "PAGI_METRICS_ADDRESS="+c.MetricsAddr)
	}
	return env
}

func lookupInt(key string) (int, bool) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	return n, err == nil
}

func lookupInt64(key string) (int64, bool) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(v, 10, 64)
	return n, err == nil
}

func lookupDuration(key string) (time.Duration, bool) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return 0, false
	}
	d, err := time.ParseDuration(v)
	return d, err == nil
}

// CertCache loads a TLS certificate from disk and caches it for a short
// TTL, so a certificate rotated on disk (e.g. by an ACME renewer) is
// picked up by new connections within one TTL window without a worker
// restart, at the cost of one stat+parse per TTL rather than per accept.
type CertCache struct {
	certFile, keyFile string
	cache             *cache.Cache
}

const certCacheKey = "cert"

// NewCertCache builds a cache that reloads certFile/keyFile after ttl.
func NewCertCache(certFile, keyFile string, ttl time.Duration) *CertCache {
	return &CertCache{certFile: certFile, keyFile: keyFile, cache: cache.New(ttl, ttl*2)}
}

// GetCertificate is suitable for tls.Config.GetCertificate.
func (c *CertCache) GetCertificate(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	if v, ok := c.cache.Get(certCacheKey); ok {
		cert := v.(tls.Certificate)
		return &cert, nil
	}
	cert, err := tls.LoadX509KeyPair(c.certFile, c.keyFile)
	if err != nil {
		return nil, fmt.Errorf("config: load tls certificate: %w", err)
	}
	c.cache.SetDefault(certCacheKey, cert)
	return &cert, nil
}

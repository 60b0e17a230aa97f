package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	LogLevel  string // "debug" | "info" | "warn" | "error"
	PrettyLog bool   // true => zap dev (color), false => zap prod (JSON)

	// Engines
	Engine      string // "docker" | "memory"
	BuilderHost string // docker host used to build images (empty = DOCKER_HOST)
	RunnerHost  string // docker host that runs containers (empty = builder host)

	// Deployment defaults
	DataDir          string        // host directory for proxy config and volume paths
	Network          string        // shared network joined by proxy and services
	ProxyName        string        // container name of the shared proxy
	ProxyImage       string        // ex: traefik:latest
	CertResolver     string        // traefik certificate resolver name
	ACMEEmail        string        // optional, contact for the certificate resolver
	ProgressInterval time.Duration // image transfer progress cadence
	HealthInterval   time.Duration // default poll interval of the health gate
	HealthTimeout    time.Duration // default hard deadline of the health gate
	DotenvFile       string        // dotenv file looked up in the source root

	// Settings store
	Store               string        // "file" | "redis"
	StoreFile           string        // path of the YAML settings document
	RedisAddr           string        // ex: "localhost:6379"
	RedisUser           string        // optional
	RedisPassword       string        // optional
	RedisDB             int           // Redis DB number
	RedisKey            string        // key holding the settings document
	RedisConnectTimeout time.Duration // total time to retry connecting
	RedisRetryInterval  time.Duration // initial wait between retries
	RedisMaxWait        time.Duration // max wait between retries

	MetricsFile string // optional, Prometheus textfile written after each run
}

// Load reads the LIGHTHOUSE_* environment and fills defaults.
func Load() (*Config, error) {
	dataDir := getenv("LIGHTHOUSE_DATA_DIR", "/var/lighthouse")

	cfg := &Config{
		LogLevel:  getenv("LIGHTHOUSE_LOG_LEVEL", "info"),
		PrettyLog: mustBool("LIGHTHOUSE_PRETTY_LOG", true),

		Engine:      getenv("LIGHTHOUSE_ENGINE", "docker"),
		BuilderHost: getenv("LIGHTHOUSE_BUILDER_HOST", ""),
		RunnerHost:  getenv("LIGHTHOUSE_RUNNER_HOST", ""),

		DataDir:          dataDir,
		Network:          getenv("LIGHTHOUSE_NETWORK", "lighthouse"),
		ProxyName:        getenv("LIGHTHOUSE_PROXY_NAME", "lighthouse-proxy"),
		ProxyImage:       getenv("LIGHTHOUSE_PROXY_IMAGE", "traefik:latest"),
		CertResolver:     getenv("LIGHTHOUSE_CERT_RESOLVER", "lighthouse"),
		ACMEEmail:        getenv("LIGHTHOUSE_ACME_EMAIL", ""),
		ProgressInterval: mustDuration("LIGHTHOUSE_PROGRESS_INTERVAL", 2*time.Second),
		HealthInterval:   mustDuration("LIGHTHOUSE_HEALTH_INTERVAL", 2*time.Second),
		HealthTimeout:    mustDuration("LIGHTHOUSE_HEALTH_TIMEOUT", time.Hour),
		DotenvFile:       getenv("LIGHTHOUSE_DOTENV_FILE", ".env"),

		Store:               getenv("LIGHTHOUSE_STORE", "file"),
		StoreFile:           getenv("LIGHTHOUSE_STORE_FILE", dataDir+"/config.yaml"),
		RedisAddr:           getenv("LIGHTHOUSE_REDIS_ADDR", "localhost:6379"),
		RedisUser:           getenv("LIGHTHOUSE_REDIS_USERNAME", ""),
		RedisPassword:       getenv("LIGHTHOUSE_REDIS_PASSWORD", ""),
		RedisDB:             getenvInt("LIGHTHOUSE_REDIS_DB", 0),
		RedisKey:            getenv("LIGHTHOUSE_REDIS_KEY", "lighthouse:settings"),
		RedisConnectTimeout: mustDuration("LIGHTHOUSE_REDIS_CONNECT_TIMEOUT", 10*time.Second),
		RedisRetryInterval:  mustDuration("LIGHTHOUSE_REDIS_RETRY_INTERVAL", 500*time.Millisecond),
		RedisMaxWait:        mustDuration("LIGHTHOUSE_REDIS_MAX_WAIT", 5*time.Second),

		MetricsFile: getenv("LIGHTHOUSE_METRICS_FILE", ""),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values that would only fail later, mid-deployment.
func (c *Config) Validate() error {
	switch c.Engine {
	case "docker", "memory":
	default:
		return fmt.Errorf("LIGHTHOUSE_ENGINE must be docker or memory, got %q", c.Engine)
	}
	switch c.Store {
	case "file", "redis":
	default:
		return fmt.Errorf("LIGHTHOUSE_STORE must be file or redis, got %q", c.Store)
	}
	if c.HealthInterval <= 0 {
		return fmt.Errorf("LIGHTHOUSE_HEALTH_INTERVAL must be > 0, got %v", c.HealthInterval)
	}
	if c.HealthTimeout < c.HealthInterval {
		return fmt.Errorf("LIGHTHOUSE_HEALTH_TIMEOUT (%v) must be >= LIGHTHOUSE_HEALTH_INTERVAL (%v)",
			c.HealthTimeout, c.HealthInterval)
	}
	if c.ProgressInterval <= 0 {
		return fmt.Errorf("LIGHTHOUSE_PROGRESS_INTERVAL must be > 0, got %v", c.ProgressInterval)
	}
	if strings.TrimSpace(c.Network) == "" || strings.TrimSpace(c.ProxyName) == "" {
		return fmt.Errorf("LIGHTHOUSE_NETWORK and LIGHTHOUSE_PROXY_NAME must not be empty")
	}
	return nil
}

// helpers
func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func mustBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func mustDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

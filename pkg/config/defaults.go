// Package config provides centralized configuration for the preloader service
package config

import (
	"bufio"
	"fmt"
	"log"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
)

var envLoaded sync.Once

// EnvFile is read once, before the environment is parsed. Variables already
// present in the environment win.
const EnvFile = ".env"

func loadEnvFile() {
	envLoaded.Do(func() {
		loadEnvFileFrom(EnvFile)
	})
}

func loadEnvFileFrom(path string) {
	file, err := os.Open(path)
	if err != nil {
		return
	}
	defer file.Close()

	log.Println("Loading configuration overrides from .env file...")
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.Trim(strings.TrimSpace(parts[1]), `"`)

		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
}

// Config holds every setting of the service.
type Config struct {
	// Server Configuration
	Port               string        `env:"PORT" envDefault:"8080"`
	Serve              bool          `env:"SERVE" envDefault:"true"`
	StaticDir          string        `env:"STATIC_DIR" envDefault:"public"`
	GinMode            string        `env:"GIN_MODE" envDefault:"debug"`
	ServerReadTimeout  time.Duration `env:"SERVER_READ_TIMEOUT" envDefault:"15s"`
	ServerWriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" envDefault:"15s"`
	ServerIdleTimeout  time.Duration `env:"SERVER_IDLE_TIMEOUT" envDefault:"60s"`
	CORSAllowOrigins   []string      `env:"CORS_ALLOW_ORIGINS" envSeparator:"," envDefault:"http://localhost:5173,http://127.0.0.1:5173,http://localhost:3000"`

	// Manifest and asset locations. Empty values are derived from Port.
	ManifestURL  string `env:"MANIFEST_URL"`
	AssetBaseURL string `env:"ASSET_BASE_URL"`
	AppOrigin    string `env:"APP_ORIGIN"`

	// Preload behavior
	ItemTimeout       time.Duration `env:"PRELOAD_ITEM_TIMEOUT" envDefault:"5s"`
	MaxConcurrency    int           `env:"PRELOAD_MAX_CONCURRENCY" envDefault:"0"`
	MaxBodyBytes      int64         `env:"PRELOAD_MAX_BODY_BYTES" envDefault:"67108864"`
	HTTPClientTimeout time.Duration `env:"HTTP_CLIENT_TIMEOUT" envDefault:"30s"`
	MaxTextureSize    int           `env:"MAX_TEXTURE_SIZE" envDefault:"0"`
	ExpectedAssetIDs  []string      `env:"EXPECTED_ASSET_IDS" envSeparator:"," envDefault:"test-image-local,test-image-remote,config"`

	// Logging
	LogDirectory string `env:"LOG_DIRECTORY" envDefault:"logs"`
	LogToFile    bool   `env:"LOG_TO_FILE" envDefault:"false"`
	LogJSON      bool   `env:"LOG_JSON" envDefault:"true"`
	LogLevel     string `env:"LOG_LEVEL" envDefault:"INFO"`
}

// Load reads .env (once) and parses the environment into a Config.
func Load() (*Config, error) {
	loadEnvFile()
	return Parse()
}

// Parse reads the current environment only.
func Parse() (*Config, error) {
	var cfg Config
	opts := env.Options{
		OnSet: func(tag string, value any, isDefault bool) {
			if !isDefault {
				log.Printf("Config override: %s=%v", tag, value)
			}
		},
	}
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.resolve(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) resolve() error {
	if c.ManifestURL == "" {
		c.ManifestURL = fmt.Sprintf("http://localhost:%s/data/manifest.json", c.Port)
	}
	manifestURL, err := url.Parse(c.ManifestURL)
	if err != nil {
		return fmt.Errorf("invalid MANIFEST_URL %q: %w", c.ManifestURL, err)
	}
	if c.AssetBaseURL == "" {
		c.AssetBaseURL = (&url.URL{Scheme: manifestURL.Scheme, Host: manifestURL.Host, Path: "/"}).String()
	}
	if _, err := url.Parse(c.AssetBaseURL); err != nil {
		return fmt.Errorf("invalid ASSET_BASE_URL %q: %w", c.AssetBaseURL, err)
	}
	if c.ItemTimeout < 0 {
		return fmt.Errorf("PRELOAD_ITEM_TIMEOUT must not be negative, got %s", c.ItemTimeout)
	}
	if c.MaxConcurrency < 0 {
		return fmt.Errorf("PRELOAD_MAX_CONCURRENCY must not be negative, got %d", c.MaxConcurrency)
	}
	return nil
}

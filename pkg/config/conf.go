package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	configFileName = "config.yaml"
	dotEnvFileName = ".env"
	envPrefix      = "PULSE_"
	dirMode        = 0700
	fileMode       = 0600

	RiskCritical = "CRITICAL"
	RiskHigh     = "HIGH"
	RiskMedium   = "MEDIUM"
	RiskLow      = "LOW"
)

var ErrInvalidPincode = errors.New("invalid pincode")

// Config represents the service configuration.
type Config struct {
	App        AppConfig        `yaml:"app" envPrefix:"APP_"`
	Server     ServerConfig     `yaml:"server" envPrefix:"SERVER_"`
	Security   SecurityConfig   `yaml:"security" envPrefix:"SECURITY_"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit" envPrefix:"RATE_LIMIT_"`
	Data       DataConfig       `yaml:"data" envPrefix:"DATA_"`
	ML         MLConfig         `yaml:"ml" envPrefix:"ML_"`
	Forecast   ForecastConfig   `yaml:"forecast" envPrefix:"FORECAST_"`
	Log        LogConfig        `yaml:"log" envPrefix:"LOG_"`
	Chat       ChatConfig       `yaml:"chat" envPrefix:"CHAT_"`
	Export     ExportConfig     `yaml:"export" envPrefix:"EXPORT_"`
	WebSocket  WebSocketConfig  `yaml:"websocket" envPrefix:"WS_"`
	Validation ValidationConfig `yaml:"validation" envPrefix:"VALIDATION_"`
	Thresholds ThresholdConfig  `yaml:"thresholds" envPrefix:"THRESHOLD_"`
	Telemetry  TelemetryConfig  `yaml:"telemetry" envPrefix:"OTEL_"`
	Store      StoreConfig      `yaml:"store" envPrefix:"STORE_"`
}

type AppConfig struct {
	Name         string `yaml:"name" env:"NAME"`
	Version      string `yaml:"version" env:"VERSION"`
	ModelVersion string `yaml:"model_version" env:"MODEL_VERSION"`
	Environment  string `yaml:"environment" env:"ENVIRONMENT"`
}

type ServerConfig struct {
	Host        string        `yaml:"host" env:"HOST"`
	Port        int           `yaml:"port" env:"PORT"`
	Timeout     time.Duration `yaml:"timeout" env:"TIMEOUT"`
	CORSOrigins []string      `yaml:"cors_origins" env:"CORS_ORIGINS"`
}

type SecurityConfig struct {
	APIKeyEnabled bool   `yaml:"api_key_enabled" env:"API_KEY_ENABLED"`
	APIKey        string `yaml:"-" env:"API_KEY"`
}

type RateLimitConfig struct {
	Enabled  bool          `yaml:"enabled" env:"ENABLED"`
	Requests int           `yaml:"requests" env:"REQUESTS"`
	Window   time.Duration `yaml:"window" env:"WINDOW"`
}

type DataConfig struct {
	Dir          string        `yaml:"dir" env:"DIR"`
	Dataset      string        `yaml:"dataset" env:"DATASET"`
	GeoFile      string        `yaml:"geo_file" env:"GEO_FILE"`
	Workers      int           `yaml:"workers" env:"WORKERS"`
	CacheEnabled bool          `yaml:"cache_enabled" env:"CACHE_ENABLED"`
	CacheTTL     time.Duration `yaml:"cache_ttl" env:"CACHE_TTL"`
}

type MLConfig struct {
	AnomalyEnabled    bool    `yaml:"anomaly_enabled" env:"ANOMALY_ENABLED"`
	Contamination     float64 `yaml:"contamination" env:"CONTAMINATION"`
	Trees             int     `yaml:"trees" env:"TREES"`
	ClusteringEnabled bool    `yaml:"clustering_enabled" env:"CLUSTERING_ENABLED"`
	Clusters          int     `yaml:"clusters" env:"CLUSTERS"`
	Neighbors         int     `yaml:"neighbors" env:"NEIGHBORS"`
	Seed              uint64  `yaml:"seed" env:"SEED"`
}

type ForecastConfig struct {
	Enabled  bool  `yaml:"enabled" env:"ENABLED"`
	Horizons []int `yaml:"horizons" env:"HORIZONS"`
}

type LogConfig struct {
	Level  string `yaml:"level" env:"LEVEL"`
	Format string `yaml:"format" env:"FORMAT"`
}

type ChatConfig struct {
	Enabled     bool          `yaml:"enabled" env:"ENABLED"`
	BaseURL     string        `yaml:"base_url" env:"BASE_URL"`
	Model       string        `yaml:"model" env:"MODEL"`
	APIKey      string        `yaml:"-" env:"API_KEY"`
	MaxTokens   int           `yaml:"max_tokens" env:"MAX_TOKENS"`
	Temperature float64       `yaml:"temperature" env:"TEMPERATURE"`
	Timeout     time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

type ExportConfig struct {
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	MaxRows int  `yaml:"max_rows" env:"MAX_ROWS"`
}

type WebSocketConfig struct {
	Enabled       bool          `yaml:"enabled" env:"ENABLED"`
	AlertInterval time.Duration `yaml:"alert_interval" env:"ALERT_INTERVAL"`
	AlertLimit    int           `yaml:"alert_limit" env:"ALERT_LIMIT"`
}

type ValidationConfig struct {
	Pincodes   bool `yaml:"pincodes" env:"PINCODES"`
	MinPincode int  `yaml:"min_pincode" env:"MIN_PINCODE"`
	MaxPincode int  `yaml:"max_pincode" env:"MAX_PINCODE"`
}

type ThresholdConfig struct {
	Critical    float64 `yaml:"critical" env:"CRITICAL"`
	High        float64 `yaml:"high" env:"HIGH"`
	Medium      float64 `yaml:"medium" env:"MEDIUM"`
	SectorAlert float64 `yaml:"sector_alert" env:"SECTOR_ALERT"`
}

type TelemetryConfig struct {
	Endpoint    string `yaml:"endpoint" env:"ENDPOINT"`
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
}

type StoreConfig struct {
	DSN string `yaml:"dsn" env:"DSN"`
}

// Default returns the configuration used when no file or env overrides exist.
func Default() *Config {
	return &Config{
		App: AppConfig{
			Name:         "Pulse of Bharat",
			Version:      "2.0.0",
			ModelVersion: "DEMOG_COHORT_v2.0",
			Environment:  "development",
		},
		Server: ServerConfig{
			Host:        "0.0.0.0",
			Port:        8000,
			Timeout:     60 * time.Second,
			CORSOrigins: []string{"*"},
		},
		RateLimit: RateLimitConfig{
			Enabled:  true,
			Requests: 100,
			Window:   60 * time.Second,
		},
		Data: DataConfig{
			Dir:          "chunked_data",
			Dataset:      "aadhaar_master",
			Workers:      4,
			CacheEnabled: true,
			CacheTTL:     300 * time.Second,
		},
		ML: MLConfig{
			AnomalyEnabled:    true,
			Contamination:     0.1,
			Trees:             100,
			ClusteringEnabled: true,
			Clusters:          8,
			Neighbors:         5,
			Seed:              42,
		},
		Forecast: ForecastConfig{
			Enabled:  true,
			Horizons: []int{1, 5, 10},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Chat: ChatConfig{
			Enabled:     true,
			BaseURL:     "https://api.openai.com",
			Model:       "gpt-4o-mini",
			MaxTokens:   1000,
			Temperature: 0.7,
			Timeout:     30 * time.Second,
		},
		Export: ExportConfig{
			Enabled: true,
			MaxRows: 100000,
		},
		WebSocket: WebSocketConfig{
			Enabled:       true,
			AlertInterval: 30 * time.Second,
			AlertLimit:    5,
		},
		Validation: ValidationConfig{
			Pincodes:   true,
			MinPincode: 100000,
			MaxPincode: 999999,
		},
		Thresholds: ThresholdConfig{
			Critical:    70,
			High:        50,
			Medium:      30,
			SectorAlert: 50,
		},
		Telemetry: TelemetryConfig{
			ServiceName: "pulse",
		},
	}
}

// Load builds the config from defaults, the optional YAML file at path,
// the optional .env file in the working directory, and PULSE_* env vars,
// in that order.
func Load(path string) (*Config, error) {
	c := Default()

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(b, c); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := loadDotEnv(dotEnvFileName); err != nil {
		return nil, err
	}

	if err := env.ParseWithOptions(c, env.Options{Prefix: envPrefix}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func loadDotEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	slog.Debug("loaded env file", "path", path)
	return nil
}

// Save writes c into the config file under dirPath.
func Save(dirPath string, c *Config) error {
	if dirPath == "" {
		return errors.New("config directory required")
	}
	if c == nil {
		return errors.New("config required")
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	path := filepath.Join(dirPath, configFileName)
	if err := os.WriteFile(path, b, fileMode); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", configFileName, err)
	}
	return nil
}

// ReadOrCreate loads the config file from dirPath, writing the defaults
// there first when it does not exist yet.
func ReadOrCreate(dirPath string) (*Config, error) {
	if dirPath == "" {
		return nil, errors.New("config directory required")
	}

	if _, err := os.Stat(dirPath); errors.Is(err, os.ErrNotExist) {
		if err := os.MkdirAll(dirPath, dirMode); err != nil {
			return nil, fmt.Errorf("failed to create dir %s: %w", dirPath, err)
		}
	}

	path := filepath.Join(dirPath, configFileName)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := Save(dirPath, Default()); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
	}

	return Load(path)
}

// Validate checks value ranges that would otherwise fail deep in the pipeline.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server port out of range: %d", c.Server.Port))
	}
	if c.ML.Contamination <= 0 || c.ML.Contamination > 0.5 {
		errs = append(errs, fmt.Errorf("contamination must be in (0, 0.5]: %v", c.ML.Contamination))
	}
	if c.ML.Clusters < 1 {
		errs = append(errs, fmt.Errorf("clusters must be positive: %d", c.ML.Clusters))
	}
	if c.ML.Trees < 1 {
		errs = append(errs, fmt.Errorf("trees must be positive: %d", c.ML.Trees))
	}
	if c.Data.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers must be positive: %d", c.Data.Workers))
	}
	t := c.Thresholds
	if t.Critical <= t.High || t.High <= t.Medium {
		errs = append(errs, fmt.Errorf("thresholds must be ordered critical > high > medium: %v/%v/%v",
			t.Critical, t.High, t.Medium))
	}
	if c.RateLimit.Enabled && (c.RateLimit.Requests < 1 || c.RateLimit.Window <= 0) {
		errs = append(errs, errors.New("rate limit requires positive requests and window"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// RiskLevel maps a governance score onto the configured risk levels.
func (c *Config) RiskLevel(score float64) string {
	switch {
	case score >= c.Thresholds.Critical:
		return RiskCritical
	case score >= c.Thresholds.High:
		return RiskHigh
	case score >= c.Thresholds.Medium:
		return RiskMedium
	default:
		return RiskLow
	}
}

// ValidatePincode returns ErrInvalidPincode when validation is on and pin
// falls outside the configured range.
func (c *Config) ValidatePincode(pin int) error {
	if !c.Validation.Pincodes {
		return nil
	}
	if pin < c.Validation.MinPincode || pin > c.Validation.MaxPincode {
		return fmt.Errorf("%w: %d", ErrInvalidPincode, pin)
	}
	return nil
}

// GetOrCreateHomeDir returns the app directory under the user home,
// creating it when missing. The created flag reports whether it was made.
func GetOrCreateHomeDir(name string) (path string, created bool, err error) {
	if name == "" {
		return "", false, errors.New("name cannot be empty")
	}

	if !strings.HasPrefix(name, ".") {
		name = "." + name
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", false, fmt.Errorf("failed to get user home dir: %w", err)
	}

	dir := filepath.Join(home, name)
	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		slog.Debug("creating dir", "path", dir)
		if err := os.Mkdir(dir, dirMode); err != nil {
			return "", false, fmt.Errorf("failed to create dir %s: %w", dir, err)
		}
		created = true
	}
	return dir, created, nil
}

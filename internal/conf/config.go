// Package conf loads omniface settings from config.yaml, OMNIFACE_* environment
// variables and an optional .env file.
package conf

import (
	"crypto/rand"
	"embed"
	"encoding/base64"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/omniface/omniface-go/internal/errors"
	"github.com/omniface/omniface-go/internal/logger"
)

//go:embed config.yaml
var configFiles embed.FS

// MainSettings holds instance identity and the local clock used for attendance
type MainSettings struct {
	Name     string `mapstructure:"name" yaml:"name"`
	Timezone string `mapstructure:"timezone" yaml:"timezone"` // "Local" or IANA name; attendance days roll over here
}

// CORSSettings lists browser origins allowed to call the API
type CORSSettings struct {
	Origins []string `mapstructure:"origins" yaml:"origins"`
}

// WebServerSettings configures the echo server
type WebServerSettings struct {
	Listen          string        `mapstructure:"listen" yaml:"listen"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	CORS            CORSSettings  `mapstructure:"cors" yaml:"cors"`
}

// JWTSettings validates tenant tokens. Issuance lives in the account service;
// only `omniface token` mints tokens, for development.
type JWTSettings struct {
	Secret string        `mapstructure:"secret" yaml:"secret"`
	Issuer string        `mapstructure:"issuer" yaml:"issuer"`
	TTL    time.Duration `mapstructure:"ttl" yaml:"ttl"`
}

// SecuritySettings groups authentication settings
type SecuritySettings struct {
	JWT JWTSettings `mapstructure:"jwt" yaml:"jwt"`
}

// CameraSettings configures local capture devices
type CameraSettings struct {
	Width          int           `mapstructure:"width" yaml:"width"`
	Height         int           `mapstructure:"height" yaml:"height"`
	FPS            int           `mapstructure:"fps" yaml:"fps"`
	ProbeCount     int           `mapstructure:"probe_count" yaml:"probe_count"` // ids 0..probe_count-1 are probed by ListDevices
	ListCacheTTL   time.Duration `mapstructure:"list_cache_ttl" yaml:"list_cache_ttl"`
	ReadRetryDelay time.Duration `mapstructure:"read_retry_delay" yaml:"read_retry_delay"` // sleep after a failed grab
}

// ModelSettings points at the shared network models and the per-tenant index root
type ModelSettings struct {
	Root     string `mapstructure:"root" yaml:"root"` // holds tenant_<id>/index.bin and labels.yaml
	Detector string `mapstructure:"detector" yaml:"detector"`
	Embedder string `mapstructure:"embedder" yaml:"embedder"`
	Emotion  string `mapstructure:"emotion" yaml:"emotion"` // empty disables emotion classification
}

// DetectorSettings tunes face detection
type DetectorSettings struct {
	MinScore float32 `mapstructure:"min_score" yaml:"min_score"`
}

// RecognitionSettings tunes matching and worker behaviour
type RecognitionSettings struct {
	Threshold    float32          `mapstructure:"threshold" yaml:"threshold"`
	Threads      int              `mapstructure:"threads" yaml:"threads"` // 0 = runtime.NumCPU()
	EvictOnClose bool             `mapstructure:"evict_on_close" yaml:"evict_on_close"`
	Detector     DetectorSettings `mapstructure:"detector" yaml:"detector"`
}

// QualitySettings are the face crop quality gate thresholds
type QualitySettings struct {
	MinSize       int     `mapstructure:"min_size" yaml:"min_size"`
	MinSharpness  float64 `mapstructure:"min_sharpness" yaml:"min_sharpness"`
	MinBrightness float64 `mapstructure:"min_brightness" yaml:"min_brightness"`
}

// AttendanceSettings are the fallback cutoffs used when a department has none
type AttendanceSettings struct {
	Early string `mapstructure:"early" yaml:"early"` // HH:MM or HH:MM:SS
	Late  string `mapstructure:"late" yaml:"late"`
}

// AnalyticsSettings sizes the rolling windows
type AnalyticsSettings struct {
	WindowSize int `mapstructure:"window_size" yaml:"window_size"`
	FPSSamples int `mapstructure:"fps_samples" yaml:"fps_samples"`
}

// StreamSettings controls the per-session frame loop
type StreamSettings struct {
	PollInterval    time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	ErrorCloseDelay time.Duration `mapstructure:"error_close_delay" yaml:"error_close_delay"`
	JPEGQuality     int           `mapstructure:"jpeg_quality" yaml:"jpeg_quality"`
}

// CapturesSettings controls where recorded face crops go and how long they stay
type CapturesSettings struct {
	Root          string `mapstructure:"root" yaml:"root"`
	RetentionDays int    `mapstructure:"retention_days" yaml:"retention_days"` // 0 keeps forever
	CleanupAt     string `mapstructure:"cleanup_at" yaml:"cleanup_at"`         // daily HH:MM
}

// SQLiteSettings selects the embedded store
type SQLiteSettings struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Path    string `mapstructure:"path" yaml:"path"`
}

// MySQLSettings selects a MySQL store
type MySQLSettings struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	Username string `mapstructure:"username" yaml:"username"`
	Password string `mapstructure:"password" yaml:"password"`
	Host     string `mapstructure:"host" yaml:"host"`
	Port     string `mapstructure:"port" yaml:"port"`
	Database string `mapstructure:"database" yaml:"database"`
}

// OutputSettings picks exactly one store
type OutputSettings struct {
	SQLite SQLiteSettings `mapstructure:"sqlite" yaml:"sqlite"`
	MySQL  MySQLSettings  `mapstructure:"mysql" yaml:"mysql"`
}

// MQTTSettings configures attendance and exit event publishing
type MQTTSettings struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	Broker   string `mapstructure:"broker" yaml:"broker"`
	Topic    string `mapstructure:"topic" yaml:"topic"`
	ClientID string `mapstructure:"client_id" yaml:"client_id"`
	Username string `mapstructure:"username" yaml:"username"`
	Password string `mapstructure:"password" yaml:"password"`
	Retain   bool   `mapstructure:"retain" yaml:"retain"`
}

// TelemetrySettings exposes prometheus metrics on /metrics
type TelemetrySettings struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// SentrySettings enables error reporting
type SentrySettings struct {
	Enabled     bool    `mapstructure:"enabled" yaml:"enabled"`
	DSN         string  `mapstructure:"dsn" yaml:"dsn"`
	Environment string  `mapstructure:"environment" yaml:"environment"`
	SampleRate  float64 `mapstructure:"sample_rate" yaml:"sample_rate"`
}

// Settings is the complete configuration
type Settings struct {
	Debug bool `mapstructure:"debug" yaml:"debug"`

	Main        MainSettings         `mapstructure:"main" yaml:"main"`
	Logging     logger.LoggingConfig `mapstructure:"logging" yaml:"logging"`
	WebServer   WebServerSettings    `mapstructure:"webserver" yaml:"webserver"`
	Security    SecuritySettings     `mapstructure:"security" yaml:"security"`
	Camera      CameraSettings       `mapstructure:"camera" yaml:"camera"`
	Models      ModelSettings        `mapstructure:"models" yaml:"models"`
	Recognition RecognitionSettings  `mapstructure:"recognition" yaml:"recognition"`
	Quality     QualitySettings      `mapstructure:"quality" yaml:"quality"`
	Attendance  AttendanceSettings   `mapstructure:"attendance" yaml:"attendance"`
	Analytics   AnalyticsSettings    `mapstructure:"analytics" yaml:"analytics"`
	Stream      StreamSettings       `mapstructure:"stream" yaml:"stream"`
	Captures    CapturesSettings     `mapstructure:"captures" yaml:"captures"`
	Output      OutputSettings       `mapstructure:"output" yaml:"output"`
	MQTT        MQTTSettings         `mapstructure:"mqtt" yaml:"mqtt"`
	Telemetry   TelemetrySettings    `mapstructure:"telemetry" yaml:"telemetry"`
	Sentry      SentrySettings       `mapstructure:"sentry" yaml:"sentry"`
}

// Location resolves Main.Timezone, falling back to the host zone
func (s *Settings) Location() *time.Location {
	if s.Main.Timezone == "" || s.Main.Timezone == "Local" {
		return time.Local
	}
	loc, err := time.LoadLocation(s.Main.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
)

// Load reads .env, the config file and OMNIFACE_* variables, validates the result
// and stores it as the current settings. configFile overrides the search path.
func Load(configFile string) (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	// .env is optional
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		GetLogger().Warn("failed to parse .env file", logger.Error(err))
	}

	if err := initViper(configFile); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	settings := &Settings{}
	if err := viper.Unmarshal(settings); err != nil {
		return nil, errors.New(err).
			Component("configuration").
			Category(errors.CategoryConfiguration).
			Context("operation", "unmarshal_settings").
			Build()
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	settingsInstance = settings
	return settingsInstance, nil
}

func initViper(configFile string) error {
	viper.SetConfigType("yaml")

	setDefaultConfig()

	if err := configureEnvironmentVariables(); err != nil {
		// invalid env values are reported, the defaults and file still apply
		GetLogger().Warn("environment configuration issues", logger.Error(err))
	}

	if configFile != "" {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return errors.New(err).
				Component("configuration").
				Category(errors.CategoryConfiguration).
				Context("operation", "read_config_file").
				Build()
		}
		return nil
	}

	viper.SetConfigName("config")
	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}
	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return createDefaultConfig(configPaths[0])
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}

	return nil
}

// createDefaultConfig writes the embedded config.yaml with a fresh JWT secret
func createDefaultConfig(dir string) error {
	configPath := filepath.Join(dir, "config.yaml")

	data, err := fs.ReadFile(configFiles, "config.yaml")
	if err != nil {
		return fmt.Errorf("error reading embedded config: %w", err)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("error creating directories for config file: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0o600); err != nil {
		return fmt.Errorf("error writing default config file: %w", err)
	}

	if viper.GetString("security.jwt.secret") == "" {
		viper.Set("security.jwt.secret", GenerateRandomSecret())
		GetLogger().Warn("generated a random JWT secret for this run; set security.jwt.secret to keep tokens valid across restarts")
	}

	GetLogger().Info("created default config file", logger.String("path", configPath))
	viper.SetConfigFile(configPath)
	return viper.ReadInConfig()
}

// GetSettings returns the settings stored by the last successful Load
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// GenerateRandomSecret returns 256 bits of URL-safe random data
func GenerateRandomSecret() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		GetLogger().Error("failed to generate random secret", logger.Error(err))
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(buf)
}

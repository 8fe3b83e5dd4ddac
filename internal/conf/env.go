package conf

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// envBinding maps one OMNIFACE_* variable onto a config key
type envBinding struct {
	ConfigKey string
	EnvVar    string
	Validate  func(string) error // optional
}

func getEnvBindings() []envBinding {
	return []envBinding{
		{"debug", "OMNIFACE_DEBUG", validateEnvBool},
		{"main.timezone", "OMNIFACE_TIMEZONE", nil},

		{"webserver.listen", "OMNIFACE_LISTEN", nil},
		{"security.jwt.secret", "OMNIFACE_JWT_SECRET", nil},

		{"models.root", "OMNIFACE_MODELS_ROOT", nil},
		{"models.detector", "OMNIFACE_MODELS_DETECTOR", nil},
		{"models.embedder", "OMNIFACE_MODELS_EMBEDDER", nil},
		{"models.emotion", "OMNIFACE_MODELS_EMOTION", nil},

		{"recognition.threshold", "OMNIFACE_RECOGNITION_THRESHOLD", validateEnvUnitFloat},
		{"recognition.threads", "OMNIFACE_RECOGNITION_THREADS", validateEnvThreads},

		{"captures.root", "OMNIFACE_CAPTURES_ROOT", nil},

		{"output.sqlite.path", "OMNIFACE_SQLITE_PATH", nil},
		{"output.mysql.enabled", "OMNIFACE_MYSQL_ENABLED", validateEnvBool},
		{"output.mysql.host", "OMNIFACE_MYSQL_HOST", nil},
		{"output.mysql.username", "OMNIFACE_MYSQL_USERNAME", nil},
		{"output.mysql.password", "OMNIFACE_MYSQL_PASSWORD", nil},
		{"output.mysql.database", "OMNIFACE_MYSQL_DATABASE", nil},

		{"mqtt.enabled", "OMNIFACE_MQTT_ENABLED", validateEnvBool},
		{"mqtt.broker", "OMNIFACE_MQTT_BROKER", validateEnvBrokerURL},
		{"mqtt.username", "OMNIFACE_MQTT_USERNAME", nil},
		{"mqtt.password", "OMNIFACE_MQTT_PASSWORD", nil},

		{"sentry.enabled", "OMNIFACE_SENTRY_ENABLED", validateEnvBool},
		{"sentry.dsn", "OMNIFACE_SENTRY_DSN", nil},
	}
}

// bindEnvVars binds every variable and collects validation warnings
func bindEnvVars() error {
	var warnings []string

	for _, binding := range getEnvBindings() {
		if err := viper.BindEnv(binding.ConfigKey, binding.EnvVar); err != nil {
			warnings = append(warnings, fmt.Sprintf("failed to bind %s: %v", binding.EnvVar, err))
			continue
		}

		if binding.Validate == nil {
			continue
		}
		if value := os.Getenv(binding.EnvVar); value != "" {
			if err := binding.Validate(value); err != nil {
				warnings = append(warnings, fmt.Sprintf("invalid %s value %q: %v", binding.EnvVar, value, err))
			}
		}
	}

	if len(warnings) > 0 {
		return fmt.Errorf("environment variable issues:\n  - %s", strings.Join(warnings, "\n  - "))
	}
	return nil
}

func validateEnvBool(value string) error {
	if _, err := strconv.ParseBool(value); err != nil {
		return fmt.Errorf("must be true or false")
	}
	return nil
}

func validateEnvUnitFloat(value string) error {
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("must be a number")
	}
	if f < 0 || f > 1 {
		return fmt.Errorf("must be between 0 and 1")
	}
	return nil
}

func validateEnvThreads(value string) error {
	n, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("must be an integer")
	}
	if n < 0 {
		return fmt.Errorf("must not be negative")
	}
	return nil
}

func validateEnvBrokerURL(value string) error {
	u, err := url.Parse(value)
	if err != nil {
		return err
	}
	switch u.Scheme {
	case "tcp", "ssl", "ws", "wss", "mqtt", "mqtts":
		return nil
	default:
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
}

// configureEnvironmentVariables enables OMNIFACE_ prefixed overrides for every key
func configureEnvironmentVariables() error {
	viper.SetEnvPrefix("OMNIFACE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	return bindEnvVars()
}

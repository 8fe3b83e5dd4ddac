package conf

import (
	"fmt"
	"strings"
	"time"
)

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("validation errors: %s", strings.Join(ve.Errors, "; "))
}

// ValidateSettings checks every section and reports all problems at once
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	validators := []func(*Settings) []string{
		validateMainSettings,
		validateSecuritySettings,
		validateCameraSettings,
		validateRecognitionSettings,
		validateQualitySettings,
		validateAttendanceSettings,
		validateStreamSettings,
		validateCapturesSettings,
		validateOutputSettings,
		validateMQTTSettings,
		validateSentrySettings,
	}
	for _, validate := range validators {
		ve.Errors = append(ve.Errors, validate(settings)...)
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func validateMainSettings(s *Settings) []string {
	if s.Main.Timezone == "" || s.Main.Timezone == "Local" {
		return nil
	}
	if _, err := time.LoadLocation(s.Main.Timezone); err != nil {
		return []string{fmt.Sprintf("main.timezone %q is not a valid IANA zone", s.Main.Timezone)}
	}
	return nil
}

func validateSecuritySettings(s *Settings) []string {
	if s.Security.JWT.Secret == "" {
		return []string{"security.jwt.secret must be set"}
	}
	return nil
}

func validateCameraSettings(s *Settings) []string {
	var errs []string
	if s.Camera.Width <= 0 || s.Camera.Height <= 0 {
		errs = append(errs, "camera.width and camera.height must be positive")
	}
	if s.Camera.FPS <= 0 {
		errs = append(errs, "camera.fps must be positive")
	}
	if s.Camera.ProbeCount <= 0 {
		errs = append(errs, "camera.probe_count must be positive")
	}
	return errs
}

func validateRecognitionSettings(s *Settings) []string {
	var errs []string
	if s.Recognition.Threshold < 0 || s.Recognition.Threshold > 1 {
		errs = append(errs, "recognition.threshold must be between 0 and 1")
	}
	if s.Recognition.Detector.MinScore < 0 || s.Recognition.Detector.MinScore > 1 {
		errs = append(errs, "recognition.detector.min_score must be between 0 and 1")
	}
	if s.Recognition.Threads < 0 {
		errs = append(errs, "recognition.threads must not be negative")
	}
	if s.Models.Detector == "" || s.Models.Embedder == "" {
		errs = append(errs, "models.detector and models.embedder must be set")
	}
	if s.Models.Root == "" {
		errs = append(errs, "models.root must be set")
	}
	return errs
}

func validateQualitySettings(s *Settings) []string {
	if s.Quality.MinSize < 0 || s.Quality.MinSharpness < 0 || s.Quality.MinBrightness < 0 {
		return []string{"quality thresholds must not be negative"}
	}
	return nil
}

func validateAttendanceSettings(s *Settings) []string {
	early, errEarly := parseClock(s.Attendance.Early)
	late, errLate := parseClock(s.Attendance.Late)

	var errs []string
	if errEarly != nil {
		errs = append(errs, fmt.Sprintf("attendance.early: %v", errEarly))
	}
	if errLate != nil {
		errs = append(errs, fmt.Sprintf("attendance.late: %v", errLate))
	}
	if len(errs) == 0 && early > late {
		errs = append(errs, "attendance.early must not be after attendance.late")
	}
	return errs
}

func validateStreamSettings(s *Settings) []string {
	var errs []string
	if s.Stream.PollInterval <= 0 {
		errs = append(errs, "stream.poll_interval must be positive")
	}
	if s.Stream.JPEGQuality < 1 || s.Stream.JPEGQuality > 100 {
		errs = append(errs, "stream.jpeg_quality must be between 1 and 100")
	}
	if s.Analytics.WindowSize <= 0 || s.Analytics.FPSSamples <= 0 {
		errs = append(errs, "analytics.window_size and analytics.fps_samples must be positive")
	}
	return errs
}

func validateCapturesSettings(s *Settings) []string {
	var errs []string
	if s.Captures.Root == "" {
		errs = append(errs, "captures.root must be set")
	}
	if s.Captures.RetentionDays < 0 {
		errs = append(errs, "captures.retention_days must not be negative")
	}
	if _, err := time.Parse("15:04", s.Captures.CleanupAt); err != nil {
		errs = append(errs, fmt.Sprintf("captures.cleanup_at %q must be HH:MM", s.Captures.CleanupAt))
	}
	return errs
}

func validateOutputSettings(s *Settings) []string {
	switch {
	case s.Output.SQLite.Enabled && s.Output.MySQL.Enabled:
		return []string{"only one of output.sqlite and output.mysql can be enabled"}
	case !s.Output.SQLite.Enabled && !s.Output.MySQL.Enabled:
		return []string{"one of output.sqlite or output.mysql must be enabled"}
	case s.Output.SQLite.Enabled && s.Output.SQLite.Path == "":
		return []string{"output.sqlite.path must be set"}
	case s.Output.MySQL.Enabled && (s.Output.MySQL.Host == "" || s.Output.MySQL.Database == ""):
		return []string{"output.mysql.host and output.mysql.database must be set"}
	}
	return nil
}

func validateMQTTSettings(s *Settings) []string {
	if !s.MQTT.Enabled {
		return nil
	}
	var errs []string
	if err := validateEnvBrokerURL(s.MQTT.Broker); err != nil || s.MQTT.Broker == "" {
		errs = append(errs, fmt.Sprintf("mqtt.broker %q is not a valid broker URL", s.MQTT.Broker))
	}
	if s.MQTT.Topic == "" {
		errs = append(errs, "mqtt.topic must be set")
	}
	return errs
}

func validateSentrySettings(s *Settings) []string {
	if s.Sentry.Enabled && s.Sentry.DSN == "" {
		return []string{"sentry.dsn must be set when sentry is enabled"}
	}
	return nil
}

// parseClock accepts HH:MM or HH:MM:SS and returns the offset from midnight
func parseClock(v string) (time.Duration, error) {
	for _, layout := range []string{"15:04:05", "15:04"} {
		if t, err := time.Parse(layout, v); err == nil {
			return time.Duration(t.Hour())*time.Hour +
				time.Duration(t.Minute())*time.Minute +
				time.Duration(t.Second())*time.Second, nil
		}
	}
	return 0, fmt.Errorf("%q is not HH:MM or HH:MM:SS", v)
}

package conf

import (
	"time"

	"github.com/spf13/viper"
)

// setDefaultConfig registers a default for every key so env-only deployments work
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("main.name", "omniface")
	viper.SetDefault("main.timezone", "Local")

	viper.SetDefault("logging.default_level", "info")
	viper.SetDefault("logging.timezone", "Local")
	viper.SetDefault("logging.console.enabled", true)
	viper.SetDefault("logging.console.level", "info")
	viper.SetDefault("logging.file_output.enabled", true)
	viper.SetDefault("logging.file_output.path", "logs/omniface.log")
	viper.SetDefault("logging.file_output.level", "info")

	viper.SetDefault("webserver.listen", ":8000")
	viper.SetDefault("webserver.read_timeout", 30*time.Second)
	viper.SetDefault("webserver.shutdown_timeout", 10*time.Second)
	viper.SetDefault("webserver.cors.origins", []string{"http://localhost:5173"})

	viper.SetDefault("security.jwt.secret", "")
	viper.SetDefault("security.jwt.issuer", "omniface")
	viper.SetDefault("security.jwt.ttl", 12*time.Hour)

	viper.SetDefault("camera.width", 1280)
	viper.SetDefault("camera.height", 720)
	viper.SetDefault("camera.fps", 30)
	viper.SetDefault("camera.probe_count", 3)
	viper.SetDefault("camera.list_cache_ttl", 30*time.Second)
	viper.SetDefault("camera.read_retry_delay", 50*time.Millisecond)

	viper.SetDefault("models.root", "models")
	viper.SetDefault("models.detector", "models/face_detection_yunet.onnx")
	viper.SetDefault("models.embedder", "models/face_embedder.tflite")
	viper.SetDefault("models.emotion", "")

	viper.SetDefault("recognition.threshold", 0.55)
	viper.SetDefault("recognition.threads", 0)
	viper.SetDefault("recognition.evict_on_close", false)
	viper.SetDefault("recognition.detector.min_score", 0.5)

	viper.SetDefault("quality.min_size", 50)
	viper.SetDefault("quality.min_sharpness", 100.0)
	viper.SetDefault("quality.min_brightness", 50.0)

	viper.SetDefault("attendance.early", "08:10")
	viper.SetDefault("attendance.late", "14:30")

	viper.SetDefault("analytics.window_size", 30)
	viper.SetDefault("analytics.fps_samples", 10)

	viper.SetDefault("stream.poll_interval", 10*time.Millisecond)
	viper.SetDefault("stream.error_close_delay", 2*time.Second)
	viper.SetDefault("stream.jpeg_quality", 80)

	viper.SetDefault("captures.root", "captures")
	viper.SetDefault("captures.retention_days", 0)
	viper.SetDefault("captures.cleanup_at", "03:00")

	viper.SetDefault("output.sqlite.enabled", true)
	viper.SetDefault("output.sqlite.path", "omniface.db")
	viper.SetDefault("output.mysql.enabled", false)
	viper.SetDefault("output.mysql.username", "")
	viper.SetDefault("output.mysql.password", "")
	viper.SetDefault("output.mysql.host", "localhost")
	viper.SetDefault("output.mysql.port", "3306")
	viper.SetDefault("output.mysql.database", "omniface")

	viper.SetDefault("mqtt.enabled", false)
	viper.SetDefault("mqtt.broker", "tcp://localhost:1883")
	viper.SetDefault("mqtt.topic", "omniface")
	viper.SetDefault("mqtt.client_id", "")
	viper.SetDefault("mqtt.username", "")
	viper.SetDefault("mqtt.password", "")
	viper.SetDefault("mqtt.retain", false)

	viper.SetDefault("telemetry.enabled", true)

	viper.SetDefault("sentry.enabled", false)
	viper.SetDefault("sentry.dsn", "")
	viper.SetDefault("sentry.environment", "production")
	viper.SetDefault("sentry.sample_rate", 1.0)
}

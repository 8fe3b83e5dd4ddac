package observability

import (
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/omniface/omniface-go/internal/buildinfo"
	"github.com/omniface/omniface-go/internal/conf"
	"github.com/omniface/omniface-go/internal/errors"
	"github.com/omniface/omniface-go/internal/logger"
)

// sentryFlushTimeout bounds how long shutdown waits for queued events
const sentryFlushTimeout = 2 * time.Second

// InitSentry enables error reporting when both telemetry and Sentry are configured.
// It returns false without error when reporting stays off.
func InitSentry(settings *conf.Settings, build buildinfo.BuildInfo) (bool, error) {
	if !settings.Telemetry.Enabled || !settings.Sentry.Enabled {
		return false, nil
	}
	if settings.Sentry.DSN == "" {
		log.Warn("sentry enabled without dsn, error reporting stays off")
		return false, nil
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              settings.Sentry.DSN,
		SampleRate:       settings.Sentry.SampleRate,
		AttachStacktrace: false,
		Environment:      settings.Sentry.Environment,
		ServerName:       "",
		Release:          fmt.Sprintf("omniface@%s", build.GetVersion()),
		BeforeSend:       applyPrivacyFilters,
	})
	if err != nil {
		return false, fmt.Errorf("sentry initialization failed: %w", err)
	}

	sentry.ConfigureScope(func(scope *sentry.Scope) {
		scope.SetTag("instance_id", build.GetInstanceID())
	})

	errors.SetTelemetryReporter(errors.NewSentryReporter(true))
	log.Info("sentry error reporting enabled",
		logger.String("environment", settings.Sentry.Environment),
		logger.Float64("sample_rate", settings.Sentry.SampleRate))
	return true, nil
}

// FlushSentry drains queued events before exit
func FlushSentry() {
	if errors.GetTelemetryReporter() == nil {
		return
	}
	if !sentry.Flush(sentryFlushTimeout) {
		log.Warn("sentry flush timed out")
	}
}

// applyPrivacyFilters strips host and user identity and scrubs free text
func applyPrivacyFilters(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
	event.User = sentry.User{}
	event.ServerName = ""
	event.Request = nil
	event.Message = errors.ScrubMessage(event.Message)
	for i := range event.Exception {
		event.Exception[i].Value = errors.ScrubMessage(event.Exception[i].Value)
	}
	return event
}

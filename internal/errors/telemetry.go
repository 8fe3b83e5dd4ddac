package errors

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"unicode"

	"github.com/getsentry/sentry-go"
)

// TelemetryReporter receives every EnhancedError built while reporting is active
type TelemetryReporter interface {
	ReportError(err *EnhancedError)
	IsEnabled() bool
}

var (
	reporterMu              sync.RWMutex
	globalTelemetryReporter TelemetryReporter

	// hasActiveReporting lets Build skip stack walking when nobody listens
	hasActiveReporting atomic.Bool
)

// SetTelemetryReporter installs the process-wide reporter. Pass nil to disable reporting.
func SetTelemetryReporter(reporter TelemetryReporter) {
	reporterMu.Lock()
	defer reporterMu.Unlock()
	globalTelemetryReporter = reporter
	hasActiveReporting.Store(reporter != nil && reporter.IsEnabled())
}

// GetTelemetryReporter returns the current telemetry reporter
func GetTelemetryReporter() TelemetryReporter {
	reporterMu.RLock()
	defer reporterMu.RUnlock()
	return globalTelemetryReporter
}

func reportToTelemetry(ee *EnhancedError) {
	reporter := GetTelemetryReporter()
	if reporter != nil && reporter.IsEnabled() {
		reporter.ReportError(ee)
	}
}

// SentryReporter forwards errors to the initialized sentry hub
type SentryReporter struct {
	enabled bool
}

// NewSentryReporter creates a new Sentry telemetry reporter
func NewSentryReporter(enabled bool) *SentryReporter {
	return &SentryReporter{enabled: enabled}
}

// IsEnabled returns whether Sentry telemetry is enabled
func (sr *SentryReporter) IsEnabled() bool {
	return sr.enabled
}

// ReportError sends ee once; repeated calls for the same error are ignored
func (sr *SentryReporter) ReportError(ee *EnhancedError) {
	if !sr.enabled || ee.IsReported() {
		return
	}

	message := scrubMessageForPrivacy(fmt.Sprintf("[%s] %s", ee.Category, ee.GetMessage()))
	component := ee.GetComponent()

	sentry.WithScope(func(scope *sentry.Scope) {
		title := generateErrorTitle(ee)
		level := getErrorLevel(ee.Category)

		scope.SetTag("error_title", title)
		scope.SetTag("component", component)
		scope.SetTag("category", string(ee.Category))
		if ee.Priority != "" {
			scope.SetTag("priority", ee.Priority)
		}

		for key, value := range ee.GetContext() {
			if str, ok := value.(string); ok {
				value = scrubMessageForPrivacy(str)
			}
			scope.SetContext(key, map[string]any{"value": value})
		}

		scope.SetLevel(level)
		scope.SetFingerprint([]string{title, component, string(ee.Category)})

		event := sentry.NewEvent()
		event.Message = message
		event.Level = level
		event.Exception = []sentry.Exception{{Type: title, Value: message}}
		sentry.CaptureEvent(event)
	})

	ee.MarkReported()
}

// generateErrorTitle builds "Camera Camera Capture Error Open Device" style titles for grouping
func generateErrorTitle(ee *EnhancedError) string {
	var parts []string

	if component := ee.GetComponent(); component != "" && component != ComponentUnknown {
		parts = append(parts, titleCase(component))
	}
	if categoryTitle := formatCategoryForTitle(ee.Category); categoryTitle != "" {
		parts = append(parts, categoryTitle)
	}
	if operation, ok := ee.GetContext()["operation"].(string); ok && operation != "" {
		parts = append(parts, formatOperationForTitle(operation))
	}

	if len(parts) == 0 {
		return fmt.Sprintf("%T", ee.Err)
	}
	return strings.Join(parts, " ")
}

func formatCategoryForTitle(category ErrorCategory) string {
	switch category {
	case CategoryValidation:
		return "Validation Error"
	case CategoryCamera:
		return "Camera Capture Error"
	case CategoryInference:
		return "Inference Error"
	case CategoryAuth:
		return "Authentication Error"
	case CategoryNetwork:
		return "Network Error"
	case CategoryDatabase:
		return "Database Error"
	case CategoryFileIO:
		return "File I/O Error"
	case CategoryModelInit:
		return "Model Initialization Error"
	case CategoryModelLoad:
		return "Model Loading Error"
	case CategoryIndex:
		return "Vector Index Error"
	case CategoryConfiguration:
		return "Configuration Error"
	case CategorySystem:
		return "System Error"
	default:
		return string(category)
	}
}

func formatOperationForTitle(operation string) string {
	words := strings.Fields(strings.ReplaceAll(operation, "_", " "))
	for i, word := range words {
		words[i] = titleCase(word)
	}
	return strings.Join(words, " ")
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	runes := []rune(s)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

func getErrorLevel(category ErrorCategory) sentry.Level {
	switch category {
	case CategoryNetwork, CategoryCamera, CategoryMQTTConnection, CategoryMQTTPublish:
		return sentry.LevelWarning // usually transient
	case CategoryFileIO, CategoryHTTP, CategoryWebSocket, CategoryAuth:
		return sentry.LevelWarning
	case CategoryNotFound, CategoryCancellation:
		return sentry.LevelInfo
	default:
		return sentry.LevelError
	}
}

// PrivacyScrubber rewrites messages before they leave the process
type PrivacyScrubber func(string) string

var (
	scrubberMu            sync.RWMutex
	globalPrivacyScrubber PrivacyScrubber
)

// SetPrivacyScrubber replaces the default scrubber
func SetPrivacyScrubber(scrubber PrivacyScrubber) {
	scrubberMu.Lock()
	defer scrubberMu.Unlock()
	globalPrivacyScrubber = scrubber
}

func scrubMessageForPrivacy(message string) string {
	scrubberMu.RLock()
	scrubber := globalPrivacyScrubber
	scrubberMu.RUnlock()

	if scrubber != nil {
		return scrubber(message)
	}
	return basicScrub(message)
}

var (
	urlQueryRegex = regexp.MustCompile(`((?:https?|wss?)://[^?\s]+)\?\S*`)
	secretRegexes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)api[_-]?key[=:]\S+`),
		regexp.MustCompile(`(?i)token[=:]\S+`),
		regexp.MustCompile(`(?i)password[=:]\S+`),
		regexp.MustCompile(`eyJ[a-zA-Z0-9_-]+\.eyJ[a-zA-Z0-9_-]+\.[a-zA-Z0-9_-]+`),
	}
	// Person labels are names; tenant ids are fine to keep
	identityRegexes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)label[=:]\S+`),
		regexp.MustCompile(`(?i)person[_-]?name[=:]\S+`),
	}
)

// basicScrub strips query strings, credentials and person names
func basicScrub(message string) string {
	scrubbed := urlQueryRegex.ReplaceAllString(message, "$1?[REDACTED]")
	for _, re := range secretRegexes {
		scrubbed = re.ReplaceAllString(scrubbed, "[SECRET_REDACTED]")
	}
	for _, re := range identityRegexes {
		scrubbed = re.ReplaceAllString(scrubbed, "[ID_REDACTED]")
	}
	return scrubbed
}

// ScrubMessage applies the active privacy scrubber
func ScrubMessage(message string) string {
	return scrubMessageForPrivacy(message)
}

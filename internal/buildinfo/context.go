// Package buildinfo contains build-time metadata kept apart from user configuration
package buildinfo

import "github.com/google/uuid"

// UnknownValue is reported for metadata that was not injected at build time
const UnknownValue = "unknown"

// BuildInfo provides an interface for accessing build-time metadata.
type BuildInfo interface {
	// GetVersion returns the build version string
	GetVersion() string
	// GetBuildDate returns the build date string
	GetBuildDate() string
	// GetInstanceID returns the identifier of this running process
	GetInstanceID() string
}

// Context contains build-time metadata that is not user-configurable.
// It is created once in main and passed to the components that report it.
type Context struct {
	// Version holds the Git version tag from build
	Version string

	// BuildDate is the time when the binary was built
	BuildDate string

	// InstanceID identifies this process in health output and Sentry events
	InstanceID string
}

// NewContext builds a Context, generating an instance id when none is given
func NewContext(version, buildDate, instanceID string) *Context {
	if instanceID == "" {
		instanceID = uuid.NewString()
	}
	return &Context{
		Version:    version,
		BuildDate:  buildDate,
		InstanceID: instanceID,
	}
}

// GetVersion implements BuildInfo.GetVersion
func (c *Context) GetVersion() string {
	if c == nil || c.Version == "" {
		return UnknownValue
	}
	return c.Version
}

// GetBuildDate implements BuildInfo.GetBuildDate
func (c *Context) GetBuildDate() string {
	if c == nil || c.BuildDate == "" {
		return UnknownValue
	}
	return c.BuildDate
}

// GetInstanceID implements BuildInfo.GetInstanceID
func (c *Context) GetInstanceID() string {
	if c == nil || c.InstanceID == "" {
		return UnknownValue
	}
	return c.InstanceID
}

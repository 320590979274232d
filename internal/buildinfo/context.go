// Package buildinfo holds version metadata injected with -ldflags.
package buildinfo

import "fmt"

// UnknownValue is reported for metadata the build did not set.
const UnknownValue = "unknown"

// Set by the linker, e.g.
//
//	go build -ldflags "-X github.com/tphakala/mcmigrate/internal/buildinfo.version=v1.2.0"
var (
	version   string
	buildDate string
)

// Context contains build-time metadata that is not user-configurable.
type Context struct {
	Version   string
	BuildDate string
}

// Current returns the metadata linked into the binary.
func Current() *Context {
	return NewContext(version, buildDate)
}

// NewContext creates a Context.
func NewContext(version, buildDate string) *Context {
	return &Context{Version: version, BuildDate: buildDate}
}

// GetVersion returns the version or UnknownValue.
func (c *Context) GetVersion() string {
	if c == nil || c.Version == "" {
		return UnknownValue
	}
	return c.Version
}

// GetBuildDate returns the build date or UnknownValue.
func (c *Context) GetBuildDate() string {
	if c == nil || c.BuildDate == "" {
		return UnknownValue
	}
	return c.BuildDate
}

// Release is the Sentry release name, e.g. mcmigrate@v1.2.0.
func (c *Context) Release() string {
	return "mcmigrate@" + c.GetVersion()
}

func (c *Context) String() string {
	return fmt.Sprintf("mcmigrate %s (built %s)", c.GetVersion(), c.GetBuildDate())
}

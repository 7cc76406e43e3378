package update

import (
	"fmt"
	"runtime"
	"strings"
)

// Platform describes the current system platform
type Platform struct {
	OS   string // Operating system (windows, linux, darwin)
	Arch string // Architecture (amd64, arm64)
}

// Detect returns the current platform (OS and architecture)
func Detect() Platform {
	return Platform{
		OS:   runtime.GOOS,
		Arch: runtime.GOARCH,
	}
}

// SystemName returns the display name of the operating system,
// e.g. "Windows", "Linux", "Darwin".
func (p Platform) SystemName() string {
	if p.OS == "" {
		return "Unknown"
	}
	return strings.ToUpper(p.OS[:1]) + p.OS[1:]
}

// String returns "os/arch".
func (p Platform) String() string {
	return p.OS + "/" + p.Arch
}

// Banner is the line logged when an update session starts.
func (p Platform) Banner() string {
	return fmt.Sprintf("Niva-Console Updater started on %s", p.SystemName())
}

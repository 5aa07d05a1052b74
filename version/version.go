// Package version carries the module version and the SDK identifier sent
// to the filter service.
package version

// Version is the module version, overridable at build time via
// -ldflags "-X github.com/paywalls-net/filter/version.Version=...".
var Version = "0.3.0"

// UserAgent returns the SDK identifier used when a request carries no
// User-Agent of its own.
func UserAgent() string {
	return "paywalls-filter-go/" + Version
}

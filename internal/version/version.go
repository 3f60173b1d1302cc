// Package version holds the build-time version string reported by the
// /api/version endpoint and attached to trace resources.
package version

// Version is overridden at build time via -ldflags; it defaults to "dev"
// for local builds.
var Version = "dev"

// Package version carries build identification injected at link time.
package version

// Commit is the git revision baked in via -ldflags "-X currents-api/internal/version.Commit=...".
var Commit = "dev"
